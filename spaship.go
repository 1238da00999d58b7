// Package spaship coordinates independently deployed UI applications that
// share one page, mounting and unmounting them as the location changes.
//
// Example usage:
//
//	o, err := spaship.New(spaship.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = o.RegisterApplication(spaship.Registration{
//	    Name:       "settings",
//	    App:        spaship.Static(settingsLifecycles),
//	    ActiveWhen: "/settings",
//	})
//	if err := o.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	mounted, err := o.Navigate(ctx, "/settings")
package spaship

import (
	"github.com/bft-labs/spaship/pkg/app"
	"github.com/bft-labs/spaship/pkg/events"
	orchestrator "github.com/bft-labs/spaship/pkg/spaship"
)

// Orchestrator is the embeddable application orchestrator.
type Orchestrator = orchestrator.Orchestrator

// Config holds the orchestrator configuration.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = orchestrator.Config

// Option configures optional behavior of an Orchestrator.
type Option = orchestrator.Option

// Plugin extends the orchestrator with optional behavior.
type Plugin = orchestrator.Plugin

// Registration describes an application to register.
type Registration = orchestrator.Registration

// Re-export the application contract for convenient access.
// Users can also import pkg/app directly.
type (
	Lifecycles    = app.Lifecycles
	LifecycleFunc = app.LifecycleFunc
	LoadFunc      = app.LoadFunc
	Props         = app.Props
	Status        = app.Status
	AppError      = app.AppError
	Event         = events.Event
	EventType     = events.Type
)

// New creates an Orchestrator.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	return orchestrator.New(cfg, opts...)
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return orchestrator.DefaultConfig()
}

// Static returns a loader that hands out lifecycles that are already available.
func Static(l *Lifecycles) LoadFunc {
	return app.Static(l)
}

// Chain runs several lifecycle functions in order as one.
func Chain(fns ...LifecycleFunc) LifecycleFunc {
	return app.Chain(fns...)
}

// Options re-exported from pkg/spaship.
var (
	WithLogger        = orchestrator.WithLogger
	WithClock         = orchestrator.WithClock
	WithErrorHandler  = orchestrator.WithErrorHandler
	WithEventListener = orchestrator.WithEventListener
	WithObserver      = orchestrator.WithObserver
	WithPlugin        = orchestrator.WithPlugin
)
