package spaship

import (
	"context"

	"github.com/jonboulle/clockwork"

	"github.com/bft-labs/spaship/pkg/log"
)

// Plugin extends the orchestrator with optional behavior.
// Plugins are initialized in registration order when Start is called and
// shut down in reverse order by Stop.
type Plugin interface {
	// Name returns the plugin identifier used in logs.
	Name() string

	// Initialize is called during Start. The context is canceled by Stop.
	// Returning an error aborts Start.
	Initialize(ctx context.Context, pc PluginContext) error

	// Shutdown is called during Stop.
	Shutdown(ctx context.Context) error
}

// PluginContext gives a plugin access to the orchestrator it extends.
type PluginContext struct {
	Orchestrator *Orchestrator
	Logger       log.Logger
	Clock        clockwork.Clock
}
