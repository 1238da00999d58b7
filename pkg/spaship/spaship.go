package spaship

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/bft-labs/spaship/pkg/app"
	"github.com/bft-labs/spaship/pkg/events"
	"github.com/bft-labs/spaship/pkg/lifecycle"
	"github.com/bft-labs/spaship/pkg/log"
	"github.com/bft-labs/spaship/pkg/navigation"
	"github.com/bft-labs/spaship/pkg/registry"
	"github.com/bft-labs/spaship/pkg/reroute"
	"github.com/bft-labs/spaship/pkg/timeouts"
)

// Registration describes an application to register.
type Registration = registry.Registration

// Orchestrator owns the registry, the history and the reroute scheduler.
// Use New() to create an instance, then Start() to begin mounting.
type Orchestrator struct {
	config      Config
	logger      log.Logger
	clock       clockwork.Clock
	settings    *timeouts.Settings
	registry    *registry.Registry
	history     *navigation.History
	transitions *lifecycle.Transitions
	scheduler   *reroute.Scheduler
	bus         *events.Bus
	observers   *events.ObserverBridge
	plugins     []Plugin
	run         *runState

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an Orchestrator. Applications can be registered right away;
// they are loaded but not mounted until Start is called.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	onError := o.onError
	if onError == nil {
		onError = func(e *app.AppError) {
			logger.Error("application error",
				log.App(e.Name),
				log.String("kind", e.Kind.String()),
				log.Lifecycle(e.Lifecycle),
				log.String("status", e.Status.String()),
				log.Err(e.Err))
		}
	}

	history, err := navigation.NewHistory(cfg.InitialURL,
		navigation.WithURLRerouteOnly(cfg.URLRerouteOnly),
		navigation.WithHistoryLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	settings := timeouts.NewSettings(cfg.Timeouts)
	reg := registry.New(registry.Options{
		Clock:             o.clock,
		LoadErrorCooldown: cfg.LoadErrorCooldown,
		OnError:           onError,
	})
	transitions := lifecycle.New(lifecycle.Config{
		Settings: settings,
		Guard:    timeouts.NewGuard(o.clock, logger),
		Unloads:  reg,
		Location: history.Location,
		OnError:  onError,
		Logger:   logger,
		Clock:    o.clock,
	})

	bus := events.NewBus(logger)
	for _, l := range o.listeners {
		bus.Subscribe(l.fn, l.types...)
	}
	observers := events.NewObserverBridge(ctx, o.clock, logger)
	for _, obs := range o.observers {
		observers.Register(obs)
	}
	bus.Subscribe(observers.Listener())

	scheduler, err := reroute.New(reroute.Config{
		Registry:    reg,
		Transitions: transitions,
		Navigator:   history,
		Events:      bus,
		Logger:      logger,
		Clock:       o.clock,
		Context:     ctx,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	orch := &Orchestrator{
		config:      cfg,
		logger:      logger,
		clock:       o.clock,
		settings:    settings,
		registry:    reg,
		history:     history,
		transitions: transitions,
		scheduler:   scheduler,
		bus:         bus,
		observers:   observers,
		plugins:     o.plugins,
		run:         newRunState(logger),
		ctx:         ctx,
		cancel:      cancel,
	}
	history.SetRouter(orch.route)
	return orch, nil
}

// route feeds history navigations to the scheduler.
func (o *Orchestrator) route(evt navigation.Event) {
	o.scheduler.Trigger(&evt)
}

// Start initializes the plugins, lifts the start gate and triggers the
// first full reroute. It does not wait for that reroute; use
// TriggerAppChange to wait for the mounted set.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.run.transitionTo(StateStarting, "Start() called"); err != nil {
		return err
	}

	pc := PluginContext{Orchestrator: o, Logger: o.logger, Clock: o.clock}
	for i, p := range o.plugins {
		if err := p.Initialize(o.ctx, pc); err != nil {
			o.logger.Error("plugin initialization failed",
				log.String("plugin", p.Name()),
				log.Err(err))
			o.shutdownPlugins(ctx, o.plugins[:i])
			o.cancel()
			_ = o.run.transitionTo(StateCrashed, "plugin init failed: "+p.Name())
			return fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
		o.logger.Info("plugin initialized", log.String("plugin", p.Name()))
	}

	o.scheduler.Start()
	if err := o.run.transitionTo(StateRunning, "started"); err != nil {
		return err
	}
	o.scheduler.Trigger(nil)
	return nil
}

// Stop detaches the history, waits for the running reroute, shuts the
// plugins down in reverse order and cancels the context handed to
// lifecycle callbacks. It returns ErrShutdownTimeout if the running pass
// does not finish within the configured shutdown timeout.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.run.transitionTo(StateStopping, "Stop() called"); err != nil {
		return err
	}
	o.history.SetRouter(nil)

	waitCtx, cancel := context.WithTimeout(ctx, o.config.ShutdownTimeout)
	defer cancel()
	err := o.scheduler.Wait(waitCtx)
	if err != nil {
		o.logger.Warn("shutdown timeout, abandoning running reroute",
			log.Duration("timeout", o.config.ShutdownTimeout))
		err = ErrShutdownTimeout
	}

	o.shutdownPlugins(ctx, o.plugins)
	o.cancel()
	o.observers.Wait()

	if err != nil {
		_ = o.run.transitionTo(StateCrashed, "shutdown timeout")
	} else {
		_ = o.run.transitionTo(StateStopped, "graceful shutdown")
	}
	return err
}

func (o *Orchestrator) shutdownPlugins(ctx context.Context, plugins []Plugin) {
	for i := len(plugins) - 1; i >= 0; i-- {
		p := plugins[i]
		if err := p.Shutdown(ctx); err != nil {
			o.logger.Error("plugin shutdown failed",
				log.String("plugin", p.Name()),
				log.Err(err))
		} else {
			o.logger.Info("plugin shutdown complete", log.String("plugin", p.Name()))
		}
	}
}

// State returns the run state.
func (o *Orchestrator) State() State {
	return o.run.State()
}

// Started reports whether the start gate has been lifted.
func (o *Orchestrator) Started() bool {
	return o.scheduler.Started()
}

// RegisterApplication registers an application and triggers a reroute.
func (o *Orchestrator) RegisterApplication(reg Registration) error {
	if _, err := o.registry.Register(reg); err != nil {
		return err
	}
	o.logger.Debug("application registered", log.App(reg.Name))
	o.scheduler.Trigger(nil)
	return nil
}

// UnregisterApplication unmounts and unloads name, then removes it.
// A broken application is removed without being unloaded.
func (o *Orchestrator) UnregisterApplication(ctx context.Context, name string) error {
	if err := o.unload(ctx, name, false, false); err != nil && !errors.Is(err, lifecycle.ErrApplicationBroken) {
		return err
	}
	if err := o.registry.Remove(name); err != nil {
		return err
	}
	o.logger.Debug("application unregistered", log.App(name))
	o.scheduler.Trigger(nil)
	return nil
}

// UnloadApplication unloads name so that its next activation loads it
// afresh. With waitForUnmount it waits until a reroute unmounts the
// application on its own; otherwise the application is unmounted and
// unloaded right away and a reroute follows.
func (o *Orchestrator) UnloadApplication(ctx context.Context, name string, waitForUnmount bool) error {
	return o.unload(ctx, name, waitForUnmount, true)
}

func (o *Orchestrator) unload(ctx context.Context, name string, waitForUnmount, reroute bool) error {
	rec, ok := o.registry.Get(name)
	if !ok {
		return fmt.Errorf("%w: %q", registry.ErrApplicationNotFound, name)
	}
	ticket, err := o.registry.QueueUnload(name)
	if err != nil {
		return err
	}
	if waitForUnmount {
		return ticket.Wait(ctx)
	}

	if err := o.transitions.UnloadNow(ctx, rec, ticket); err != nil {
		return err
	}
	if reroute {
		o.scheduler.Trigger(nil)
	}
	return nil
}

// TriggerAppChange runs a reroute for the current location and returns
// the mounted applications.
func (o *Orchestrator) TriggerAppChange(ctx context.Context) ([]string, error) {
	return o.scheduler.Reroute(ctx, nil)
}

// Navigate moves the history to href and waits until the resulting
// reroutes settle. It returns the mounted applications.
func (o *Orchestrator) Navigate(ctx context.Context, href string) ([]string, error) {
	if err := o.history.NavigateToURL(href); err != nil {
		return nil, err
	}
	if err := o.scheduler.Wait(ctx); err != nil {
		return nil, err
	}
	return o.MountedApps(), nil
}

// History returns the history that drives reroutes.
func (o *Orchestrator) History() *navigation.History {
	return o.history
}

// Location returns the current location.
func (o *Orchestrator) Location() navigation.Location {
	return o.history.Location()
}

// Subscribe registers fn for the given notification types, or all of them.
func (o *Orchestrator) Subscribe(fn events.Listener, types ...events.Type) (unsubscribe func()) {
	return o.bus.Subscribe(fn, types...)
}

// RegisterObserver forwards notifications to observer as CloudEvents.
func (o *Orchestrator) RegisterObserver(observer events.Observer) {
	o.observers.Register(observer)
}

// UnregisterObserver removes the observer with the given ID.
func (o *Orchestrator) UnregisterObserver(id string) {
	o.observers.Unregister(id)
}

// SetBootstrapMaxTime sets the bootstrap timeout policy.
func (o *Orchestrator) SetBootstrapMaxTime(timeout time.Duration, dieOnTimeout bool, warning time.Duration) error {
	return o.settings.SetBootstrapMaxTime(timeout, dieOnTimeout, warning)
}

// SetMountMaxTime sets the mount timeout policy.
func (o *Orchestrator) SetMountMaxTime(timeout time.Duration, dieOnTimeout bool, warning time.Duration) error {
	return o.settings.SetMountMaxTime(timeout, dieOnTimeout, warning)
}

// SetUnmountMaxTime sets the unmount timeout policy.
func (o *Orchestrator) SetUnmountMaxTime(timeout time.Duration, dieOnTimeout bool, warning time.Duration) error {
	return o.settings.SetUnmountMaxTime(timeout, dieOnTimeout, warning)
}

// SetUnloadMaxTime sets the unload timeout policy.
func (o *Orchestrator) SetUnloadMaxTime(timeout time.Duration, dieOnTimeout bool, warning time.Duration) error {
	return o.settings.SetUnloadMaxTime(timeout, dieOnTimeout, warning)
}

// Timeouts returns the process-wide timeout policies in effect.
func (o *Orchestrator) Timeouts() timeouts.Config {
	return o.settings.Snapshot()
}

// MountedApps returns the names of the mounted applications.
func (o *Orchestrator) MountedApps() []string {
	mounted := o.registry.Mounted()
	if mounted == nil {
		return []string{}
	}
	return mounted
}

// AppStatus returns the status of name.
func (o *Orchestrator) AppStatus(name string) (app.Status, bool) {
	return o.registry.Status(name)
}

// AppNames returns every registered name in registration order.
func (o *Orchestrator) AppNames() []string {
	return o.registry.Names()
}

// AppStatuses returns the status of every registered application.
func (o *Orchestrator) AppStatuses() map[string]app.Status {
	recs := o.registry.Records()
	statuses := make(map[string]app.Status, len(recs))
	for _, rec := range recs {
		statuses[rec.Name()] = rec.Status()
	}
	return statuses
}

// CheckActivityFunctions returns the applications whose activity predicate
// matches loc.
func (o *Orchestrator) CheckActivityFunctions(loc navigation.Location) []string {
	names := o.registry.CheckActivity(loc)
	if names == nil {
		return []string{}
	}
	return names
}

// MountRootParcel mounts a parcel that no application owns. The caller
// unmounts it through the returned parcel.
func (o *Orchestrator) MountRootParcel(ctx context.Context, loader app.LoadFunc, custom map[string]any) (*lifecycle.Parcel, error) {
	return o.transitions.MountParcel(ctx, nil, loader, custom)
}
