package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/bft-labs/spaship/internal/metrics"
	"github.com/bft-labs/spaship/pkg/app"
	"github.com/bft-labs/spaship/pkg/log"
	"github.com/bft-labs/spaship/pkg/navigation"
	"github.com/bft-labs/spaship/pkg/registry"
	"github.com/bft-labs/spaship/pkg/timeouts"
)

// ErrApplicationBroken resolves unload requests for applications in
// SKIP_BECAUSE_BROKEN, which can never be unloaded.
var ErrApplicationBroken = errors.New("lifecycle: application is broken")

// StatusEmitter is called after every status change made by a transition.
type StatusEmitter interface {
	OnStatusChange(rec *app.Record, from, to app.Status, reason string)
}

// UnloadQueue exposes pending unload requests.
type UnloadQueue interface {
	PendingUnload(name string) *registry.UnloadTicket
	ResolveUnload(name string, err error)
}

// Config wires a Transitions.
type Config struct {
	Settings *timeouts.Settings
	Guard    *timeouts.Guard
	Unloads  UnloadQueue
	Location func() navigation.Location
	OnError  app.ErrorHandler
	Emitter  StatusEmitter
	Logger   log.Logger
	Clock    clockwork.Clock
}

// Transitions runs lifecycle transitions. It is safe for concurrent use.
type Transitions struct {
	settings *timeouts.Settings
	guard    *timeouts.Guard
	unloads  UnloadQueue
	location func() navigation.Location
	onError  app.ErrorHandler
	emitter  StatusEmitter
	logger   log.Logger
	clock    clockwork.Clock

	loads singleflight.Group
}

// New creates Transitions from cfg, filling unset collaborators with defaults.
func New(cfg Config) *Transitions {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	cfg.Logger = log.OrNoop(cfg.Logger)
	if cfg.Settings == nil {
		cfg.Settings = timeouts.NewSettings(timeouts.DefaultConfig())
	}
	if cfg.Guard == nil {
		cfg.Guard = timeouts.NewGuard(cfg.Clock, cfg.Logger)
	}
	if cfg.Location == nil {
		cfg.Location = func() navigation.Location { return navigation.Location{Pathname: "/"} }
	}
	if cfg.OnError == nil {
		logger := cfg.Logger
		cfg.OnError = func(e *app.AppError) {
			logger.Error("application error", log.App(e.Name), log.Lifecycle(e.Lifecycle),
				log.String("status", e.Status.String()), log.Err(e.Err))
		}
	}
	return &Transitions{
		settings: cfg.Settings,
		guard:    cfg.Guard,
		unloads:  cfg.Unloads,
		location: cfg.Location,
		onError:  cfg.OnError,
		emitter:  cfg.Emitter,
		logger:   cfg.Logger,
		clock:    cfg.Clock,
	}
}

// Load fetches rec's lifecycles. Concurrent calls for the same record share
// one loader invocation.
func (t *Transitions) Load(ctx context.Context, rec *app.Record) error {
	key := rec.Kind().String() + "/" + rec.Name()
	_, err, _ := t.loads.Do(key, func() (any, error) {
		return nil, t.load(ctx, rec)
	})
	return err
}

func (t *Transitions) load(ctx context.Context, rec *app.Record) error {
	from, err := rec.Begin(app.StatusLoadingSourceCode)
	if err != nil {
		return nil
	}
	t.changed(rec, from, app.StatusLoadingSourceCode, "load")

	lc, err := callLoader(ctx, rec.Loader(), t.props(rec))
	if err != nil {
		if ferr := rec.FailLoad(t.clock.Now()); ferr != nil {
			return ferr
		}
		t.changed(rec, app.StatusLoadingSourceCode, app.StatusLoadError, "loader failed")
		return t.fail(rec, "load", app.StatusLoadError, err)
	}
	if err := lc.Validate(); err != nil {
		if terr := rec.TransitionTo(app.StatusSkipBecauseBroken); terr != nil {
			return terr
		}
		t.changed(rec, app.StatusLoadingSourceCode, app.StatusSkipBecauseBroken, "invalid lifecycles")
		return t.fail(rec, "load", app.StatusSkipBecauseBroken, err)
	}
	if err := rec.FinishLoad(lc); err != nil {
		return err
	}
	t.changed(rec, app.StatusLoadingSourceCode, app.StatusNotBootstrapped, "loaded")
	t.succeed(rec, "load")
	return nil
}

// Bootstrap runs the bootstrap callback of a NOT_BOOTSTRAPPED record.
func (t *Transitions) Bootstrap(ctx context.Context, rec *app.Record) error {
	from, err := rec.Begin(app.StatusBootstrapping)
	if err != nil {
		return nil
	}
	t.changed(rec, from, app.StatusBootstrapping, "bootstrap")

	lc := rec.Lifecycles()
	if err := t.run(ctx, rec, timeouts.Bootstrap, lc.Bootstrap, lc); err != nil {
		return t.breakDuring(rec, app.StatusBootstrapping, "bootstrap", err)
	}
	return t.settle(rec, app.StatusBootstrapping, app.StatusNotMounted, "bootstrap")
}

// Mount runs the mount callback of a NOT_MOUNTED record. A failed mount is
// followed by a best-effort unmount before the record is marked broken.
func (t *Transitions) Mount(ctx context.Context, rec *app.Record) error {
	from, err := rec.Begin(app.StatusMounting)
	if err != nil {
		return nil
	}
	t.changed(rec, from, app.StatusMounting, "mount")

	lc := rec.Lifecycles()
	if err := t.run(ctx, rec, timeouts.Mount, lc.Mount, lc); err != nil {
		if uerr := t.run(ctx, rec, timeouts.Unmount, lc.Unmount, lc); uerr != nil {
			t.logger.Warn("cleanup unmount after failed mount also failed",
				log.App(rec.Name()), log.Err(uerr))
		}
		return t.breakDuring(rec, app.StatusMounting, "mount", err)
	}
	return t.settle(rec, app.StatusMounting, app.StatusMounted, "mount")
}

// Unmount unmounts rec's parcels and then rec itself.
func (t *Transitions) Unmount(ctx context.Context, rec *app.Record) error {
	from, err := rec.Begin(app.StatusUnmounting)
	if err != nil {
		return nil
	}
	t.changed(rec, from, app.StatusUnmounting, "unmount")

	var parcelErr error
	for _, p := range rec.Parcels() {
		if err := t.Unmount(ctx, p); err != nil && parcelErr == nil {
			parcelErr = err
		}
		rec.RemoveParcel(p.Name())
	}

	lc := rec.Lifecycles()
	if err := t.run(ctx, rec, timeouts.Unmount, lc.Unmount, lc); err != nil {
		return t.breakDuring(rec, app.StatusUnmounting, "unmount", err)
	}
	if parcelErr != nil {
		return t.breakDuring(rec, app.StatusUnmounting, "unmount",
			fmt.Errorf("unmounted, but a parcel failed to unmount: %w", parcelErr))
	}
	return t.settle(rec, app.StatusUnmounting, app.StatusNotMounted, "unmount")
}

// Unload unloads rec if an unload has been requested for it, resolving the
// request's ticket. Records that are mounted or mid-transition are left for
// a later pass.
func (t *Transitions) Unload(ctx context.Context, rec *app.Record) error {
	if t.unloads == nil {
		return nil
	}
	ticket := t.unloads.PendingUnload(rec.Name())
	if ticket == nil {
		return nil
	}

	switch rec.Status() {
	case app.StatusNotLoaded:
		t.unloads.ResolveUnload(rec.Name(), nil)
		return nil
	case app.StatusUnloading:
		_ = ticket.Wait(ctx)
		return nil
	case app.StatusSkipBecauseBroken:
		t.unloads.ResolveUnload(rec.Name(), fmt.Errorf("%w: %q", ErrApplicationBroken, rec.Name()))
		return nil
	}

	from, err := rec.Begin(app.StatusUnloading)
	if err != nil {
		return nil
	}
	t.changed(rec, from, app.StatusUnloading, "unload")

	lc := rec.Lifecycles()
	if from == app.StatusNotMounted && lc != nil && lc.Unload != nil {
		if err := t.run(ctx, rec, timeouts.Unload, lc.Unload, lc); err != nil {
			herr := t.breakDuring(rec, app.StatusUnloading, "unload", err)
			t.unloads.ResolveUnload(rec.Name(), &app.AppError{
				Name: rec.Name(), Kind: rec.Kind(), Lifecycle: "unload",
				Status: app.StatusSkipBecauseBroken, Err: err,
			})
			return herr
		}
	}

	if err := rec.FinishUnload(); err != nil {
		t.unloads.ResolveUnload(rec.Name(), err)
		return err
	}
	t.changed(rec, app.StatusUnloading, app.StatusNotLoaded, "unload")
	t.succeed(rec, "unload")
	t.unloads.ResolveUnload(rec.Name(), nil)
	return nil
}

// UnloadNow unmounts and unloads rec without waiting for a pass, and
// returns once ticket is resolved. A pass that claims rec in between is
// waited out and the attempt repeated.
func (t *Transitions) UnloadNow(ctx context.Context, rec *app.Record, ticket *registry.UnloadTicket) error {
	if t.unloads == nil {
		return errors.New("lifecycle: no unload queue configured")
	}
	for {
		select {
		case <-ticket.Done():
			return ticket.Err()
		default:
		}
		if _, err := rec.WaitSettled(ctx); err != nil {
			return err
		}
		if err := t.Unmount(ctx, rec); err != nil {
			return err
		}
		if err := t.Unload(ctx, rec); err != nil {
			return err
		}
	}
}

func (t *Transitions) run(ctx context.Context, rec *app.Record, l timeouts.Lifecycle, fn app.LifecycleFunc, lc *app.Lifecycles) error {
	if fn == nil {
		return nil
	}
	props := t.props(rec)
	var overrides timeouts.Overrides
	if lc != nil {
		overrides = lc.Timeouts
	}
	policy := t.settings.Resolve(l, overrides)
	subject := timeouts.Subject{Name: rec.Name(), Kind: rec.Kind().String()}
	return t.guard.Run(ctx, l, subject, policy, func(ctx context.Context) error {
		return fn(ctx, props)
	})
}

func (t *Transitions) props(rec *app.Record) app.Props {
	props, err := rec.ResolveProps(t.location())
	if err != nil {
		t.logger.Warn("custom props are malformed, using empty props", log.App(rec.Name()), log.Err(err))
	}
	props.MountParcel = t.parcelMounter(rec)
	return props
}

func (t *Transitions) settle(rec *app.Record, from, to app.Status, lifecycle string) error {
	if err := rec.TransitionTo(to); err != nil {
		return err
	}
	t.changed(rec, from, to, lifecycle)
	t.succeed(rec, lifecycle)
	return nil
}

// breakDuring marks rec broken after a failed callback.
func (t *Transitions) breakDuring(rec *app.Record, from app.Status, lifecycle string, cause error) error {
	if err := rec.TransitionTo(app.StatusSkipBecauseBroken); err != nil {
		return err
	}
	t.changed(rec, from, app.StatusSkipBecauseBroken, lifecycle+" failed")
	return t.fail(rec, lifecycle, app.StatusSkipBecauseBroken, cause)
}

// fail reports a user-code failure and returns it only for parcels.
func (t *Transitions) fail(rec *app.Record, lifecycle string, status app.Status, cause error) error {
	metrics.LifecycleTransitionsTotal.WithLabelValues(lifecycle, rec.Kind().String(), metrics.OutcomeError).Inc()
	appErr := &app.AppError{Name: rec.Name(), Kind: rec.Kind(), Lifecycle: lifecycle, Status: status, Err: cause}
	t.onError(appErr)
	if rec.Kind() == app.KindParcel {
		return appErr
	}
	return nil
}

func (t *Transitions) succeed(rec *app.Record, lifecycle string) {
	metrics.LifecycleTransitionsTotal.WithLabelValues(lifecycle, rec.Kind().String(), metrics.OutcomeOK).Inc()
}

func (t *Transitions) changed(rec *app.Record, from, to app.Status, reason string) {
	if t.emitter != nil {
		t.emitter.OnStatusChange(rec, from, to, reason)
	}
	t.logger.Debug("status transition",
		log.App(rec.Name()),
		log.String("kind", rec.Kind().String()),
		log.String("from", from.String()),
		log.String("to", to.String()),
		log.String("reason", reason),
	)
}

func callLoader(ctx context.Context, loader app.LoadFunc, props app.Props) (lc *app.Lifecycles, err error) {
	if loader == nil {
		return nil, fmt.Errorf("%w: no loader", app.ErrInvalidLifecycles)
	}
	defer func() {
		if r := recover(); r != nil {
			err = &timeouts.PanicError{Value: r}
		}
	}()
	return loader(ctx, props)
}
