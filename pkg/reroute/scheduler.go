package reroute

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/spaship/internal/metrics"
	"github.com/bft-labs/spaship/pkg/app"
	"github.com/bft-labs/spaship/pkg/events"
	"github.com/bft-labs/spaship/pkg/log"
	"github.com/bft-labs/spaship/pkg/navigation"
	"github.com/bft-labs/spaship/pkg/registry"
)

// ErrPassPanicked rejects the waiters of a pass that panicked.
var ErrPassPanicked = errors.New("reroute: pass panicked")

// Transitioner runs the lifecycle transitions of one record.
type Transitioner interface {
	Load(ctx context.Context, rec *app.Record) error
	Bootstrap(ctx context.Context, rec *app.Record) error
	Mount(ctx context.Context, rec *app.Record) error
	Unmount(ctx context.Context, rec *app.Record) error
	Unload(ctx context.Context, rec *app.Record) error
}

// Registry is the view of the application registry a pass needs.
type Registry interface {
	Classify(loc navigation.Location) registry.Changes
	ShouldBeActive(rec *app.Record, loc navigation.Location) bool
	Mounted() []string
	Counts() map[app.Status]int
}

// Navigator owns the location and the captured navigation listeners.
type Navigator interface {
	Location() navigation.Location
	DispatchCaptured(evt *navigation.Event)
	NavigateToURL(href string) error
}

// Emitter delivers pass notifications.
type Emitter interface {
	Emit(evt events.Event)
}

// Result is the outcome of the pass a trigger was served by.
type Result struct {
	// Mounted lists the applications mounted when the pass finished.
	Mounted []string
	Err     error
}

// Config wires a Scheduler.
type Config struct {
	Registry    Registry
	Transitions Transitioner
	Navigator   Navigator
	Events      Emitter
	Logger      log.Logger
	Clock       clockwork.Clock
	// Context is handed to every lifecycle callback run by a pass.
	Context context.Context
}

type waiter struct {
	result chan Result
	evt    *navigation.Event
}

// Scheduler serializes reroute passes.
type Scheduler struct {
	registry Registry
	t        Transitioner
	nav      Navigator
	events   Emitter
	logger   log.Logger
	clock    clockwork.Clock
	ctx      context.Context

	mu         sync.Mutex
	started    bool
	underway   bool
	waiting    []waiter
	currentURL string
	// idle is closed while no pass is underway.
	idle chan struct{}
}

// New creates a Scheduler. Registry, Transitions and Navigator are required.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Registry == nil || cfg.Transitions == nil || cfg.Navigator == nil {
		return nil, fmt.Errorf("reroute: registry, transitions and navigator are required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	if cfg.Events == nil {
		cfg.Events = events.NewBus(cfg.Logger)
	}
	idle := make(chan struct{})
	close(idle)
	return &Scheduler{
		idle:       idle,
		registry:   cfg.Registry,
		t:          cfg.Transitions,
		nav:        cfg.Navigator,
		events:     cfg.Events,
		logger:     log.OrNoop(cfg.Logger),
		clock:      cfg.Clock,
		ctx:        cfg.Context,
		currentURL: cfg.Navigator.Location().Href,
	}, nil
}

// Start lifts the start gate. Before Start, passes only load the
// applications that should be active. It reports false if already started.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return false
	}
	s.started = true
	return true
}

// Started reports whether Start has been called.
func (s *Scheduler) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Underway reports whether a pass is running.
func (s *Scheduler) Underway() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.underway
}

// Trigger requests a pass and returns a channel that receives its result.
// evt, if not nil, is replayed to the captured navigation listeners once
// unmounting has settled. Trigger never blocks.
func (s *Scheduler) Trigger(evt *navigation.Event) <-chan Result {
	w := waiter{result: make(chan Result, 1), evt: evt}

	s.mu.Lock()
	if s.underway {
		s.waiting = append(s.waiting, w)
		metrics.RerouteWaiters.Set(float64(len(s.waiting)))
		s.mu.Unlock()
		return w.result
	}
	s.underway = true
	s.idle = make(chan struct{})
	s.mu.Unlock()

	s.launch([]waiter{w})
	return w.result
}

// Reroute triggers a pass and waits for its result.
func (s *Scheduler) Reroute(ctx context.Context, evt *navigation.Event) ([]string, error) {
	select {
	case res := <-s.Trigger(evt):
		return res.Mounted, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Wait blocks until no pass is running or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) launch(ws []waiter) {
	go s.run(ws)
}

// pass is the state of one reconciliation.
type pass struct {
	waiters  []waiter
	loc      navigation.Location
	oldURL   string
	changes  registry.Changes
	before   map[string]app.Status
	original *navigation.Event
	cancel   *atomic.Bool
	released bool
}

func (s *Scheduler) run(ws []waiter) {
	p := &pass{waiters: ws, original: originalEvent(ws), cancel: new(atomic.Bool)}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("reroute pass panicked", log.Any("panic", r))
			s.reject(p.waiters, fmt.Errorf("%w: %v", ErrPassPanicked, r))
			if !p.released {
				s.release(p)
			}
		}
	}()

	start := s.clock.Now()
	p.loc = s.nav.Location()
	p.changes = s.registry.Classify(p.loc)
	p.before = snapshot(p.changes)

	s.mu.Lock()
	started := s.started
	p.oldURL = s.currentURL
	s.currentURL = p.loc.Href
	s.mu.Unlock()

	if !started {
		s.preload(p)
		metrics.RerouteDuration.Observe(s.clock.Since(start).Seconds())
		return
	}

	outcome := s.perform(p)
	metrics.ReroutePassesTotal.WithLabelValues(outcome).Inc()
	metrics.RerouteDuration.Observe(s.clock.Since(start).Seconds())
}

// preload loads the applications that should be active without mounting
// anything. It resolves with an empty mounted list.
func (s *Scheduler) preload(p *pass) {
	var g errgroup.Group
	for _, rec := range p.changes.ToLoad {
		g.Go(func() error { return s.t.Load(s.ctx, rec) })
	}
	err := g.Wait()
	s.replay(p.waiters)

	if err != nil {
		metrics.ReroutePassesTotal.WithLabelValues(metrics.OutcomeError).Inc()
		s.reject(p.waiters, err)
	} else {
		metrics.ReroutePassesTotal.WithLabelValues(metrics.OutcomePreload).Inc()
		s.resolve(p.waiters, []string{})
	}
	s.release(p)
}

func (s *Scheduler) perform(p *pass) string {
	s.logger.Debug("reroute pass started",
		log.String("url", p.loc.Href),
		log.Int("to_load", len(p.changes.ToLoad)),
		log.Int("to_mount", len(p.changes.ToMount)),
		log.Int("to_unmount", len(p.changes.ToUnmount)),
		log.Int("to_unload", len(p.changes.ToUnload)),
		log.Int("waiters", len(p.waiters)),
	)

	if p.changes.Empty() {
		s.emit(events.BeforeNoAppChange, s.detail(p, true))
	} else {
		s.emit(events.BeforeAppChange, s.detail(p, true))
	}
	s.emit(events.BeforeRoutingEvent, s.detail(p, true))

	if p.cancel.Load() {
		s.logger.Info("navigation canceled, reverting",
			log.String("from", p.loc.Href), log.String("to", p.oldURL))
		s.emit(events.BeforeMountRoutingEvent, s.detail(p, true))
		// A router hooked to the history queues the revert behind this pass.
		if p.oldURL != "" && p.oldURL != p.loc.Href {
			if err := s.nav.NavigateToURL(p.oldURL); err != nil {
				s.logger.Error("failed to revert canceled navigation", log.String("url", p.oldURL), log.Err(err))
			}
		}
		s.finish(p)
		return metrics.OutcomeCanceled
	}

	var teardown errgroup.Group
	for _, rec := range p.changes.ToUnload {
		teardown.Go(func() error { return s.t.Unload(s.ctx, rec) })
	}
	for _, rec := range p.changes.ToUnmount {
		teardown.Go(func() error {
			if err := s.t.Unmount(s.ctx, rec); err != nil {
				return err
			}
			return s.t.Unload(s.ctx, rec)
		})
	}
	if err := teardown.Wait(); err != nil {
		s.logger.Error("reroute pass failed while unmounting", log.Err(err))
		s.replay(p.waiters)
		s.reject(p.waiters, err)
		s.release(p)
		return metrics.OutcomeError
	}
	s.emit(events.BeforeMountRoutingEvent, s.detail(p, true))

	// Unmounted applications have removed their listeners, so the
	// remaining ones can observe the navigation now.
	s.replay(p.waiters)

	var activate errgroup.Group
	for _, rec := range p.changes.ToLoad {
		activate.Go(func() error {
			if err := s.t.Load(s.ctx, rec); err != nil {
				return err
			}
			return s.bootstrapAndMount(rec)
		})
	}
	for _, rec := range p.changes.ToMount {
		activate.Go(func() error { return s.bootstrapAndMount(rec) })
	}
	if err := activate.Wait(); err != nil {
		s.logger.Error("reroute pass failed while mounting", log.Err(err))
		s.reject(p.waiters, err)
		s.release(p)
		return metrics.OutcomeError
	}

	s.finish(p)
	return metrics.OutcomeOK
}

// bootstrapAndMount checks the live location before each step because the
// navigation may have moved on while rec was loading.
func (s *Scheduler) bootstrapAndMount(rec *app.Record) error {
	if !s.registry.ShouldBeActive(rec, s.nav.Location()) {
		return nil
	}
	if err := s.t.Bootstrap(s.ctx, rec); err != nil {
		return err
	}
	if !s.registry.ShouldBeActive(rec, s.nav.Location()) {
		return nil
	}
	return s.t.Mount(s.ctx, rec)
}

func (s *Scheduler) finish(p *pass) {
	mounted := s.registry.Mounted()
	if mounted == nil {
		mounted = []string{}
	}
	s.resolve(p.waiters, mounted)

	if p.changes.Empty() {
		s.emit(events.NoAppChange, s.detail(p, false))
	} else {
		s.emit(events.AppChange, s.detail(p, false))
	}
	s.emit(events.RoutingEvent, s.detail(p, false))

	counts := s.registry.Counts()
	for st := app.StatusNotLoaded; st <= app.StatusSkipBecauseBroken; st++ {
		metrics.ApplicationsByStatus.WithLabelValues(st.String()).Set(float64(counts[st]))
	}

	s.logger.Debug("reroute pass finished", log.Strings("mounted", mounted))
	s.release(p)
}

// release ends the pass. Queued triggers are served by exactly one
// follow-up pass, which inherits the underway flag.
func (s *Scheduler) release(p *pass) {
	p.released = true
	s.mu.Lock()
	next := s.waiting
	s.waiting = nil
	if len(next) == 0 {
		s.underway = false
		close(s.idle)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	metrics.RerouteWaiters.Set(0)
	s.launch(next)
}

func (s *Scheduler) replay(ws []waiter) {
	for _, w := range ws {
		s.nav.DispatchCaptured(w.evt)
	}
}

func (s *Scheduler) resolve(ws []waiter, mounted []string) {
	for _, w := range ws {
		deliver(w, Result{Mounted: append([]string(nil), mounted...)})
	}
}

func (s *Scheduler) reject(ws []waiter, err error) {
	for _, w := range ws {
		deliver(w, Result{Err: err})
	}
}

// deliver settles w once. Later results are dropped.
func deliver(w waiter, res Result) {
	select {
	case w.result <- res:
	default:
	}
}

func (s *Scheduler) emit(t events.Type, d *events.Detail) {
	s.events.Emit(events.Event{Type: t, Detail: d})
}

// detail builds the notification payload. Before the change it reports the
// status each application is heading for, afterwards the status it reached.
func (s *Scheduler) detail(p *pass, beforeChanges bool) *events.Detail {
	d := events.NewDetail(p.cancel)
	c := p.changes
	if beforeChanges {
		for _, rec := range c.ToLoad {
			d.Add(rec.Name(), p.before[rec.Name()], app.StatusMounted)
		}
		for _, rec := range c.ToMount {
			d.Add(rec.Name(), p.before[rec.Name()], app.StatusMounted)
		}
		for _, rec := range c.ToUnload {
			d.Add(rec.Name(), p.before[rec.Name()], app.StatusNotLoaded)
		}
		for _, rec := range c.ToUnmount {
			d.Add(rec.Name(), p.before[rec.Name()], app.StatusNotMounted)
		}
	} else {
		for _, rec := range changed(c) {
			d.Add(rec.Name(), p.before[rec.Name()], rec.Status())
		}
	}
	d.TotalAppChanges = c.Total()
	d.OriginalEvent = p.original
	d.OldURL = p.oldURL
	d.NewURL = p.loc.Href
	d.NavigationIsCanceled = p.cancel.Load()
	return d
}

func changed(c registry.Changes) []*app.Record {
	all := make([]*app.Record, 0, c.Total())
	all = append(all, c.ToUnload...)
	all = append(all, c.ToLoad...)
	all = append(all, c.ToUnmount...)
	return append(all, c.ToMount...)
}

func snapshot(c registry.Changes) map[string]app.Status {
	statuses := make(map[string]app.Status, c.Total())
	for _, rec := range changed(c) {
		statuses[rec.Name()] = rec.Status()
	}
	return statuses
}

// originalEvent is the most recent navigation among the waiters.
func originalEvent(ws []waiter) *navigation.Event {
	for i := len(ws) - 1; i >= 0; i-- {
		if ws[i].evt != nil {
			return ws[i].evt
		}
	}
	return nil
}
