package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/bft-labs/spaship/pkg/app"
	"github.com/bft-labs/spaship/pkg/navigation"
)

// Options configures a Registry.
type Options struct {
	Clock             clockwork.Clock
	LoadErrorCooldown time.Duration
	OnError           app.ErrorHandler
}

// Registry is the ordered, concurrency-safe set of application records.
type Registry struct {
	clock    clockwork.Clock
	cooldown time.Duration
	onError  app.ErrorHandler

	mu      sync.RWMutex
	records []*app.Record
	byName  map[string]*app.Record
	unloads map[string]*UnloadTicket
}

// New creates an empty Registry.
func New(opts Options) *Registry {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.LoadErrorCooldown <= 0 {
		opts.LoadErrorCooldown = DefaultLoadErrorCooldown
	}
	if opts.OnError == nil {
		opts.OnError = func(*app.AppError) {}
	}
	return &Registry{
		clock:    opts.Clock,
		cooldown: opts.LoadErrorCooldown,
		onError:  opts.OnError,
		byName:   make(map[string]*app.Record),
		unloads:  make(map[string]*UnloadTicket),
	}
}

// Register validates reg and appends a NOT_LOADED record.
func (r *Registry) Register(reg Registration) (*app.Record, error) {
	loader, active, err := reg.validate()
	if err != nil {
		return nil, err
	}
	cooldown := reg.LoadErrorCooldown
	if cooldown == 0 {
		cooldown = r.cooldown
	}
	rec := app.NewRecord(app.RecordConfig{
		Name:              reg.Name,
		Kind:              app.KindApplication,
		Loader:            loader,
		ActiveWhen:        active,
		CustomProps:       reg.CustomProps,
		LoadErrorCooldown: cooldown,
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[reg.Name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateApplication, reg.Name)
	}
	r.records = append(r.records, rec)
	r.byName[reg.Name] = rec
	return rec, nil
}

// Remove drops the record for name. A pending unload ticket is resolved.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	rec, ok := r.byName[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrApplicationNotFound, name)
	}
	delete(r.byName, name)
	for i, candidate := range r.records {
		if candidate == rec {
			r.records = append(r.records[:i:i], r.records[i+1:]...)
			break
		}
	}
	ticket := r.unloads[name]
	delete(r.unloads, name)
	r.mu.Unlock()

	if ticket != nil {
		ticket.resolve(nil)
	}
	return nil
}

// Get returns the record for name.
func (r *Registry) Get(name string) (*app.Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byName[name]
	return rec, ok
}

// Records returns the records in registration order.
func (r *Registry) Records() []*app.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*app.Record(nil), r.records...)
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	recs := r.Records()
	names := make([]string, len(recs))
	for i, rec := range recs {
		names[i] = rec.Name()
	}
	return names
}

// Status returns the status of name.
func (r *Registry) Status(name string) (app.Status, bool) {
	rec, ok := r.Get(name)
	if !ok {
		return 0, false
	}
	return rec.Status(), true
}

// Mounted returns the names of MOUNTED applications in registration order.
func (r *Registry) Mounted() []string {
	var names []string
	for _, rec := range r.Records() {
		if rec.Status() == app.StatusMounted {
			names = append(names, rec.Name())
		}
	}
	return names
}

// Counts returns how many applications are in each status.
func (r *Registry) Counts() map[app.Status]int {
	counts := make(map[app.Status]int)
	for _, rec := range r.Records() {
		counts[rec.Status()]++
	}
	return counts
}

// ShouldBeActive evaluates rec's predicate at loc. A panicking predicate
// counts as inactive and is reported to the error handler. It breaks the
// record only when no transition is running on it.
func (r *Registry) ShouldBeActive(rec *app.Record, loc navigation.Location) bool {
	if rec.Status() == app.StatusSkipBecauseBroken {
		return false
	}
	active, err := rec.ShouldBeActive(loc)
	if err != nil {
		status, broken := rec.BreakIfSettled()
		if broken {
			status = app.StatusSkipBecauseBroken
		}
		r.onError(&app.AppError{
			Name:      rec.Name(),
			Kind:      rec.Kind(),
			Lifecycle: "activeWhen",
			Status:    status,
			Err:       err,
		})
		return false
	}
	return active
}

// CheckActivity returns the names of applications whose predicate matches loc,
// regardless of their status. It never changes a record: a panicking
// predicate only counts as a mismatch.
func (r *Registry) CheckActivity(loc navigation.Location) []string {
	var names []string
	for _, rec := range r.Records() {
		if active, err := rec.ShouldBeActive(loc); err == nil && active {
			names = append(names, rec.Name())
		}
	}
	return names
}
