package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bft-labs/spaship/pkg/navigation"
)

// RecordConfig describes a unit at creation time. Values are assumed valid.
type RecordConfig struct {
	Name              string
	Kind              Kind
	Loader            LoadFunc
	ActiveWhen        ActivityFunc
	CustomProps       any
	LoadErrorCooldown time.Duration
	Owner             *Record
}

// Record is the registry's entry for one application or parcel.
type Record struct {
	name        string
	kind        Kind
	loader      LoadFunc
	activeWhen  ActivityFunc
	customProps any
	cooldown    time.Duration
	owner       *Record

	mu            sync.Mutex
	status        Status
	lifecycles    *Lifecycles
	loadErrorTime time.Time
	changed       chan struct{}
	parcels       map[string]*Record
}

// NewRecord creates a record in NOT_LOADED.
func NewRecord(cfg RecordConfig) *Record {
	return &Record{
		name:        cfg.Name,
		kind:        cfg.Kind,
		loader:      cfg.Loader,
		activeWhen:  cfg.ActiveWhen,
		customProps: cfg.CustomProps,
		cooldown:    cfg.LoadErrorCooldown,
		owner:       cfg.Owner,
		status:      StatusNotLoaded,
		changed:     make(chan struct{}),
	}
}

func (r *Record) Name() string                     { return r.name }
func (r *Record) Kind() Kind                       { return r.kind }
func (r *Record) Loader() LoadFunc                 { return r.loader }
func (r *Record) Owner() *Record                   { return r.owner }
func (r *Record) LoadErrorCooldown() time.Duration { return r.cooldown }

// Status returns the current status.
func (r *Record) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// LoadErrorTime returns when the last load failed, or the zero time.
func (r *Record) LoadErrorTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadErrorTime
}

// Lifecycles returns the loaded callbacks, or nil before a successful load.
func (r *Record) Lifecycles() *Lifecycles {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lifecycles
}

// Begin claims the record for a transition by moving it into the
// transitional status to. It fails without side effects when the current
// status has no edge to to.
func (r *Record) Begin(to Status) (Status, error) {
	if !to.Transitional() {
		return 0, fmt.Errorf("%w: %s is not transitional", ErrInvalidTransition, to)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	from := r.status
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	r.setLocked(to)
	return from, nil
}

// TransitionTo moves the record along a permitted edge.
func (r *Record) TransitionTo(to Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !CanTransition(r.status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.status, to)
	}
	r.setLocked(to)
	return nil
}

// FinishLoad stores lifecycles and moves LOADING_SOURCE_CODE to NOT_BOOTSTRAPPED.
func (r *Record) FinishLoad(l *Lifecycles) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !CanTransition(r.status, StatusNotBootstrapped) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.status, StatusNotBootstrapped)
	}
	r.lifecycles = l
	r.loadErrorTime = time.Time{}
	r.setLocked(StatusNotBootstrapped)
	return nil
}

// FailLoad moves LOADING_SOURCE_CODE to LOAD_ERROR and stamps the failure time.
func (r *Record) FailLoad(at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !CanTransition(r.status, StatusLoadError) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.status, StatusLoadError)
	}
	r.loadErrorTime = at
	r.setLocked(StatusLoadError)
	return nil
}

// FinishUnload drops the lifecycles and moves UNLOADING to NOT_LOADED.
func (r *Record) FinishUnload() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !CanTransition(r.status, StatusNotLoaded) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.status, StatusNotLoaded)
	}
	r.lifecycles = nil
	r.loadErrorTime = time.Time{}
	r.setLocked(StatusNotLoaded)
	return nil
}

// BreakIfSettled marks the record SKIP_BECAUSE_BROKEN unless a transition
// owns it. It returns the status it found and whether the record is broken
// afterwards.
func (r *Record) BreakIfSettled() (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.status
	if prev.Transitional() {
		return prev, false
	}
	if prev != StatusSkipBecauseBroken {
		r.setLocked(StatusSkipBecauseBroken)
	}
	return prev, true
}

func (r *Record) setLocked(s Status) {
	r.status = s
	close(r.changed)
	r.changed = make(chan struct{})
}

// WaitSettled blocks until the record is not in a transitional status.
func (r *Record) WaitSettled(ctx context.Context) (Status, error) {
	for {
		r.mu.Lock()
		s, ch := r.status, r.changed
		r.mu.Unlock()
		if !s.Transitional() {
			return s, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return s, ctx.Err()
		}
	}
}

// ShouldBeActive evaluates the activity predicate. A panicking predicate is
// reported as an error and counts as inactive.
func (r *Record) ShouldBeActive(loc navigation.Location) (active bool, err error) {
	if r.activeWhen == nil {
		return false, nil
	}
	defer func() {
		if v := recover(); v != nil {
			active = false
			err = fmt.Errorf("activity predicate panicked: %v", v)
		}
	}()
	return r.activeWhen(loc), nil
}

// ResolveProps builds the props for a callback. When the custom props source
// yields something other than a map, the returned props carry an empty map
// and err describes the problem.
func (r *Record) ResolveProps(loc navigation.Location) (props Props, err error) {
	props = Props{Name: r.name, Kind: r.kind, Custom: map[string]any{}}

	var raw any
	switch src := r.customProps.(type) {
	case nil:
		return props, nil
	case map[string]any:
		if src == nil {
			return props, nil
		}
		raw = src
	case PropsFunc:
		raw, err = callProps(src, r.name, loc)
	case func(string, navigation.Location) any:
		raw, err = callProps(src, r.name, loc)
	default:
		return props, fmt.Errorf("unsupported custom props source %T", src)
	}
	if err != nil {
		return props, err
	}

	m, ok := raw.(map[string]any)
	if !ok || m == nil {
		return props, fmt.Errorf("custom props for %q resolved to %T, using empty props", r.name, raw)
	}
	for k, v := range m {
		props.Custom[k] = v
	}
	return props, nil
}

func callProps(fn func(string, navigation.Location) any, name string, loc navigation.Location) (v any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("custom props function panicked: %v", p)
		}
	}()
	return fn(name, loc), nil
}

// AddParcel attaches a mounted parcel to this record.
func (r *Record) AddParcel(p *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.parcels == nil {
		r.parcels = make(map[string]*Record)
	}
	r.parcels[p.name] = p
}

// RemoveParcel detaches a parcel.
func (r *Record) RemoveParcel(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.parcels, name)
}

// Parcels returns the attached parcels ordered by name.
func (r *Record) Parcels() []*Record {
	r.mu.Lock()
	out := make([]*Record, 0, len(r.parcels))
	for _, p := range r.parcels {
		out = append(out, p)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
