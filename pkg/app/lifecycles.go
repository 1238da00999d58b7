package app

import (
	"context"
	"fmt"

	"github.com/bft-labs/spaship/pkg/navigation"
	"github.com/bft-labs/spaship/pkg/timeouts"
)

// Props are handed to the loader and to every lifecycle callback.
type Props struct {
	Name   string
	Kind   Kind
	Custom map[string]any
	// MountParcel mounts a parcel owned by the receiving unit.
	MountParcel ParcelMounter
}

// ParcelHandle is a mounted parcel as seen by its owner.
type ParcelHandle interface {
	Name() string
	Status() Status
	Unmount(ctx context.Context) error
}

// ParcelMounter mounts a parcel loaded by loader under the calling unit.
type ParcelMounter func(ctx context.Context, loader LoadFunc, custom map[string]any) (ParcelHandle, error)

// LifecycleFunc is one lifecycle callback. Returning settles it.
type LifecycleFunc func(ctx context.Context, props Props) error

// Chain runs fns in order and stops at the first error.
func Chain(fns ...LifecycleFunc) LifecycleFunc {
	return func(ctx context.Context, props Props) error {
		for i, fn := range fns {
			if fn == nil {
				return fmt.Errorf("chained lifecycle %d is nil", i)
			}
			if err := fn(ctx, props); err != nil {
				return err
			}
		}
		return nil
	}
}

// Lifecycles are the callbacks a loaded module exposes.
type Lifecycles struct {
	Bootstrap LifecycleFunc
	Mount     LifecycleFunc
	Unmount   LifecycleFunc
	// Unload is optional.
	Unload LifecycleFunc
	// Timeouts overrides the process-wide policies for this module.
	Timeouts timeouts.Overrides
}

// Validate reports which required callback is missing.
func (l *Lifecycles) Validate() error {
	if l == nil {
		return fmt.Errorf("%w: no lifecycles", ErrInvalidLifecycles)
	}
	switch {
	case l.Bootstrap == nil:
		return fmt.Errorf("%w: missing bootstrap", ErrInvalidLifecycles)
	case l.Mount == nil:
		return fmt.Errorf("%w: missing mount", ErrInvalidLifecycles)
	case l.Unmount == nil:
		return fmt.Errorf("%w: missing unmount", ErrInvalidLifecycles)
	}
	return nil
}

// LoadFunc produces the lifecycles of an application.
type LoadFunc func(ctx context.Context, props Props) (*Lifecycles, error)

// Static wraps already-available lifecycles as a LoadFunc.
func Static(l *Lifecycles) LoadFunc {
	return func(context.Context, Props) (*Lifecycles, error) {
		return l, nil
	}
}

// ActivityFunc decides whether an application should be mounted at a location.
type ActivityFunc func(navigation.Location) bool

// PropsFunc computes custom props at call time. Any result that is not a
// map[string]any is replaced with an empty map.
type PropsFunc func(name string, loc navigation.Location) any
