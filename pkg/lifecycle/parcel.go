package lifecycle

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bft-labs/spaship/pkg/app"
)

// Parcel is a mounted unit owned by an application or by the root.
type Parcel struct {
	rec   *app.Record
	owner *app.Record
	t     *Transitions
}

// Name returns the parcel's generated name.
func (p *Parcel) Name() string { return p.rec.Name() }

// Status returns the parcel's current status.
func (p *Parcel) Status() app.Status { return p.rec.Status() }

// Record exposes the underlying record.
func (p *Parcel) Record() *app.Record { return p.rec }

// Unmount unmounts the parcel and detaches it from its owner.
func (p *Parcel) Unmount(ctx context.Context) error {
	if s := p.rec.Status(); s != app.StatusMounted {
		return fmt.Errorf("%w: parcel %q is %s, not MOUNTED", app.ErrInvalidTransition, p.rec.Name(), s)
	}
	err := p.t.Unmount(ctx, p.rec)
	if p.owner != nil {
		p.owner.RemoveParcel(p.rec.Name())
	}
	return err
}

var _ app.ParcelHandle = (*Parcel)(nil)

// MountParcel loads, bootstraps and mounts a parcel. A nil owner mounts it
// at the root. Any failure is returned and the parcel is detached.
func (t *Transitions) MountParcel(ctx context.Context, owner *app.Record, loader app.LoadFunc, custom map[string]any) (*Parcel, error) {
	if loader == nil {
		return nil, fmt.Errorf("%w: parcel needs a loader", app.ErrInvalidLifecycles)
	}
	if owner != nil && owner.Status() != app.StatusMounting && owner.Status() != app.StatusMounted {
		return nil, fmt.Errorf("%w: owner %q is %s", app.ErrInvalidTransition, owner.Name(), owner.Status())
	}

	var props any
	if custom != nil {
		props = custom
	}
	rec := app.NewRecord(app.RecordConfig{
		Name:        "parcel-" + uuid.NewString(),
		Kind:        app.KindParcel,
		Loader:      loader,
		CustomProps: props,
		Owner:       owner,
	})
	p := &Parcel{rec: rec, owner: owner, t: t}
	if owner != nil {
		owner.AddParcel(rec)
	}

	steps := []func(context.Context, *app.Record) error{t.Load, t.Bootstrap, t.Mount}
	for _, step := range steps {
		if err := step(ctx, rec); err != nil {
			p.detach()
			return nil, err
		}
	}
	if rec.Status() != app.StatusMounted {
		p.detach()
		return nil, fmt.Errorf("%w: parcel %q ended in %s", app.ErrInvalidTransition, rec.Name(), rec.Status())
	}
	return p, nil
}

func (p *Parcel) detach() {
	if p.owner != nil {
		p.owner.RemoveParcel(p.rec.Name())
	}
}

func (t *Transitions) parcelMounter(owner *app.Record) app.ParcelMounter {
	return func(ctx context.Context, loader app.LoadFunc, custom map[string]any) (app.ParcelHandle, error) {
		p, err := t.MountParcel(ctx, owner, loader, custom)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}
