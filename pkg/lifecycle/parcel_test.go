package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/spaship/pkg/app"
)

func TestParcel_MountedByApplication(t *testing.T) {
	h := newHarness(t)

	var mu sync.Mutex
	var order []string
	note := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}
	step := func(s string) app.LifecycleFunc {
		return func(context.Context, app.Props) error { note(s); return nil }
	}

	parcelLC := &app.Lifecycles{Bootstrap: step("parcel bootstrap"), Mount: step("parcel mount"), Unmount: step("parcel unmount")}
	var handle app.ParcelHandle
	owner := &app.Lifecycles{
		Bootstrap: step("app bootstrap"),
		Mount: func(ctx context.Context, p app.Props) error {
			note("app mount")
			var err error
			handle, err = p.MountParcel(ctx, app.Static(parcelLC), map[string]any{"id": 1})
			return err
		},
		Unmount: step("app unmount"),
	}
	rec := h.register("shell", owner, nil)

	h.mountAll(rec)
	require.NotNil(t, handle)
	assert.Equal(t, app.StatusMounted, handle.Status())
	require.Len(t, rec.Parcels(), 1)
	assert.Equal(t, app.KindParcel, rec.Parcels()[0].Kind())

	require.NoError(t, h.tr.Unmount(context.Background(), rec))
	assert.Equal(t, app.StatusNotMounted, rec.Status())
	assert.Equal(t, app.StatusNotMounted, handle.Status())
	assert.Empty(t, rec.Parcels())
	assert.Equal(t, []string{
		"app bootstrap", "app mount", "parcel bootstrap", "parcel mount",
		"parcel unmount", "app unmount",
	}, order)
}

func TestParcel_FailuresAreReturned(t *testing.T) {
	h := newHarness(t)
	noop := func(context.Context, app.Props) error { return nil }
	boom := errors.New("parcel mount failed")

	_, err := h.tr.MountParcel(context.Background(), nil, app.Static(&app.Lifecycles{
		Bootstrap: noop,
		Mount:     func(context.Context, app.Props) error { return boom },
		Unmount:   noop,
	}), nil)

	var appErr *app.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, app.KindParcel, appErr.Kind)
	assert.Equal(t, "mount", appErr.Lifecycle)
	assert.ErrorIs(t, err, boom)

	_, err = h.tr.MountParcel(context.Background(), nil, func(context.Context, app.Props) (*app.Lifecycles, error) {
		return nil, errors.New("404")
	}, nil)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, app.StatusLoadError, appErr.Status)

	_, err = h.tr.MountParcel(context.Background(), nil, nil, nil)
	assert.ErrorIs(t, err, app.ErrInvalidLifecycles)
}

func TestParcel_UnmountFailureBreaksOwnerAfterUnmounting(t *testing.T) {
	h := newHarness(t)
	noop := func(context.Context, app.Props) error { return nil }
	var ownerUnmounted bool

	owner := &app.Lifecycles{
		Bootstrap: noop,
		Mount: func(ctx context.Context, p app.Props) error {
			_, err := p.MountParcel(ctx, app.Static(&app.Lifecycles{
				Bootstrap: noop,
				Mount:     noop,
				Unmount:   func(context.Context, app.Props) error { return errors.New("stuck parcel") },
			}), nil)
			return err
		},
		Unmount: func(context.Context, app.Props) error { ownerUnmounted = true; return nil },
	}
	rec := h.register("shell", owner, nil)
	h.mountAll(rec)

	require.NoError(t, h.tr.Unmount(context.Background(), rec))
	assert.True(t, ownerUnmounted)
	assert.Equal(t, app.StatusSkipBecauseBroken, rec.Status())
}

func TestParcel_RootUnmount(t *testing.T) {
	h := newHarness(t)
	noop := func(context.Context, app.Props) error { return nil }

	p, err := h.tr.MountParcel(context.Background(), nil, app.Static(&app.Lifecycles{Bootstrap: noop, Mount: noop, Unmount: noop}), nil)
	require.NoError(t, err)
	require.NoError(t, p.Unmount(context.Background()))
	assert.Equal(t, app.StatusNotMounted, p.Status())

	assert.ErrorIs(t, p.Unmount(context.Background()), app.ErrInvalidTransition)
}
