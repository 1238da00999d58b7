package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/spaship/pkg/navigation"
)

var here = navigation.MustParse("https://shell.example/a")

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusNotLoaded, "NOT_LOADED"},
		{StatusLoadingSourceCode, "LOADING_SOURCE_CODE"},
		{StatusMounted, "MOUNTED"},
		{StatusSkipBecauseBroken, "SKIP_BECAUSE_BROKEN"},
		{Status(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}

	s, ok := ParseStatus("LOAD_ERROR")
	assert.True(t, ok)
	assert.Equal(t, StatusLoadError, s)
	_, ok = ParseStatus("nope")
	assert.False(t, ok)

	var decoded Status
	require.NoError(t, decoded.UnmarshalText([]byte("NOT_MOUNTED")))
	assert.Equal(t, StatusNotMounted, decoded)
	assert.Error(t, decoded.UnmarshalText([]byte("HALF_MOUNTED")))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusNotLoaded, StatusLoadingSourceCode))
	assert.True(t, CanTransition(StatusLoadError, StatusLoadingSourceCode))
	assert.True(t, CanTransition(StatusUnmounting, StatusNotMounted))
	assert.False(t, CanTransition(StatusMounted, StatusMounting))
	assert.False(t, CanTransition(StatusNotLoaded, StatusMounted))

	for s := StatusNotLoaded; s <= StatusSkipBecauseBroken; s++ {
		assert.False(t, CanTransition(StatusSkipBecauseBroken, s), "SKIP_BECAUSE_BROKEN must be absorbing")
	}
}

func TestRecord_BeginIsExclusive(t *testing.T) {
	r := NewRecord(RecordConfig{Name: "a"})

	from, err := r.Begin(StatusLoadingSourceCode)
	require.NoError(t, err)
	assert.Equal(t, StatusNotLoaded, from)

	_, err = r.Begin(StatusLoadingSourceCode)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = r.Begin(StatusNotMounted)
	assert.ErrorIs(t, err, ErrInvalidTransition, "non-transitional targets are rejected")
}

func TestRecord_LoadOutcomes(t *testing.T) {
	r := NewRecord(RecordConfig{Name: "a"})
	_, err := r.Begin(StatusLoadingSourceCode)
	require.NoError(t, err)

	at := time.Unix(100, 0)
	require.NoError(t, r.FailLoad(at))
	assert.Equal(t, StatusLoadError, r.Status())
	assert.Equal(t, at, r.LoadErrorTime())

	_, err = r.Begin(StatusLoadingSourceCode)
	require.NoError(t, err)
	lc := &Lifecycles{}
	require.NoError(t, r.FinishLoad(lc))
	assert.Equal(t, StatusNotBootstrapped, r.Status())
	assert.Same(t, lc, r.Lifecycles())
	assert.True(t, r.LoadErrorTime().IsZero())
}

func TestRecord_BreakIfSettled(t *testing.T) {
	r := NewRecord(RecordConfig{Name: "a"})
	prev, broken := r.BreakIfSettled()
	assert.Equal(t, StatusNotLoaded, prev)
	assert.True(t, broken)
	assert.Equal(t, StatusSkipBecauseBroken, r.Status())
	assert.Error(t, r.TransitionTo(StatusNotLoaded))

	prev, broken = r.BreakIfSettled()
	assert.Equal(t, StatusSkipBecauseBroken, prev)
	assert.True(t, broken)
}

func TestRecord_BreakIfSettledLeavesOwnedRecords(t *testing.T) {
	r := NewRecord(RecordConfig{Name: "a"})
	_, err := r.Begin(StatusLoadingSourceCode)
	require.NoError(t, err)

	prev, broken := r.BreakIfSettled()
	assert.Equal(t, StatusLoadingSourceCode, prev)
	assert.False(t, broken)
	assert.Equal(t, StatusLoadingSourceCode, r.Status())
	assert.NoError(t, r.FinishLoad(&Lifecycles{}))
}

func TestRecord_WaitSettled(t *testing.T) {
	r := NewRecord(RecordConfig{Name: "a"})
	_, err := r.Begin(StatusLoadingSourceCode)
	require.NoError(t, err)

	done := make(chan Status, 1)
	go func() {
		s, _ := r.WaitSettled(context.Background())
		done <- s
	}()

	select {
	case <-done:
		t.Fatal("WaitSettled returned while loading")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, r.FinishLoad(&Lifecycles{}))
	select {
	case s := <-done:
		assert.Equal(t, StatusNotBootstrapped, s)
	case <-time.After(time.Second):
		t.Fatal("WaitSettled did not observe the settle")
	}

	ctx, cancel := context.WithCancel(context.Background())
	_, err = r.Begin(StatusBootstrapping)
	require.NoError(t, err)
	cancel()
	_, err = r.WaitSettled(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecord_ShouldBeActive(t *testing.T) {
	r := NewRecord(RecordConfig{Name: "a", ActiveWhen: func(l navigation.Location) bool { return l.Pathname == "/a" }})
	active, err := r.ShouldBeActive(here)
	require.NoError(t, err)
	assert.True(t, active)

	broken := NewRecord(RecordConfig{Name: "b", ActiveWhen: func(navigation.Location) bool { panic("bad predicate") }})
	active, err = broken.ShouldBeActive(here)
	assert.Error(t, err)
	assert.False(t, active)
}

func TestRecord_ResolveProps(t *testing.T) {
	tests := []struct {
		name    string
		source  any
		want    map[string]any
		wantErr bool
	}{
		{name: "none", source: nil, want: map[string]any{}},
		{name: "static map", source: map[string]any{"theme": "dark"}, want: map[string]any{"theme": "dark"}},
		{
			name: "function of name and location",
			source: PropsFunc(func(name string, loc navigation.Location) any {
				return map[string]any{"who": name, "path": loc.Pathname}
			}),
			want: map[string]any{"who": "a", "path": "/a"},
		},
		{
			name:    "malformed result",
			source:  func(string, navigation.Location) any { return 42 },
			want:    map[string]any{},
			wantErr: true,
		},
		{
			name:    "panicking function",
			source:  PropsFunc(func(string, navigation.Location) any { panic("no") }),
			want:    map[string]any{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecord(RecordConfig{Name: "a", CustomProps: tt.source})
			props, err := r.ResolveProps(here)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, "a", props.Name)
			assert.Equal(t, tt.want, props.Custom)
		})
	}
}

func TestChain(t *testing.T) {
	var calls []int
	step := func(i int, err error) LifecycleFunc {
		return func(context.Context, Props) error {
			calls = append(calls, i)
			return err
		}
	}
	boom := errors.New("boom")

	err := Chain(step(1, nil), step(2, boom), step(3, nil))(context.Background(), Props{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{1, 2}, calls)
}

func TestLifecycles_Validate(t *testing.T) {
	noop := func(context.Context, Props) error { return nil }
	var nilLC *Lifecycles

	assert.ErrorIs(t, nilLC.Validate(), ErrInvalidLifecycles)
	assert.ErrorIs(t, (&Lifecycles{Mount: noop, Unmount: noop}).Validate(), ErrInvalidLifecycles)
	assert.NoError(t, (&Lifecycles{Bootstrap: noop, Mount: noop, Unmount: noop}).Validate())
}

func TestRecord_Parcels(t *testing.T) {
	owner := NewRecord(RecordConfig{Name: "owner"})
	owner.AddParcel(NewRecord(RecordConfig{Name: "p2", Kind: KindParcel, Owner: owner}))
	owner.AddParcel(NewRecord(RecordConfig{Name: "p1", Kind: KindParcel, Owner: owner}))

	ps := owner.Parcels()
	require.Len(t, ps, 2)
	assert.Equal(t, "p1", ps[0].Name())
	assert.Same(t, owner, ps[0].Owner())

	owner.RemoveParcel("p1")
	assert.Len(t, owner.Parcels(), 1)
}
