package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/spaship/pkg/app"
	"github.com/bft-labs/spaship/pkg/navigation"
)

func noop(context.Context, app.Props) error { return nil }

var lifecycles = &app.Lifecycles{Bootstrap: noop, Mount: noop, Unmount: noop}

func at(path string) navigation.Location {
	return navigation.MustParse("https://shell.example" + path)
}

// moveTo walks rec along permitted edges to the requested status.
func moveTo(t *testing.T, rec *app.Record, target app.Status) {
	t.Helper()
	path := map[app.Status][]app.Status{
		app.StatusLoadingSourceCode: {app.StatusLoadingSourceCode},
		app.StatusNotBootstrapped:   {app.StatusLoadingSourceCode, app.StatusNotBootstrapped},
		app.StatusNotMounted:        {app.StatusLoadingSourceCode, app.StatusNotBootstrapped, app.StatusBootstrapping, app.StatusNotMounted},
		app.StatusMounted:           {app.StatusLoadingSourceCode, app.StatusNotBootstrapped, app.StatusBootstrapping, app.StatusNotMounted, app.StatusMounting, app.StatusMounted},
	}[target]
	for _, s := range path {
		if s == app.StatusNotBootstrapped {
			require.NoError(t, rec.FinishLoad(lifecycles))
			continue
		}
		require.NoError(t, rec.TransitionTo(s))
	}
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name string
		reg  Registration
		err  error
	}{
		{"empty name", Registration{App: lifecycles, ActiveWhen: "/a"}, ErrInvalidRegistration},
		{"nil app", Registration{Name: "a", ActiveWhen: "/a"}, ErrInvalidRegistration},
		{"wrong app type", Registration{Name: "a", App: 42, ActiveWhen: "/a"}, ErrInvalidRegistration},
		{"nil lifecycles", Registration{Name: "a", App: (*app.Lifecycles)(nil), ActiveWhen: "/a"}, ErrInvalidRegistration},
		{"missing activeWhen", Registration{Name: "a", App: lifecycles}, ErrInvalidRegistration},
		{"bad activeWhen type", Registration{Name: "a", App: lifecycles, ActiveWhen: 3}, ErrInvalidRegistration},
		{"bad element in activeWhen list", Registration{Name: "a", App: lifecycles, ActiveWhen: []any{"/a", 3}}, ErrInvalidRegistration},
		{"empty activeWhen list", Registration{Name: "a", App: lifecycles, ActiveWhen: []string{}}, ErrInvalidRegistration},
		{"bad customProps", Registration{Name: "a", App: lifecycles, ActiveWhen: "/a", CustomProps: "x"}, ErrInvalidRegistration},
		{"negative cooldown", Registration{Name: "a", App: lifecycles, ActiveWhen: "/a", LoadErrorCooldown: -1}, ErrInvalidRegistration},
		{"pattern", Registration{Name: "a", App: lifecycles, ActiveWhen: "/a"}, nil},
		{"loader func literal", Registration{Name: "a", App: func(context.Context, app.Props) (*app.Lifecycles, error) { return lifecycles, nil }, ActiveWhen: "/a"}, nil},
		{"predicate and pattern mix", Registration{Name: "a", App: lifecycles, ActiveWhen: []any{"/a", func(navigation.Location) bool { return false }}}, nil},
		{"props function", Registration{Name: "a", App: lifecycles, ActiveWhen: "/a", CustomProps: app.PropsFunc(func(string, navigation.Location) any { return nil })}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(Options{})
			_, err := r.Register(tt.reg)
			if tt.err == nil {
				require.NoError(t, err)
				assert.Equal(t, []string{"a"}, r.Names())
				return
			}
			assert.ErrorIs(t, err, tt.err)
			assert.Empty(t, r.Names(), "failed registration must not create a record")
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	r := New(Options{})
	_, err := r.Register(Registration{Name: "a", App: lifecycles, ActiveWhen: "/a"})
	require.NoError(t, err)

	_, err = r.Register(Registration{Name: "a", App: lifecycles, ActiveWhen: "/b"})
	assert.ErrorIs(t, err, ErrDuplicateApplication)
	assert.Len(t, r.Records(), 1)
}

func TestRemove(t *testing.T) {
	r := New(Options{})
	for _, n := range []string{"a", "b", "c"} {
		_, err := r.Register(Registration{Name: n, App: lifecycles, ActiveWhen: "/" + n})
		require.NoError(t, err)
	}
	ticket, err := r.QueueUnload("b")
	require.NoError(t, err)

	require.NoError(t, r.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, r.Names())
	assert.NoError(t, ticket.Wait(context.Background()))

	assert.ErrorIs(t, r.Remove("b"), ErrApplicationNotFound)
	_, ok := r.Status("b")
	assert.False(t, ok)
}

func TestClassify(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := New(Options{Clock: clock})

	reg := func(name, pattern string) *app.Record {
		rec, err := r.Register(Registration{Name: name, App: lifecycles, ActiveWhen: pattern})
		require.NoError(t, err)
		return rec
	}

	notLoadedActive := reg("not-loaded-active", "/a")
	reg("not-loaded-inactive", "/z")
	mountedInactive := reg("mounted-inactive", "/z")
	moveTo(t, mountedInactive, app.StatusMounted)
	mountedActive := reg("mounted-active", "/a")
	moveTo(t, mountedActive, app.StatusMounted)
	notMountedActive := reg("not-mounted-active", "/a")
	moveTo(t, notMountedActive, app.StatusNotMounted)
	notMountedUnload := reg("not-mounted-unload", "/z")
	moveTo(t, notMountedUnload, app.StatusNotMounted)
	_, err := r.QueueUnload("not-mounted-unload")
	require.NoError(t, err)
	notMountedKeep := reg("not-mounted-keep", "/z")
	moveTo(t, notMountedKeep, app.StatusNotMounted)
	notBootstrapped := reg("not-bootstrapped", "/a")
	moveTo(t, notBootstrapped, app.StatusNotBootstrapped)
	transitional := reg("mounting", "/a")
	moveTo(t, transitional, app.StatusNotMounted)
	require.NoError(t, transitional.TransitionTo(app.StatusMounting))
	broken := reg("broken", "/a")
	broken.BreakIfSettled()

	c := r.Classify(at("/a"))

	names := func(recs []*app.Record) []string {
		var out []string
		for _, rec := range recs {
			out = append(out, rec.Name())
		}
		return out
	}
	assert.Equal(t, []string{notLoadedActive.Name()}, names(c.ToLoad))
	assert.Equal(t, []string{notMountedActive.Name(), notBootstrapped.Name()}, names(c.ToMount))
	assert.Equal(t, []string{mountedInactive.Name()}, names(c.ToUnmount))
	assert.Equal(t, []string{notMountedUnload.Name()}, names(c.ToUnload))
	assert.Equal(t, 5, c.Total())
	assert.False(t, c.Empty())
}

func TestClassify_LoadErrorCooldown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := New(Options{Clock: clock})
	rec, err := r.Register(Registration{Name: "flaky", App: lifecycles, ActiveWhen: "/a"})
	require.NoError(t, err)

	require.NoError(t, rec.TransitionTo(app.StatusLoadingSourceCode))
	require.NoError(t, rec.FailLoad(clock.Now()))

	assert.Empty(t, r.Classify(at("/a")).ToLoad, "inside the cooldown window")

	clock.Advance(199 * time.Millisecond)
	assert.Empty(t, r.Classify(at("/a")).ToLoad)

	clock.Advance(time.Millisecond)
	assert.Len(t, r.Classify(at("/a")).ToLoad, 1)

	assert.Empty(t, r.Classify(at("/b")).ToLoad, "inactive applications are never retried")
}

func TestClassify_CustomCooldown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := New(Options{Clock: clock, LoadErrorCooldown: time.Second})
	rec, err := r.Register(Registration{Name: "flaky", App: lifecycles, ActiveWhen: "/a", LoadErrorCooldown: 50 * time.Millisecond})
	require.NoError(t, err)
	other, err := r.Register(Registration{Name: "default", App: lifecycles, ActiveWhen: "/a"})
	require.NoError(t, err)

	for _, x := range []*app.Record{rec, other} {
		require.NoError(t, x.TransitionTo(app.StatusLoadingSourceCode))
		require.NoError(t, x.FailLoad(clock.Now()))
	}

	clock.Advance(50 * time.Millisecond)
	c := r.Classify(at("/a"))
	require.Len(t, c.ToLoad, 1)
	assert.Equal(t, "flaky", c.ToLoad[0].Name())
}

func TestShouldBeActive_PanicBreaksRecord(t *testing.T) {
	var reported []*app.AppError
	r := New(Options{OnError: func(e *app.AppError) { reported = append(reported, e) }})
	rec, err := r.Register(Registration{Name: "bad", App: lifecycles, ActiveWhen: func(navigation.Location) bool { panic("boom") }})
	require.NoError(t, err)

	assert.Empty(t, r.CheckActivity(at("/")))
	assert.Equal(t, app.StatusNotLoaded, rec.Status(), "CheckActivity is read-only")
	assert.Empty(t, reported)

	assert.False(t, r.ShouldBeActive(rec, at("/")))
	assert.Equal(t, app.StatusSkipBecauseBroken, rec.Status())
	require.Len(t, reported, 1)
	assert.Equal(t, "activeWhen", reported[0].Lifecycle)
	assert.Equal(t, app.StatusSkipBecauseBroken, reported[0].Status)

	assert.True(t, r.Classify(at("/")).Empty(), "broken applications are never classified")
	assert.Len(t, reported, 1, "broken applications are not evaluated again")
}

func TestShouldBeActive_PanicLeavesOwnedRecord(t *testing.T) {
	var reported []*app.AppError
	r := New(Options{OnError: func(e *app.AppError) { reported = append(reported, e) }})
	rec, err := r.Register(Registration{Name: "bad", App: lifecycles, ActiveWhen: func(loc navigation.Location) bool {
		if loc.Pathname == "/boom" {
			panic("boom")
		}
		return true
	}})
	require.NoError(t, err)
	moveTo(t, rec, app.StatusNotMounted)
	require.NoError(t, rec.TransitionTo(app.StatusMounting))

	assert.False(t, r.ShouldBeActive(rec, at("/boom")))
	assert.Equal(t, app.StatusMounting, rec.Status())
	require.Len(t, reported, 1)
	assert.Equal(t, app.StatusMounting, reported[0].Status)

	require.NoError(t, rec.TransitionTo(app.StatusMounted))
}

func TestMountedAndCounts(t *testing.T) {
	r := New(Options{})
	for _, n := range []string{"b", "a", "c"} {
		rec, err := r.Register(Registration{Name: n, App: lifecycles, ActiveWhen: "/"})
		require.NoError(t, err)
		if n != "c" {
			moveTo(t, rec, app.StatusMounted)
		}
	}

	assert.Equal(t, []string{"b", "a"}, r.Mounted())
	assert.Equal(t, map[app.Status]int{app.StatusMounted: 2, app.StatusNotLoaded: 1}, r.Counts())
	assert.Equal(t, []string{"b", "a", "c"}, r.CheckActivity(at("/x")))
}

func TestUnloadTickets(t *testing.T) {
	r := New(Options{})
	_, err := r.Register(Registration{Name: "a", App: lifecycles, ActiveWhen: "/a"})
	require.NoError(t, err)

	_, err = r.QueueUnload("missing")
	assert.ErrorIs(t, err, ErrApplicationNotFound)

	t1, err := r.QueueUnload("a")
	require.NoError(t, err)
	t2, err := r.QueueUnload("a")
	require.NoError(t, err)
	assert.Same(t, t1, t2)
	assert.Same(t, t1, r.PendingUnload("a"))

	boom := errors.New("unload failed")
	r.ResolveUnload("a", boom)
	assert.Nil(t, r.PendingUnload("a"))
	assert.ErrorIs(t, t1.Wait(context.Background()), boom)
	assert.ErrorIs(t, t1.Err(), boom)

	r.ResolveUnload("a", nil)
}
