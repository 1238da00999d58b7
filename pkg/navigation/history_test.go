package navigation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routed struct {
	mu     sync.Mutex
	events []Event
}

func (r *routed) route(evt Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *routed) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func newTestHistory(t *testing.T, opts ...HistoryOption) (*History, *routed) {
	t.Helper()
	h, err := NewHistory("https://shell.example/", opts...)
	require.NoError(t, err)
	r := &routed{}
	h.SetRouter(r.route)
	return h, r
}

func TestNewHistory_RequiresAbsoluteURL(t *testing.T) {
	_, err := NewHistory("/relative")
	assert.Error(t, err)
}

func TestHistory_PushState(t *testing.T) {
	h, r := newTestHistory(t)

	require.NoError(t, h.PushState("s1", "/a"))

	assert.Equal(t, "/a", h.Location().Pathname)
	assert.Equal(t, "s1", h.State())
	require.Len(t, r.all(), 1)
	evt := r.all()[0]
	assert.Equal(t, EventPopState, evt.Type)
	assert.Equal(t, "pushState", evt.Trigger)
	assert.Equal(t, "https://shell.example/", evt.OldURL)
	assert.Equal(t, "https://shell.example/a", evt.NewURL)
}

func TestHistory_URLRerouteOnly(t *testing.T) {
	h, r := newTestHistory(t, WithURLRerouteOnly(true))

	require.NoError(t, h.ReplaceState("x", "/"))
	assert.Empty(t, r.all())

	require.NoError(t, h.ReplaceState("x", "/b"))
	assert.Len(t, r.all(), 1)
}

func TestHistory_NavigateToURL(t *testing.T) {
	tests := []struct {
		name     string
		start    string
		href     string
		wantType EventType
		wantHref string
		noEvent  bool
	}{
		{name: "hash only", start: "/a", href: "#x", wantType: EventHashChange, wantHref: "https://shell.example/a#x"},
		{name: "same path differs by hash", start: "/a?q=1", href: "/a?q=1#y", wantType: EventHashChange, wantHref: "https://shell.example/a?q=1#y"},
		{name: "same hash is a no-op", start: "/a#x", href: "#x", noEvent: true},
		{name: "different path pushes", start: "/a", href: "/b", wantType: EventPopState, wantHref: "https://shell.example/b"},
		{name: "other host replaces", start: "/a", href: "https://other.example/z", wantType: EventPopState, wantHref: "https://other.example/z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHistory("https://shell.example" + tt.start)
			require.NoError(t, err)
			r := &routed{}
			h.SetRouter(r.route)

			require.NoError(t, h.NavigateToURL(tt.href))

			if tt.noEvent {
				assert.Empty(t, r.all())
				return
			}
			require.Len(t, r.all(), 1)
			assert.Equal(t, tt.wantType, r.all()[0].Type)
			assert.Equal(t, tt.wantHref, h.Location().Href)
		})
	}
}

func TestHistory_CapturedListeners(t *testing.T) {
	h, _ := newTestHistory(t)

	var order []string
	added, err := h.AddEventListener(EventPopState, "first", func(Event) { order = append(order, "first") })
	require.NoError(t, err)
	assert.True(t, added)

	added, err = h.AddEventListener(EventPopState, "first", func(Event) { order = append(order, "dup") })
	require.NoError(t, err)
	assert.False(t, added, "duplicate key must not be captured twice")

	_, err = h.AddEventListener(EventPopState, "boom", func(Event) { panic("listener failure") })
	require.NoError(t, err)
	_, err = h.AddEventListener(EventPopState, "second", func(Event) { order = append(order, "second") })
	require.NoError(t, err)
	_, err = h.AddEventListener(EventHashChange, "hash", func(Event) { order = append(order, "hash") })
	require.NoError(t, err)

	h.DispatchCaptured(&Event{Type: EventPopState})
	assert.Equal(t, []string{"first", "second"}, order)

	h.RemoveEventListener(EventPopState, "first")
	order = nil
	h.DispatchCaptured(&Event{Type: EventPopState})
	assert.Equal(t, []string{"second"}, order)

	order = nil
	h.DispatchCaptured(nil)
	assert.Empty(t, order)
}

func TestHistory_AddEventListenerRejectsOtherTypes(t *testing.T) {
	h, _ := newTestHistory(t)
	_, err := h.AddEventListener(EventType("click"), "k", func(Event) {})
	assert.ErrorIs(t, err, ErrNotRoutingEvent)
}
