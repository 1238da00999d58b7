package navigation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bft-labs/spaship/pkg/log"
)

// ErrNotRoutingEvent is returned when a listener is registered for an event
// type the shim does not capture.
var ErrNotRoutingEvent = errors.New("navigation: only hashchange and popstate listeners are captured")

// Listener receives a replayed navigation event.
type Listener func(Event)

// Router receives every navigation performed through History.
type Router func(Event)

type capturedListener struct {
	key string
	fn  Listener
}

// History owns the current location and the captured routing listeners.
// It is safe for concurrent use.
type History struct {
	mu             sync.Mutex
	current        Location
	state          any
	urlRerouteOnly bool
	router         Router
	captured       map[EventType][]capturedListener
	logger         log.Logger
}

// HistoryOption configures a History.
type HistoryOption func(*History)

// WithURLRerouteOnly suppresses router calls for push/replace operations
// that leave the URL unchanged.
func WithURLRerouteOnly(enabled bool) HistoryOption {
	return func(h *History) { h.urlRerouteOnly = enabled }
}

// WithHistoryLogger sets the logger used for listener failures.
func WithHistoryLogger(logger log.Logger) HistoryOption {
	return func(h *History) { h.logger = logger }
}

// NewHistory creates a History positioned at initial, which must be absolute.
func NewHistory(initial string, opts ...HistoryOption) (*History, error) {
	loc, err := Parse(initial, "")
	if err != nil {
		return nil, err
	}
	if loc.Origin == "" {
		return nil, fmt.Errorf("navigation: initial url %q must be absolute", initial)
	}
	h := &History{
		current:  loc,
		captured: make(map[EventType][]capturedListener),
		logger:   log.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Location returns a snapshot of the current location.
func (h *History) Location() Location {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// State returns the state attached by the last push or replace.
func (h *History) State() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// SetRouter installs the hook invoked after every navigation.
func (h *History) SetRouter(r Router) {
	h.mu.Lock()
	h.router = r
	h.mu.Unlock()
}

// PushState moves to href and records state.
func (h *History) PushState(state any, href string) error {
	return h.update("pushState", state, href)
}

// ReplaceState moves to href and replaces the recorded state.
func (h *History) ReplaceState(state any, href string) error {
	return h.update("replaceState", state, href)
}

func (h *History) update(trigger string, state any, href string) error {
	h.mu.Lock()
	dest, err := Parse(href, h.current.Href)
	if err != nil {
		h.mu.Unlock()
		return err
	}
	before := h.current.Href
	h.current = dest
	h.state = state
	router := h.router
	suppress := h.urlRerouteOnly && before == dest.Href
	h.mu.Unlock()

	if router != nil && !suppress {
		router(Event{Type: EventPopState, OldURL: before, NewURL: dest.Href, State: state, Trigger: trigger})
	}
	return nil
}

// NavigateToURL performs an application-initiated navigation.
// A fragment-only href or a destination that differs only by fragment is a
// hash change. A destination on another host replaces the location outright.
// Everything else is pushed onto the history.
func (h *History) NavigateToURL(href string) error {
	h.mu.Lock()
	current := h.current
	h.mu.Unlock()

	dest, err := Parse(href, current.Href)
	if err != nil {
		return err
	}

	switch {
	case strings.HasPrefix(href, "#"):
		return h.changeHash(dest)
	case dest.Host != current.Host:
		return h.replaceLocation(dest)
	case dest.Pathname == current.Pathname && dest.Search == current.Search:
		return h.changeHash(dest)
	default:
		return h.PushState(nil, dest.Href)
	}
}

func (h *History) changeHash(dest Location) error {
	h.mu.Lock()
	before := h.current
	if before.Hash == dest.Hash {
		h.mu.Unlock()
		return nil
	}
	next := before
	next.Hash = dest.Hash
	next.Href = next.Origin + next.Pathname + next.Search + next.Hash
	h.current = next
	router := h.router
	h.mu.Unlock()

	if router != nil {
		router(Event{Type: EventHashChange, OldURL: before.Href, NewURL: next.Href})
	}
	return nil
}

func (h *History) replaceLocation(dest Location) error {
	h.mu.Lock()
	before := h.current.Href
	h.current = dest
	h.state = nil
	router := h.router
	h.mu.Unlock()

	if router != nil {
		router(Event{Type: EventPopState, OldURL: before, NewURL: dest.Href})
	}
	return nil
}

// AddEventListener captures fn under key for the given routing event type.
// It reports false when key is already registered for t.
func (h *History) AddEventListener(t EventType, key string, fn Listener) (bool, error) {
	if !t.Routing() {
		return false, ErrNotRoutingEvent
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, l := range h.captured[t] {
		if l.key == key {
			return false, nil
		}
	}
	h.captured[t] = append(h.captured[t], capturedListener{key: key, fn: fn})
	return true, nil
}

// RemoveEventListener drops the listener registered under key.
func (h *History) RemoveEventListener(t EventType, key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ls := h.captured[t]
	for i, l := range ls {
		if l.key == key {
			h.captured[t] = append(ls[:i:i], ls[i+1:]...)
			return
		}
	}
}

// DispatchCaptured replays evt to the captured listeners of its type in
// registration order. A panicking listener is logged and does not stop the
// remaining ones. A nil event is ignored.
func (h *History) DispatchCaptured(evt *Event) {
	if evt == nil {
		return
	}
	h.mu.Lock()
	ls := append([]capturedListener(nil), h.captured[evt.Type]...)
	h.mu.Unlock()

	for _, l := range ls {
		h.invoke(l, *evt)
	}
}

func (h *History) invoke(l capturedListener, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("captured navigation listener panicked",
				log.String("listener", l.key),
				log.String("event", string(evt.Type)),
				log.Any("panic", r))
		}
	}()
	l.fn(evt)
}
