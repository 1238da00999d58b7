package navigation

// EventType names a navigation event.
type EventType string

const (
	EventHashChange EventType = "hashchange"
	EventPopState   EventType = "popstate"
)

// Routing reports whether listeners for t are captured by the shim.
func (t EventType) Routing() bool {
	return t == EventHashChange || t == EventPopState
}

// Event describes one navigation.
type Event struct {
	Type   EventType
	OldURL string
	NewURL string
	State  any
	// Trigger is "pushState" or "replaceState" for synthetic events, empty otherwise.
	Trigger string
}
