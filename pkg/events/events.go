package events

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/bft-labs/spaship/pkg/app"
	"github.com/bft-labs/spaship/pkg/log"
	"github.com/bft-labs/spaship/pkg/navigation"
)

// Type names a notification.
type Type string

const (
	BeforeNoAppChange       Type = "spaship:before-no-app-change"
	BeforeAppChange         Type = "spaship:before-app-change"
	BeforeRoutingEvent      Type = "spaship:before-routing-event"
	BeforeMountRoutingEvent Type = "spaship:before-mount-routing-event"
	NoAppChange             Type = "spaship:no-app-change"
	AppChange               Type = "spaship:app-change"
	RoutingEvent            Type = "spaship:routing-event"
)

// Types lists every notification in emission order.
var Types = []Type{
	BeforeNoAppChange,
	BeforeAppChange,
	BeforeRoutingEvent,
	BeforeMountRoutingEvent,
	NoAppChange,
	AppChange,
	RoutingEvent,
}

// Detail is the payload shared by the notifications of one pass.
type Detail struct {
	// NewAppStatuses maps every changed application to its new status. Before
	// the change it holds the intended status.
	NewAppStatuses map[string]app.Status `json:"newAppStatuses"`
	// OldAppStatuses maps every changed application to the status it had
	// when the pass classified it.
	OldAppStatuses  map[string]app.Status   `json:"oldAppStatuses"`
	AppsByNewStatus map[app.Status][]string `json:"appsByNewStatus"`
	TotalAppChanges int                     `json:"totalAppChanges"`
	// OriginalEvent is the navigation that triggered the pass, if any.
	OriginalEvent        *navigation.Event `json:"-"`
	OldURL               string            `json:"oldUrl"`
	NewURL               string            `json:"newUrl"`
	NavigationIsCanceled bool              `json:"navigationIsCanceled"`

	cancel *atomic.Bool
}

// NewDetail creates a Detail with the four always-present status buckets.
// Details built from the same cancel flag share one cancellation.
func NewDetail(cancel *atomic.Bool) *Detail {
	if cancel == nil {
		cancel = new(atomic.Bool)
	}
	return &Detail{
		NewAppStatuses: make(map[string]app.Status),
		OldAppStatuses: make(map[string]app.Status),
		AppsByNewStatus: map[app.Status][]string{
			app.StatusMounted:           {},
			app.StatusNotMounted:        {},
			app.StatusNotLoaded:         {},
			app.StatusSkipBecauseBroken: {},
		},
		cancel: cancel,
	}
}

// Add records name moving from old to status.
func (d *Detail) Add(name string, old, status app.Status) {
	d.NewAppStatuses[name] = status
	d.OldAppStatuses[name] = old
	d.AppsByNewStatus[status] = append(d.AppsByNewStatus[status], name)
}

// CancelNavigation asks the pass to revert to OldURL instead of applying
// the changes. It only has an effect during before-routing-event.
func (d *Detail) CancelNavigation() {
	if d.cancel != nil {
		d.cancel.Store(true)
	}
}

// Canceled reports whether a listener canceled the navigation.
func (d *Detail) Canceled() bool {
	return d.cancel != nil && d.cancel.Load()
}

// Event is one notification.
type Event struct {
	Type   Type
	Detail *Detail
}

// Listener receives notifications synchronously.
type Listener func(Event)

type subscription struct {
	id    uint64
	fn    Listener
	types map[Type]struct{}
}

// Bus delivers notifications to listeners in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
	logger log.Logger
}

// NewBus creates an empty Bus.
func NewBus(logger log.Logger) *Bus {
	return &Bus{logger: log.OrNoop(logger)}
}

// Subscribe registers fn for the given types, or for every type when none
// are given. The returned function removes the subscription.
func (b *Bus) Subscribe(fn Listener, types ...Type) (unsubscribe func()) {
	sub := subscription{fn: fn}
	if len(types) > 0 {
		sub.types = make(map[Type]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sub.id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Emit delivers evt to every matching listener. A panicking listener is
// logged and does not stop the others.
func (b *Bus) Emit(evt Event) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.types != nil {
			if _, ok := s.types[evt.Type]; !ok {
				continue
			}
		}
		b.deliver(s, evt)
	}
}

func (b *Bus) deliver(s subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panicked",
				log.String("event", string(evt.Type)),
				log.Any("panic", r))
		}
	}()
	s.fn(evt)
}

// Len returns the number of subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Sorted returns the names in AppsByNewStatus[status] in lexical order.
func (d *Detail) Sorted(status app.Status) []string {
	names := append([]string(nil), d.AppsByNewStatus[status]...)
	sort.Strings(names)
	return names
}
