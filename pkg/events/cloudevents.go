package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/bft-labs/spaship/pkg/log"
)

// Source is the CloudEvents source attribute of forwarded notifications.
const Source = "spaship/reroute"

// Observer receives notifications as CloudEvents.
type Observer interface {
	OnEvent(ctx context.Context, event cloudevents.Event) error
	ObserverID() string
}

// FunctionalObserver adapts a function to Observer.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an Observer that calls handler.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{id: id, handler: handler}
}

// OnEvent implements Observer.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID implements Observer.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}

// ToCloudEvent converts evt into a CloudEvent stamped with at.
func ToCloudEvent(evt Event, at time.Time) (cloudevents.Event, error) {
	ce := cloudevents.NewEvent()
	ce.SetID(eventID())
	ce.SetSource(Source)
	ce.SetType(string(evt.Type))
	ce.SetTime(at)
	ce.SetSpecVersion(cloudevents.VersionV1)
	if evt.Detail != nil {
		if err := ce.SetData(cloudevents.ApplicationJSON, evt.Detail); err != nil {
			return ce, fmt.Errorf("encode %s detail: %w", evt.Type, err)
		}
		if evt.Detail.OriginalEvent != nil {
			ce.SetExtension("navigationtype", string(evt.Detail.OriginalEvent.Type))
		}
	}
	if err := ce.Validate(); err != nil {
		return ce, fmt.Errorf("invalid cloudevent: %w", err)
	}
	return ce, nil
}

func eventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// ObserverBridge forwards bus notifications to observers. Each observer is
// notified on its own goroutine so a slow observer never delays a pass.
type ObserverBridge struct {
	mu        sync.RWMutex
	observers []Observer
	clock     clockwork.Clock
	logger    log.Logger
	ctx       context.Context
	wg        sync.WaitGroup
}

// NewObserverBridge creates a bridge. ctx is handed to every observer call.
func NewObserverBridge(ctx context.Context, clock clockwork.Clock, logger log.Logger) *ObserverBridge {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &ObserverBridge{
		clock:  clock,
		logger: log.OrNoop(logger),
		ctx:    ctx,
	}
}

// Register adds o. An observer with the same ID is replaced.
func (b *ObserverBridge) Register(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.observers {
		if existing.ObserverID() == o.ObserverID() {
			b.observers[i] = o
			return
		}
	}
	b.observers = append(b.observers, o)
}

// Unregister removes the observer with the given ID.
func (b *ObserverBridge) Unregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, o := range b.observers {
		if o.ObserverID() == id {
			b.observers = append(b.observers[:i:i], b.observers[i+1:]...)
			return
		}
	}
}

// Observers returns the registered observer IDs.
func (b *ObserverBridge) Observers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, len(b.observers))
	for i, o := range b.observers {
		ids[i] = o.ObserverID()
	}
	return ids
}

// Listener returns the bus listener that feeds the bridge.
func (b *ObserverBridge) Listener() Listener {
	return b.Notify
}

// Notify converts evt and fans it out to the observers.
func (b *ObserverBridge) Notify(evt Event) {
	b.mu.RLock()
	observers := append([]Observer(nil), b.observers...)
	b.mu.RUnlock()
	if len(observers) == 0 {
		return
	}

	ce, err := ToCloudEvent(evt, b.clock.Now())
	if err != nil {
		b.logger.Error("failed to build cloudevent", log.String("event", string(evt.Type)), log.Err(err))
		return
	}

	for _, o := range observers {
		b.wg.Add(1)
		go func(o Observer) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("observer panicked",
						log.String("observer", o.ObserverID()),
						log.String("event", ce.Type()),
						log.Any("panic", r))
				}
			}()
			if err := o.OnEvent(b.ctx, ce); err != nil {
				b.logger.Error("observer failed",
					log.String("observer", o.ObserverID()),
					log.String("event", ce.Type()),
					log.Err(err))
			}
		}(o)
	}
}

// Wait blocks until every in-flight delivery has returned.
func (b *ObserverBridge) Wait() {
	b.wg.Wait()
}
