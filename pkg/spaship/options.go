package spaship

import (
	"github.com/jonboulle/clockwork"

	"github.com/bft-labs/spaship/pkg/app"
	"github.com/bft-labs/spaship/pkg/events"
	"github.com/bft-labs/spaship/pkg/log"
)

// Option configures optional behavior of an Orchestrator.
type Option func(*options)

type eventListener struct {
	fn    events.Listener
	types []events.Type
}

type options struct {
	logger    log.Logger
	clock     clockwork.Clock
	onError   app.ErrorHandler
	listeners []eventListener
	observers []events.Observer
	plugins   []Plugin
}

func defaultOptions() options {
	return options{
		logger: log.NewNoopLogger(),
		clock:  clockwork.NewRealClock(),
	}
}

// WithLogger sets the logger. If not provided, nothing is logged.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock replaces the clock used for timeouts and the load error cooldown.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithErrorHandler sets the handler that receives application failures.
// The default handler logs them at error level.
func WithErrorHandler(handler app.ErrorHandler) Option {
	return func(o *options) {
		o.onError = handler
	}
}

// WithEventListener subscribes fn to the given notification types, or to
// all of them when none are given. Listeners run synchronously on the
// reroute goroutine.
func WithEventListener(fn events.Listener, types ...events.Type) Option {
	return func(o *options) {
		o.listeners = append(o.listeners, eventListener{fn: fn, types: types})
	}
}

// WithObserver forwards every notification to observer as a CloudEvent.
func WithObserver(observer events.Observer) Option {
	return func(o *options) {
		o.observers = append(o.observers, observer)
	}
}

// WithPlugin registers a plugin to be initialized when the orchestrator starts.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}
