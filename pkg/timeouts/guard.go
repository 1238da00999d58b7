package timeouts

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/bft-labs/spaship/internal/metrics"
	"github.com/bft-labs/spaship/pkg/log"
)

// Subject identifies what a guarded callback belongs to.
type Subject struct {
	Name string
	Kind string
}

// TimeoutError is returned when a callback passes a fatal deadline.
type TimeoutError struct {
	Lifecycle Lifecycle
	Subject   Subject
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s %q did not %s within %s", e.Subject.Kind, e.Subject.Name, e.Lifecycle, e.Timeout)
}

// Is makes errors.Is(err, ErrLifecycleTimeout) match.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrLifecycleTimeout
}

// PanicError wraps a value recovered from a panicking callback.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("callback panicked: %v", e.Value)
}

// Guard enforces a Policy around one callback at a time.
// A Guard is stateless between calls and safe for concurrent use.
type Guard struct {
	clock  clockwork.Clock
	logger log.Logger
}

// NewGuard creates a Guard using clock for every timer.
func NewGuard(clock clockwork.Clock, logger log.Logger) *Guard {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Guard{clock: clock, logger: log.OrNoop(logger)}
}

// Run invokes fn and blocks until it settles or a fatal deadline passes.
// The context is handed to fn untouched. Cancelling it does not abandon fn.
func (g *Guard) Run(ctx context.Context, l Lifecycle, s Subject, p Policy, fn func(context.Context) error) error {
	started := g.clock.Now()
	done := make(chan error, 1)
	go func() { done <- Call(ctx, fn) }()

	deadline := g.clock.NewTimer(p.Timeout)
	defer deadline.Stop()
	deadlineC := deadline.Chan()

	warnings := 0
	var warnTimer clockwork.Timer
	var warnC <-chan time.Time
	// The first warning comes one interval in. Later ones need a full
	// interval left before the deadline.
	scheduleWarning := func() {
		limit := p.Warning
		if warnings > 0 {
			limit = time.Duration(warnings+2) * p.Warning
		}
		if p.Warning <= 0 || limit >= p.Timeout {
			warnC = nil
			return
		}
		warnTimer = g.clock.NewTimer(p.Warning)
		warnC = warnTimer.Chan()
	}
	defer func() {
		if warnTimer != nil {
			warnTimer.Stop()
		}
	}()
	scheduleWarning()

	fields := []log.Field{log.App(s.Name), log.String("kind", s.Kind), log.Lifecycle(string(l))}

	for {
		select {
		case err := <-done:
			metrics.LifecycleDuration.WithLabelValues(string(l)).Observe(g.clock.Since(started).Seconds())
			return err

		case <-warnC:
			warnings++
			metrics.TimeoutWarningsTotal.WithLabelValues(string(l)).Inc()
			g.logger.Warn("lifecycle callback still pending",
				append(fields,
					log.Duration("elapsed", time.Duration(warnings)*p.Warning),
					log.Duration("timeout", p.Timeout))...)
			scheduleWarning()

		case <-deadlineC:
			deadlineC = nil
			warnC = nil
			metrics.TimeoutsTotal.WithLabelValues(string(l), strconv.FormatBool(p.DieOnTimeout)).Inc()
			if p.DieOnTimeout {
				return &TimeoutError{Lifecycle: l, Subject: s, Timeout: p.Timeout}
			}
			g.logger.Error("lifecycle callback passed its deadline, still waiting",
				append(fields, log.Duration("timeout", p.Timeout))...)
		}
	}
}

// Call runs fn and converts a panic into a *PanicError.
func Call(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn(ctx)
}
