package simulate

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/bft-labs/spaship/pkg/app"
	"github.com/bft-labs/spaship/pkg/log"
	"github.com/bft-labs/spaship/pkg/registry"
	"github.com/bft-labs/spaship/pkg/timeouts"
)

// Simulator builds registrations whose lifecycles follow a manifest and
// records every call they receive.
type Simulator struct {
	clock  clockwork.Clock
	logger log.Logger

	mu    sync.Mutex
	calls []string
	loads map[string]int
}

// New creates a Simulator. A nil clock uses the real clock.
func New(clock clockwork.Clock, logger log.Logger) *Simulator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Simulator{
		clock:  clock,
		logger: log.OrNoop(logger),
		loads:  make(map[string]int),
	}
}

// Registrations returns one registration per manifest entry, in order.
func (s *Simulator) Registrations(m *Manifest) []registry.Registration {
	regs := make([]registry.Registration, 0, len(m.Apps))
	for _, spec := range m.Apps {
		reg := registry.Registration{
			Name:       spec.Name,
			App:        s.loader(spec),
			ActiveWhen: spec.ActiveWhen,
			ExactMatch: spec.Exact,
		}
		if len(spec.Props) > 0 {
			reg.CustomProps = spec.Props
		}
		regs = append(regs, reg)
	}
	return regs
}

// Calls returns the recorded calls as "name:lifecycle" in call order.
func (s *Simulator) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// Reset forgets the recorded calls.
func (s *Simulator) Reset() {
	s.mu.Lock()
	s.calls = nil
	s.mu.Unlock()
}

func (s *Simulator) record(name, lifecycle string) {
	s.mu.Lock()
	s.calls = append(s.calls, name+":"+lifecycle)
	s.mu.Unlock()
	s.logger.Debug("simulated lifecycle", log.App(name), log.Lifecycle(lifecycle))
}

// sleep waits for d on the simulator clock. It returns early when ctx is done.
func (s *Simulator) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-s.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Simulator) loader(spec AppSpec) app.LoadFunc {
	loadDelay, _ := parseDuration(spec.LoadDelay)
	return func(ctx context.Context, props app.Props) (*app.Lifecycles, error) {
		s.mu.Lock()
		s.loads[spec.Name]++
		attempt := s.loads[spec.Name]
		s.mu.Unlock()

		s.record(spec.Name, "load")
		if err := s.sleep(ctx, loadDelay); err != nil {
			return nil, err
		}
		if attempt <= spec.FailLoads {
			return nil, fmt.Errorf("simulated load failure %d of %d", attempt, spec.FailLoads)
		}
		return s.lifecycles(spec), nil
	}
}

func (s *Simulator) lifecycles(spec AppSpec) *app.Lifecycles {
	l := &app.Lifecycles{
		Bootstrap: s.step(spec, "bootstrap"),
		Mount:     s.step(spec, "mount"),
		Unmount:   s.step(spec, "unmount"),
		Unload:    s.step(spec, "unload"),
	}
	if spec.Invalid {
		l.Mount = nil
	}
	if len(spec.TimeoutsMillis) > 0 {
		l.Timeouts = make(timeouts.Overrides, len(spec.TimeoutsMillis))
		for name, ms := range spec.TimeoutsMillis {
			l.Timeouts[lifecycleNames[name]] = timeouts.Override{Timeout: time.Duration(ms) * time.Millisecond}
		}
	}
	return l
}

func (s *Simulator) step(spec AppSpec, lifecycle string) app.LifecycleFunc {
	delay, _ := parseDuration(spec.Delays[lifecycle])
	fail := slices.Contains(spec.Fail, lifecycle)
	return func(ctx context.Context, props app.Props) error {
		s.record(spec.Name, lifecycle)
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
		if fail {
			return fmt.Errorf("simulated %s failure", lifecycle)
		}
		return nil
	}
}
