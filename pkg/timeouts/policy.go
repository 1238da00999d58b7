package timeouts

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrInvalidTimeout is returned when a policy has a non-positive deadline
	// or a negative warning interval.
	ErrInvalidTimeout = errors.New("timeouts: invalid timeout policy")

	// ErrLifecycleTimeout matches every *TimeoutError.
	ErrLifecycleTimeout = errors.New("timeouts: lifecycle timed out")
)

// Lifecycle names a guarded lifecycle phase.
type Lifecycle string

const (
	Bootstrap Lifecycle = "bootstrap"
	Mount     Lifecycle = "mount"
	Unmount   Lifecycle = "unmount"
	Unload    Lifecycle = "unload"
)

// Default values observed in the reference runtime.
const (
	DefaultBootstrapTimeout = 4000 * time.Millisecond
	DefaultTimeout          = 3000 * time.Millisecond
	DefaultWarning          = 1000 * time.Millisecond
)

// Policy bounds one lifecycle invocation.
type Policy struct {
	Timeout      time.Duration `json:"timeout"`
	Warning      time.Duration `json:"warning"`
	DieOnTimeout bool          `json:"die_on_timeout"`
}

// Validate checks the policy.
func (p Policy) Validate() error {
	if p.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidTimeout, p.Timeout)
	}
	if p.Warning < 0 {
		return fmt.Errorf("%w: warning must not be negative, got %s", ErrInvalidTimeout, p.Warning)
	}
	return nil
}

// Override replaces individual Policy fields. Zero values leave the base untouched.
type Override struct {
	Timeout      time.Duration
	Warning      time.Duration
	DieOnTimeout *bool
}

// Overrides are per-lifecycle overrides declared by a loaded module.
type Overrides map[Lifecycle]Override

// Apply returns p with the non-zero fields of o applied.
func (p Policy) Apply(o Override) Policy {
	if o.Timeout > 0 {
		p.Timeout = o.Timeout
	}
	if o.Warning > 0 {
		p.Warning = o.Warning
	}
	if o.DieOnTimeout != nil {
		p.DieOnTimeout = *o.DieOnTimeout
	}
	return p
}

// Config is the set of policies for every guarded lifecycle.
type Config struct {
	Bootstrap Policy `json:"bootstrap"`
	Mount     Policy `json:"mount"`
	Unmount   Policy `json:"unmount"`
	Unload    Policy `json:"unload"`
}

// DefaultConfig returns the default policies.
func DefaultConfig() Config {
	return Config{
		Bootstrap: Policy{Timeout: DefaultBootstrapTimeout, Warning: DefaultWarning},
		Mount:     Policy{Timeout: DefaultTimeout, Warning: DefaultWarning},
		Unmount:   Policy{Timeout: DefaultTimeout, Warning: DefaultWarning},
		Unload:    Policy{Timeout: DefaultTimeout, Warning: DefaultWarning},
	}
}

// For returns the policy for l. Unknown lifecycles get the mount policy.
func (c Config) For(l Lifecycle) Policy {
	switch l {
	case Bootstrap:
		return c.Bootstrap
	case Unmount:
		return c.Unmount
	case Unload:
		return c.Unload
	default:
		return c.Mount
	}
}

// Validate checks every policy.
func (c Config) Validate() error {
	for _, l := range []Lifecycle{Bootstrap, Mount, Unmount, Unload} {
		if err := c.For(l).Validate(); err != nil {
			return fmt.Errorf("%s: %w", l, err)
		}
	}
	return nil
}

// Settings is the process-wide, concurrency-safe policy store.
type Settings struct {
	mu  sync.RWMutex
	cfg Config
}

// NewSettings creates Settings seeded with cfg.
func NewSettings(cfg Config) *Settings {
	return &Settings{cfg: cfg}
}

// Policy returns the current default policy for l.
func (s *Settings) Policy(l Lifecycle) Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.For(l)
}

// Resolve returns the current policy for l with overrides applied.
func (s *Settings) Resolve(l Lifecycle, overrides Overrides) Policy {
	p := s.Policy(l)
	if o, ok := overrides[l]; ok {
		p = p.Apply(o)
	}
	return p
}

// Snapshot returns a copy of all policies.
func (s *Settings) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Set replaces the policy for l. A zero warning becomes DefaultWarning.
func (s *Settings) Set(l Lifecycle, p Policy) error {
	if p.Warning == 0 {
		p.Warning = DefaultWarning
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%s: %w", l, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch l {
	case Bootstrap:
		s.cfg.Bootstrap = p
	case Mount:
		s.cfg.Mount = p
	case Unmount:
		s.cfg.Unmount = p
	case Unload:
		s.cfg.Unload = p
	default:
		return fmt.Errorf("%w: unknown lifecycle %q", ErrInvalidTimeout, l)
	}
	return nil
}

// SetBootstrapMaxTime sets the bootstrap policy.
func (s *Settings) SetBootstrapMaxTime(timeout time.Duration, dieOnTimeout bool, warning time.Duration) error {
	return s.Set(Bootstrap, Policy{Timeout: timeout, Warning: warning, DieOnTimeout: dieOnTimeout})
}

// SetMountMaxTime sets the mount policy.
func (s *Settings) SetMountMaxTime(timeout time.Duration, dieOnTimeout bool, warning time.Duration) error {
	return s.Set(Mount, Policy{Timeout: timeout, Warning: warning, DieOnTimeout: dieOnTimeout})
}

// SetUnmountMaxTime sets the unmount policy.
func (s *Settings) SetUnmountMaxTime(timeout time.Duration, dieOnTimeout bool, warning time.Duration) error {
	return s.Set(Unmount, Policy{Timeout: timeout, Warning: warning, DieOnTimeout: dieOnTimeout})
}

// SetUnloadMaxTime sets the unload policy.
func (s *Settings) SetUnloadMaxTime(timeout time.Duration, dieOnTimeout bool, warning time.Duration) error {
	return s.Set(Unload, Policy{Timeout: timeout, Warning: warning, DieOnTimeout: dieOnTimeout})
}
