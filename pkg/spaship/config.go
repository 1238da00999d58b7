package spaship

import (
	"fmt"
	"time"

	"github.com/bft-labs/spaship/pkg/navigation"
	"github.com/bft-labs/spaship/pkg/registry"
	"github.com/bft-labs/spaship/pkg/timeouts"
)

const (
	// DefaultInitialURL is where the history starts when no URL is configured.
	DefaultInitialURL = "http://localhost/"

	// DefaultShutdownTimeout bounds how long Stop waits for a running pass.
	DefaultShutdownTimeout = 30 * time.Second
)

// Config holds the orchestrator configuration.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config struct {
	// Timeouts are the process-wide lifecycle policies. They can be changed
	// later through the Set*MaxTime methods.
	Timeouts timeouts.Config

	// LoadErrorCooldown is how long an application stays in LOAD_ERROR
	// before a reroute retries it.
	LoadErrorCooldown time.Duration

	// InitialURL is the absolute URL the history starts at.
	InitialURL string

	// URLRerouteOnly skips reroutes for push and replace calls that leave
	// the URL unchanged.
	URLRerouteOnly bool

	// ShutdownTimeout bounds how long Stop waits for a running pass.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Timeouts:          timeouts.DefaultConfig(),
		LoadErrorCooldown: registry.DefaultLoadErrorCooldown,
		InitialURL:        DefaultInitialURL,
		ShutdownTimeout:   DefaultShutdownTimeout,
	}
}

// SetDefaults fills zero values with their defaults.
func (c *Config) SetDefaults() {
	defaults := timeouts.DefaultConfig()
	fill := func(p *timeouts.Policy, d timeouts.Policy) {
		if p.Timeout == 0 {
			p.Timeout = d.Timeout
		}
		if p.Warning == 0 {
			p.Warning = d.Warning
		}
	}
	fill(&c.Timeouts.Bootstrap, defaults.Bootstrap)
	fill(&c.Timeouts.Mount, defaults.Mount)
	fill(&c.Timeouts.Unmount, defaults.Unmount)
	fill(&c.Timeouts.Unload, defaults.Unload)

	if c.LoadErrorCooldown == 0 {
		c.LoadErrorCooldown = registry.DefaultLoadErrorCooldown
	}
	if c.InitialURL == "" {
		c.InitialURL = DefaultInitialURL
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if err := c.Timeouts.Validate(); err != nil {
		return fmt.Errorf("%w: timeouts: %w", ErrInvalidConfig, err)
	}
	if c.LoadErrorCooldown < 0 {
		return fmt.Errorf("%w: load error cooldown must not be negative", ErrInvalidConfig)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: shutdown timeout must not be negative", ErrInvalidConfig)
	}
	loc, err := navigation.Parse(c.InitialURL, "")
	if err != nil {
		return fmt.Errorf("%w: initial url: %w", ErrInvalidConfig, err)
	}
	if loc.Origin == "" {
		return fmt.Errorf("%w: initial url %q must be absolute", ErrInvalidConfig, c.InitialURL)
	}
	return nil
}
