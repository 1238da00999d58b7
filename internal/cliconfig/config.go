package cliconfig

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/spaship/pkg/spaship"
	"github.com/bft-labs/spaship/pkg/timeouts"
)

// DefaultListenAddr is where `spaship serve` listens when nothing is configured.
const DefaultListenAddr = "127.0.0.1:8080"

// Config holds CLI configuration for spaship.
type Config struct {
	Manifest     string
	ListenAddr   string
	LogLevel     string
	InitialURL   string
	StateDir     string
	TimeoutsFile string

	URLRerouteOnly    bool
	LoadRetry         bool
	LoadErrorCooldown time.Duration
	ShutdownTimeout   time.Duration

	BootstrapTimeout time.Duration
	MountTimeout     time.Duration
	UnmountTimeout   time.Duration
	UnloadTimeout    time.Duration
	WarningTimeout   time.Duration
	DieOnTimeout     bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ListenAddr:        DefaultListenAddr,
		LogLevel:          "info",
		InitialURL:        spaship.DefaultInitialURL,
		LoadRetry:         true,
		LoadErrorCooldown: 200 * time.Millisecond,
		ShutdownTimeout:   spaship.DefaultShutdownTimeout,
		BootstrapTimeout:  timeouts.DefaultBootstrapTimeout,
		MountTimeout:      timeouts.DefaultTimeout,
		UnmountTimeout:    timeouts.DefaultTimeout,
		UnloadTimeout:     timeouts.DefaultTimeout,
		WarningTimeout:    timeouts.DefaultWarning,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Manifest == "" {
		return fmt.Errorf("manifest is required")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	return c.Library().Validate()
}

// Level returns the zerolog level named by LogLevel, defaulting to info.
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Library converts the CLI configuration to the orchestrator configuration.
func (c Config) Library() spaship.Config {
	policy := func(d time.Duration) timeouts.Policy {
		return timeouts.Policy{Timeout: d, Warning: c.WarningTimeout, DieOnTimeout: c.DieOnTimeout}
	}
	return spaship.Config{
		Timeouts: timeouts.Config{
			Bootstrap: policy(c.BootstrapTimeout),
			Mount:     policy(c.MountTimeout),
			Unmount:   policy(c.UnmountTimeout),
			Unload:    policy(c.UnloadTimeout),
		},
		LoadErrorCooldown: c.LoadErrorCooldown,
		InitialURL:        c.InitialURL,
		URLRerouteOnly:    c.URLRerouteOnly,
		ShutdownTimeout:   c.ShutdownTimeout,
	}
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setMillis sets a duration given in milliseconds if positive and flag not changed.
func (s *configSetter) setMillis(flag string, value int64, dst *time.Duration) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = time.Duration(value) * time.Millisecond
}

// setMillisFromString parses milliseconds from an environment variable.
func (s *configSetter) setMillisFromString(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	s.setMillis(flag, ms, dst)
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
