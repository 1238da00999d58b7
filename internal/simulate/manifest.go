// Package simulate turns a TOML manifest into simulated applications.
//
// The CLI has no real micro-frontends to orchestrate. Instead each manifest
// entry describes how an application behaves: which routes activate it, how
// long each lifecycle takes and which lifecycles fail. This is enough to
// exercise every path of the reroute scheduler from the command line.
//
//	[[app]]
//	name = "navbar"
//	active_when = ["/"]
//
//	[[app]]
//	name = "settings"
//	active_when = ["/settings"]
//	load_delay = "150ms"
//	fail_loads = 1
//	fail = ["unmount"]
//
//	[app.delays]
//	mount = "40ms"
//
//	[app.timeouts_millis]
//	mount = 500
package simulate

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/bft-labs/spaship/pkg/timeouts"
)

// ErrInvalidManifest is returned for manifests that cannot be simulated.
var ErrInvalidManifest = errors.New("simulate: invalid manifest")

// Lifecycle names accepted in delays, fail and timeouts_millis.
var lifecycleNames = map[string]timeouts.Lifecycle{
	"bootstrap": timeouts.Bootstrap,
	"mount":     timeouts.Mount,
	"unmount":   timeouts.Unmount,
	"unload":    timeouts.Unload,
}

// Manifest is a set of simulated applications.
type Manifest struct {
	Apps []AppSpec `toml:"app"`
}

// AppSpec describes one simulated application.
type AppSpec struct {
	Name       string         `toml:"name"`
	ActiveWhen []string       `toml:"active_when"`
	Exact      bool           `toml:"exact"`
	Props      map[string]any `toml:"props"`

	// LoadDelay is how long the loader takes, as a Go duration string.
	LoadDelay string `toml:"load_delay"`

	// FailLoads makes the first N loads fail.
	FailLoads int `toml:"fail_loads"`

	// Invalid makes the loader return lifecycles without a mount function.
	Invalid bool `toml:"invalid"`

	// Delays maps a lifecycle name to a Go duration string.
	Delays map[string]string `toml:"delays"`

	// Fail lists lifecycles that return an error.
	Fail []string `toml:"fail"`

	// TimeoutsMillis overrides the timeout of individual lifecycles.
	TimeoutsMillis map[string]int64 `toml:"timeouts_millis"`
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates a manifest.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks every entry.
func (m *Manifest) Validate() error {
	if len(m.Apps) == 0 {
		return fmt.Errorf("%w: no applications", ErrInvalidManifest)
	}
	seen := make(map[string]bool, len(m.Apps))
	for i, spec := range m.Apps {
		if spec.Name == "" {
			return fmt.Errorf("%w: app %d has no name", ErrInvalidManifest, i)
		}
		if seen[spec.Name] {
			return fmt.Errorf("%w: duplicate app %q", ErrInvalidManifest, spec.Name)
		}
		seen[spec.Name] = true
		if err := spec.validate(); err != nil {
			return fmt.Errorf("%w: app %q: %w", ErrInvalidManifest, spec.Name, err)
		}
	}
	return nil
}

func (s AppSpec) validate() error {
	if len(s.ActiveWhen) == 0 {
		return errors.New("active_when is empty")
	}
	if s.FailLoads < 0 {
		return errors.New("fail_loads must not be negative")
	}
	if _, err := parseDuration(s.LoadDelay); err != nil {
		return fmt.Errorf("load_delay: %w", err)
	}
	for name, d := range s.Delays {
		if _, ok := lifecycleNames[name]; !ok {
			return fmt.Errorf("delays: unknown lifecycle %q", name)
		}
		if _, err := parseDuration(d); err != nil {
			return fmt.Errorf("delays.%s: %w", name, err)
		}
	}
	for _, name := range s.Fail {
		if _, ok := lifecycleNames[name]; !ok {
			return fmt.Errorf("fail: unknown lifecycle %q", name)
		}
	}
	for name, ms := range s.TimeoutsMillis {
		if _, ok := lifecycleNames[name]; !ok {
			return fmt.Errorf("timeouts_millis: unknown lifecycle %q", name)
		}
		if ms <= 0 {
			return fmt.Errorf("timeouts_millis.%s must be positive", name)
		}
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}
