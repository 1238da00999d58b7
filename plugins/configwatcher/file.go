package configwatcher

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/bft-labs/spaship/pkg/timeouts"
)

// Entry is one lifecycle table of the timeouts file. Missing keys keep the
// value currently in effect.
type Entry struct {
	Millis        *int64 `toml:"millis"`
	WarningMillis *int64 `toml:"warning_millis"`
	DieOnTimeout  *bool  `toml:"die_on_timeout"`
}

// File mirrors the timeouts file:
//
//	[bootstrap]
//	millis = 4000
//	warning_millis = 1000
//	die_on_timeout = false
//
//	[mount]
//	millis = 3000
type File struct {
	Bootstrap *Entry `toml:"bootstrap"`
	Mount     *Entry `toml:"mount"`
	Unmount   *Entry `toml:"unmount"`
	Unload    *Entry `toml:"unload"`
}

// ReadFile parses the timeouts file at path.
func ReadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	return Parse(data)
}

// Parse decodes a timeouts file. Unknown tables and keys are rejected so
// typos do not go unnoticed.
func Parse(data []byte) (File, error) {
	var f File
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("parse timeouts file: %w", err)
	}
	return f, nil
}

// Entries returns the tables present in the file keyed by lifecycle.
func (f File) Entries() map[timeouts.Lifecycle]Entry {
	out := make(map[timeouts.Lifecycle]Entry, 4)
	for l, e := range map[timeouts.Lifecycle]*Entry{
		timeouts.Bootstrap: f.Bootstrap,
		timeouts.Mount:     f.Mount,
		timeouts.Unmount:   f.Unmount,
		timeouts.Unload:    f.Unload,
	} {
		if e != nil {
			out[l] = *e
		}
	}
	return out
}

// Merge returns base with the keys present in e applied.
func (e Entry) Merge(base timeouts.Policy) timeouts.Policy {
	if e.Millis != nil {
		base.Timeout = time.Duration(*e.Millis) * time.Millisecond
	}
	if e.WarningMillis != nil {
		base.Warning = time.Duration(*e.WarningMillis) * time.Millisecond
	}
	if e.DieOnTimeout != nil {
		base.DieOnTimeout = *e.DieOnTimeout
	}
	return base
}
