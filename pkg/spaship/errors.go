package spaship

import "errors"

// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrAlreadyStarted is returned when Start is called on a running orchestrator.
	ErrAlreadyStarted = errors.New("spaship: already started")

	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("spaship: not started")

	// ErrStopped is returned when Start is called after Stop.
	ErrStopped = errors.New("spaship: stopped")

	// ErrShutdownTimeout is returned when an in-flight reroute outlives the shutdown timeout.
	ErrShutdownTimeout = errors.New("spaship: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("spaship: invalid configuration")
)
