package app

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when a status change is not a permitted edge.
	ErrInvalidTransition = errors.New("app: invalid status transition")

	// ErrInvalidLifecycles is returned when a loader yields nothing usable.
	ErrInvalidLifecycles = errors.New("app: loader did not return valid lifecycles")
)

// AppError reports a failure in user code for one application or parcel.
type AppError struct {
	Name      string
	Kind      Kind
	Lifecycle string
	Status    Status
	Err       error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s %q died in status %s during %s: %v", e.Kind, e.Name, e.Status, e.Lifecycle, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// ErrorHandler receives every user-code failure.
type ErrorHandler func(*AppError)
