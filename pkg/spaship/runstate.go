package spaship

import (
	"sync"

	"github.com/bft-labs/spaship/pkg/log"
)

// State is the run state of an Orchestrator.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// runState guards the orchestrator's Start/Stop state machine.
type runState struct {
	mu      sync.RWMutex
	state   State
	stopped bool
	logger  log.Logger
}

func newRunState(logger log.Logger) *runState {
	return &runState{state: StateStopped, logger: logger}
}

func (r *runState) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// transitionTo moves to next. It returns an error if the transition is not valid.
func (r *runState) transitionTo(next State, reason string) error {
	r.mu.Lock()
	prev := r.state

	switch prev {
	case StateStopped:
		if next != StateStarting {
			r.mu.Unlock()
			return ErrNotStarted
		}
		if r.stopped {
			r.mu.Unlock()
			return ErrStopped
		}
	case StateStarting:
		if next != StateRunning && next != StateCrashed {
			r.mu.Unlock()
			return ErrAlreadyStarted
		}
	case StateRunning:
		if next != StateStopping {
			r.mu.Unlock()
			return ErrAlreadyStarted
		}
	case StateStopping:
		if next != StateStopped && next != StateCrashed {
			r.mu.Unlock()
			return ErrAlreadyStarted
		}
	case StateCrashed:
		r.mu.Unlock()
		return ErrStopped
	}

	r.state = next
	if next == StateStopped {
		r.stopped = true
	}
	r.mu.Unlock()

	r.logger.Info("state transition",
		log.String("from", prev.String()),
		log.String("to", next.String()),
		log.String("reason", reason),
	)
	return nil
}
