package sched

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyStopped is raised when Stop is called on a stopped engine.
	ErrAlreadyStopped = errors.New("scheduler can only be stopped once")

	// ErrUnavailable is raised when work is submitted to an engine whose
	// consuming side has terminated.
	ErrUnavailable = errors.New("scheduler unavailable")

	// ErrLoopRunning is raised when a second goroutine tries to drive the
	// same dispatch loop.
	ErrLoopRunning = errors.New("dispatch loop already running")

	// ErrStopped is returned to suspended logical tasks when their engine stops.
	ErrStopped = errors.New("scheduler stopped")
)

// FatalError wraps a misuse sentinel with the scheduler name.
func FatalError(name string, err error) error {
	return fmt.Errorf("%s: %w", name, err)
}
