// -----------------------------------------------------------------------
// Error taxonomy - sentinel and typed errors surfaced at the API boundary
// -----------------------------------------------------------------------

package models

import (
	"errors"
	"fmt"
)

var (
	// ErrActiveJobConflict is returned when job creation is attempted while
	// another job occupies the single-active-job slot.
	ErrActiveJobConflict = errors.New("another job is already active")

	// ErrJobNotFound is returned for lookups of unknown job IDs.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoRunControl is returned when pause/resume/cancel is requested for
	// a job that has no run control registered.
	ErrNoRunControl = errors.New("no run control available")

	// ErrDeviceNotFound is returned when a requested device is not part of
	// the current inventory.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrRunInProgress is returned when an async run is requested while a
	// runner for the same job is still live.
	ErrRunInProgress = errors.New("job run already in progress")
)

// ValidationError is malformed operator input: a bad CSV row, an empty
// command block, an unknown verify mode, or a numeric field out of range.
// It never reaches the engine.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError is returned by the state machine for any
// (status, event) pair outside the transition table.
type InvalidTransitionError struct {
	Status JobStatus
	Event  JobEvent
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: status=%s, event=%s", e.Status, e.Event)
}
