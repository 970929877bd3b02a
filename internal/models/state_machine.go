// -----------------------------------------------------------------------
// Job lifecycle state machine - pure transition table, no side effects
// -----------------------------------------------------------------------

package models

// JobEvent is a lifecycle event applied to a job.
type JobEvent string

const (
	JobEventStart    JobEvent = "start"
	JobEventPause    JobEvent = "pause"
	JobEventResume   JobEvent = "resume"
	JobEventComplete JobEvent = "complete"
	JobEventFail     JobEvent = "fail"
	JobEventCancel   JobEvent = "cancel"
)

// ParseJobEvent maps an event name to a JobEvent.
func ParseJobEvent(name string) (JobEvent, bool) {
	switch JobEvent(name) {
	case JobEventStart, JobEventPause, JobEventResume, JobEventComplete, JobEventFail, JobEventCancel:
		return JobEvent(name), true
	}
	return "", false
}

type transitionKey struct {
	status JobStatus
	event  JobEvent
}

// jobTransitions is the complete transition table. Terminal states have no
// outgoing transitions; every pair absent from the table is invalid.
var jobTransitions = map[transitionKey]JobStatus{
	{JobStatusQueued, JobEventStart}:     JobStatusRunning,
	{JobStatusQueued, JobEventCancel}:    JobStatusCancelled,
	{JobStatusRunning, JobEventPause}:    JobStatusPaused,
	{JobStatusRunning, JobEventComplete}: JobStatusCompleted,
	{JobStatusRunning, JobEventFail}:     JobStatusFailed,
	{JobStatusRunning, JobEventCancel}:   JobStatusCancelled,
	{JobStatusPaused, JobEventResume}:    JobStatusRunning,
	{JobStatusPaused, JobEventCancel}:    JobStatusCancelled,
}

// CanTransition reports whether the event is valid in the given status.
func CanTransition(status JobStatus, event JobEvent) bool {
	_, ok := jobTransitions[transitionKey{status, event}]
	return ok
}

// Transition applies a lifecycle event and returns the next status, or an
// InvalidTransitionError for any pair outside the table. The function is
// side-effect free; callers apply timestamps.
func Transition(status JobStatus, event JobEvent) (JobStatus, error) {
	next, ok := jobTransitions[transitionKey{status, event}]
	if !ok {
		return status, &InvalidTransitionError{Status: status, Event: event}
	}
	return next, nil
}
