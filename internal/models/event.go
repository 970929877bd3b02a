// -----------------------------------------------------------------------
// Execution events - the per-job ordered stream observers consume
// -----------------------------------------------------------------------

package models

import "time"

// EventType classifies an execution event.
type EventType string

const (
	EventTypeJobStatus    EventType = "job_status"
	EventTypeDeviceStatus EventType = "device_status"
	EventTypeLog          EventType = "log"
	EventTypeJobComplete  EventType = "job_complete"
)

// ExecutionEvent is one entry in a job's append-only event log. Events for a
// job are totally ordered by append order; a job_complete event is always
// the final event for its job.
type ExecutionEvent struct {
	Type      EventType `json:"type"`
	JobID     string    `json:"job_id"`
	Timestamp time.Time `json:"timestamp"`
	Device    string    `json:"device,omitempty"`
	Status    string    `json:"status,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// NewJobStatusEvent builds a job_status event.
func NewJobStatusEvent(jobID string, status JobStatus, message string) ExecutionEvent {
	return ExecutionEvent{
		Type:      EventTypeJobStatus,
		JobID:     jobID,
		Timestamp: time.Now().UTC(),
		Status:    string(status),
		Message:   message,
	}
}

// NewDeviceStatusEvent builds a device_status event.
func NewDeviceStatusEvent(jobID, device string, status DeviceStatus, message string) ExecutionEvent {
	return ExecutionEvent{
		Type:      EventTypeDeviceStatus,
		JobID:     jobID,
		Timestamp: time.Now().UTC(),
		Device:    device,
		Status:    string(status),
		Message:   message,
	}
}

// NewLogEvent builds a log event carrying one captured worker log line.
func NewLogEvent(jobID, device, line string) ExecutionEvent {
	return ExecutionEvent{
		Type:      EventTypeLog,
		JobID:     jobID,
		Timestamp: time.Now().UTC(),
		Device:    device,
		Message:   line,
	}
}

// NewJobCompleteEvent builds the terminal job_complete event.
func NewJobCompleteEvent(jobID string, status JobStatus) ExecutionEvent {
	return ExecutionEvent{
		Type:      EventTypeJobComplete,
		JobID:     jobID,
		Timestamp: time.Now().UTC(),
		Status:    string(status),
	}
}
