package models

import (
	"errors"
	"testing"
)

func TestTransition_ValidPairs(t *testing.T) {
	tests := []struct {
		name   string
		status JobStatus
		event  JobEvent
		want   JobStatus
	}{
		{"queued start", JobStatusQueued, JobEventStart, JobStatusRunning},
		{"queued cancel", JobStatusQueued, JobEventCancel, JobStatusCancelled},
		{"running pause", JobStatusRunning, JobEventPause, JobStatusPaused},
		{"running complete", JobStatusRunning, JobEventComplete, JobStatusCompleted},
		{"running fail", JobStatusRunning, JobEventFail, JobStatusFailed},
		{"running cancel", JobStatusRunning, JobEventCancel, JobStatusCancelled},
		{"paused resume", JobStatusPaused, JobEventResume, JobStatusRunning},
		{"paused cancel", JobStatusPaused, JobEventCancel, JobStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.status, tt.event)
			if err != nil {
				t.Fatalf("Transition(%s, %s) returned error: %v", tt.status, tt.event, err)
			}
			if got != tt.want {
				t.Errorf("Transition(%s, %s) = %s, want %s", tt.status, tt.event, got, tt.want)
			}
			if !CanTransition(tt.status, tt.event) {
				t.Errorf("CanTransition(%s, %s) = false, want true", tt.status, tt.event)
			}
		})
	}
}

func TestTransition_InvalidPairsRejected(t *testing.T) {
	statuses := []JobStatus{
		JobStatusQueued, JobStatusRunning, JobStatusPaused,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled,
	}
	events := []JobEvent{
		JobEventStart, JobEventPause, JobEventResume,
		JobEventComplete, JobEventFail, JobEventCancel,
	}

	valid := map[string]bool{}
	for key := range jobTransitions {
		valid[string(key.status)+"/"+string(key.event)] = true
	}

	for _, status := range statuses {
		for _, event := range events {
			if valid[string(status)+"/"+string(event)] {
				continue
			}
			_, err := Transition(status, event)
			if err == nil {
				t.Errorf("Transition(%s, %s) expected InvalidTransitionError, got nil", status, event)
				continue
			}
			var invalid *InvalidTransitionError
			if !errors.As(err, &invalid) {
				t.Errorf("Transition(%s, %s) error type = %T, want InvalidTransitionError", status, event, err)
			}
			if invalid.Status != status || invalid.Event != event {
				t.Errorf("InvalidTransitionError carries %s/%s, want %s/%s",
					invalid.Status, invalid.Event, status, event)
			}
		}
	}
}

func TestTransition_TerminalStatesHaveNoExits(t *testing.T) {
	terminals := []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled}
	events := []JobEvent{
		JobEventStart, JobEventPause, JobEventResume,
		JobEventComplete, JobEventFail, JobEventCancel,
	}
	for _, status := range terminals {
		for _, event := range events {
			if CanTransition(status, event) {
				t.Errorf("terminal status %s accepts %s", status, event)
			}
		}
	}
}

func TestParseJobEvent(t *testing.T) {
	for _, name := range []string{"start", "pause", "resume", "complete", "fail", "cancel"} {
		event, ok := ParseJobEvent(name)
		if !ok || string(event) != name {
			t.Errorf("ParseJobEvent(%q) = %q, %v", name, event, ok)
		}
	}
	if _, ok := ParseJobEvent("restart"); ok {
		t.Error("ParseJobEvent accepted unknown event name")
	}
}
