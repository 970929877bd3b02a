package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimLogLines_UnderCap(t *testing.T) {
	lines := []string{"Connecting to 10.1.0.1:22...", "Connected successfully"}
	out, trimmed := TrimLogLines(lines)

	assert.False(t, trimmed)
	assert.Equal(t, lines, out)
}

func TestTrimLogLines_KeepsEarliestContent(t *testing.T) {
	big := strings.Repeat("x", MaxLogBytes/2)
	lines := []string{"first line", big, big, "last line"}

	out, trimmed := TrimLogLines(lines)

	require.True(t, trimmed)
	require.NotEmpty(t, out)
	assert.Equal(t, "first line", out[0])
	assert.LessOrEqual(t, len(strings.Join(out, "\n")), MaxLogBytes)
}

func TestRunRequest_ConfigForUsesJobPlan(t *testing.T) {
	job := &JobRecord{ConcurrencyLimit: 3, StaggerDelay: 2.5, StopOnError: false}
	cfg := (&RunRequest{}).ConfigFor(job)

	assert.Equal(t, 3, cfg.ConcurrencyLimit)
	assert.Equal(t, 2.5, cfg.StaggerDelay)
	assert.False(t, cfg.StopOnError)
	assert.Equal(t, 1, cfg.NonCanaryRetryLimit)
}

func TestRunRequest_ConfigForRequestWins(t *testing.T) {
	job := &JobRecord{ConcurrencyLimit: 3, StaggerDelay: 2.5, StopOnError: false}
	stop := true
	retries := 0
	req := &RunRequest{
		ConcurrencyLimit:    10,
		StaggerDelay:        0.1,
		StopOnError:         &stop,
		NonCanaryRetryLimit: &retries,
		RetryBackoff:        1.5,
	}

	cfg := req.ConfigFor(job)

	assert.Equal(t, 10, cfg.ConcurrencyLimit)
	assert.Equal(t, 0.1, cfg.StaggerDelay)
	assert.True(t, cfg.StopOnError)
	assert.Equal(t, 0, cfg.NonCanaryRetryLimit)
	assert.Equal(t, 1.5, cfg.RetryBackoff)
}

func TestRunRequest_ConfigForNilRequest(t *testing.T) {
	var req *RunRequest
	cfg := req.ConfigFor(nil)

	assert.Equal(t, DefaultRunConfig(), cfg)
}

func TestNewFailedExecution(t *testing.T) {
	exec := NewFailedExecution("Connection failed: dial tcp: timeout")

	assert.Equal(t, ExecutionStatusFailed, exec.Status)
	assert.Equal(t, "Connection failed: dial tcp: timeout", exec.Error)
	assert.Equal(t, []string{"ERROR: Connection failed: dial tcp: timeout"}, exec.Logs)
	assert.Equal(t, 1, exec.Attempts)
}

func TestNewCancelledExecution(t *testing.T) {
	exec := NewCancelledExecution()

	assert.Equal(t, ExecutionStatusCancelled, exec.Status)
	assert.Equal(t, "Job was cancelled by user request", exec.Error)
	assert.Equal(t, []string{"Execution cancelled by user request"}, exec.Logs)
}
