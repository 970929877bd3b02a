// -----------------------------------------------------------------------
// Run configuration and worker execution results
// -----------------------------------------------------------------------

package models

import (
	"strings"
	"time"
)

// ExecutionStatus is the tagged outcome a device worker returns. Workers
// never raise across the boundary; SSH failures become failed results.
type ExecutionStatus string

const (
	ExecutionStatusSuccess   ExecutionStatus = "success"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// MaxLogBytes caps the joined log text of one device execution. Earliest
// content is kept when the cap trims.
const MaxLogBytes = 1 << 20

// TrimLogLines joins log lines and enforces MaxLogBytes, keeping the head.
// The second return reports whether trimming occurred.
func TrimLogLines(lines []string) ([]string, bool) {
	joined := strings.Join(lines, "\n")
	if len(joined) <= MaxLogBytes {
		return lines, false
	}
	return strings.Split(joined[:MaxLogBytes], "\n"), true
}

// DeviceExecutionResult is the value a DeviceWorker returns for one device.
type DeviceExecutionResult struct {
	Status      ExecutionStatus `json:"status"`
	Error       string          `json:"error,omitempty"`
	PreOutput   string          `json:"pre_output,omitempty"`
	ApplyOutput string          `json:"apply_output,omitempty"`
	PostOutput  string          `json:"post_output,omitempty"`
	Diff        string          `json:"diff,omitempty"`
	Logs        []string        `json:"logs"`
	LogTrimmed  bool            `json:"log_trimmed"`
	Attempts    int             `json:"attempts"`
}

// NewFailedExecution builds a failed result with a single error log line.
func NewFailedExecution(err string) *DeviceExecutionResult {
	return &DeviceExecutionResult{
		Status:   ExecutionStatusFailed,
		Error:    err,
		Logs:     []string{"ERROR: " + err},
		Attempts: 1,
	}
}

// NewCancelledExecution builds the sentinel cancelled result workers return
// at a cancel checkpoint.
func NewCancelledExecution() *DeviceExecutionResult {
	return &DeviceExecutionResult{
		Status:   ExecutionStatusCancelled,
		Error:    "Job was cancelled by user request",
		Logs:     []string{"Execution cancelled by user request"},
		Attempts: 1,
	}
}

// RunConfig is the runtime behavior of one engine run.
type RunConfig struct {
	ConcurrencyLimit    int     `json:"concurrency_limit" validate:"gte=1,lte=100"`
	StaggerDelay        float64 `json:"stagger_delay" validate:"gte=0,lte=60"`
	StopOnError         bool    `json:"stop_on_error"`
	NonCanaryRetryLimit int     `json:"non_canary_retry_limit" validate:"gte=0,lte=3"`
	RetryBackoff        float64 `json:"retry_backoff_seconds" validate:"gte=0,lte=60"`
}

// DefaultRunConfig returns the engine defaults.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		ConcurrencyLimit:    5,
		StaggerDelay:        0,
		StopOnError:         true,
		NonCanaryRetryLimit: 1,
		RetryBackoff:        0,
	}
}

// StaggerDuration converts the fractional seconds delay to a duration.
func (c RunConfig) StaggerDuration() time.Duration {
	return time.Duration(c.StaggerDelay * float64(time.Second))
}

// BackoffDuration converts the fractional seconds backoff to a duration.
func (c RunConfig) BackoffDuration() time.Duration {
	return time.Duration(c.RetryBackoff * float64(time.Second))
}

// RunRequest is the payload for the run endpoints: the runtime knobs plus an
// optional narrowing of the job's target set. Absent fields fall back to the
// job's stored plan, then to the engine defaults.
type RunRequest struct {
	ConcurrencyLimit    int            `json:"concurrency_limit" validate:"omitempty,gte=1,lte=100"`
	StaggerDelay        float64        `json:"stagger_delay" validate:"gte=0,lte=60"`
	StopOnError         *bool          `json:"stop_on_error,omitempty"`
	NonCanaryRetryLimit *int           `json:"non_canary_retry_limit,omitempty" validate:"omitempty,gte=0,lte=3"`
	RetryBackoff        float64        `json:"retry_backoff_seconds" validate:"gte=0,lte=60"`
	Devices             []DeviceTarget `json:"devices,omitempty" validate:"dive"`
	Canary              *DeviceTarget  `json:"canary,omitempty"`
}

// ConfigFor resolves the effective run configuration: request values win,
// then the job's stored plan, then the defaults.
func (r *RunRequest) ConfigFor(job *JobRecord) RunConfig {
	cfg := DefaultRunConfig()
	if job != nil {
		if job.ConcurrencyLimit > 0 {
			cfg.ConcurrencyLimit = job.ConcurrencyLimit
		}
		cfg.StaggerDelay = job.StaggerDelay
		cfg.StopOnError = job.StopOnError
	}
	if r == nil {
		return cfg
	}
	if r.ConcurrencyLimit > 0 {
		cfg.ConcurrencyLimit = r.ConcurrencyLimit
	}
	if r.StaggerDelay > 0 {
		cfg.StaggerDelay = r.StaggerDelay
	}
	if r.StopOnError != nil {
		cfg.StopOnError = *r.StopOnError
	}
	if r.NonCanaryRetryLimit != nil {
		cfg.NonCanaryRetryLimit = *r.NonCanaryRetryLimit
	}
	if r.RetryBackoff > 0 {
		cfg.RetryBackoff = r.RetryBackoff
	}
	return cfg
}

// JobRunSummary aggregates one engine run: final status plus the execution
// result for every device the run touched.
type JobRunSummary struct {
	JobID         string                            `json:"job_id"`
	Status        JobStatus                         `json:"status"`
	DeviceResults map[string]*DeviceExecutionResult `json:"device_results"`
}

// NewJobRunSummary creates an empty summary in the running state.
func NewJobRunSummary(jobID string) *JobRunSummary {
	return &JobRunSummary{
		JobID:         jobID,
		Status:        JobStatusRunning,
		DeviceResults: make(map[string]*DeviceExecutionResult),
	}
}
