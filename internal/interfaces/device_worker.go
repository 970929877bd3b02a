package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/netrun/internal/models"
)

// CancelSignal is the worker-side view of a job's execution control. Workers
// observe it at their cancel checkpoints: before connecting, before each
// verify command, and between apply and post-verify.
type CancelSignal interface {
	IsCancelled() bool
	Done() <-chan struct{}
	// SleepInterruptible sleeps for d, returning false when cancel latched
	// during the sleep.
	SleepInterruptible(d time.Duration) bool
}

// RunOptions adjusts worker behavior per invocation.
type RunOptions struct {
	// IsCanary forces zero connection retries.
	IsCanary bool
	// RetryOnConnectionError allows one reconnect after a fixed backoff.
	RetryOnConnectionError bool
}

// DeviceWorker executes a command block on one device. Implementations
// return tagged results and never panic across this boundary; transport
// errors become failed results.
type DeviceWorker interface {
	Run(ctx context.Context, target models.DeviceTarget, params models.DeviceParams,
		commands []string, verifyCmds []string, opts RunOptions, cancel CancelSignal) *models.DeviceExecutionResult
}

// ConnectionValidator checks that a device accepts a session with the
// imported credentials. Returns ok plus an error message when not ok.
type ConnectionValidator interface {
	Validate(profile models.DeviceProfile) (bool, string)
}

// StatusRunner executes read-only exec-mode commands against a managed
// device, outside any job. Disruptive command blocks are rejected before a
// connection is attempted.
type StatusRunner interface {
	RunStatusCommands(ctx context.Context, params models.DeviceParams, commands string) (string, error)
}
