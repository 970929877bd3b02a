package interfaces

import "github.com/ternarybob/netrun/internal/models"

// JobRegistry is the thread-safe store of job records. It exclusively owns
// JobRecord mutation; every record handed out is a deep copy.
type JobRegistry interface {
	// Create assembles a queued job from the payload, snapshotting device
	// parameters from the current inventory. Fails with ErrActiveJobConflict
	// while another job is queued, running, or paused, and with a
	// ValidationError when a requested target is missing from the inventory
	// or the command block is blank.
	Create(create *models.JobCreate) (*models.JobRecord, error)

	// Get returns a copy of the job or ErrJobNotFound.
	Get(jobID string) (*models.JobRecord, error)

	// List returns copies of all retained jobs, newest first.
	List() []*models.JobRecord

	// Active returns the current non-terminal job, or nil.
	Active() *models.JobRecord

	// ApplyEvent runs the lifecycle state machine for the job, stamps
	// started_at/completed_at, and trims history after terminal transitions.
	// Returns the updated record copy, or InvalidTransitionError.
	ApplyEvent(jobID string, event models.JobEvent) (*models.JobRecord, error)

	// UpdateDeviceResult mutates one device result under the registry lock.
	// The callback must not call back into the registry.
	UpdateDeviceResult(jobID, key string, fn func(*models.DeviceResult)) error

	// EnsureDeviceResult attaches a queued result for the target when the
	// job does not already track one. Lets the engine record a failure
	// against a canary that was left out of the job's targets.
	EnsureDeviceResult(jobID string, target models.DeviceTarget) error
}
