// -----------------------------------------------------------------------
// Job aggregate - lifecycle record for one configuration push
// -----------------------------------------------------------------------

package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the job lifecycle state.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal returns true for completed, failed, and cancelled.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// IsActive returns true while the job occupies the single-active-job slot.
func (s JobStatus) IsActive() bool {
	return s == JobStatusQueued || s == JobStatusRunning || s == JobStatusPaused
}

// ExitCode maps a terminal status to the process exit code used by the
// one-shot CLI mode.
func (s JobStatus) ExitCode() int {
	switch s {
	case JobStatusCompleted:
		return 0
	case JobStatusCancelled:
		return 130
	default:
		return 1
	}
}

// VerifyMode selects which devices run verify commands around the apply.
type VerifyMode string

const (
	VerifyModeNone   VerifyMode = "none"
	VerifyModeCanary VerifyMode = "canary"
	VerifyModeAll    VerifyMode = "all"
)

// JobCreate is the payload to create a job. Devices empty means all
// currently imported devices.
type JobCreate struct {
	JobName          string         `json:"job_name,omitempty" validate:"max=200"`
	Creator          string         `json:"creator,omitempty" validate:"max=100"`
	Devices          []DeviceTarget `json:"devices,omitempty" validate:"dive"`
	Canary           DeviceTarget   `json:"canary" validate:"required"`
	Commands         string         `json:"commands" validate:"required"`
	VerifyMode       VerifyMode     `json:"verify_mode" validate:"omitempty,oneof=none canary all"`
	VerifyCmds       []string       `json:"verify_cmds,omitempty"`
	ConcurrencyLimit int            `json:"concurrency_limit" validate:"omitempty,gte=1,lte=100"`
	StaggerDelay     float64        `json:"stagger_delay" validate:"gte=0,lte=60"`
	StopOnError      *bool          `json:"stop_on_error,omitempty"`
}

// ApplyDefaults fills unset fields with creation defaults: verify_mode
// canary, concurrency 5, stagger 1.0s, stop_on_error true.
func (c *JobCreate) ApplyDefaults() {
	if c.VerifyMode == "" {
		c.VerifyMode = VerifyModeCanary
	}
	if c.ConcurrencyLimit == 0 {
		c.ConcurrencyLimit = 5
	}
	if c.StaggerDelay == 0 {
		c.StaggerDelay = 1.0
	}
	if c.StopOnError == nil {
		stop := true
		c.StopOnError = &stop
	}
	if c.Canary.Port == 0 {
		c.Canary.Port = 22
	}
	for i := range c.Devices {
		if c.Devices[i].Port == 0 {
			c.Devices[i].Port = 22
		}
	}
}

// CommandLines splits the multiline command block into trimmed, non-blank
// lines in their original order.
func (c *JobCreate) CommandLines() []string {
	return SplitCommandBlock(c.Commands)
}

// SplitCommandBlock splits a multiline command block into trimmed non-blank
// lines, preserving order.
func SplitCommandBlock(block string) []string {
	lines := strings.Split(block, "\n")
	cmds := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			cmds = append(cmds, trimmed)
		}
	}
	return cmds
}

// JobRecord is the job aggregate. The registry exclusively owns mutation;
// everything handed outside the registry lock is a deep copy.
type JobRecord struct {
	JobID            string                   `json:"job_id"`
	JobName          string                   `json:"job_name,omitempty"`
	Creator          string                   `json:"creator,omitempty"`
	Status           JobStatus                `json:"status"`
	Canary           DeviceTarget             `json:"canary"`
	Commands         string                   `json:"commands"`
	VerifyMode       VerifyMode               `json:"verify_mode"`
	VerifyCmds       []string                 `json:"verify_cmds"`
	ConcurrencyLimit int                      `json:"concurrency_limit"`
	StaggerDelay     float64                  `json:"stagger_delay"`
	StopOnError      bool                     `json:"stop_on_error"`
	Targets          []DeviceTarget           `json:"targets"`
	DeviceResults    map[string]*DeviceResult `json:"device_results"`
	DeviceParams     map[string]DeviceParams  `json:"device_params"`
	CreatedAt        time.Time                `json:"created_at"`
	StartedAt        *time.Time               `json:"started_at,omitempty"`
	CompletedAt      *time.Time               `json:"completed_at,omitempty"`
}

// NewJobRecord builds a queued job from a creation payload. Device results
// and parameter snapshots are seeded by the registry, which owns the
// inventory lookup.
func NewJobRecord(create *JobCreate) *JobRecord {
	stopOnError := true
	if create.StopOnError != nil {
		stopOnError = *create.StopOnError
	}
	return &JobRecord{
		JobID:            uuid.New().String(),
		JobName:          create.JobName,
		Creator:          create.Creator,
		Status:           JobStatusQueued,
		Canary:           create.Canary,
		Commands:         create.Commands,
		VerifyMode:       create.VerifyMode,
		VerifyCmds:       append([]string{}, create.VerifyCmds...),
		ConcurrencyLimit: create.ConcurrencyLimit,
		StaggerDelay:     create.StaggerDelay,
		StopOnError:      stopOnError,
		DeviceResults:    make(map[string]*DeviceResult),
		DeviceParams:     make(map[string]DeviceParams),
		CreatedAt:        time.Now().UTC(),
	}
}

// EffectiveVerifyCmds resolves the verify commands a device runs: the job
// override when present, otherwise the snapshot's own commands, filtered by
// the verify mode.
func (j *JobRecord) EffectiveVerifyCmds(key string, isCanary bool) []string {
	switch j.VerifyMode {
	case VerifyModeNone:
		return nil
	case VerifyModeCanary:
		if !isCanary {
			return nil
		}
	}
	if len(j.VerifyCmds) > 0 {
		return append([]string{}, j.VerifyCmds...)
	}
	if params, ok := j.DeviceParams[key]; ok {
		return append([]string{}, params.VerifyCmds...)
	}
	return nil
}

// OrderedKeys returns the device keys in their creation order. Targets
// carries the order the operator supplied; map iteration would lose it.
func (j *JobRecord) OrderedKeys() []string {
	keys := make([]string, 0, len(j.Targets))
	for _, t := range j.Targets {
		if _, ok := j.DeviceResults[t.Key()]; ok {
			keys = append(keys, t.Key())
		}
	}
	return keys
}

// Clone returns a deep copy safe to hand outside the registry lock.
func (j *JobRecord) Clone() *JobRecord {
	clone := *j
	clone.VerifyCmds = append([]string{}, j.VerifyCmds...)
	clone.Targets = append([]DeviceTarget{}, j.Targets...)
	clone.DeviceResults = make(map[string]*DeviceResult, len(j.DeviceResults))
	for key, result := range j.DeviceResults {
		clone.DeviceResults[key] = result.Clone()
	}
	clone.DeviceParams = make(map[string]DeviceParams, len(j.DeviceParams))
	for key, params := range j.DeviceParams {
		params.VerifyCmds = append([]string{}, params.VerifyCmds...)
		clone.DeviceParams[key] = params
	}
	if j.StartedAt != nil {
		started := *j.StartedAt
		clone.StartedAt = &started
	}
	if j.CompletedAt != nil {
		completed := *j.CompletedAt
		clone.CompletedAt = &completed
	}
	return &clone
}
