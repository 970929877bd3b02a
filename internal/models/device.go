// -----------------------------------------------------------------------
// Device targets, imported profiles, and per-device execution results
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DeviceTarget identifies one device by host and SSH port.
// Immutable value; Key() is the stable identifier used for maps and events.
type DeviceTarget struct {
	Host string `json:"host" validate:"required,min=1,max=255"`
	Port int    `json:"port" validate:"gte=1,lte=65535"`
}

// NewDeviceTarget creates a target, defaulting the port to 22.
func NewDeviceTarget(host string, port int) DeviceTarget {
	if port == 0 {
		port = 22
	}
	return DeviceTarget{Host: host, Port: port}
}

// Key returns the stable "host:port" identifier.
func (t DeviceTarget) Key() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// ParseDeviceTarget parses "host" or "host:port" into a target, defaulting
// the port to 22.
func ParseDeviceTarget(s string) (DeviceTarget, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DeviceTarget{}, fmt.Errorf("device target is empty")
	}
	host, portStr, found := strings.Cut(s, ":")
	if !found {
		return NewDeviceTarget(s, 22), nil
	}
	if host == "" {
		return DeviceTarget{}, fmt.Errorf("invalid device target %q: missing host", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return DeviceTarget{}, fmt.Errorf("invalid device target %q: bad port %q", s, portStr)
	}
	return DeviceTarget{Host: host, Port: port}, nil
}

// DeviceProfile is an imported device with its connection parameters and
// validation outcome. Profiles are replaced atomically on re-import; jobs
// never hold references to them (see DeviceParams).
type DeviceProfile struct {
	Host         string   `json:"host"`
	Port         int      `json:"port"`
	DeviceType   string   `json:"device_type"`
	Username     string   `json:"username"`
	Password     string   `json:"password"`
	Name         string   `json:"name,omitempty"`
	VerifyCmds   []string `json:"verify_cmds"`
	ConnectionOK bool     `json:"connection_ok"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

// Key returns the stable "host:port" identifier.
func (p DeviceProfile) Key() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// Target returns the device target for this profile.
func (p DeviceProfile) Target() DeviceTarget {
	return DeviceTarget{Host: p.Host, Port: p.Port}
}

// DeviceParams is the frozen snapshot of a device's connection parameters
// and effective verify commands taken at job creation time. Once a job is
// created its DeviceParams never change, even if the live inventory is
// replaced by a re-import.
type DeviceParams struct {
	Host       string   `json:"host"`
	Port       int      `json:"port"`
	DeviceType string   `json:"device_type"`
	Username   string   `json:"username"`
	Password   string   `json:"password"`
	VerifyCmds []string `json:"verify_cmds"`
}

// Key returns the stable "host:port" identifier.
func (p DeviceParams) Key() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// DeviceStatus is the lifecycle of one device inside a job.
type DeviceStatus string

const (
	DeviceStatusQueued    DeviceStatus = "queued"
	DeviceStatusRunning   DeviceStatus = "running"
	DeviceStatusSuccess   DeviceStatus = "success"
	DeviceStatusFailed    DeviceStatus = "failed"
	DeviceStatusCancelled DeviceStatus = "cancelled"
)

// IsTerminal returns true for success, failed, and cancelled.
func (s DeviceStatus) IsTerminal() bool {
	return s == DeviceStatusSuccess || s == DeviceStatusFailed || s == DeviceStatusCancelled
}

// DeviceResult is the per-device outcome stored on a job. Terminal status is
// set exactly once; the registry lock serializes all mutation.
type DeviceResult struct {
	Host        string       `json:"host"`
	Port        int          `json:"port"`
	Status      DeviceStatus `json:"status"`
	Error       string       `json:"error,omitempty"`
	PreOutput   string       `json:"pre_output,omitempty"`
	ApplyOutput string       `json:"apply_output,omitempty"`
	PostOutput  string       `json:"post_output,omitempty"`
	Diff        string       `json:"diff,omitempty"`
	Logs        []string     `json:"logs"`
	LogTrimmed  bool         `json:"log_trimmed"`
	Attempts    int          `json:"attempts"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// NewDeviceResult creates a queued result for a target.
func NewDeviceResult(target DeviceTarget) *DeviceResult {
	return &DeviceResult{
		Host:   target.Host,
		Port:   target.Port,
		Status: DeviceStatusQueued,
		Logs:   []string{},
	}
}

// MarkRunning transitions the result to running and stamps started_at.
func (r *DeviceResult) MarkRunning() {
	r.Status = DeviceStatusRunning
	now := time.Now().UTC()
	r.StartedAt = &now
}

// MarkCancelled sets the cancelled terminal state if no terminal state was
// applied yet.
func (r *DeviceResult) MarkCancelled() {
	if r.Status.IsTerminal() {
		return
	}
	r.Status = DeviceStatusCancelled
	now := time.Now().UTC()
	r.CompletedAt = &now
}

// ApplyExecution copies a worker execution outcome into the result and
// stamps completed_at. No-op when the result is already terminal.
func (r *DeviceResult) ApplyExecution(exec *DeviceExecutionResult) {
	if r.Status.IsTerminal() {
		return
	}
	switch exec.Status {
	case ExecutionStatusSuccess:
		r.Status = DeviceStatusSuccess
	case ExecutionStatusCancelled:
		r.Status = DeviceStatusCancelled
	default:
		r.Status = DeviceStatusFailed
	}
	r.Error = exec.Error
	r.PreOutput = exec.PreOutput
	r.ApplyOutput = exec.ApplyOutput
	r.PostOutput = exec.PostOutput
	r.Diff = exec.Diff
	r.Logs = append([]string{}, exec.Logs...)
	r.LogTrimmed = exec.LogTrimmed
	r.Attempts = exec.Attempts
	now := time.Now().UTC()
	r.CompletedAt = &now
}

// Clone returns a deep copy safe to hand outside the registry lock.
func (r *DeviceResult) Clone() *DeviceResult {
	clone := *r
	clone.Logs = append([]string{}, r.Logs...)
	if r.StartedAt != nil {
		started := *r.StartedAt
		clone.StartedAt = &started
	}
	if r.CompletedAt != nil {
		completed := *r.CompletedAt
		clone.CompletedAt = &completed
	}
	return &clone
}
