// -----------------------------------------------------------------------
// Per-job execution control - cooperative pause and latched cancel
// -----------------------------------------------------------------------

package control

import (
	"sync"
	"time"
)

// DefaultPausePollInterval bounds how long a cooperative waiter sleeps
// before re-checking the pause gate.
const DefaultPausePollInterval = 200 * time.Millisecond

// Control carries the two cooperative signals for one job. Cancel is
// latched: once set it reads true until the control is reset for a fresh
// run. Pause is a gate that resume clears.
type Control struct {
	mu        sync.Mutex
	paused    bool
	cancelled bool
	done      chan struct{}
}

// New creates a control with both signals clear.
func New() *Control {
	return &Control{done: make(chan struct{})}
}

// Pause sets the pause gate. No effect after cancel.
func (c *Control) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}
	c.paused = true
}

// Resume clears the pause gate.
func (c *Control) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
}

// Cancel latches the cancel signal and releases any paused waiters.
func (c *Control) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}
	c.cancelled = true
	c.paused = false
	close(c.done)
}

// IsPaused reports the pause gate.
func (c *Control) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// IsCancelled reports the cancel latch.
func (c *Control) IsCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// Done returns a channel closed when cancel is latched. Workers select on
// it during sleeps so cancellation latency stays bounded.
func (c *Control) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// WaitWhilePaused blocks while the pause gate is set, polling at the given
// interval. Returns immediately when cancel is latched. Poll intervals
// above 250ms are clamped so pause latency stays within the contract.
func (c *Control) WaitWhilePaused(poll time.Duration) {
	if poll <= 0 || poll > 250*time.Millisecond {
		poll = DefaultPausePollInterval
	}
	for {
		if c.IsCancelled() || !c.IsPaused() {
			return
		}
		select {
		case <-c.Done():
			return
		case <-time.After(poll):
		}
	}
}

// SleepInterruptible sleeps for d, returning false early when cancel is
// latched during the sleep.
func (c *Control) SleepInterruptible(d time.Duration) bool {
	if d <= 0 {
		return !c.IsCancelled()
	}
	select {
	case <-c.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// Reset clears both signals before a fresh run. Callers must not reset
// while a run is in flight; the coordinator guarantees one runner per job.
func (c *Control) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	if c.cancelled {
		c.cancelled = false
		c.done = make(chan struct{})
	}
}

// Store holds controls keyed by job ID.
type Store struct {
	mu       sync.Mutex
	controls map[string]*Control
}

// NewStore creates an empty control store.
func NewStore() *Store {
	return &Store{controls: make(map[string]*Control)}
}

// GetOrCreate returns the control for a job, creating it on first use.
func (s *Store) GetOrCreate(jobID string) *Control {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctl, ok := s.controls[jobID]
	if !ok {
		ctl = New()
		s.controls[jobID] = ctl
	}
	return ctl
}

// Get returns the control for a job, or nil when none was created.
func (s *Store) Get(jobID string) *Control {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controls[jobID]
}

// Delete discards a job's control. Called when the job is evicted.
func (s *Store) Delete(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.controls, jobID)
}

// CancelAll cancels every known control, waking paused or sleeping runs.
// Used at shutdown.
func (s *Store) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ctl := range s.controls {
		ctl.Cancel()
	}
}
