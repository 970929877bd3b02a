// -----------------------------------------------------------------------
// Run coordinator - single-flight guard for asynchronous job runs
// -----------------------------------------------------------------------

package engine

import "sync"

// Coordinator ensures at most one run per job is in flight at a time.
// Finished runs are reaped lazily on the next Start or IsRunning call for
// the same job.
type Coordinator struct {
	mu      sync.Mutex
	running map[string]chan struct{}
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{running: make(map[string]chan struct{})}
}

// Start launches fn on its own goroutine unless a run for the job is still
// live. Reports whether the run was started.
func (c *Coordinator) Start(jobID string, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reapLocked(jobID)
	if _, live := c.running[jobID]; live {
		return false
	}
	done := make(chan struct{})
	c.running[jobID] = done
	go func() {
		defer close(done)
		fn()
	}()
	return true
}

// IsRunning reports whether a run for the job is still live.
func (c *Coordinator) IsRunning(jobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reapLocked(jobID)
	_, live := c.running[jobID]
	return live
}

// Wait blocks until the job's current run finishes. Returns immediately
// when no run is live.
func (c *Coordinator) Wait(jobID string) {
	c.mu.Lock()
	done, live := c.running[jobID]
	c.mu.Unlock()
	if live {
		<-done
	}
}

// WaitAll blocks until every live run finishes. Used at shutdown after
// the runs have been cancelled.
func (c *Coordinator) WaitAll() {
	c.mu.Lock()
	pending := make([]chan struct{}, 0, len(c.running))
	for _, done := range c.running {
		pending = append(pending, done)
	}
	c.mu.Unlock()
	for _, done := range pending {
		<-done
	}
}

func (c *Coordinator) reapLocked(jobID string) {
	done, ok := c.running[jobID]
	if !ok {
		return
	}
	select {
	case <-done:
		delete(c.running, jobID)
	default:
	}
}
