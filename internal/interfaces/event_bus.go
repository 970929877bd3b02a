package interfaces

import "github.com/ternarybob/netrun/internal/models"

// EventHandler receives one execution event. A non-nil error drops the
// subscriber.
type EventHandler func(event models.ExecutionEvent) error

// EventBus is the append-only per-job event log with broadcast fan-out.
// Events for a job are totally ordered by append; subscribers each see a
// contiguous prefix from their subscription point (plus requested backfill).
type EventBus interface {
	// Publish appends the event to its job's log and hands it to live
	// subscribers without ever blocking the caller.
	Publish(event models.ExecutionEvent)

	// List returns a copy of the job's events from startIndex.
	List(jobID string, startIndex int) []models.ExecutionEvent

	// Count returns the number of buffered events for a job.
	Count(jobID string) int

	// Subscribe registers a handler fed by a dedicated delivery goroutine,
	// backfilled from fromIndex. The bus bounds each delivery with its send
	// timeout and drops slow or failing subscribers. The returned function
	// unsubscribes; it is safe to call more than once.
	Subscribe(jobID string, fromIndex int, handler EventHandler) (unsubscribe func())

	// Drop discards a job's buffered events and disconnects its subscribers.
	// Used when a job is evicted from history.
	Drop(jobID string)

	// Close drops all subscribers. Buffered events stay readable.
	Close()
}
