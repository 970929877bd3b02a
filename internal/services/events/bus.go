package events

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netrun/internal/interfaces"
	"github.com/ternarybob/netrun/internal/models"
)

const (
	// DefaultSendTimeout bounds each subscriber delivery.
	DefaultSendTimeout = 2 * time.Second

	// subscriberHeadroom is queue capacity beyond the backfill size. A
	// subscriber that falls this far behind the publisher is dropped.
	subscriberHeadroom = 256
)

// subscriber owns a buffered delivery queue drained by one pump goroutine,
// so one slow consumer never stalls publishers or other subscribers.
type subscriber struct {
	id      int
	jobID   string
	queue   chan models.ExecutionEvent
	quit    chan struct{}
	once    sync.Once
	handler interfaces.EventHandler
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.quit) })
}

// Bus implements the EventBus interface: an in-memory append-only event log
// per job with pub/sub fan-out. Appends and subscriber registration share one
// mutex, which is what makes backfill gap-free and duplicate-free.
type Bus struct {
	mu          sync.Mutex
	events      map[string][]models.ExecutionEvent
	subscribers map[string]map[int]*subscriber
	nextSubID   int
	sendTimeout time.Duration
	closed      bool
	logger      arbor.ILogger
}

// NewBus creates an event bus. A sendTimeout of zero or less selects
// DefaultSendTimeout.
func NewBus(logger arbor.ILogger, sendTimeout time.Duration) interfaces.EventBus {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Bus{
		events:      make(map[string][]models.ExecutionEvent),
		subscribers: make(map[string]map[int]*subscriber),
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

// Publish appends the event to its job's log and enqueues it to live
// subscribers. A subscriber whose queue is full is dropped rather than
// blocking the caller.
func (b *Bus) Publish(event models.ExecutionEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.events[event.JobID] = append(b.events[event.JobID], event)

	var overrun []*subscriber
	for _, sub := range b.subscribers[event.JobID] {
		select {
		case sub.queue <- event:
		default:
			overrun = append(overrun, sub)
		}
	}
	for _, sub := range overrun {
		delete(b.subscribers[event.JobID], sub.id)
	}
	b.mu.Unlock()

	for _, sub := range overrun {
		sub.stop()
		b.logger.Warn().
			Str("job_id", sub.jobID).
			Int("subscriber_id", sub.id).
			Msg("Dropping subscriber with full queue")
	}
}

// List returns a copy of the job's events from startIndex onward.
func (b *Bus) List(jobID string, startIndex int) []models.ExecutionEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	log := b.events[jobID]
	if startIndex < 0 {
		startIndex = 0
	}
	if startIndex >= len(log) {
		return []models.ExecutionEvent{}
	}

	out := make([]models.ExecutionEvent, len(log)-startIndex)
	copy(out, log[startIndex:])
	return out
}

// Count returns the number of buffered events for a job.
func (b *Bus) Count(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events[jobID])
}

// Subscribe registers a handler for a job's events starting at fromIndex.
// Already-buffered events from that index are queued before registration
// completes, so the handler sees every event exactly once, in publish order.
func (b *Bus) Subscribe(jobID string, fromIndex int, handler interfaces.EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}

	log := b.events[jobID]
	if fromIndex < 0 {
		fromIndex = 0
	}
	if fromIndex > len(log) {
		fromIndex = len(log)
	}
	backlog := log[fromIndex:]

	b.nextSubID++
	sub := &subscriber{
		id:      b.nextSubID,
		jobID:   jobID,
		queue:   make(chan models.ExecutionEvent, len(backlog)+subscriberHeadroom),
		quit:    make(chan struct{}),
		handler: handler,
	}
	for _, event := range backlog {
		sub.queue <- event
	}
	if b.subscribers[jobID] == nil {
		b.subscribers[jobID] = make(map[int]*subscriber)
	}
	b.subscribers[jobID][sub.id] = sub
	b.mu.Unlock()

	go b.pump(sub)

	return func() {
		b.remove(sub)
		sub.stop()
	}
}

// Drop discards a job's buffered events and disconnects its subscribers.
func (b *Bus) Drop(jobID string) {
	b.mu.Lock()
	subs := b.subscribers[jobID]
	delete(b.subscribers, jobID)
	delete(b.events, jobID)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

// Close drops all subscribers. Buffered events remain readable via List.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true

	var all []*subscriber
	for _, subs := range b.subscribers {
		for _, sub := range subs {
			all = append(all, sub)
		}
	}
	b.subscribers = make(map[string]map[int]*subscriber)
	b.mu.Unlock()

	for _, sub := range all {
		sub.stop()
	}
	b.logger.Info().Msg("Event bus closed")
}

func (b *Bus) remove(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.subscribers[sub.jobID]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(b.subscribers, sub.jobID)
		}
	}
}

// pump drains one subscriber's queue in order until the subscriber stops or
// a delivery fails.
func (b *Bus) pump(sub *subscriber) {
	for {
		select {
		case <-sub.quit:
			return
		case event := <-sub.queue:
			if !b.deliver(sub, event) {
				b.remove(sub)
				sub.stop()
				return
			}
		}
	}
}

// deliver runs the handler for one event, bounded by the bus send timeout.
func (b *Bus) deliver(sub *subscriber, event models.ExecutionEvent) bool {
	errCh := make(chan error, 1)
	go func() { errCh <- sub.handler(event) }()

	timer := time.NewTimer(b.sendTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		if err != nil {
			b.logger.Debug().
				Err(err).
				Str("job_id", sub.jobID).
				Int("subscriber_id", sub.id).
				Msg("Subscriber handler failed, unsubscribing")
			return false
		}
		return true
	case <-timer.C:
		b.logger.Warn().
			Str("job_id", sub.jobID).
			Int("subscriber_id", sub.id).
			Msg("Subscriber delivery timed out, unsubscribing")
		return false
	case <-sub.quit:
		return false
	}
}
