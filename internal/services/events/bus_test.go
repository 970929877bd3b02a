package events

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netrun/internal/models"
)

func newTestBus(t *testing.T, sendTimeout time.Duration) *Bus {
	t.Helper()
	bus := NewBus(arbor.NewLogger(), sendTimeout).(*Bus)
	t.Cleanup(bus.Close)
	return bus
}

// collector accumulates delivered events for assertions.
type collector struct {
	mu     sync.Mutex
	events []models.ExecutionEvent
}

func (c *collector) handle(event models.ExecutionEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *collector) snapshot() []models.ExecutionEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.ExecutionEvent, len(c.events))
	copy(out, c.events)
	return out
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestBusPublishAndList(t *testing.T) {
	bus := newTestBus(t, 0)

	bus.Publish(models.NewLogEvent("job-1", "10.0.0.1:22", "line 1"))
	bus.Publish(models.NewLogEvent("job-1", "10.0.0.1:22", "line 2"))
	bus.Publish(models.NewLogEvent("job-1", "10.0.0.2:22", "line 3"))
	bus.Publish(models.NewLogEvent("job-2", "10.0.0.9:22", "other job"))

	assert.Equal(t, 3, bus.Count("job-1"))
	assert.Equal(t, 1, bus.Count("job-2"))
	assert.Equal(t, 0, bus.Count("missing"))

	all := bus.List("job-1", 0)
	require.Len(t, all, 3)
	assert.Equal(t, "line 1", all[0].Message)
	assert.Equal(t, "line 2", all[1].Message)
	assert.Equal(t, "line 3", all[2].Message)

	tail := bus.List("job-1", 2)
	require.Len(t, tail, 1)
	assert.Equal(t, "line 3", tail[0].Message)

	assert.Empty(t, bus.List("job-1", 3))
	assert.Empty(t, bus.List("job-1", 99))
	assert.Empty(t, bus.List("missing", 0))

	// Negative start reads from the beginning.
	assert.Len(t, bus.List("job-1", -5), 3)
}

func TestBusListReturnsCopy(t *testing.T) {
	bus := newTestBus(t, 0)
	bus.Publish(models.NewLogEvent("job-1", "10.0.0.1:22", "original"))

	out := bus.List("job-1", 0)
	require.Len(t, out, 1)
	out[0].Message = "mutated"

	again := bus.List("job-1", 0)
	assert.Equal(t, "original", again[0].Message)
}

func TestBusSubscribeReceivesLiveEvents(t *testing.T) {
	bus := newTestBus(t, 0)
	col := &collector{}

	unsubscribe := bus.Subscribe("job-1", 0, col.handle)
	defer unsubscribe()

	for i := 0; i < 5; i++ {
		bus.Publish(models.NewLogEvent("job-1", "10.0.0.1:22", fmt.Sprintf("line %d", i)))
	}
	bus.Publish(models.NewLogEvent("job-2", "10.0.0.9:22", "other job"))

	require.Eventually(t, func() bool { return col.len() == 5 }, 2*time.Second, 10*time.Millisecond)

	got := col.snapshot()
	for i, event := range got {
		assert.Equal(t, fmt.Sprintf("line %d", i), event.Message)
		assert.Equal(t, "job-1", event.JobID)
	}
}

func TestBusSubscribeBackfillsFromIndex(t *testing.T) {
	bus := newTestBus(t, 0)
	for i := 0; i < 4; i++ {
		bus.Publish(models.NewLogEvent("job-1", "10.0.0.1:22", fmt.Sprintf("line %d", i)))
	}

	col := &collector{}
	unsubscribe := bus.Subscribe("job-1", 2, col.handle)
	defer unsubscribe()

	bus.Publish(models.NewLogEvent("job-1", "10.0.0.1:22", "line 4"))

	require.Eventually(t, func() bool { return col.len() == 3 }, 2*time.Second, 10*time.Millisecond)

	got := col.snapshot()
	assert.Equal(t, "line 2", got[0].Message)
	assert.Equal(t, "line 3", got[1].Message)
	assert.Equal(t, "line 4", got[2].Message)
}

func TestBusSubscribeNeverGapsOrDuplicates(t *testing.T) {
	bus := newTestBus(t, 0)

	// Publish a backlog, subscribe from its end, then keep publishing while
	// the pump is already draining.
	for i := 0; i < 20; i++ {
		bus.Publish(models.NewLogEvent("job-1", "10.0.0.1:22", fmt.Sprintf("line %d", i)))
	}

	col := &collector{}
	unsubscribe := bus.Subscribe("job-1", 0, col.handle)
	defer unsubscribe()

	for i := 20; i < 40; i++ {
		bus.Publish(models.NewLogEvent("job-1", "10.0.0.1:22", fmt.Sprintf("line %d", i)))
	}

	require.Eventually(t, func() bool { return col.len() == 40 }, 2*time.Second, 10*time.Millisecond)

	got := col.snapshot()
	for i, event := range got {
		require.Equal(t, fmt.Sprintf("line %d", i), event.Message)
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := newTestBus(t, 0)
	col := &collector{}

	unsubscribe := bus.Subscribe("job-1", 0, col.handle)
	bus.Publish(models.NewLogEvent("job-1", "10.0.0.1:22", "before"))
	require.Eventually(t, func() bool { return col.len() == 1 }, 2*time.Second, 10*time.Millisecond)

	unsubscribe()
	unsubscribe() // second call is a no-op

	bus.Publish(models.NewLogEvent("job-1", "10.0.0.1:22", "after"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, col.len())

	// The log itself keeps growing.
	assert.Equal(t, 2, bus.Count("job-1"))
}

func TestBusDropsSlowSubscriber(t *testing.T) {
	bus := newTestBus(t, 20*time.Millisecond)

	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	handler := func(event models.ExecutionEvent) error {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
		return nil
	}

	unsubscribe := bus.Subscribe("job-1", 0, handler)
	defer unsubscribe()
	defer close(release)

	bus.Publish(models.NewLogEvent("job-1", "10.0.0.1:22", "line 1"))
	bus.Publish(models.NewLogEvent("job-1", "10.0.0.1:22", "line 2"))

	// The first delivery blocks past the send timeout, so the subscriber is
	// dropped before the second event is handled.
	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.subscribers["job-1"]) == 0
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()

	// Publishing still works with no subscribers.
	bus.Publish(models.NewLogEvent("job-1", "10.0.0.1:22", "line 3"))
	assert.Equal(t, 3, bus.Count("job-1"))
}

func TestBusHandlerErrorDropsSubscriber(t *testing.T) {
	bus := newTestBus(t, 0)

	var calls int
	var mu sync.Mutex
	handler := func(event models.ExecutionEvent) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("consumer gone")
	}

	unsubscribe := bus.Subscribe("job-1", 0, handler)
	defer unsubscribe()

	bus.Publish(models.NewLogEvent("job-1", "10.0.0.1:22", "line 1"))

	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.subscribers["job-1"]) == 0
	}, 2*time.Second, 10*time.Millisecond)

	bus.Publish(models.NewLogEvent("job-1", "10.0.0.1:22", "line 2"))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

func TestBusDropDiscardsJob(t *testing.T) {
	bus := newTestBus(t, 0)
	col := &collector{}

	unsubscribe := bus.Subscribe("job-1", 0, col.handle)
	defer unsubscribe()

	bus.Publish(models.NewLogEvent("job-1", "10.0.0.1:22", "line 1"))
	require.Eventually(t, func() bool { return col.len() == 1 }, 2*time.Second, 10*time.Millisecond)

	bus.Drop("job-1")

	assert.Equal(t, 0, bus.Count("job-1"))
	assert.Empty(t, bus.List("job-1", 0))

	bus.Publish(models.NewLogEvent("job-1", "10.0.0.1:22", "line 2"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, col.len())
}

func TestBusCloseKeepsEventsReadable(t *testing.T) {
	bus := NewBus(arbor.NewLogger(), 0).(*Bus)

	bus.Publish(models.NewLogEvent("job-1", "10.0.0.1:22", "line 1"))
	bus.Publish(models.NewLogEvent("job-1", "10.0.0.1:22", "line 2"))

	col := &collector{}
	bus.Subscribe("job-1", 0, col.handle)
	require.Eventually(t, func() bool { return col.len() == 2 }, 2*time.Second, 10*time.Millisecond)

	bus.Close()
	bus.Close() // idempotent

	// Publishing after close is a no-op but buffered events stay readable.
	bus.Publish(models.NewLogEvent("job-1", "10.0.0.1:22", "line 3"))
	assert.Equal(t, 2, bus.Count("job-1"))
	assert.Len(t, bus.List("job-1", 0), 2)

	// Subscribing after close returns a harmless no-op.
	late := &collector{}
	unsubscribe := bus.Subscribe("job-1", 0, late.handle)
	unsubscribe()
	assert.Equal(t, 0, late.len())
}
