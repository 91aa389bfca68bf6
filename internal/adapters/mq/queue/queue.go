// Package queue buffers prediction events between the request path and the
// publishing workers.
package queue

import (
	"context"
	"sync"

	"github.com/okian/gesture/internal/domain/model"
	"github.com/okian/gesture/pkg/metrics"
)

const defaultQueueCapacity = 10000

// Event is the payload flowing through the queue.
type Event = model.PredictionEvent

// Queue provides non-blocking enqueue and channel-based dequeue.
type Queue interface {
	// Enqueue adds an event. It returns false when the event was dropped.
	Enqueue(ctx context.Context, e Event) bool

	// Dequeue returns a channel that is closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Event

	Len() int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue over a buffered channel.
type InMemoryQueue struct {
	events   chan Event
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a bounded queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Event, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0)
	return q
}

// Enqueue never blocks: a full or closed queue drops the event.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) bool { //nolint:gocritic // hugeParam: value semantics for channel send
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.drop("closed")
		return false
	}
	if ctx.Err() != nil {
		q.drop("context_cancelled")
		return false
	}

	select {
	case q.events <- e:
		metrics.RecordQueueEnqueue()
		q.observe()
		return true
	default:
		q.drop("queue_full")
		return false
	}
}

func (q *InMemoryQueue) drop(reason string) {
	metrics.RecordQueueEnqueueError()
	metrics.RecordEventDropped()
	metrics.RecordErrorByComponent("queue", reason)
}

func (q *InMemoryQueue) observe() {
	size := len(q.events)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Dequeue returns a channel of queued events. Several consumers may call it;
// each event is delivered to exactly one of them.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-q.events:
				if !ok {
					return
				}
				select {
				case out <- e:
					metrics.RecordQueueDequeue()
					q.observe()
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Len returns the number of queued events.
func (q *InMemoryQueue) Len() int {
	return len(q.events)
}

// Close stops accepting events. Queued events stay available to consumers.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
