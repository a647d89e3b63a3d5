// Package queue provides a bounded in-memory queue of jobs.
package queue

import (
	"context"
	"sync"

	"github.com/okian/factorlens/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 4096
	defaultBufferSize    = 4096
)

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue[T any] interface {
	// Enqueue adds an item to the queue.
	// Returns ErrFull or ErrClosed when the item was not enqueued.
	Enqueue(ctx context.Context, item T) error

	// Dequeue returns a channel that will receive items as they become available.
	// The channel will be closed when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan T

	// Len returns the current number of queued items.
	Len() int

	// Close stops new items from being enqueued.
	Close() error
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue[T any] struct {
	items    chan T
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue[T any](opts ...Option) *InMemoryQueue[T] {
	cfg := config{
		capacity:   defaultQueueCapacity,
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.bufferSize < cfg.capacity {
		cfg.bufferSize = cfg.capacity
	}

	metrics.UpdateQueueCapacity(cfg.capacity)
	return &InMemoryQueue[T]{
		items:    make(chan T, cfg.bufferSize),
		capacity: cfg.capacity,
	}
}

// Enqueue adds an item to the queue.
func (q *InMemoryQueue[T]) Enqueue(ctx context.Context, item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if len(q.items) >= q.capacity {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "capacity_exceeded")
		return ErrFull
	}

	select {
	case q.items <- item:
		return nil
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return ctx.Err()
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns a channel that will receive items as they become available.
// The forwarding goroutine stops when ctx is done.
func (q *InMemoryQueue[T]) Dequeue(ctx context.Context) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case item, ok := <-q.items:
				if !ok {
					return
				}
				select {
				case out <- item:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Len returns the current number of queued items.
func (q *InMemoryQueue[T]) Len() int {
	return len(q.items)
}

// Close stops new items from being enqueued. Items already queued can still
// be dequeued.
func (q *InMemoryQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}
