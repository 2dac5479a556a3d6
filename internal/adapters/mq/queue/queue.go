// Package queue holds scrape jobs waiting for a worker.
package queue

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/okian/muster/internal/adapters/notify"
	"github.com/okian/muster/internal/domain/model"
	"github.com/okian/muster/pkg/metrics"
)

const defaultQueueCapacity = 64

// Job is one requested scrape.
type Job struct {
	ID       string
	Window   model.Window
	Notifier notify.Notifier
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job or fails with ErrFull or ErrClosed.
	Enqueue(ctx context.Context, j Job) error

	// Dequeue returns a channel that is closed once the queue is closed and
	// drained. Consumers select on their own context.
	Dequeue(ctx context.Context) <-chan Job

	Len() int
	Capacity() int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a job to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected("closed")
		return errors.Wrapf(ErrClosed, "enqueue job %s", j.ID)
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueRejected("context_cancelled")
		return errors.Wrapf(err, "enqueue job %s", j.ID)
	}

	select {
	case q.jobs <- j:
		metrics.UpdateQueueSize(len(q.jobs))
		return nil
	default:
		metrics.RecordQueueRejected("full")
		metrics.RecordErrorByComponent("queue", "full")
		return errors.Wrapf(ErrFull, "enqueue job %s: %d pending", j.ID, q.capacity)
	}
}

// Dequeue returns the shared job channel. Every consumer receives from the
// same channel, so a job is handed only to a consumer that is ready for it.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Job {
	return q.jobs
}

// Len returns the number of pending jobs.
func (q *InMemoryQueue) Len() int { return len(q.jobs) }

// Capacity returns the maximum number of pending jobs.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Close stops accepting jobs. Pending jobs are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
