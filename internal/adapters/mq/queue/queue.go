// Package queue holds trial log records waiting to be delivered.
package queue

import (
	"context"
	"sync"

	"github.com/okian/pairwise/internal/domain/model"
	"github.com/okian/pairwise/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
	defaultBufferSize    = 1024
)

// Job is one record to deliver. Done is called exactly once with the
// delivery result.
type Job struct {
	Record model.LogRecord
	Done   func(error)
}

// Settle reports the result of the job, if anyone is listening.
func (j Job) Settle(err error) {
	if j.Done != nil {
		j.Done(err)
	}
}

// Queue provides non-blocking and waiting enqueue with channel-based dequeue.
type Queue interface {
	// Enqueue adds a job to the queue.
	// Returns false if the queue is full or closed and the job was not enqueued.
	Enqueue(ctx context.Context, j Job) bool

	// EnqueueWait adds a job, waiting for room while the queue is full.
	// It fails with ErrClosed or the ctx error.
	EnqueueWait(ctx context.Context, j Job) error

	// Dequeue returns a channel that receives jobs as they become available.
	// The channel is closed when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Job

	// Len returns the current number of queued jobs.
	Len(ctx context.Context) int

	// Close stops accepting jobs. Jobs already queued are still delivered.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs       chan Job
	capacity   int
	bufferSize int
	mu         sync.RWMutex
	closed     bool

	// room is closed and cleared whenever a job leaves the queue.
	roomMu sync.Mutex
	room   chan struct{}
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultQueueCapacity,
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.bufferSize < q.capacity {
		q.bufferSize = q.capacity
	}
	q.jobs = make(chan Job, q.bufferSize)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a job to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) bool { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed || len(q.jobs) >= q.capacity {
		metrics.RecordQueueEnqueueError()
		return false
	}

	select {
	case q.jobs <- j:
		metrics.UpdateQueueSize(len(q.jobs))
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		return false
	default:
		metrics.RecordQueueEnqueueError()
		return false
	}
}

// EnqueueWait adds a job to the queue, blocking while it is at capacity.
func (q *InMemoryQueue) EnqueueWait(ctx context.Context, j Job) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	for {
		room := q.waitRoom()

		q.mu.RLock()
		if q.closed {
			q.mu.RUnlock()
			metrics.RecordQueueEnqueueError()
			return ErrClosed
		}
		if len(q.jobs) < q.capacity {
			select {
			case q.jobs <- j:
				q.mu.RUnlock()
				metrics.UpdateQueueSize(len(q.jobs))
				return nil
			default:
			}
		}
		q.mu.RUnlock()

		select {
		case <-room:
		case <-ctx.Done():
			metrics.RecordQueueEnqueueError()
			return ctx.Err()
		}
	}
}

func (q *InMemoryQueue) waitRoom() <-chan struct{} {
	q.roomMu.Lock()
	defer q.roomMu.Unlock()
	if q.room == nil {
		q.room = make(chan struct{})
	}
	return q.room
}

func (q *InMemoryQueue) signalRoom() {
	q.roomMu.Lock()
	defer q.roomMu.Unlock()
	if q.room != nil {
		close(q.room)
		q.room = nil
	}
}

// Dequeue returns a channel that receives jobs as they become available. A
// job taken off the queue after ctx is done is settled with ctx.Err().
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Job {
	out := make(chan Job)
	go func() {
		defer close(out)
		for j := range q.jobs {
			q.signalRoom()
			select {
			case out <- j:
				metrics.UpdateQueueSize(len(q.jobs))
			case <-ctx.Done():
				j.Settle(ctx.Err())
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued jobs.
func (q *InMemoryQueue) Len(context.Context) int {
	size := len(q.jobs)
	metrics.UpdateQueueSize(size)
	return size
}

// Close stops accepting jobs and closes the dequeue side once drained.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	q.signalRoom()
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
