package jobs

import (
	"context"
	"errors"
	"sync"
)

// DefaultMaxAttempts bounds redelivery before a job is dead-lettered.
const DefaultMaxAttempts = 3

var ErrQueueClosed = errors.New("queue closed")

// Delivery is a dequeued job awaiting acknowledgement.
type Delivery interface {
	Job() Job
	// Ack removes the job permanently.
	Ack(ctx context.Context) error
	// Nack returns the job for redelivery, or dead-letters it once it has
	// used its attempts.
	Nack(ctx context.Context, cause error) error
}

// Queue is an at-least-once job queue.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Dequeue blocks until a job is available, ctx is done or the queue closes.
	Dequeue(ctx context.Context) (Delivery, error)
	Close() error
}

// DeadJob is a job that exhausted its attempts.
type DeadJob struct {
	Job   Job    `json:"job"`
	Cause string `json:"cause"`
}

// MemoryQueue is an in-process Queue backed by a buffered channel. Jobs do not
// survive a restart.
type MemoryQueue struct {
	ch          chan Job
	done        chan struct{}
	maxAttempts int

	mu     sync.Mutex
	closed bool
	dead   []DeadJob
}

// NewMemoryQueue creates a queue holding up to buffer pending jobs.
func NewMemoryQueue(buffer, maxAttempts int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 256
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &MemoryQueue{
		ch:          make(chan Job, buffer),
		done:        make(chan struct{}),
		maxAttempts: maxAttempts,
	}
}

// Enqueue blocks while the buffer is full.
func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- job:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue implements Queue.
func (q *MemoryQueue) Dequeue(ctx context.Context) (Delivery, error) {
	select {
	case job := <-q.ch:
		return &memoryDelivery{queue: q, job: job}, nil
	case <-q.done:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of pending jobs.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

// DeadLetters returns a copy of the dead-lettered jobs.
func (q *MemoryQueue) DeadLetters() []DeadJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadJob, len(q.dead))
	copy(out, q.dead)
	return out
}

// Close stops the queue. Pending jobs are dropped.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}

func (q *MemoryQueue) deadLetter(job Job, cause error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	q.dead = append(q.dead, DeadJob{Job: job, Cause: msg})
}

type memoryDelivery struct {
	queue *MemoryQueue
	job   Job
}

func (d *memoryDelivery) Job() Job { return d.job }

func (d *memoryDelivery) Ack(context.Context) error { return nil }

func (d *memoryDelivery) Nack(ctx context.Context, cause error) error {
	job := d.job
	job.Attempts++
	if job.Attempts >= d.queue.maxAttempts {
		d.queue.deadLetter(job, cause)
		return nil
	}
	return d.queue.Enqueue(ctx, job)
}

var _ Queue = (*MemoryQueue)(nil)
