package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Devdesai111/RevUp-sub000/internal/logging"
)

// Handler processes one job. A returned error nacks the delivery.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job Job) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, job Job) error { return f(ctx, job) }

// dequeueBackoff spaces out retries after a queue error.
const dequeueBackoff = time.Second

// PoolStats is a point-in-time view of pool activity.
type PoolStats struct {
	Workers   int   `json:"workers"`
	Running   bool  `json:"running"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// Pool runs a fixed number of workers draining a Queue. Ordering across
// workers is not guaranteed; per-user exclusion is the handler's concern.
type Pool struct {
	queue   Queue
	handler Handler
	workers int
	log     *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	processed atomic.Int64
	failed    atomic.Int64
}

// NewPool creates a pool. workers below 1 is treated as 1.
func NewPool(queue Queue, handler Handler, workers int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = logging.WithComponent("workers")
	}
	return &Pool{
		queue:   queue,
		handler: handler,
		workers: workers,
		log:     logger,
	}
}

// Start launches the workers. They stop when ctx is done or Stop is called.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, p.log.With(slog.Int("worker", id)))
		}(i)
	}
	p.log.Info("worker pool started", slog.Int("workers", p.workers))
}

// Stop cancels the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Info("worker pool stopped")
}

// Stats returns counters since Start.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	return PoolStats{
		Workers:   p.workers,
		Running:   running,
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) run(ctx context.Context, log *slog.Logger) {
	for {
		d, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			log.Error("dequeue failed", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueBackoff):
			}
			continue
		}
		p.process(ctx, d, log)
	}
}

func (p *Pool) process(ctx context.Context, d Delivery, log *slog.Logger) {
	job := d.Job()
	jobCtx := logging.ContextWithJobID(ctx, job.ID)
	jobCtx = logging.ContextWithUserID(jobCtx, job.UserID)

	start := time.Now()
	err := p.handler.Handle(jobCtx, job)
	duration := time.Since(start)

	// Acks must land even when shutdown cancelled ctx mid-job.
	ackCtx := context.WithoutCancel(ctx)

	if err != nil {
		p.failed.Add(1)
		log.Warn("job failed",
			slog.String("job_id", job.ID),
			slog.String("target", job.Key()),
			slog.String("reason", string(job.TriggerReason)),
			slog.Int("attempts", job.Attempts+1),
			slog.Duration("duration", duration),
			slog.Any("error", err),
		)
		if nerr := d.Nack(ackCtx, err); nerr != nil {
			log.Error("nack failed", slog.String("job_id", job.ID), slog.Any("error", nerr))
		}
		return
	}

	p.processed.Add(1)
	log.Debug("job done",
		slog.String("job_id", job.ID),
		slog.String("target", job.Key()),
		slog.Duration("duration", duration),
	)
	if aerr := d.Ack(ackCtx); aerr != nil {
		log.Error("ack failed", slog.String("job_id", job.ID), slog.Any("error", aerr))
	}
}
