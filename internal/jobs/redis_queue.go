package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Devdesai111/RevUp-sub000/internal/logging"
)

const defaultBlockTimeout = 5 * time.Second

// RedisQueue is a reliable Queue on Redis lists. A dequeued job is moved
// atomically from the pending list to a processing list and stays there until
// acked, so a crashed worker's jobs can be recovered with Recover.
type RedisQueue struct {
	client       *redis.Client
	pending      string
	processing   string
	dead         string
	maxAttempts  int
	blockTimeout time.Duration
	log          *slog.Logger
}

// NewRedisQueue creates a queue rooted at key.
func NewRedisQueue(client *redis.Client, key string, maxAttempts int) *RedisQueue {
	if key == "" {
		key = "revup:recalc"
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &RedisQueue{
		client:       client,
		pending:      key + ":pending",
		processing:   key + ":processing",
		dead:         key + ":dead",
		maxAttempts:  maxAttempts,
		blockTimeout: defaultBlockTimeout,
		log:          logging.WithComponent("queue"),
	}
}

// Enqueue implements Queue.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.pending, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue implements Queue. It polls with a bounded block so ctx
// cancellation is observed.
func (q *RedisQueue) Dequeue(ctx context.Context) (Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := q.client.BLMove(ctx, q.pending, q.processing, "RIGHT", "LEFT", q.blockTimeout).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, redis.ErrClosed) {
				return nil, ErrQueueClosed
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to dequeue job: %w", err)
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			q.log.Warn("unreadable job payload", slog.Any("error", err))
			if perr := q.park(ctx, raw); perr != nil {
				q.log.Warn("failed to park unreadable job; left in processing",
					slog.Any("error", perr))
			}
			continue
		}
		return &redisDelivery{queue: q, job: job, raw: raw}, nil
	}
}

// park moves an unreadable payload from processing to the dead list in one
// transaction, so a failed write never drops it.
func (q *RedisQueue) park(ctx context.Context, raw string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, q.dead, raw)
		pipe.LRem(ctx, q.processing, 1, raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to park job payload: %w", err)
	}
	return nil
}

// Recover moves every job left in the processing list back to pending and
// returns how many were moved.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.LMove(ctx, q.processing, q.pending, "RIGHT", "LEFT").Err()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return n, nil
			}
			return n, fmt.Errorf("failed to recover jobs: %w", err)
		}
		n++
	}
}

// Len returns the pending, processing and dead list lengths.
func (q *RedisQueue) Len(ctx context.Context) (pending, processing, dead int64, err error) {
	pipe := q.client.Pipeline()
	p := pipe.LLen(ctx, q.pending)
	pr := pipe.LLen(ctx, q.processing)
	d := pipe.LLen(ctx, q.dead)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return p.Val(), pr.Val(), d.Val(), nil
}

// Close is a no-op; the client is owned by the caller.
func (q *RedisQueue) Close() error { return nil }

type redisDelivery struct {
	queue *RedisQueue
	job   Job
	raw   string
}

func (d *redisDelivery) Job() Job { return d.job }

func (d *redisDelivery) Ack(ctx context.Context) error {
	if err := d.queue.client.LRem(ctx, d.queue.processing, 1, d.raw).Err(); err != nil {
		return fmt.Errorf("failed to ack job %s: %w", d.job.ID, err)
	}
	return nil
}

func (d *redisDelivery) Nack(ctx context.Context, cause error) error {
	job := d.job
	job.Attempts++

	target := d.queue.pending
	var payload []byte
	var err error
	if job.Attempts >= d.queue.maxAttempts {
		target = d.queue.dead
		msg := ""
		if cause != nil {
			msg = cause.Error()
		}
		payload, err = json.Marshal(DeadJob{Job: job, Cause: msg})
	} else {
		payload, err = json.Marshal(job)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	_, err = d.queue.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, d.queue.processing, 1, d.raw)
		pipe.LPush(ctx, target, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to nack job %s: %w", d.job.ID, err)
	}
	return nil
}

var _ Queue = (*RedisQueue)(nil)
