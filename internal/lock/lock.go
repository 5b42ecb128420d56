// Package lock provides the mutual exclusion used to keep recomputation
// single-flight per user. A lock is a key set-if-absent with an expiry on a
// shared kv.Store; the expiry only reclaims locks left behind by crashed
// holders and is never renewed while the holder runs.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Devdesai111/RevUp-sub000/internal/kv"
	"github.com/Devdesai111/RevUp-sub000/internal/logging"
)

// Locker acquires and releases named locks.
type Locker interface {
	// Acquire reports whether this caller obtained the lock.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release deletes the lock unconditionally.
	Release(ctx context.Context, key string) error
}

// KVLocker implements Locker on top of a kv.Store.
type KVLocker struct {
	store  kv.Store
	owner  string
	logger *slog.Logger
}

// Option configures a KVLocker.
type Option func(*KVLocker)

// WithLogger sets the logger used for release failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *KVLocker) {
		l.logger = logger
	}
}

// New creates a KVLocker. The stored value identifies this process so a stuck
// lock can be traced back to its holder.
func New(store kv.Store, opts ...Option) *KVLocker {
	l := &KVLocker{
		store:  store,
		owner:  uuid.NewString(),
		logger: logging.WithComponent("lock"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire performs an atomic set-if-absent with expiry.
func (l *KVLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.store.SetNX(ctx, key, l.owner, ttl)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	return ok, nil
}

// Release deletes the lock key.
func (l *KVLocker) Release(ctx context.Context, key string) error {
	if err := l.store.Del(ctx, key); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return nil
}

// Do runs fn while holding key. It returns ran=false without calling fn when
// the lock is held elsewhere. The lock is released on every exit path,
// including a panic in fn, and release uses a context that survives
// cancellation of ctx. Release failures are logged, not returned: the ttl
// reclaims the key regardless.
func Do(ctx context.Context, l Locker, key string, ttl time.Duration, fn func(ctx context.Context) error) (ran bool, err error) {
	ok, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	defer func() {
		if rerr := l.Release(context.WithoutCancel(ctx), key); rerr != nil {
			logging.WithContext(ctx).Warn("lock release failed", slog.String("key", key), slog.Any("error", rerr))
		}
	}()

	return true, fn(ctx)
}
