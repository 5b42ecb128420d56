package kv

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore() (*MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewMemoryStore(WithClock(clock.Now)), clock
}

func TestMemoryStore_GetSet(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNil)

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	clock.Advance(time.Minute)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNil, "key should expire at its deadline")
}

func TestMemoryStore_SetNX(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore()

	ok, err := s.SetNX(ctx, "lock", "a", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetNX(ctx, "lock", "b", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "second SetNX must not overwrite")

	v, _ := s.Get(ctx, "lock")
	assert.Equal(t, "a", v)

	clock.Advance(31 * time.Second)
	ok, err = s.SetNX(ctx, "lock", "c", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired key can be claimed again")
}

func TestMemoryStore_SetNXConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.SetNX(ctx, "k", "v", time.Minute)
			if err == nil && ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestMemoryStore_DelIncrExpire(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore()

	require.NoError(t, s.Set(ctx, "a", "1", 0))
	require.NoError(t, s.Set(ctx, "b", "2", 0))
	require.NoError(t, s.Del(ctx, "a", "b", "never-set"))
	assert.Equal(t, 0, s.Len())

	n, err := s.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = s.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ok, err := s.Expire(ctx, "counter", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err = s.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	clock.Advance(time.Hour)
	_, err = s.Get(ctx, "counter")
	assert.ErrorIs(t, err, ErrNil, "Incr must keep the expiry set by Expire")

	ok, err = s.Expire(ctx, "nope", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "text", "abc", 0))
	_, err = s.Incr(ctx, "text")
	assert.Error(t, err)
}

func TestRedisStore_Integration(t *testing.T) {
	url := os.Getenv("REVUP_TEST_REDIS_URL")
	if url == "" {
		t.Skip("REVUP_TEST_REDIS_URL not set")
	}

	ctx := context.Background()
	s, err := DialRedis(ctx, url)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	key := "revup:test:" + time.Now().Format("150405.000000000")
	defer func() { _ = s.Del(ctx, key) }()

	ok, err := s.SetNX(ctx, key, "x", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetNX(ctx, key, "y", 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Del(ctx, key))
	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNil)
}
