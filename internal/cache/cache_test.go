package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Devdesai111/RevUp-sub000/internal/kv"
)

func TestInvalidator_InvalidateUser(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(ctx, AvatarStateKey("u1"), "{}", 0))
	require.NoError(t, store.Set(ctx, DashboardKey("u1"), "{}", 0))
	require.NoError(t, store.Set(ctx, DashboardKey("u2"), "{}", 0))

	require.NoError(t, NewInvalidator(store).InvalidateUser(ctx, "u1"))

	_, err := store.Get(ctx, AvatarStateKey("u1"))
	assert.ErrorIs(t, err, kv.ErrNil)
	_, err = store.Get(ctx, DashboardKey("u1"))
	assert.ErrorIs(t, err, kv.ErrNil)
	_, err = store.Get(ctx, DashboardKey("u2"))
	assert.NoError(t, err, "other users' caches survive")
}

func TestMarkers(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	store := kv.NewMemoryStore(kv.WithClock(func() time.Time { return now }))
	m := NewMarkers(store)

	active, err := m.Active(ctx, DriftAlertKey("u1"))
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, m.Mark(ctx, DriftAlertKey("u1"), 7*24*time.Hour))
	active, err = m.Active(ctx, DriftAlertKey("u1"))
	require.NoError(t, err)
	assert.True(t, active)

	now = now.Add(7 * 24 * time.Hour)
	active, err = m.Active(ctx, DriftAlertKey("u1"))
	require.NoError(t, err)
	assert.False(t, active, "cooldown lapses after its ttl")

	key := MilestoneKey("u1", "2024-02-08", 7)
	first, err := m.MarkOnce(ctx, key, time.Hour)
	require.NoError(t, err)
	second, err := m.MarkOnce(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)
}

func TestCounters(t *testing.T) {
	ctx := context.Background()
	c := NewCounters(kv.NewMemoryStore())

	for i := 0; i < 3; i++ {
		_, err := c.Incr(ctx, "computed")
		require.NoError(t, err)
	}
	_, err := c.Incr(ctx, "skipped_locked")
	require.NoError(t, err)

	snap, err := c.Snapshot(ctx, "computed", "skipped_locked", "failed")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"computed": 3, "skipped_locked": 1, "failed": 0}, snap)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "avatar_state:u1", AvatarStateKey("u1"))
	assert.Equal(t, "dashboard:u1", DashboardKey("u1"))
	assert.Equal(t, "lock:recalc:u1", RecalcLockKey("u1"))
	assert.Equal(t, "streak_milestone_sent:u1:2024-01-07:7", MilestoneKey("u1", "2024-01-07", 7))
}
