// Package cache names the shared-cache keys the recalculation engine touches
// and wraps the operations it performs on them.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Devdesai111/RevUp-sub000/internal/kv"
)

const (
	avatarStatePrefix   = "avatar_state:"
	dashboardPrefix     = "dashboard:"
	driftAlertPrefix    = "drift_alert_sent:"
	milestonePrefix     = "streak_milestone_sent:"
	recalcCounterPrefix = "stats:recalc:"
	lockPrefix          = "lock:recalc:"

	counterTTL = 48 * time.Hour
)

// AvatarStateKey caches the user's rendered avatar state.
func AvatarStateKey(userID string) string { return avatarStatePrefix + userID }

// DashboardKey caches the user's dashboard payload.
func DashboardKey(userID string) string { return dashboardPrefix + userID }

// DriftAlertKey marks that a drift alert was sent within the cooldown.
func DriftAlertKey(userID string) string { return driftAlertPrefix + userID }

// MilestoneKey marks a streak milestone notification for one day.
func MilestoneKey(userID, day string, streak int) string {
	return fmt.Sprintf("%s%s:%s:%d", milestonePrefix, userID, day, streak)
}

// RecalcLockKey is the per-user single-flight lock.
func RecalcLockKey(userID string) string { return lockPrefix + userID }

// Invalidator drops cached views derived from alignment metrics.
type Invalidator struct {
	store kv.Store
}

// NewInvalidator creates an Invalidator.
func NewInvalidator(store kv.Store) *Invalidator {
	return &Invalidator{store: store}
}

// InvalidateUser deletes the avatar-state and dashboard entries for userID.
func (i *Invalidator) InvalidateUser(ctx context.Context, userID string) error {
	if err := i.store.Del(ctx, AvatarStateKey(userID), DashboardKey(userID)); err != nil {
		return fmt.Errorf("failed to invalidate caches for %s: %w", userID, err)
	}
	return nil
}

// Markers tracks time-boxed "already done" flags such as notification cooldowns.
type Markers struct {
	store kv.Store
	now   func() time.Time
}

// NewMarkers creates a Markers helper.
func NewMarkers(store kv.Store) *Markers {
	return &Markers{store: store, now: time.Now}
}

// Active reports whether the marker key is present.
func (m *Markers) Active(ctx context.Context, key string) (bool, error) {
	_, err := m.store.Get(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, kv.ErrNil) {
		return false, nil
	}
	return false, err
}

// Mark sets the marker for ttl, overwriting any existing one.
func (m *Markers) Mark(ctx context.Context, key string, ttl time.Duration) error {
	return m.store.Set(ctx, key, m.now().UTC().Format(time.RFC3339), ttl)
}

// MarkOnce sets the marker only if absent and reports whether it did.
func (m *Markers) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return m.store.SetNX(ctx, key, m.now().UTC().Format(time.RFC3339), ttl)
}

// Unmark removes a marker.
func (m *Markers) Unmark(ctx context.Context, key string) error {
	return m.store.Del(ctx, key)
}

// Counters keeps short-lived outcome counters for the stats endpoint.
type Counters struct {
	store kv.Store
}

// NewCounters creates a Counters helper.
func NewCounters(store kv.Store) *Counters {
	return &Counters{store: store}
}

// Incr bumps the counter for outcome and refreshes its expiry.
func (c *Counters) Incr(ctx context.Context, outcome string) (int64, error) {
	key := recalcCounterPrefix + outcome
	n, err := c.store.Incr(ctx, key)
	if err != nil {
		return 0, err
	}
	if _, err := c.store.Expire(ctx, key, counterTTL); err != nil {
		return n, err
	}
	return n, nil
}

// Get returns the counter for outcome, 0 when unset.
func (c *Counters) Get(ctx context.Context, outcome string) (int64, error) {
	v, err := c.store.Get(ctx, recalcCounterPrefix+outcome)
	if err != nil {
		if errors.Is(err, kv.ErrNil) {
			return 0, nil
		}
		return 0, err
	}
	var n int64
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid counter %s: %w", outcome, err)
	}
	return n, nil
}

// Snapshot returns the counters for the given outcomes.
func (c *Counters) Snapshot(ctx context.Context, outcomes ...string) (map[string]int64, error) {
	out := make(map[string]int64, len(outcomes))
	for _, o := range outcomes {
		n, err := c.Get(ctx, o)
		if err != nil {
			return nil, err
		}
		out[o] = n
	}
	return out, nil
}
