package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Devdesai111/RevUp-sub000/internal/alignment"
	"github.com/Devdesai111/RevUp-sub000/internal/notify"
	"github.com/Devdesai111/RevUp-sub000/internal/store"
)

type sentNotification struct {
	userID  string
	tmpl    notify.Template
	payload map[string]any
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (r *recordingNotifier) Send(_ context.Context, userID string, tmpl notify.Template, payload map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{userID, tmpl, payload})
	return r.err
}

func newSweepStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "sweep.db"), store.DriverSQLite)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSweeper_RecordsMissedDays(t *testing.T) {
	ctx := context.Background()
	st := newSweepStore(t)
	q := NewMemoryQueue(16, 3)
	defer q.Close()
	n := &recordingNotifier{}

	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	// "active" has evidence for the swept day, "idle" last logged four days
	// earlier and "gone" is outside the lookback window.
	require.NoError(t, st.UpsertExecution(ctx, &store.ExecutionRecord{UserID: "active", Date: day}))
	require.NoError(t, st.UpsertExecution(ctx, &store.ExecutionRecord{UserID: "idle", Date: day.AddDate(0, 0, -4)}))
	require.NoError(t, st.UpsertExecution(ctx, &store.ExecutionRecord{UserID: "gone", Date: day.AddDate(0, 0, -40)}))
	require.NoError(t, st.UpsertMetric(ctx, &store.Metric{
		UserID: "idle", Date: day.AddDate(0, 0, -4), AlignmentScore: 80, StateLevel: alignment.StateStable,
	}))

	s := NewSweeper(st, q, n, &SweepConfig{Schedule: "5 0 * * *", Timezone: "UTC", LookbackDays: 14}, nil)
	res, err := s.SweepDay(ctx, day)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Checked)
	assert.Equal(t, 1, res.Missed)
	assert.Equal(t, 1, res.Enqueued)
	assert.Zero(t, res.Errors)

	rec, err := st.GetExecution(ctx, "idle", day)
	require.NoError(t, err)
	assert.True(t, rec.MissedDay)

	require.Len(t, n.sent, 1)
	assert.Equal(t, "idle", n.sent[0].userID)
	assert.Equal(t, notify.TemplateMissedDay, n.sent[0].tmpl)
	assert.Equal(t, 72.0, n.sent[0].payload["projected_score"])

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "idle", d.Job().UserID)
	assert.Equal(t, ReasonMissedDay, d.Job().TriggerReason)
	assert.Equal(t, day, d.Job().Date)
}

func TestSweeper_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newSweepStore(t)
	q := NewMemoryQueue(16, 3)
	defer q.Close()

	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.UpsertExecution(ctx, &store.ExecutionRecord{UserID: "u1", Date: day.AddDate(0, 0, -1)}))

	s := NewSweeper(st, q, nil, DefaultSweepConfig(), nil)
	first, err := s.SweepDay(ctx, day)
	require.NoError(t, err)
	second, err := s.SweepDay(ctx, day)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Missed)
	assert.Equal(t, 0, second.Missed, "a recorded missed day is evidence")
	assert.Equal(t, 1, q.Len())
}

func TestSweeper_NotificationFailureDoesNotStopEnqueue(t *testing.T) {
	ctx := context.Background()
	st := newSweepStore(t)
	q := NewMemoryQueue(16, 3)
	defer q.Close()
	n := &recordingNotifier{err: errors.New("push gateway down")}

	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.UpsertExecution(ctx, &store.ExecutionRecord{UserID: "u1", Date: day.AddDate(0, 0, -2)}))

	res, err := NewSweeper(st, q, n, DefaultSweepConfig(), nil).SweepDay(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Enqueued)
	assert.Zero(t, res.Errors)
}

type failingSweepStore struct {
	*store.SQLiteStore
}

func (failingSweepStore) ActiveUsers(context.Context, time.Time) ([]string, error) {
	return nil, errors.New("connection refused")
}

func TestSweeper_ListFailureAborts(t *testing.T) {
	q := NewMemoryQueue(1, 1)
	defer q.Close()

	_, err := NewSweeper(failingSweepStore{newSweepStore(t)}, q, nil, DefaultSweepConfig(), nil).
		SweepDay(context.Background(), time.Now())
	assert.Error(t, err)
}

func TestSweeper_RunNowUsesYesterdayInTimezone(t *testing.T) {
	ctx := context.Background()
	st := newSweepStore(t)
	q := NewMemoryQueue(4, 3)
	defer q.Close()

	s := NewSweeper(st, q, nil, &SweepConfig{Timezone: "America/New_York", LookbackDays: 7}, nil)
	// 03:00 UTC on Jan 10 is still Jan 9 in New York, so yesterday is Jan 8.
	s.now = func() time.Time { return time.Date(2024, 1, 10, 3, 0, 0, 0, time.UTC) }

	res, err := s.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), res.Day)
}

func TestSweeper_StartStop(t *testing.T) {
	q := NewMemoryQueue(1, 1)
	defer q.Close()

	s := NewSweeper(newSweepStore(t), q, nil, DefaultSweepConfig(), nil)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))

	status := s.Status()
	assert.True(t, status.Running)
	assert.False(t, status.NextRun.IsZero())

	s.Stop()
	assert.False(t, s.Status().Running)
}

func TestSweeper_DisabledAndBadSchedule(t *testing.T) {
	q := NewMemoryQueue(1, 1)
	defer q.Close()

	disabled := NewSweeper(newSweepStore(t), q, nil, &SweepConfig{Enabled: false, Schedule: "5 0 * * *"}, nil)
	require.NoError(t, disabled.Start(context.Background()))
	assert.False(t, disabled.Status().Running)

	bad := NewSweeper(newSweepStore(t), q, nil, &SweepConfig{Enabled: true, Schedule: "not a schedule"}, nil)
	assert.Error(t, bad.Start(context.Background()))
}
