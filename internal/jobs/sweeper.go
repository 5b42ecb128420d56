package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Devdesai111/RevUp-sub000/internal/alignment"
	"github.com/Devdesai111/RevUp-sub000/internal/notify"
	"github.com/Devdesai111/RevUp-sub000/internal/store"
)

// SweepStore is the slice of store.Store the sweeper needs.
type SweepStore interface {
	ActiveUsers(ctx context.Context, since time.Time) ([]string, error)
	GetExecution(ctx context.Context, userID string, day time.Time) (*store.ExecutionRecord, error)
	UpsertExecution(ctx context.Context, rec *store.ExecutionRecord) error
	RecentMetrics(ctx context.Context, userID string, before time.Time, limit int) ([]*store.Metric, error)
}

// SweepConfig configures the nightly missed-day sweep.
type SweepConfig struct {
	Enabled      bool
	Schedule     string
	Timezone     string
	LookbackDays int
}

// DefaultSweepConfig runs five minutes past midnight UTC.
func DefaultSweepConfig() *SweepConfig {
	return &SweepConfig{
		Enabled:      true,
		Schedule:     "5 0 * * *",
		Timezone:     "UTC",
		LookbackDays: 14,
	}
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Day      time.Time `json:"day"`
	Checked  int       `json:"checked"`
	Missed   int       `json:"missed"`
	Enqueued int       `json:"enqueued"`
	Errors   int       `json:"errors"`
}

// SweeperStatus holds scheduler status information.
type SweeperStatus struct {
	Enabled  bool
	Running  bool
	Schedule string
	Timezone string
	NextRun  time.Time
	LastRun  time.Time
}

// Sweeper records a missed day for every recently active user who logged
// nothing yesterday, then asks for that day to be recomputed.
type Sweeper struct {
	store    SweepStore
	queue    Queue
	notifier notify.Notifier
	config   *SweepConfig
	loc      *time.Location
	cron     *cron.Cron
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	entryID cron.EntryID
}

// NewSweeper creates a sweeper. notifier may be nil.
func NewSweeper(st SweepStore, queue Queue, notifier notify.Notifier, config *SweepConfig, logger *slog.Logger) *Sweeper {
	if config == nil {
		config = DefaultSweepConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}

	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		logger.Warn("invalid timezone, using UTC", "timezone", config.Timezone, "error", err)
		loc = time.UTC
	}

	return &Sweeper{
		store:    st,
		queue:    queue,
		notifier: notifier,
		config:   config,
		loc:      loc,
		cron:     cron.New(cron.WithLocation(loc)),
		now:      time.Now,
		logger:   logger,
	}
}

// Start registers the cron entry and starts the scheduler.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if !s.config.Enabled {
		s.logger.Info("missed-day sweeper disabled")
		return nil
	}

	entryID, err := s.cron.AddFunc(s.config.Schedule, func() {
		s.runSweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.config.Schedule, err)
	}

	s.entryID = entryID
	s.cron.Start()
	s.running = true

	s.logger.Info("missed-day sweeper started",
		"schedule", s.config.Schedule,
		"timezone", s.loc.String(),
		"next_run", s.cron.Entry(s.entryID).Next,
	)
	return nil
}

// Stop stops the scheduler and waits for a running sweep.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info("missed-day sweeper stopped")
}

// Status returns scheduler status information.
func (s *Sweeper) Status() SweeperStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := SweeperStatus{
		Enabled:  s.config.Enabled,
		Running:  s.running,
		Schedule: s.config.Schedule,
		Timezone: s.loc.String(),
	}
	if s.running {
		entry := s.cron.Entry(s.entryID)
		status.NextRun = entry.Next
		status.LastRun = entry.Prev
	}
	return status
}

// RunNow sweeps the day before today in the configured timezone.
func (s *Sweeper) RunNow(ctx context.Context) (*SweepResult, error) {
	return s.SweepDay(ctx, s.yesterday())
}

func (s *Sweeper) yesterday() time.Time {
	y, m, d := s.now().In(s.loc).AddDate(0, 0, -1).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Sweeper) runSweep(ctx context.Context) {
	res, err := s.RunNow(ctx)
	if err != nil {
		s.logger.Error("missed-day sweep failed", "error", err)
		return
	}
	s.logger.Info("missed-day sweep complete",
		"day", alignment.DayKey(res.Day),
		"checked", res.Checked,
		"missed", res.Missed,
		"enqueued", res.Enqueued,
		"errors", res.Errors,
	)
}

// SweepDay processes one civil day. Per-user failures are counted and
// logged; only a failure to list users aborts the sweep.
func (s *Sweeper) SweepDay(ctx context.Context, day time.Time) (*SweepResult, error) {
	day = alignment.Day(day)
	res := &SweepResult{Day: day}

	lookback := s.config.LookbackDays
	if lookback <= 0 {
		lookback = DefaultSweepConfig().LookbackDays
	}
	users, err := s.store.ActiveUsers(ctx, day.AddDate(0, 0, -lookback))
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}

	for _, userID := range users {
		res.Checked++
		missed, enqueued, err := s.sweepUser(ctx, userID, day)
		if err != nil {
			res.Errors++
			s.logger.Warn("missed-day sweep failed for user", "user_id", userID, "error", err)
		}
		if missed {
			res.Missed++
		}
		if enqueued {
			res.Enqueued++
		}
	}
	return res, nil
}

func (s *Sweeper) sweepUser(ctx context.Context, userID string, day time.Time) (missed, enqueued bool, err error) {
	_, err = s.store.GetExecution(ctx, userID, day)
	if err == nil {
		return false, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, false, fmt.Errorf("failed to get execution record: %w", err)
	}

	rec := &store.ExecutionRecord{UserID: userID, Date: day, MissedDay: true}
	if err := s.store.UpsertExecution(ctx, rec); err != nil {
		return false, false, fmt.Errorf("failed to record missed day: %w", err)
	}

	prior, err := s.store.RecentMetrics(ctx, userID, day, 1)
	if err != nil {
		s.logger.Warn("failed to read prior metric", "user_id", userID, "error", err)
	}
	projected := alignment.CalculateMissedDayScore(store.Snapshots(prior))

	payload := map[string]any{
		"date":            alignment.DayKey(day),
		"projected_score": projected,
	}
	if err := s.notifier.Send(ctx, userID, notify.TemplateMissedDay, payload); err != nil {
		s.logger.Warn("missed-day notification failed", "user_id", userID, "error", err)
	}

	job, err := NewJob(userID, day, ReasonMissedDay)
	if err != nil {
		return true, false, err
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return true, false, fmt.Errorf("failed to enqueue missed-day job: %w", err)
	}
	return true, true, nil
}
