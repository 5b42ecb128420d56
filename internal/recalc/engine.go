// Package recalc recomputes a user's daily alignment metric. It composes the
// pure calculators in package alignment under a per-user lock, persists the
// result with an idempotent upsert, then invalidates caches and fires
// best-effort notifications.
package recalc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Devdesai111/RevUp-sub000/internal/alignment"
	"github.com/Devdesai111/RevUp-sub000/internal/cache"
	"github.com/Devdesai111/RevUp-sub000/internal/jobs"
	"github.com/Devdesai111/RevUp-sub000/internal/lock"
	"github.com/Devdesai111/RevUp-sub000/internal/logging"
	"github.com/Devdesai111/RevUp-sub000/internal/notify"
	"github.com/Devdesai111/RevUp-sub000/internal/store"
)

const (
	historyWindow = 7
	patternWindow = 30
)

// Outcomes counted per recomputation attempt.
const (
	OutcomeComputed   = "computed"
	OutcomeLocked     = "skipped_locked"
	OutcomeNoEvidence = "skipped_no_evidence"
	OutcomeFailed     = "failed"
)

// Outcomes lists every outcome name, for stats readers.
var Outcomes = []string{OutcomeComputed, OutcomeLocked, OutcomeNoEvidence, OutcomeFailed}

// ExecutionReader reads day evidence.
type ExecutionReader interface {
	GetExecution(ctx context.Context, userID string, day time.Time) (*store.ExecutionRecord, error)
	ListExecutions(ctx context.Context, userID string, onOrBefore time.Time, limit int) ([]*store.ExecutionRecord, error)
}

// MetricStore reads history and writes the day's metric.
type MetricStore interface {
	RecentMetrics(ctx context.Context, userID string, before time.Time, limit int) ([]*store.Metric, error)
	UpsertMetric(ctx context.Context, m *store.Metric) error
}

// ReflectionReader supplies the day's reflection quality.
type ReflectionReader interface {
	ReflectionQuality(ctx context.Context, userID string, day time.Time) (float64, bool, error)
}

// CacheInvalidator drops views derived from a user's metrics.
type CacheInvalidator interface {
	InvalidateUser(ctx context.Context, userID string) error
}

// MarkerStore tracks notification cooldowns.
type MarkerStore interface {
	Active(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string, ttl time.Duration) error
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unmark(ctx context.Context, key string) error
}

// OutcomeCounter records recomputation outcomes.
type OutcomeCounter interface {
	Incr(ctx context.Context, outcome string) (int64, error)
}

// Config tunes the engine.
type Config struct {
	// LockTTL bounds how long a crashed holder can block a user.
	LockTTL time.Duration
	// DriftAlertCooldown is the minimum gap between drift alerts.
	DriftAlertCooldown time.Duration
	// MilestoneDedupeTTL keeps a milestone from being announced twice when a
	// day is recomputed.
	MilestoneDedupeTTL time.Duration
	// Milestones are the streak counts that trigger a notification.
	Milestones []int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		LockTTL:            30 * time.Second,
		DriftAlertCooldown: 7 * 24 * time.Hour,
		MilestoneDedupeTTL: 7 * 24 * time.Hour,
		Milestones:         []int{7, 14, 30, 60, 90},
	}
}

// Deps are the engine's collaborators. Counters is optional.
type Deps struct {
	Executions  ExecutionReader
	Metrics     MetricStore
	Reflections ReflectionReader
	Caches      CacheInvalidator
	Notifier    notify.Notifier
	Locker      lock.Locker
	Markers     MarkerStore
	Counters    OutcomeCounter
}

func (d Deps) validate() error {
	switch {
	case d.Executions == nil:
		return errors.New("recalc: execution reader is required")
	case d.Metrics == nil:
		return errors.New("recalc: metric store is required")
	case d.Reflections == nil:
		return errors.New("recalc: reflection reader is required")
	case d.Caches == nil:
		return errors.New("recalc: cache invalidator is required")
	case d.Locker == nil:
		return errors.New("recalc: locker is required")
	case d.Markers == nil:
		return errors.New("recalc: marker store is required")
	}
	return nil
}

// Engine runs recomputations. It is safe for concurrent use.
type Engine struct {
	deps   Deps
	config *Config
	log    *slog.Logger
}

// NewEngine creates an Engine. A nil config uses DefaultConfig, a nil notifier
// discards notifications and a nil logger uses the package default.
func NewEngine(deps Deps, config *Config, logger *slog.Logger) (*Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if config == nil {
		config = DefaultConfig()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if logger == nil {
		logger = logging.WithComponent("recalc")
	}
	return &Engine{deps: deps, config: config, log: logger}, nil
}

// RecalcDailyAlignment recomputes the metric for (userID, date) and returns
// it. It returns (nil, nil) when another recomputation for the user holds the
// lock or when the day has no execution record. Store errors are returned
// after the lock is released; notification and cache failures are logged only.
func (e *Engine) RecalcDailyAlignment(ctx context.Context, userID string, date time.Time) (*store.Metric, error) {
	day := alignment.Day(date)
	log := e.log.With(slog.String("user_id", userID), slog.String("date", alignment.DayKey(day)))

	var metric *store.Metric
	ran, err := lock.Do(ctx, e.deps.Locker, cache.RecalcLockKey(userID), e.config.LockTTL, func(ctx context.Context) error {
		m, err := e.recalc(ctx, log, userID, day)
		metric = m
		return err
	})

	switch {
	case err != nil:
		e.count(ctx, OutcomeFailed)
		return nil, err
	case !ran:
		log.Debug("recalculation already running, skipping")
		e.count(ctx, OutcomeLocked)
		return nil, nil
	case metric == nil:
		e.count(ctx, OutcomeNoEvidence)
		return nil, nil
	}

	e.count(ctx, OutcomeComputed)
	return metric, nil
}

// RecalcJob runs a queued trigger. The reason is logged only and never
// changes the computation.
func (e *Engine) RecalcJob(ctx context.Context, job jobs.Job) (*store.Metric, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	ctx = logging.ContextWithUserID(ctx, job.UserID)
	if job.ID != "" {
		ctx = logging.ContextWithJobID(ctx, job.ID)
	}

	e.log.Debug("recalculation triggered",
		slog.String("user_id", job.UserID),
		slog.String("date", alignment.DayKey(job.Date)),
		slog.String("reason", string(job.TriggerReason)),
		slog.String("job_id", job.ID),
	)
	return e.RecalcDailyAlignment(ctx, job.UserID, job.Date)
}

// Handle lets the engine serve a jobs.Pool.
func (e *Engine) Handle(ctx context.Context, job jobs.Job) error {
	_, err := e.RecalcJob(ctx, job)
	return err
}

func (e *Engine) recalc(ctx context.Context, log *slog.Logger, userID string, day time.Time) (*store.Metric, error) {
	rec, err := e.deps.Executions.GetExecution(ctx, userID, day)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Debug("no execution record, nothing to score")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get execution record: %w", err)
	}

	recent, err := e.deps.Metrics.RecentMetrics(ctx, userID, day, historyWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to get metric history: %w", err)
	}
	history := store.Snapshots(recent)

	reflection, _, err := e.deps.Reflections.ReflectionQuality(ctx, userID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to get reflection quality: %w", err)
	}

	raw, components := alignment.CalculateRawScore(rec.Summary(), reflection)
	streak, multiplier := alignment.CalculateStreak(raw, history)
	score := alignment.ApplyMultiplier(raw, multiplier)
	drift, average := alignment.CalculateDrift(score, history)
	state := alignment.DetermineStateLevel(average, drift, history)

	m := &store.Metric{
		UserID:           userID,
		Date:             day,
		AlignmentScore:   score,
		RawScore:         raw,
		StreakMultiplier: multiplier,
		DriftIndex:       drift,
		SevenDayAverage:  average,
		StreakCount:      streak,
		StateLevel:       state,
		Components:       components,
	}

	flags, err := e.detectPatterns(ctx, m)
	if err != nil {
		return nil, err
	}
	m.PatternFlags = flags

	if err := e.deps.Metrics.UpsertMetric(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to upsert metric: %w", err)
	}

	log.Info("alignment recalculated",
		slog.Float64("alignment_score", m.AlignmentScore),
		slog.Int("streak", m.StreakCount),
		slog.Float64("drift_index", m.DriftIndex),
		slog.String("state", m.StateLevel.String()),
		slog.Any("flags", m.PatternFlags.Strings()),
	)

	if err := e.deps.Caches.InvalidateUser(ctx, userID); err != nil {
		log.Warn("cache invalidation failed", slog.Any("error", err))
	}

	e.fireNotifications(ctx, log, m)
	return m, nil
}

// detectPatterns builds the 30-day windows ending on m's day. The metric
// window leads with m itself, which is not yet persisted.
func (e *Engine) detectPatterns(ctx context.Context, m *store.Metric) (alignment.PatternFlags, error) {
	older, err := e.deps.Metrics.RecentMetrics(ctx, m.UserID, m.Date, patternWindow-1)
	if err != nil {
		return nil, fmt.Errorf("failed to get pattern metric window: %w", err)
	}
	logs, err := e.deps.Executions.ListExecutions(ctx, m.UserID, m.Date, patternWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to get pattern log window: %w", err)
	}

	metrics := make([]alignment.Snapshot, 0, len(older)+1)
	metrics = append(metrics, m.Snapshot())
	for _, o := range older {
		if alignment.DaysBetween(o.Date, m.Date) < patternWindow {
			metrics = append(metrics, o.Snapshot())
		}
	}

	summaries := make([]alignment.ExecSummary, 0, len(logs))
	for _, l := range logs {
		if alignment.DaysBetween(l.Date, m.Date) < patternWindow {
			summaries = append(summaries, l.Summary())
		}
	}

	return alignment.DetectPatterns(metrics, summaries), nil
}

func (e *Engine) count(ctx context.Context, outcome string) {
	if e.deps.Counters == nil {
		return
	}
	if _, err := e.deps.Counters.Incr(context.WithoutCancel(ctx), outcome); err != nil {
		e.log.Debug("outcome counter failed", slog.String("outcome", outcome), slog.Any("error", err))
	}
}
