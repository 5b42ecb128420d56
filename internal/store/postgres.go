package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Devdesai111/RevUp-sub000/internal/alignment"
)

// PostgresStore implements Store on PostgreSQL via a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// DialPostgres connects, pings and migrates.
func DialPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS execution_records (
			user_id TEXT NOT NULL,
			day DATE NOT NULL,
			tasks JSONB NOT NULL DEFAULT '[]',
			habit_done BOOLEAN NOT NULL DEFAULT FALSE,
			deep_work_minutes INTEGER NOT NULL DEFAULT 0,
			missed_day BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, day)
		)`,
		`CREATE TABLE IF NOT EXISTS alignment_metrics (
			id UUID NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			day DATE NOT NULL,
			alignment_score DOUBLE PRECISION NOT NULL,
			raw_score DOUBLE PRECISION NOT NULL,
			streak_multiplier DOUBLE PRECISION NOT NULL,
			drift_index DOUBLE PRECISION NOT NULL,
			seven_day_average DOUBLE PRECISION NOT NULL,
			streak_count INTEGER NOT NULL,
			state_level SMALLINT NOT NULL,
			pattern_flags JSONB NOT NULL DEFAULT '[]',
			components JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, day)
		)`,
		`CREATE TABLE IF NOT EXISTS reflection_scores (
			user_id TEXT NOT NULL,
			day DATE NOT NULL,
			quality DOUBLE PRECISION NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, day)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_execution_records_day ON execution_records(day)`,
	}

	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks a pooled connection can reach the server.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Execution records ---

// GetExecution returns the record for (userID, day) or ErrNotFound.
func (s *PostgresStore) GetExecution(ctx context.Context, userID string, day time.Time) (*ExecutionRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, day, tasks, habit_done, deep_work_minutes, missed_day, updated_at
		FROM execution_records WHERE user_id = $1 AND day = $2
	`, userID, alignment.Day(day))

	return s.scanExecution(row)
}

// UpsertExecution inserts or replaces the record for (UserID, Date).
func (s *PostgresStore) UpsertExecution(ctx context.Context, rec *ExecutionRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	tasks, err := json.Marshal(normalizeTasks(rec.Tasks))
	if err != nil {
		return fmt.Errorf("failed to encode tasks: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO execution_records (user_id, day, tasks, habit_done, deep_work_minutes, missed_day, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (user_id, day) DO UPDATE SET
			tasks = EXCLUDED.tasks,
			habit_done = EXCLUDED.habit_done,
			deep_work_minutes = EXCLUDED.deep_work_minutes,
			missed_day = EXCLUDED.missed_day,
			updated_at = NOW()
	`, rec.UserID, alignment.Day(rec.Date), tasks, rec.HabitDone, rec.DeepWorkMinutes, rec.MissedDay)
	if err != nil {
		return fmt.Errorf("failed to upsert execution record: %w", err)
	}
	return nil
}

// ListExecutions returns up to limit records on or before day, newest first.
func (s *PostgresStore) ListExecutions(ctx context.Context, userID string, onOrBefore time.Time, limit int) ([]*ExecutionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, day, tasks, habit_done, deep_work_minutes, missed_day, updated_at
		FROM execution_records WHERE user_id = $1 AND day <= $2
		ORDER BY day DESC
		LIMIT $3
	`, userID, alignment.Day(onOrBefore), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution records: %w", err)
	}
	defer rows.Close()

	var records []*ExecutionRecord
	for rows.Next() {
		rec, err := s.scanExecution(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) scanExecution(row pgx.Row) (*ExecutionRecord, error) {
	var r ExecutionRecord
	var tasksJSON []byte

	err := row.Scan(&r.UserID, &r.Date, &tasksJSON, &r.HabitDone, &r.DeepWorkMinutes, &r.MissedDay, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan execution record: %w", err)
	}

	r.Date = alignment.Day(r.Date)
	if r.Tasks, err = decodeTasks(tasksJSON); err != nil {
		return nil, err
	}
	return &r, nil
}

// --- Alignment metrics ---

// GetMetric returns the metric for (userID, day) or ErrNotFound.
func (s *PostgresStore) GetMetric(ctx context.Context, userID string, day time.Time) (*Metric, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+metricColumns+`
		FROM alignment_metrics WHERE user_id = $1 AND day = $2
	`, userID, alignment.Day(day))

	return s.scanMetric(row)
}

// RecentMetrics returns up to limit metrics strictly before day, newest first.
func (s *PostgresStore) RecentMetrics(ctx context.Context, userID string, before time.Time, limit int) ([]*Metric, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+metricColumns+`
		FROM alignment_metrics WHERE user_id = $1 AND day < $2
		ORDER BY day DESC
		LIMIT $3
	`, userID, alignment.Day(before), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var metrics []*Metric
	for rows.Next() {
		m, err := s.scanMetric(rows)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// UpsertMetric writes every computed field of m for (UserID, Date).
func (s *PostgresStore) UpsertMetric(ctx context.Context, m *Metric) error {
	if err := validateMetric(m); err != nil {
		return err
	}
	flags, err := json.Marshal(normalizeFlags(m.PatternFlags))
	if err != nil {
		return fmt.Errorf("failed to encode pattern flags: %w", err)
	}
	components, err := json.Marshal(m.Components)
	if err != nil {
		return fmt.Errorf("failed to encode components: %w", err)
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO alignment_metrics (`+metricColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (user_id, day) DO UPDATE SET
			alignment_score = EXCLUDED.alignment_score,
			raw_score = EXCLUDED.raw_score,
			streak_multiplier = EXCLUDED.streak_multiplier,
			drift_index = EXCLUDED.drift_index,
			seven_day_average = EXCLUDED.seven_day_average,
			streak_count = EXCLUDED.streak_count,
			state_level = EXCLUDED.state_level,
			pattern_flags = EXCLUDED.pattern_flags,
			components = EXCLUDED.components
		RETURNING id, created_at
	`, m.ID, m.UserID, alignment.Day(m.Date), m.AlignmentScore, m.RawScore, m.StreakMultiplier,
		m.DriftIndex, m.SevenDayAverage, m.StreakCount, int16(m.StateLevel), flags, components,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert metric: %w", err)
	}

	m.Date = alignment.Day(m.Date)
	m.PatternFlags = normalizeFlags(m.PatternFlags)
	return nil
}

func (s *PostgresStore) scanMetric(row pgx.Row) (*Metric, error) {
	var m Metric
	var state int16
	var flagsJSON, componentsJSON []byte

	err := row.Scan(&m.ID, &m.UserID, &m.Date, &m.AlignmentScore, &m.RawScore, &m.StreakMultiplier, &m.DriftIndex,
		&m.SevenDayAverage, &m.StreakCount, &state, &flagsJSON, &componentsJSON, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan metric: %w", err)
	}

	m.Date = alignment.Day(m.Date)
	m.StateLevel = alignment.StateLevel(state)
	if err := decodeMetricJSON(&m, flagsJSON, componentsJSON); err != nil {
		return nil, err
	}
	return &m, nil
}

// --- Reflection scores ---

// ReflectionQuality returns the reflection score for (userID, day).
func (s *PostgresStore) ReflectionQuality(ctx context.Context, userID string, day time.Time) (float64, bool, error) {
	var q float64
	err := s.pool.QueryRow(ctx, `
		SELECT quality FROM reflection_scores WHERE user_id = $1 AND day = $2
	`, userID, alignment.Day(day)).Scan(&q)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get reflection score: %w", err)
	}
	return q, true, nil
}

// SaveReflection stores the reflection score for (userID, day).
func (s *PostgresStore) SaveReflection(ctx context.Context, userID string, day time.Time, quality float64) error {
	if quality < 0 || quality > 100 {
		return fmt.Errorf("reflection quality %v out of range 0-100", quality)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reflection_scores (user_id, day, quality, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, day) DO UPDATE SET
			quality = EXCLUDED.quality,
			updated_at = NOW()
	`, userID, alignment.Day(day), quality)
	if err != nil {
		return fmt.Errorf("failed to save reflection score: %w", err)
	}
	return nil
}

// ActiveUsers lists users with execution records on or after since.
func (s *PostgresStore) ActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT user_id FROM execution_records WHERE day >= $1 ORDER BY user_id
	`, alignment.Day(since))
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
