package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/Devdesai111/RevUp-sub000/internal/alignment"
)

const (
	// DriverSQLite is the pure-Go modernc driver.
	DriverSQLite = "sqlite"
	// DriverSQLite3 is the cgo mattn driver.
	DriverSQLite3 = "sqlite3"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the database file at path using
// driver, which is DriverSQLite or DriverSQLite3, and runs migrations.
func NewSQLiteStore(path, driver string) (*SQLiteStore, error) {
	if driver == "" {
		driver = DriverSQLite
	}
	if driver != DriverSQLite && driver != DriverSQLite3 {
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite serializes writers anyway and pragmas are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set database pragmas: %w", err)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS execution_records (
			user_id TEXT NOT NULL,
			day TEXT NOT NULL,
			tasks TEXT NOT NULL DEFAULT '[]',
			habit_done BOOLEAN NOT NULL DEFAULT FALSE,
			deep_work_minutes INTEGER NOT NULL DEFAULT 0,
			missed_day BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (user_id, day)
		)`,
		`CREATE TABLE IF NOT EXISTS alignment_metrics (
			id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			day TEXT NOT NULL,
			alignment_score REAL NOT NULL,
			raw_score REAL NOT NULL,
			streak_multiplier REAL NOT NULL,
			drift_index REAL NOT NULL,
			seven_day_average REAL NOT NULL,
			streak_count INTEGER NOT NULL,
			state_level INTEGER NOT NULL,
			pattern_flags TEXT NOT NULL DEFAULT '[]',
			components TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			PRIMARY KEY (user_id, day)
		)`,
		`CREATE TABLE IF NOT EXISTS reflection_scores (
			user_id TEXT NOT NULL,
			day TEXT NOT NULL,
			quality REAL NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (user_id, day)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_alignment_metrics_id ON alignment_metrics(id)`,
		`CREATE INDEX IF NOT EXISTS idx_execution_records_day ON execution_records(day)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- Execution records ---

// GetExecution returns the record for (userID, day) or ErrNotFound.
func (s *SQLiteStore) GetExecution(ctx context.Context, userID string, day time.Time) (*ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, day, tasks, habit_done, deep_work_minutes, missed_day, updated_at
		FROM execution_records WHERE user_id = ? AND day = ?
	`, userID, alignment.DayKey(day))

	return scanExecution(row)
}

// UpsertExecution inserts or replaces the record for (UserID, Date).
func (s *SQLiteStore) UpsertExecution(ctx context.Context, rec *ExecutionRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	tasks, err := encodeJSON(normalizeTasks(rec.Tasks))
	if err != nil {
		return fmt.Errorf("failed to encode tasks: %w", err)
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO execution_records (user_id, day, tasks, habit_done, deep_work_minutes, missed_day, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, day) DO UPDATE SET
			tasks = excluded.tasks,
			habit_done = excluded.habit_done,
			deep_work_minutes = excluded.deep_work_minutes,
			missed_day = excluded.missed_day,
			updated_at = excluded.updated_at
	`, rec.UserID, alignment.DayKey(rec.Date), tasks, rec.HabitDone, rec.DeepWorkMinutes, rec.MissedDay,
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to upsert execution record: %w", err)
	}
	return nil
}

// ListExecutions returns up to limit records on or before day, newest first.
func (s *SQLiteStore) ListExecutions(ctx context.Context, userID string, onOrBefore time.Time, limit int) ([]*ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, day, tasks, habit_done, deep_work_minutes, missed_day, updated_at
		FROM execution_records WHERE user_id = ? AND day <= ?
		ORDER BY day DESC
		LIMIT ?
	`, userID, alignment.DayKey(onOrBefore), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution records: %w", err)
	}
	defer rows.Close()

	var records []*ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExecution(row scanner) (*ExecutionRecord, error) {
	var r ExecutionRecord
	var day, tasks, updatedAt string

	err := row.Scan(&r.UserID, &day, &tasks, &r.HabitDone, &r.DeepWorkMinutes, &r.MissedDay, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan execution record: %w", err)
	}

	if r.Date, err = alignment.ParseDay(day); err != nil {
		return nil, err
	}
	if r.Tasks, err = decodeTasks([]byte(tasks)); err != nil {
		return nil, err
	}
	r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &r, nil
}

// --- Alignment metrics ---

const metricColumns = `id, user_id, day, alignment_score, raw_score, streak_multiplier, drift_index,
	seven_day_average, streak_count, state_level, pattern_flags, components, created_at`

// GetMetric returns the metric for (userID, day) or ErrNotFound.
func (s *SQLiteStore) GetMetric(ctx context.Context, userID string, day time.Time) (*Metric, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+metricColumns+`
		FROM alignment_metrics WHERE user_id = ? AND day = ?
	`, userID, alignment.DayKey(day))

	return scanMetric(row)
}

// RecentMetrics returns up to limit metrics strictly before day, newest first.
func (s *SQLiteStore) RecentMetrics(ctx context.Context, userID string, before time.Time, limit int) ([]*Metric, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+metricColumns+`
		FROM alignment_metrics WHERE user_id = ? AND day < ?
		ORDER BY day DESC
		LIMIT ?
	`, userID, alignment.DayKey(before), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var metrics []*Metric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// UpsertMetric writes every computed field of m for (UserID, Date).
func (s *SQLiteStore) UpsertMetric(ctx context.Context, m *Metric) error {
	if err := validateMetric(m); err != nil {
		return err
	}
	flags, err := encodeJSON(normalizeFlags(m.PatternFlags))
	if err != nil {
		return fmt.Errorf("failed to encode pattern flags: %w", err)
	}
	components, err := encodeJSON(m.Components)
	if err != nil {
		return fmt.Errorf("failed to encode components: %w", err)
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	var id, createdAt string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO alignment_metrics (`+metricColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, day) DO UPDATE SET
			alignment_score = excluded.alignment_score,
			raw_score = excluded.raw_score,
			streak_multiplier = excluded.streak_multiplier,
			drift_index = excluded.drift_index,
			seven_day_average = excluded.seven_day_average,
			streak_count = excluded.streak_count,
			state_level = excluded.state_level,
			pattern_flags = excluded.pattern_flags,
			components = excluded.components
		RETURNING id, created_at
	`, m.ID.String(), m.UserID, alignment.DayKey(m.Date), m.AlignmentScore, m.RawScore, m.StreakMultiplier,
		m.DriftIndex, m.SevenDayAverage, m.StreakCount, int(m.StateLevel), flags, components,
		m.CreatedAt.UTC().Format(time.RFC3339Nano)).Scan(&id, &createdAt)
	if err != nil {
		return fmt.Errorf("failed to upsert metric: %w", err)
	}

	if m.ID, err = uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid stored metric id: %w", err)
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	m.Date = alignment.Day(m.Date)
	m.PatternFlags = normalizeFlags(m.PatternFlags)
	return nil
}

func scanMetric(row scanner) (*Metric, error) {
	var m Metric
	var id, day, flags, components, createdAt string
	var state int

	err := row.Scan(&id, &m.UserID, &day, &m.AlignmentScore, &m.RawScore, &m.StreakMultiplier, &m.DriftIndex,
		&m.SevenDayAverage, &m.StreakCount, &state, &flags, &components, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan metric: %w", err)
	}

	if m.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid metric id: %w", err)
	}
	if m.Date, err = alignment.ParseDay(day); err != nil {
		return nil, err
	}
	m.StateLevel = alignment.StateLevel(state)
	if err := decodeMetricJSON(&m, []byte(flags), []byte(components)); err != nil {
		return nil, err
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &m, nil
}

// --- Reflection scores ---

// ReflectionQuality returns the reflection score for (userID, day).
func (s *SQLiteStore) ReflectionQuality(ctx context.Context, userID string, day time.Time) (float64, bool, error) {
	var q float64
	err := s.db.QueryRowContext(ctx, `
		SELECT quality FROM reflection_scores WHERE user_id = ? AND day = ?
	`, userID, alignment.DayKey(day)).Scan(&q)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get reflection score: %w", err)
	}
	return q, true, nil
}

// SaveReflection stores the reflection score for (userID, day).
func (s *SQLiteStore) SaveReflection(ctx context.Context, userID string, day time.Time, quality float64) error {
	if quality < 0 || quality > 100 {
		return fmt.Errorf("reflection quality %v out of range 0-100", quality)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reflection_scores (user_id, day, quality, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, day) DO UPDATE SET
			quality = excluded.quality,
			updated_at = excluded.updated_at
	`, userID, alignment.DayKey(day), quality, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save reflection score: %w", err)
	}
	return nil
}

// ActiveUsers lists users with execution records on or after since.
func (s *SQLiteStore) ActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM execution_records WHERE day >= ? ORDER BY user_id
	`, alignment.DayKey(since))
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

var _ Store = (*SQLiteStore)(nil)
