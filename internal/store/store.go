// Package store persists execution evidence, reflection quality scores and
// the alignment metric ledger. SQLiteStore serves single-node installs;
// PostgresStore serves shared deployments with several workers.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Devdesai111/RevUp-sub000/internal/alignment"
)

var (
	ErrNotFound = errors.New("not found")
)

// Store is the full persistence surface used by the API, CLI and sweeper.
// The recalculation engine depends only on narrower slices of it.
type Store interface {
	GetExecution(ctx context.Context, userID string, day time.Time) (*ExecutionRecord, error)
	UpsertExecution(ctx context.Context, rec *ExecutionRecord) error
	// ListExecutions returns up to limit records on or before day, newest first.
	ListExecutions(ctx context.Context, userID string, onOrBefore time.Time, limit int) ([]*ExecutionRecord, error)

	GetMetric(ctx context.Context, userID string, day time.Time) (*Metric, error)
	// RecentMetrics returns up to limit metrics strictly before day, newest first.
	RecentMetrics(ctx context.Context, userID string, before time.Time, limit int) ([]*Metric, error)
	// UpsertMetric inserts or overwrites the (user, day) metric. ID and
	// CreatedAt of an existing row are kept and written back into m.
	UpsertMetric(ctx context.Context, m *Metric) error

	// ReflectionQuality returns the day's reflection score and whether one exists.
	ReflectionQuality(ctx context.Context, userID string, day time.Time) (float64, bool, error)
	SaveReflection(ctx context.Context, userID string, day time.Time, quality float64) error

	// ActiveUsers lists users with an execution record on or after since.
	ActiveUsers(ctx context.Context, since time.Time) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeTasks reads the tasks column. An empty column holds no tasks.
func decodeTasks(data []byte) ([]alignment.Task, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var tasks []alignment.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}
	return tasks, nil
}

// decodeMetricJSON fills the pattern flags and components of m from their
// stored columns.
func decodeMetricJSON(m *Metric, flags, components []byte) error {
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &m.PatternFlags); err != nil {
			return fmt.Errorf("failed to decode pattern flags: %w", err)
		}
	}
	m.PatternFlags = normalizeFlags(m.PatternFlags)
	if len(components) > 0 {
		if err := json.Unmarshal(components, &m.Components); err != nil {
			return fmt.Errorf("failed to decode components: %w", err)
		}
	}
	return nil
}

// normalizeFlags keeps the persisted form of an empty set as [] rather than null.
func normalizeFlags(f alignment.PatternFlags) alignment.PatternFlags {
	if f == nil {
		return alignment.PatternFlags{}
	}
	return f
}

func normalizeTasks(t []alignment.Task) []alignment.Task {
	if t == nil {
		return []alignment.Task{}
	}
	return t
}

func validateMetric(m *Metric) error {
	if m.UserID == "" {
		return fmt.Errorf("metric user_id is required")
	}
	if m.Date.IsZero() {
		return fmt.Errorf("metric date is required")
	}
	return nil
}

// Validate checks identity fields and task categories and efforts.
func (r *ExecutionRecord) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("execution user_id is required")
	}
	if r.Date.IsZero() {
		return fmt.Errorf("execution date is required")
	}
	for i, t := range r.Tasks {
		if !t.Category.Valid() {
			return fmt.Errorf("task %d: invalid category %q", i, t.Category)
		}
		if t.Effort < 0 || t.Effort > 10 {
			return fmt.Errorf("task %d: effort %v out of range 0-10", i, t.Effort)
		}
	}
	return nil
}
