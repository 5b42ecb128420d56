package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/Devdesai111/RevUp-sub000/internal/alignment"
)

// ExecutionRecord is the day's evidence: what the user planned and did.
// There is exactly one per (user, day); records are updated, never deleted.
type ExecutionRecord struct {
	UserID          string           `json:"user_id"`
	Date            time.Time        `json:"date"`
	Tasks           []alignment.Task `json:"tasks"`
	HabitDone       bool             `json:"habit_done"`
	DeepWorkMinutes int              `json:"deep_work_minutes"`
	MissedDay       bool             `json:"missed_day"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Summary reduces the record to the scoring inputs.
func (r *ExecutionRecord) Summary() alignment.ExecSummary {
	return alignment.Summarize(r.Tasks, r.HabitDone, r.MissedDay)
}

// Metric is the derived alignment ledger entry for one (user, day). It is
// written only by the recalculation engine; recomputation overwrites the same
// day and never touches another day's entry.
type Metric struct {
	ID               uuid.UUID              `json:"id"`
	UserID           string                 `json:"user_id"`
	Date             time.Time              `json:"date"`
	AlignmentScore   float64                `json:"alignment_score"`
	RawScore         float64                `json:"raw_score"`
	StreakMultiplier float64                `json:"streak_multiplier"`
	DriftIndex       float64                `json:"drift_index"`
	SevenDayAverage  float64                `json:"seven_day_average"`
	StreakCount      int                    `json:"streak_count"`
	StateLevel       alignment.StateLevel   `json:"state_level"`
	PatternFlags     alignment.PatternFlags `json:"pattern_flags"`
	Components       alignment.Components   `json:"components"`
	CreatedAt        time.Time              `json:"created_at"`
}

// Snapshot projects the fields the calculators read back as history.
func (m *Metric) Snapshot() alignment.Snapshot {
	return alignment.Snapshot{
		Date:            m.Date,
		AlignmentScore:  m.AlignmentScore,
		SevenDayAverage: m.SevenDayAverage,
		DriftIndex:      m.DriftIndex,
		StreakCount:     m.StreakCount,
		StateLevel:      m.StateLevel,
	}
}

// Snapshots converts a newest-first metric list.
func Snapshots(metrics []*Metric) []alignment.Snapshot {
	out := make([]alignment.Snapshot, len(metrics))
	for i, m := range metrics {
		out[i] = m.Snapshot()
	}
	return out
}

// Summaries converts a newest-first execution list.
func Summaries(records []*ExecutionRecord) []alignment.ExecSummary {
	out := make([]alignment.ExecSummary, len(records))
	for i, r := range records {
		out[i] = r.Summary()
	}
	return out
}
