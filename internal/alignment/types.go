// Package alignment holds the pure scoring pipeline behind the daily alignment
// metric: raw score, streak, drift, hysteretic state level and pattern flags.
// Nothing in this package performs I/O; every function is deterministic in its
// arguments so recomputation with unchanged evidence yields identical results.
package alignment

import (
	"sort"
	"time"
)

// Category classifies a task for scoring purposes.
type Category string

const (
	CategoryCore    Category = "core"
	CategorySupport Category = "support"
	CategoryHabit   Category = "habit"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryCore, CategorySupport, CategoryHabit:
		return true
	}
	return false
}

// Task is a single planned task within a day's execution record.
type Task struct {
	ID        string   `json:"id,omitempty"`
	Title     string   `json:"title,omitempty"`
	Category  Category `json:"category"`
	Completed bool     `json:"completed"`
	Effort    float64  `json:"effort"` // 0-10 self-rated effort
}

// ExecSummary is the per-day evidence the score calculator consumes.
type ExecSummary struct {
	CoreTasksTotal    int
	CoreTasksDone     int
	SupportTasksTotal int
	SupportTasksDone  int
	HabitDone         bool
	AverageEffort     float64 // mean effort over completed tasks, 0 when none
	IsMissedDay       bool
}

// CoreCompletionPct returns the share of core tasks completed, 0-100.
func (s ExecSummary) CoreCompletionPct() float64 {
	return pct(s.CoreTasksDone, s.CoreTasksTotal)
}

// SupportCompletionPct returns the share of support tasks completed, 0-100.
func (s ExecSummary) SupportCompletionPct() float64 {
	return pct(s.SupportTasksDone, s.SupportTasksTotal)
}

func pct(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}

// Summarize reduces a day's tasks to an ExecSummary. Habit-category tasks
// do not count toward core or support totals.
func Summarize(tasks []Task, habitDone, missedDay bool) ExecSummary {
	s := ExecSummary{HabitDone: habitDone, IsMissedDay: missedDay}

	var effortSum float64
	var completed int
	for _, t := range tasks {
		switch t.Category {
		case CategoryCore:
			s.CoreTasksTotal++
			if t.Completed {
				s.CoreTasksDone++
			}
		case CategorySupport:
			s.SupportTasksTotal++
			if t.Completed {
				s.SupportTasksDone++
			}
		}
		if t.Completed {
			effortSum += t.Effort
			completed++
		}
	}
	if completed > 0 {
		s.AverageEffort = effortSum / float64(completed)
	}
	return s
}

// Components is the weighted-term breakdown persisted with every metric.
type Components struct {
	CoreCompletion    float64 `json:"core_completion"`
	SupportCompletion float64 `json:"support_completion"`
	HabitCompletion   float64 `json:"habit_completion"`
	EffortNormalized  float64 `json:"effort_normalized"`
	ReflectionQuality float64 `json:"reflection_quality"`
}

// StateLevel is the three-valued classification of recent performance.
type StateLevel int

const (
	StateDiminished StateLevel = 1
	StateStable     StateLevel = 2
	StateAligned    StateLevel = 3
)

func (l StateLevel) String() string {
	switch l {
	case StateDiminished:
		return "diminished"
	case StateStable:
		return "stable"
	case StateAligned:
		return "aligned"
	default:
		return "unknown"
	}
}

// Snapshot is the slice of a stored metric that the calculators read back as
// history. Histories are always ordered newest first.
type Snapshot struct {
	Date            time.Time
	AlignmentScore  float64
	SevenDayAverage float64
	DriftIndex      float64
	StreakCount     int
	StateLevel      StateLevel
}

// PatternFlag names a recurring problematic behavior.
type PatternFlag string

const (
	FlagMidweekDrift    PatternFlag = "MIDWEEK_DRIFT"
	FlagEffortInflation PatternFlag = "EFFORT_INFLATION"
	FlagOvercommitment  PatternFlag = "OVERCOMMITMENT"
	FlagStreakBreak     PatternFlag = "STREAK_BREAK"
)

// PatternFlags is a set of flags kept sorted so persisted values are stable.
type PatternFlags []PatternFlag

// NewPatternFlags builds a sorted, de-duplicated flag set.
func NewPatternFlags(flags ...PatternFlag) PatternFlags {
	seen := make(map[PatternFlag]struct{}, len(flags))
	out := make(PatternFlags, 0, len(flags))
	for _, f := range flags {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Has reports whether flag is in the set.
func (p PatternFlags) Has(flag PatternFlag) bool {
	for _, f := range p {
		if f == flag {
			return true
		}
	}
	return false
}

// Strings returns the flag names.
func (p PatternFlags) Strings() []string {
	out := make([]string, len(p))
	for i, f := range p {
		out[i] = string(f)
	}
	return out
}
