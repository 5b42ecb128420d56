package alignment

// Score weights. They sum to 1.0.
const (
	weightCore       = 0.50
	weightSupport    = 0.20
	weightHabit      = 0.15
	weightEffort     = 0.10
	weightReflection = 0.05
)

// CalculateRawScore turns one day's evidence into a 0-100 raw score and the
// component breakdown it was built from. Each component is clamped to [0,100]
// before weighting; a missed day zeroes only the effort term.
func CalculateRawScore(s ExecSummary, reflectionQuality float64) (float64, Components) {
	core := clamp(s.CoreCompletionPct(), 0, 100)
	support := clamp(s.SupportCompletionPct(), 0, 100)

	var habit float64
	if s.HabitDone {
		habit = 100
	}

	var effort float64
	if !s.IsMissedDay {
		effort = clamp((s.AverageEffort-1)/9*100, 0, 100)
	}

	reflection := clamp(reflectionQuality, 0, 100)

	raw := core*weightCore +
		support*weightSupport +
		habit*weightHabit +
		effort*weightEffort +
		reflection*weightReflection

	components := Components{
		CoreCompletion:    round(core, 2),
		SupportCompletion: round(support, 2),
		HabitCompletion:   habit,
		EffortNormalized:  round(effort, 2),
		ReflectionQuality: round(reflection, 2),
	}

	return clamp(round(raw, 2), 0, 100), components
}
