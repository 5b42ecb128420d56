package alignment

import "math"

const (
	// StreakQualifyingScore is the minimum alignment score that keeps a streak alive.
	StreakQualifyingScore = 50.0

	missedDayDecay = 0.90
)

// CalculateStreak derives today's streak count and score multiplier from the
// most recent prior metric. The raw score does not influence continuation: a
// streak continues when yesterday qualified, whatever today looks like.
func CalculateStreak(_ float64, prior []Snapshot) (int, float64) {
	streak := 0
	if len(prior) > 0 && prior[0].AlignmentScore >= StreakQualifyingScore {
		streak = prior[0].StreakCount + 1
	}
	return streak, StreakMultiplier(streak)
}

// StreakMultiplier maps a streak length to its score bonus.
func StreakMultiplier(streak int) float64 {
	switch {
	case streak > 7:
		return 1.10
	case streak > 3:
		return 1.05
	default:
		return 1.00
	}
}

// ApplyMultiplier returns the final alignment score, capped at 100.
func ApplyMultiplier(rawScore, multiplier float64) float64 {
	return math.Min(100, round(rawScore*multiplier, 2))
}

// CalculateMissedDayScore is the penalty score for a day with no evidence:
// 90% of the most recent score, rounded to a whole number.
func CalculateMissedDayScore(prior []Snapshot) float64 {
	if len(prior) == 0 {
		return 0
	}
	return math.Max(0, math.Round(prior[0].AlignmentScore*missedDayDecay))
}
