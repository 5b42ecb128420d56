package alignment

const (
	// driftWindow is today plus up to six prior days.
	driftWindow = 7

	diminishedAverage = 45.0
	alignedAverage    = 75.0
	dangerDrift       = -0.4
)

// CalculateDrift returns the drift index and rolling seven-day average for
// todayScore against up to six prior scores.
func CalculateDrift(todayScore float64, prior []Snapshot) (float64, float64) {
	sum := todayScore
	n := 1
	for _, p := range prior {
		if n >= driftWindow {
			break
		}
		sum += p.AlignmentScore
		n++
	}

	avg := round(sum/float64(n), 2)
	if avg == 0 {
		return 0, avg
	}

	drift := clamp((todayScore-avg)/avg, -1, 1)
	return round(drift, 3), avg
}

// DetermineStateLevel classifies the current observation with hysteresis:
// a single bad observation drops the level immediately, while reaching
// Aligned needs the two most recent prior days already at Aligned.
func DetermineStateLevel(sevenDayAverage, driftIndex float64, prior []Snapshot) StateLevel {
	if sevenDayAverage < diminishedAverage {
		return StateDiminished
	}
	if sustainedDangerDrift(driftIndex, prior) {
		return StateDiminished
	}

	if sevenDayAverage > alignedAverage && driftIndex >= 0 &&
		len(prior) >= 2 && prior[0].StateLevel == StateAligned && prior[1].StateLevel == StateAligned {
		return StateAligned
	}

	return StateStable
}

// sustainedDangerDrift needs the current drift and the two most recent prior
// drifts, all below the danger threshold.
func sustainedDangerDrift(driftIndex float64, prior []Snapshot) bool {
	if len(prior) < 2 {
		return false
	}
	return driftIndex < dangerDrift &&
		prior[0].DriftIndex < dangerDrift &&
		prior[1].DriftIndex < dangerDrift
}
