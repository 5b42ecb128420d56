package alignment

import "time"

const (
	patternMetricWindow = 30
	patternLogWindow    = 7

	midweekPairs       = 4
	midweekDropPoints  = 15.0
	midweekMinDrops    = 3
	inflationEffort    = 8.0
	inflationCorePct   = 50.0
	inflationMinDays   = 3
	overcommitCorePct  = 40.0
	overcommitMinDays  = 5
	streakBreakLongRun = 7
)

// DetectPatterns scans recent history for behavioral anti-patterns. Both
// inputs are ordered newest first; only the newest 30 metrics and the newest
// 7 logs are considered. Detectors are independent and may all fire.
func DetectPatterns(metrics []Snapshot, logs []ExecSummary) PatternFlags {
	if len(metrics) > patternMetricWindow {
		metrics = metrics[:patternMetricWindow]
	}
	if len(logs) > patternLogWindow {
		logs = logs[:patternLogWindow]
	}

	var flags []PatternFlag
	if midweekDrift(metrics) {
		flags = append(flags, FlagMidweekDrift)
	}
	if effortInflation(logs) {
		flags = append(flags, FlagEffortInflation)
	}
	if overcommitment(logs) {
		flags = append(flags, FlagOvercommitment)
	}
	if streakBreak(metrics) {
		flags = append(flags, FlagStreakBreak)
	}
	return NewPatternFlags(flags...)
}

// midweekDrift pairs each Wednesday with the Monday of the same Mon-Wed
// window and fires when at least 3 of the 4 most recent pairs dropped by 15
// points or more.
func midweekDrift(metrics []Snapshot) bool {
	drops := 0
	pairs := 0
	for i, wed := range metrics {
		if pairs == midweekPairs {
			break
		}
		if wed.Date.Weekday() != time.Wednesday {
			continue
		}
		mon, ok := mondayBefore(wed, metrics[i+1:])
		if !ok {
			continue
		}
		pairs++
		if mon.AlignmentScore-wed.AlignmentScore >= midweekDropPoints {
			drops++
		}
	}
	return drops >= midweekMinDrops
}

func mondayBefore(wed Snapshot, older []Snapshot) (Snapshot, bool) {
	for _, m := range older {
		gap := DaysBetween(m.Date, wed.Date)
		if gap > 2 {
			break
		}
		if gap > 0 && m.Date.Weekday() == time.Monday {
			return m, true
		}
	}
	return Snapshot{}, false
}

// effortInflation fires when high self-rated effort repeatedly coincides with
// low core completion.
func effortInflation(logs []ExecSummary) bool {
	days := 0
	for _, l := range logs {
		if l.AverageEffort >= inflationEffort && l.CoreCompletionPct() < inflationCorePct {
			days++
		}
	}
	return days >= inflationMinDays
}

// overcommitment fires when most recent days leave the bulk of core work undone.
func overcommitment(logs []ExecSummary) bool {
	days := 0
	for _, l := range logs {
		if l.CoreCompletionPct() < overcommitCorePct {
			days++
		}
	}
	return days >= overcommitMinDays
}

// streakBreak fires on an abrupt reset: the newest metric has no streak while
// the one before it carried a long run.
func streakBreak(metrics []Snapshot) bool {
	if len(metrics) < 2 {
		return false
	}
	return metrics[0].StreakCount == 0 && metrics[1].StreakCount > streakBreakLongRun
}
