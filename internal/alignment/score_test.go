package alignment

import (
	"math"
	"testing"
)

func TestCalculateRawScore(t *testing.T) {
	tests := []struct {
		name       string
		summary    ExecSummary
		reflection float64
		wantScore  float64
	}{
		{
			name: "perfect day",
			summary: ExecSummary{
				CoreTasksTotal: 3, CoreTasksDone: 3,
				SupportTasksTotal: 2, SupportTasksDone: 2,
				HabitDone: true, AverageEffort: 10,
			},
			reflection: 100,
			wantScore:  100,
		},
		{
			name:       "empty day",
			summary:    ExecSummary{},
			reflection: 0,
			wantScore:  0,
		},
		{
			name: "mixed day",
			summary: ExecSummary{
				CoreTasksTotal: 3, CoreTasksDone: 2,
				SupportTasksTotal: 2, SupportTasksDone: 1,
				HabitDone: true, AverageEffort: 8.5,
			},
			reflection: 70,
			wantScore:  70.17,
		},
		{
			name:       "reflection above range is clamped",
			summary:    ExecSummary{},
			reflection: 250,
			wantScore:  5,
		},
		{
			name:       "effort below one contributes nothing",
			summary:    ExecSummary{AverageEffort: 0},
			reflection: 0,
			wantScore:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := CalculateRawScore(tt.summary, tt.reflection)
			if got != tt.wantScore {
				t.Errorf("CalculateRawScore() = %v, want %v", got, tt.wantScore)
			}
		})
	}
}

func TestCalculateRawScore_Components(t *testing.T) {
	summary := ExecSummary{
		CoreTasksTotal: 3, CoreTasksDone: 2,
		SupportTasksTotal: 2, SupportTasksDone: 1,
		HabitDone: true, AverageEffort: 8.5,
	}

	_, c := CalculateRawScore(summary, 70)

	want := Components{
		CoreCompletion:    66.67,
		SupportCompletion: 50,
		HabitCompletion:   100,
		EffortNormalized:  83.33,
		ReflectionQuality: 70,
	}
	if c != want {
		t.Errorf("components = %+v, want %+v", c, want)
	}
}

func TestCalculateRawScore_MissedDayZeroesOnlyEffort(t *testing.T) {
	base := ExecSummary{
		CoreTasksTotal: 4, CoreTasksDone: 3,
		SupportTasksTotal: 1, SupportTasksDone: 1,
		HabitDone: true, AverageEffort: 9,
	}
	missed := base
	missed.IsMissedDay = true

	scoreBase, cBase := CalculateRawScore(base, 40)
	scoreMissed, cMissed := CalculateRawScore(missed, 40)

	if cMissed.EffortNormalized != 0 {
		t.Errorf("effort on missed day = %v, want 0", cMissed.EffortNormalized)
	}
	if cMissed.CoreCompletion != cBase.CoreCompletion ||
		cMissed.SupportCompletion != cBase.SupportCompletion ||
		cMissed.HabitCompletion != cBase.HabitCompletion ||
		cMissed.ReflectionQuality != cBase.ReflectionQuality {
		t.Errorf("missed day changed non-effort components: %+v vs %+v", cMissed, cBase)
	}

	wantDiff := cBase.EffortNormalized * weightEffort
	if diff := scoreBase - scoreMissed; math.Abs(diff-wantDiff) > 0.011 {
		t.Errorf("score difference = %v, want about %v", diff, wantDiff)
	}
}

func TestCalculateRawScore_Bounds(t *testing.T) {
	for core := 0; core <= 5; core++ {
		for effort := 0.0; effort <= 12; effort += 1.5 {
			for _, reflection := range []float64{-10, 0, 55, 100, 140} {
				s := ExecSummary{
					CoreTasksTotal: 5, CoreTasksDone: core,
					SupportTasksTotal: 3, SupportTasksDone: core % 4,
					HabitDone: core%2 == 0, AverageEffort: effort,
				}
				got, _ := CalculateRawScore(s, reflection)
				if got < 0 || got > 100 {
					t.Fatalf("score %v out of range for %+v reflection=%v", got, s, reflection)
				}
			}
		}
	}
}

func TestSummarize(t *testing.T) {
	tasks := []Task{
		{Category: CategoryCore, Completed: true, Effort: 8},
		{Category: CategoryCore, Completed: true, Effort: 9},
		{Category: CategoryCore, Completed: false, Effort: 2},
		{Category: CategorySupport, Completed: true, Effort: 8.5},
		{Category: CategorySupport, Completed: false},
		{Category: CategoryHabit, Completed: true, Effort: 8.5},
	}

	got := Summarize(tasks, true, false)

	if got.CoreTasksTotal != 3 || got.CoreTasksDone != 2 {
		t.Errorf("core = %d/%d, want 2/3", got.CoreTasksDone, got.CoreTasksTotal)
	}
	if got.SupportTasksTotal != 2 || got.SupportTasksDone != 1 {
		t.Errorf("support = %d/%d, want 1/2", got.SupportTasksDone, got.SupportTasksTotal)
	}
	if !got.HabitDone {
		t.Error("HabitDone = false, want true")
	}
	if got.AverageEffort != 8.5 {
		t.Errorf("AverageEffort = %v, want 8.5", got.AverageEffort)
	}
}

func TestSummarize_NoCompletedTasks(t *testing.T) {
	got := Summarize([]Task{{Category: CategoryCore, Effort: 7}}, false, true)
	if got.AverageEffort != 0 {
		t.Errorf("AverageEffort = %v, want 0", got.AverageEffort)
	}
	if !got.IsMissedDay {
		t.Error("IsMissedDay = false, want true")
	}
}
