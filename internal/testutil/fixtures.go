// Package testutil provides shared fixtures for revup tests.
package testutil

import (
	"time"

	"github.com/Devdesai111/RevUp-sub000/internal/alignment"
)

// Safe test secrets. These are obviously fake so secret scanners ignore them.
const (
	// FakeJWTSecret signs test API tokens.
	FakeJWTSecret = "test-jwt-secret"

	// FakeRedisURL points at a redis that is never dialed.
	FakeRedisURL = "redis://localhost:6399/15"
)

// Day0 is the first day of most test timelines.
var Day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Day returns Day0 shifted by n days.
func Day(n int) time.Time {
	return Day0.AddDate(0, 0, n)
}

// TypicalTasks: 2 of 3 core and 1 of 2 support done, mean completed effort
// 8.5. With the habit done and reflection 70 the day scores 70.17.
func TypicalTasks() []alignment.Task {
	return []alignment.Task{
		{ID: "c1", Category: alignment.CategoryCore, Completed: true, Effort: 8},
		{ID: "c2", Category: alignment.CategoryCore, Completed: true, Effort: 9},
		{ID: "c3", Category: alignment.CategoryCore},
		{ID: "s1", Category: alignment.CategorySupport, Completed: true, Effort: 8.5},
		{ID: "s2", Category: alignment.CategorySupport},
	}
}

// PerfectTasks completes everything at maximum effort.
func PerfectTasks() []alignment.Task {
	return []alignment.Task{
		{ID: "c1", Category: alignment.CategoryCore, Completed: true, Effort: 10},
		{ID: "s1", Category: alignment.CategorySupport, Completed: true, Effort: 10},
	}
}
