// Package jobs carries recalculation triggers from producers (API, sweeper,
// CLI) to the worker pool. Delivery is at-least-once; handlers must be
// idempotent.
package jobs

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Devdesai111/RevUp-sub000/internal/alignment"
)

// TriggerReason records why a recomputation was requested.
type TriggerReason string

const (
	ReasonTaskComplete   TriggerReason = "task_complete"
	ReasonReflectionDone TriggerReason = "reflection_done"
	ReasonMissedDay      TriggerReason = "missed_day"
	ReasonAdminCalibrate TriggerReason = "admin_calibrate"
)

// Valid reports whether r is a known trigger reason.
func (r TriggerReason) Valid() bool {
	switch r {
	case ReasonTaskComplete, ReasonReflectionDone, ReasonMissedDay, ReasonAdminCalibrate:
		return true
	}
	return false
}

// Job asks for the alignment metric of one (user, day) to be recomputed.
type Job struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	Date          time.Time     `json:"date"`
	TriggerReason TriggerReason `json:"trigger_reason"`
	Attempts      int           `json:"attempts"`
	EnqueuedAt    time.Time     `json:"enqueued_at"`
}

// NewJob builds a validated job with a fresh id.
func NewJob(userID string, date time.Time, reason TriggerReason) (Job, error) {
	j := Job{
		ID:            uuid.NewString(),
		UserID:        userID,
		Date:          alignment.Day(date),
		TriggerReason: reason,
		EnqueuedAt:    time.Now().UTC(),
	}
	if err := j.Validate(); err != nil {
		return Job{}, err
	}
	return j, nil
}

// Validate checks that the job names a user, a day and a known reason.
func (j Job) Validate() error {
	if j.UserID == "" {
		return fmt.Errorf("job user_id is required")
	}
	if j.Date.IsZero() {
		return fmt.Errorf("job date is required")
	}
	if !j.TriggerReason.Valid() {
		return fmt.Errorf("unknown trigger reason %q", j.TriggerReason)
	}
	return nil
}

// Key identifies the job's target for logs.
func (j Job) Key() string {
	return j.UserID + "/" + alignment.DayKey(j.Date)
}
