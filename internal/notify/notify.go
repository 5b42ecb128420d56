// Package notify delivers user-facing notifications raised by the
// recalculation engine and the sweeper.
package notify

import (
	"context"
	"errors"
	"time"
)

// Template names a notification message.
type Template string

const (
	TemplateDriftAlert      Template = "drift_alert"
	TemplateStreakMilestone Template = "streak_milestone"
	TemplateMissedDay       Template = "missed_day"
)

// Notifier sends one notification to one user.
type Notifier interface {
	Send(ctx context.Context, userID string, tmpl Template, payload map[string]any) error
}

// Event is the envelope pushed to live subscribers.
type Event struct {
	UserID   string         `json:"user_id"`
	Template Template       `json:"template"`
	Payload  map[string]any `json:"payload,omitempty"`
	SentAt   time.Time      `json:"sent_at"`
}

// Nop discards every notification.
type Nop struct{}

// Send implements Notifier.
func (Nop) Send(context.Context, string, Template, map[string]any) error { return nil }

// Multi fans a notification out to several notifiers. Every notifier is
// tried; errors are joined.
type Multi []Notifier

// Send implements Notifier.
func (m Multi) Send(ctx context.Context, userID string, tmpl Template, payload map[string]any) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, userID, tmpl, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Notifier = Nop{}
	_ Notifier = Multi(nil)
)
