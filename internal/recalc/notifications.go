package recalc

import (
	"context"
	"log/slog"
	"slices"

	"github.com/Devdesai111/RevUp-sub000/internal/alignment"
	"github.com/Devdesai111/RevUp-sub000/internal/cache"
	"github.com/Devdesai111/RevUp-sub000/internal/notify"
	"github.com/Devdesai111/RevUp-sub000/internal/store"
)

// fireNotifications fires the drift alert and streak milestone for m. Nothing here can
// fail the recalculation.
func (e *Engine) fireNotifications(ctx context.Context, log *slog.Logger, m *store.Metric) {
	if m.StateLevel == alignment.StateDiminished {
		e.sendDriftAlert(ctx, log, m)
	}
	if slices.Contains(e.config.Milestones, m.StreakCount) {
		e.sendMilestone(ctx, log, m)
	}
}

// sendDriftAlert sends at most one alert per cooldown. The marker is set only
// after a successful send so a failed alert is retried on the next recompute.
func (e *Engine) sendDriftAlert(ctx context.Context, log *slog.Logger, m *store.Metric) {
	key := cache.DriftAlertKey(m.UserID)

	active, err := e.deps.Markers.Active(ctx, key)
	if err != nil {
		log.Warn("drift alert cooldown check failed", slog.Any("error", err))
		return
	}
	if active {
		log.Debug("drift alert in cooldown")
		return
	}

	payload := map[string]any{
		"date":              alignment.DayKey(m.Date),
		"alignment_score":   m.AlignmentScore,
		"seven_day_average": m.SevenDayAverage,
		"drift_index":       m.DriftIndex,
	}
	if err := e.deps.Notifier.Send(ctx, m.UserID, notify.TemplateDriftAlert, payload); err != nil {
		log.Warn("drift alert failed", slog.Any("error", err))
		return
	}

	if err := e.deps.Markers.Mark(ctx, key, e.config.DriftAlertCooldown); err != nil {
		log.Warn("failed to set drift alert cooldown", slog.Any("error", err))
	}
}

// sendMilestone announces a streak milestone once per (user, day, streak).
func (e *Engine) sendMilestone(ctx context.Context, log *slog.Logger, m *store.Metric) {
	key := cache.MilestoneKey(m.UserID, alignment.DayKey(m.Date), m.StreakCount)

	first, err := e.deps.Markers.MarkOnce(ctx, key, e.config.MilestoneDedupeTTL)
	if err != nil {
		log.Warn("milestone dedupe check failed", slog.Any("error", err))
		return
	}
	if !first {
		return
	}

	payload := map[string]any{
		"date":   alignment.DayKey(m.Date),
		"streak": m.StreakCount,
	}
	if err := e.deps.Notifier.Send(ctx, m.UserID, notify.TemplateStreakMilestone, payload); err != nil {
		log.Warn("streak milestone notification failed", slog.Any("error", err))
		if uerr := e.deps.Markers.Unmark(ctx, key); uerr != nil {
			log.Warn("failed to clear milestone marker", slog.Any("error", uerr))
		}
	}
}
