package notify

import (
	"context"
	"log/slog"

	"github.com/Devdesai111/RevUp-sub000/internal/logging"
)

// LogNotifier writes notifications to the structured log. It is the default
// sink when no live transport is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses the package default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.WithComponent("notify")
	}
	return &LogNotifier{logger: logger}
}

// Send implements Notifier.
func (n *LogNotifier) Send(ctx context.Context, userID string, tmpl Template, payload map[string]any) error {
	n.logger.InfoContext(ctx, "notification",
		slog.String("user_id", userID),
		slog.String("template", string(tmpl)),
		slog.Any("payload", payload),
	)
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
