package notify

import (
	"context"
	"log/slog"

	"liveclass/pkg/interfaces"
)

// LogNotifier records notifications in the structured log. Deployments with
// a messaging platform swap in their own Notifier implementation.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify writes the notification to the log.
func (n *LogNotifier) Notify(ctx context.Context, userID, message string) error {
	n.log.Info("user notification", "user_id", userID, "message", message)
	return nil
}

var _ interfaces.Notifier = (*LogNotifier)(nil)
