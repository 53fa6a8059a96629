package alerting

import (
	"context"
	"log/slog"
)

// Notifier raises alerts on behalf of one run. It stamps every alert with
// the run ID and logs delivery failures instead of returning them. A nil
// Notifier, or one built without an Alerter, drops everything.
type Notifier struct {
	alerter Alerter
	runID   string
	logger  *slog.Logger
}

// NewNotifier creates a notifier for runID.
func NewNotifier(alerter Alerter, runID string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{alerter: alerter, runID: runID, logger: logger}
}

// Raise sends event with its default severity.
func (n *Notifier) Raise(ctx context.Context, event AlertEvent, message string, fields ...any) {
	if n == nil || n.alerter == nil {
		return
	}
	alert := NewAlert(event, message, fields...)
	alert.RunID = n.runID
	if err := n.alerter.Send(ctx, alert); err != nil {
		n.logger.Warn("failed to send alert",
			"event", event,
			"alerter", n.alerter.Name(),
			"run_id", n.runID,
			"err", err,
		)
	}
}
