package alerting

import (
	"context"
	"log/slog"
)

// ConsoleAlerter writes alerts to the structured log. The log level
// follows the severity.
type ConsoleAlerter struct {
	logger *slog.Logger
}

// NewConsoleAlerter creates a console alerter.
func NewConsoleAlerter(logger *slog.Logger) *ConsoleAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleAlerter{logger: logger}
}

func (c *ConsoleAlerter) Name() string {
	return "console"
}

// Send logs the alert with its event and run ID as attributes.
func (c *ConsoleAlerter) Send(ctx context.Context, alert Alert) error {
	attrs := make([]any, 0, len(alert.Fields)+6)
	attrs = append(attrs, "event", string(alert.Event), "severity", alert.Severity.String())
	if alert.RunID != "" {
		attrs = append(attrs, "run_id", alert.RunID)
	}
	attrs = append(attrs, alert.Fields...)

	c.logger.Log(ctx, alert.Severity.level(), "[ALERT] "+alert.Message, attrs...)
	return nil
}

func (s Severity) level() slog.Level {
	switch s {
	case SeverityCritical:
		return slog.LevelError
	case SeverityHigh, SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
