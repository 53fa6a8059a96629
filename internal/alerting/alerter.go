// Package alerting sends run lifecycle notifications.
package alerting

import (
	"context"
	"fmt"
	"strings"
)

// Severity represents the alert severity level.
type Severity int

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = iota
	// SeverityWarning is for warning messages.
	SeverityWarning
	// SeverityHigh is for high priority alerts.
	SeverityHigh
	// SeverityCritical is for critical alerts requiring immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Emoji returns an emoji for the severity level.
func (s Severity) Emoji() string {
	switch s {
	case SeverityInfo:
		return "ℹ️"
	case SeverityWarning:
		return "⚠️"
	case SeverityHigh:
		return "🔴"
	case SeverityCritical:
		return "🚨"
	default:
		return "❓"
	}
}

// Alerter delivers alerts to one channel.
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
	Name() string
}

// Alert is one notification raised while a run is in progress.
type Alert struct {
	Event    AlertEvent
	Severity Severity
	RunID    string
	Message  string
	Fields   []any // alternating key, value
}

// NewAlert builds an alert carrying the event's default severity.
func NewAlert(event AlertEvent, message string, fields ...any) Alert {
	return Alert{
		Event:    event,
		Severity: EventSeverity(event),
		Message:  message,
		Fields:   fields,
	}
}

// Title renders the one-line form used by text channels.
func (a Alert) Title() string {
	title := fmt.Sprintf("%s [%s] %s", a.Severity.Emoji(), a.Severity, a.Message)
	if a.RunID != "" {
		title += " (run " + a.RunID + ")"
	}
	return title
}

// FormatFields converts variadic fields to a formatted string.
func FormatFields(fields ...any) string {
	if len(fields) == 0 {
		return ""
	}

	var b strings.Builder
	for i := 0; i < len(fields)-1; i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "• %s: %v", key, fields[i+1])
	}
	return b.String()
}

// AlertEvent represents a pre-defined alert event type.
type AlertEvent string

const (
	// EventRunStarted is sent when the engine starts a run.
	EventRunStarted AlertEvent = "run_started"
	// EventRunFinished is sent when the data source is exhausted.
	EventRunFinished AlertEvent = "run_finished"
	// EventRunCancelled is sent when a run stops on shutdown.
	EventRunCancelled AlertEvent = "run_cancelled"
	// EventRunAborted is sent when a collaborator error aborts a run.
	EventRunAborted AlertEvent = "run_aborted"
	// EventOrderFailed is sent when execution gives up on an order.
	EventOrderFailed AlertEvent = "order_failed"
	// EventFeedDisconnected is sent when a live data source drops.
	EventFeedDisconnected AlertEvent = "feed_disconnected"
	// EventDrawdownBreached is sent when drawdown crosses the alert threshold.
	EventDrawdownBreached AlertEvent = "drawdown_breached"
	// EventRunSummary carries the end-of-run report.
	EventRunSummary AlertEvent = "run_summary"
)

// EventSeverity returns the default severity for an event.
func EventSeverity(event AlertEvent) Severity {
	switch event {
	case EventRunAborted:
		return SeverityCritical
	case EventOrderFailed, EventFeedDisconnected, EventDrawdownBreached:
		return SeverityHigh
	case EventRunCancelled:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
