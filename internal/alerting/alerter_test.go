package alerting

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityInfo, "INFO"},
		{SeverityWarning, "WARNING"},
		{SeverityHigh, "HIGH"},
		{SeverityCritical, "CRITICAL"},
		{Severity(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSeverity_Emoji(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityInfo, "ℹ️"},
		{SeverityWarning, "⚠️"},
		{SeverityHigh, "🔴"},
		{SeverityCritical, "🚨"},
		{Severity(99), "❓"},
	}

	for _, tt := range tests {
		t.Run(tt.severity.String(), func(t *testing.T) {
			if got := tt.severity.Emoji(); got != tt.want {
				t.Errorf("Severity.Emoji() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatFields(t *testing.T) {
	tests := []struct {
		name   string
		fields []any
		want   string
	}{
		{
			name:   "empty fields",
			fields: nil,
			want:   "",
		},
		{
			name:   "single field",
			fields: []any{"key", "value"},
			want:   "• key: value",
		},
		{
			name:   "multiple fields",
			fields: []any{"key1", "value1", "key2", 123},
			want:   "• key1: value1\n• key2: 123",
		},
		{
			name:   "odd number of fields",
			fields: []any{"key1", "value1", "orphan"},
			want:   "• key1: value1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatFields(tt.fields...); got != tt.want {
				t.Errorf("FormatFields() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEventSeverity(t *testing.T) {
	tests := []struct {
		event AlertEvent
		want  Severity
	}{
		{EventRunAborted, SeverityCritical},
		{EventOrderFailed, SeverityHigh},
		{EventFeedDisconnected, SeverityHigh},
		{EventDrawdownBreached, SeverityHigh},
		{EventRunCancelled, SeverityWarning},
		{EventRunStarted, SeverityInfo},
		{EventRunFinished, SeverityInfo},
		{EventRunSummary, SeverityInfo},
		{AlertEvent("unknown"), SeverityInfo},
	}

	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			if got := EventSeverity(tt.event); got != tt.want {
				t.Errorf("EventSeverity(%s) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}

func TestNewAlert(t *testing.T) {
	a := NewAlert(EventOrderFailed, "order failed", "symbol", "AAPL")

	if a.Event != EventOrderFailed || a.Severity != SeverityHigh {
		t.Errorf("unexpected alert: %+v", a)
	}
	if a.RunID != "" {
		t.Errorf("RunID = %q, want empty until stamped", a.RunID)
	}

	if got, want := a.Title(), "🔴 [HIGH] order failed"; got != want {
		t.Errorf("Title() = %q, want %q", got, want)
	}
	a.RunID = "r1"
	if got, want := a.Title(), "🔴 [HIGH] order failed (run r1)"; got != want {
		t.Errorf("Title() = %q, want %q", got, want)
	}
}

func TestNotifier_Raise(t *testing.T) {
	mock := NewMockAlerter()
	n := NewNotifier(mock, "run-7", nil)

	n.Raise(context.Background(), EventRunStarted, "run started", "strategy", "mac")
	n.Raise(context.Background(), EventFeedDisconnected, "bar feed closed")

	alerts := mock.Alerts()
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(alerts))
	}
	for _, a := range alerts {
		if a.RunID != "run-7" {
			t.Errorf("%s: RunID = %q, want run-7", a.Event, a.RunID)
		}
	}
	if alerts[1].Severity != SeverityHigh {
		t.Errorf("feed disconnect severity = %s, want HIGH", alerts[1].Severity)
	}
	if got := mock.Events(); got[0] != EventRunStarted || got[1] != EventFeedDisconnected {
		t.Errorf("Events() = %v", got)
	}
}

// TestNotifier_DropsSilently tests that a nil notifier and one without an
// alerter are usable.
func TestNotifier_DropsSilently(t *testing.T) {
	var nilNotifier *Notifier
	nilNotifier.Raise(context.Background(), EventRunAborted, "ignored")

	NewNotifier(nil, "r", nil).Raise(context.Background(), EventRunAborted, "ignored")
}

func TestNotifier_DeliveryFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	mock := NewMockAlerter()
	mock.FailWith(errors.New("endpoint down"))

	NewNotifier(mock, "r1", logger).Raise(context.Background(), EventOrderFailed, "order failed")

	if mock.Find(EventOrderFailed) == nil {
		t.Error("alert should still reach the alerter")
	}
	if out := buf.String(); !strings.Contains(out, "failed to send alert") || !strings.Contains(out, "endpoint down") {
		t.Errorf("expected logged delivery failure, got %q", out)
	}
}

func TestConsoleAlerter(t *testing.T) {
	var buf bytes.Buffer
	alerter := NewConsoleAlerter(slog.New(slog.NewTextHandler(&buf, nil)))

	if alerter.Name() != "console" {
		t.Errorf("expected name 'console', got %q", alerter.Name())
	}

	alert := NewAlert(EventRunAborted, "run aborted", "error", "boom")
	alert.RunID = "r1"
	if err := alerter.Send(context.Background(), alert); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"level=ERROR", "[ALERT] run aborted", "event=run_aborted", "run_id=r1", "error=boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %q: %s", want, out)
		}
	}
}

func TestSeverity_Level(t *testing.T) {
	tests := []struct {
		severity Severity
		want     slog.Level
	}{
		{SeverityInfo, slog.LevelInfo},
		{SeverityWarning, slog.LevelWarn},
		{SeverityHigh, slog.LevelWarn},
		{SeverityCritical, slog.LevelError},
	}

	for _, tt := range tests {
		if got := tt.severity.level(); got != tt.want {
			t.Errorf("%s.level() = %v, want %v", tt.severity, got, tt.want)
		}
	}
}

func TestMultiAlerter(t *testing.T) {
	mock1 := NewMockAlerter()
	mock2 := NewMockAlerter()

	multi := NewMultiAlerter(nil, mock1, nil, mock2)

	if multi.Name() != "multi" {
		t.Errorf("expected name 'multi', got %q", multi.Name())
	}

	if err := multi.Send(context.Background(), NewAlert(EventRunCancelled, "run cancelled")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(mock1.Alerts()) != 1 || len(mock2.Alerts()) != 1 {
		t.Errorf("each channel should receive the alert: %d, %d", len(mock1.Alerts()), len(mock2.Alerts()))
	}
}

func TestMultiAlerter_JoinsErrors(t *testing.T) {
	ok := NewMockAlerter()
	bad := NewMockAlerter()
	boom := errors.New("boom")
	bad.FailWith(boom)

	err := NewMultiAlerter(nil, ok, bad).Send(context.Background(), NewAlert(EventRunAborted, "run aborted"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined boom, got %v", err)
	}
	if len(ok.Alerts()) != 1 {
		t.Error("healthy channel should still receive the alert")
	}
}
