package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookConfig holds configuration for the webhook alerter.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

// WebhookAlerter posts alerts as JSON to an HTTP endpoint such as a chat
// incoming-webhook.
type WebhookAlerter struct {
	cfg    WebhookConfig
	client *http.Client
	now    func() time.Time
}

// NewWebhookAlerter creates a new webhook alerter.
func NewWebhookAlerter(cfg WebhookConfig) *WebhookAlerter {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &WebhookAlerter{
		cfg: cfg,
		client: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

// Name returns the name of the alerter.
func (w *WebhookAlerter) Name() string {
	return "webhook"
}

// webhookPayload is the JSON body posted for every alert.
type webhookPayload struct {
	Event     string         `json:"event"`
	Severity  string         `json:"severity"`
	RunID     string         `json:"run_id,omitempty"`
	Message   string         `json:"message"`
	Text      string         `json:"text"`
	Fields    map[string]any `json:"fields,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Send posts the alert. Non-2xx responses are errors.
func (w *WebhookAlerter) Send(ctx context.Context, alert Alert) error {
	text := alert.Title()
	if details := FormatFields(alert.Fields...); details != "" {
		text += "\n" + details
	}
	payload := webhookPayload{
		Event:     string(alert.Event),
		Severity:  alert.Severity.String(),
		RunID:     alert.RunID,
		Message:   alert.Message,
		Text:      text,
		Fields:    fieldMap(alert.Fields...),
		Timestamp: w.now().UTC(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	return nil
}

// SendSummary posts an end-of-run report.
func (w *WebhookAlerter) SendSummary(ctx context.Context, summary RunSummary) error {
	alert := NewAlert(EventRunSummary, "run summary", summary.Fields()...)
	alert.RunID = summary.RunID
	return w.Send(ctx, alert)
}

func fieldMap(fields ...any) map[string]any {
	if len(fields) < 2 {
		return nil
	}
	m := make(map[string]any, len(fields)/2)
	for i := 0; i < len(fields)-1; i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		m[key] = fmt.Sprint(fields[i+1])
	}
	return m
}
