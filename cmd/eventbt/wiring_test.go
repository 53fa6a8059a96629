package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/backtest"
	"github.com/tathienbao/eventbt/internal/config"
	"github.com/tathienbao/eventbt/internal/portfolio"
	"github.com/tathienbao/eventbt/internal/types"
)

func loadConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromBytes([]byte(`
account:
  initial_capital: 1000
market:
  instruments: ["AAPL"]
data:
  path: ./testdata
` + extra))
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
	return cfg
}

func TestSummarize(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	result := &backtest.Result{
		RunID: "run-1",
		Summary: backtest.Summary{
			StartEquity: decimal.NewFromInt(1000),
			EndEquity:   decimal.NewFromInt(1050),
			MaxDrawdown: decimal.RequireFromString("0.1"),
		},
		Holdings: []portfolio.Holdings{
			{Timestamp: day(1), Total: decimal.NewFromInt(1000)},
			{Timestamp: day(2), Total: decimal.NewFromInt(1200)},
			{Timestamp: day(3), Total: decimal.NewFromInt(1050)},
		},
	}

	s := summarize(result)
	if !s.Start.Equal(day(1)) || !s.End.Equal(day(3)) {
		t.Errorf("period = %s..%s", s.Start, s.End)
	}
	if !s.HighWaterMark.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("HighWaterMark = %s, want 1200", s.HighWaterMark)
	}
	if !s.ReturnPct.Equal(decimal.NewFromInt(5)) {
		t.Errorf("ReturnPct = %s, want 5", s.ReturnPct)
	}
	if !s.MaxDrawdownPct.Equal(decimal.NewFromInt(10)) {
		t.Errorf("MaxDrawdownPct = %s, want 10", s.MaxDrawdownPct)
	}
}

func TestNewAlerter(t *testing.T) {
	alerter, webhook := newAlerter(loadConfig(t, ""), nil)
	if alerter != nil || webhook != nil {
		t.Error("disabled alerting should return nil alerters")
	}

	alerter, webhook = newAlerter(loadConfig(t, `
alerting:
  enabled: true
  webhook_url: http://127.0.0.1:1/hook
`), nil)
	if alerter == nil || webhook == nil {
		t.Error("expected console and webhook alerters")
	}
}

func TestOpenFeed_UnknownType(t *testing.T) {
	cfg := loadConfig(t, "")
	cfg.Data.Type = "parquet"

	_, closeFeed, err := openFeed(context.Background(), cfg, nil, nil)
	if !errors.Is(err, types.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
	closeFeed()
}

func TestHealthWindow(t *testing.T) {
	tests := []struct {
		name  string
		extra string
		want  time.Duration
	}{
		{"default", "", time.Minute},
		{"read timeout", "  read_timeout: 5s\n", 10 * time.Second},
		{"slow heartbeat", "engine:\n  heartbeat: 30s\n", 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := healthWindow(loadConfig(t, tt.extra)); got != tt.want {
				t.Errorf("healthWindow = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := loadConfig(t, "")

	err := applyOverrides(cfg, sessionOptions{dataPath: "/srv/bars", strategyName: "breakout", dbPath: "runs.db"})
	if err != nil {
		t.Fatalf("applyOverrides: %v", err)
	}
	if cfg.Data.Path != "/srv/bars" || cfg.Strategy.Name != "breakout" {
		t.Errorf("data %q strategy %q", cfg.Data.Path, cfg.Strategy.Name)
	}
	if !cfg.Persistence.Enabled || cfg.PersistenceTarget() != "runs.db" {
		t.Errorf("persistence = %+v", cfg.Persistence)
	}

	err = applyOverrides(cfg, sessionOptions{strategyName: "grid"})
	if !errors.Is(err, types.ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}
