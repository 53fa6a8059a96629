package alerting

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNewRunSummary(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	summary := NewRunSummary("run-1", start, end,
		decimal.NewFromInt(100000),
		decimal.NewFromInt(105000),
		decimal.NewFromInt(110000),
		decimal.RequireFromString("0.12"),
		10, 8, 8,
	)

	if !summary.TotalPL.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("TotalPL = %s, want 5000", summary.TotalPL)
	}
	if !summary.ReturnPct.Equal(decimal.NewFromInt(5)) {
		t.Errorf("ReturnPct = %s, want 5", summary.ReturnPct)
	}
	if !summary.MaxDrawdownPct.Equal(decimal.NewFromInt(12)) {
		t.Errorf("MaxDrawdownPct = %s, want 12", summary.MaxDrawdownPct)
	}
	if summary.Signals != 10 || summary.Orders != 8 || summary.Fills != 8 {
		t.Errorf("unexpected counts: %+v", summary)
	}
}

func TestNewRunSummary_ZeroStart(t *testing.T) {
	summary := NewRunSummary("run-2", time.Time{}, time.Time{},
		decimal.Zero, decimal.NewFromInt(10), decimal.Zero, decimal.Zero, 0, 0, 0)

	if !summary.ReturnPct.IsZero() {
		t.Errorf("ReturnPct = %s, want 0 when starting equity is zero", summary.ReturnPct)
	}
}

func TestRunSummary_Fields(t *testing.T) {
	summary := NewRunSummary("run-3",
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC),
		decimal.NewFromInt(1000), decimal.NewFromInt(900), decimal.NewFromInt(1000), decimal.RequireFromString("0.1"),
		1, 1, 1)

	got := FormatFields(summary.Fields()...)
	for _, want := range []string{"run_id: run-3", "period: 2024-01-02 .. 2024-06-28", "pnl: -100.00", "return_pct: -10.00"} {
		if !strings.Contains(got, want) {
			t.Errorf("fields %q missing %q", got, want)
		}
	}
}
