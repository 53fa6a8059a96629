package backtest

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/alerting"
	"github.com/tathienbao/eventbt/internal/engine"
	"github.com/tathienbao/eventbt/internal/execution"
	"github.com/tathienbao/eventbt/internal/observer"
	"github.com/tathienbao/eventbt/internal/risk"
	"github.com/tathienbao/eventbt/internal/strategy"
	"github.com/tathienbao/eventbt/internal/types"
)

func newFeed(t *testing.T, prices ...string) *observer.ReplaySource {
	t.Helper()

	bars := make([]types.Bar, len(prices))
	for i, price := range prices {
		p := dec(price)
		bars[i] = types.Bar{Symbol: "X", Timestamp: t0.AddDate(0, 0, i+1), Open: p, High: p, Low: p, Close: p, AdjClose: p}
	}
	src, err := observer.NewReplaySource(observer.ReplayConfig{Symbols: []string{"X"}}, map[string][]types.Bar{"X": bars}, nil)
	if err != nil {
		t.Fatalf("NewReplaySource: %v", err)
	}
	return src
}

func newMAC(t *testing.T, feed observer.Feed) strategy.Strategy {
	t.Helper()

	mac, err := strategy.NewMovingAverageCrossover(strategy.MACConfig{ShortWindow: 2, LongWindow: 4}, feed, feed.Symbols(), nil)
	if err != nil {
		t.Fatalf("NewMovingAverageCrossover: %v", err)
	}
	return mac
}

func testConfig() Config {
	return Config{
		InitialCapital: dec("100000"),
		Start:          t0,
		Sizing:         risk.DefaultSizingPolicy(),
	}
}

// TestRunner_RoundTrip tests a full replay: entry at 12, exit at 8.
func TestRunner_RoundTrip(t *testing.T) {
	feed := newFeed(t, "10", "10", "10", "10", "12", "14", "16", "8", "6")
	runner := NewRunner(testConfig(), feed, newMAC(t, feed), nil, nil)

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.RunID) != 26 {
		t.Errorf("RunID = %q, want a 26 character ULID", result.RunID)
	}
	want := engine.Stats{Heartbeats: 9, Events: 15, Markets: 9, Signals: 2, Orders: 2, Fills: 2}
	if result.Stats != want {
		t.Errorf("Stats = %+v, want %+v", result.Stats, want)
	}
	if len(result.Holdings) != 10 || len(result.Positions) != 10 || len(result.EquityCurve) != 10 {
		t.Errorf("history lengths = %d/%d/%d, want 10", len(result.Holdings), len(result.Positions), len(result.EquityCurve))
	}
	if len(result.Fills) != 2 {
		t.Fatalf("fills = %d, want 2", len(result.Fills))
	}

	// 100 bought at 12 and sold at 8, no commission without a fill cost.
	if !result.Summary.EndEquity.Equal(dec("99600")) {
		t.Errorf("EndEquity = %s, want 99600", result.Summary.EndEquity)
	}
	if !near(result.Summary.TotalReturn, -0.004) {
		t.Errorf("TotalReturn = %s, want -0.004", result.Summary.TotalReturn)
	}
	if result.Summary.Trades != 1 || !result.Trades[0].NetPL.Equal(dec("-400")) {
		t.Errorf("trades = %+v, want one losing 400", result.Trades)
	}
	if !result.Summary.MaxDrawdown.IsPositive() {
		t.Error("MaxDrawdown should be positive after a losing trade")
	}
}

func TestRunner_ProgressCallback(t *testing.T) {
	feed := newFeed(t, "10", "11", "12", "13")
	runner := NewRunner(testConfig(), feed, newMAC(t, feed), nil, nil)

	var updates []engine.Progress
	runner.SetProgressCallback(func(p engine.Progress) {
		updates = append(updates, p)
	})
	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(updates) != 4 {
		t.Fatalf("updates = %d, want 4", len(updates))
	}
	if last := updates[3]; last.Heartbeat != 4 || !last.Timestamp.Equal(t0.AddDate(0, 0, 4)) {
		t.Errorf("last update = %+v", last)
	}
}

// TestRunner_ConfiguredRunID tests that a preset run ID names the result
// and every engine alert.
func TestRunner_ConfiguredRunID(t *testing.T) {
	feed := newFeed(t, "10", "11")
	cfg := testConfig()
	cfg.RunID = "01J0PRESET"
	alerter := alerting.NewMockAlerter()

	runner := NewRunner(cfg, feed, newMAC(t, feed), nil, nil)
	runner.SetEngineOptions(engine.WithAlerter(alerter))
	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.RunID != "01J0PRESET" {
		t.Errorf("RunID = %q, want 01J0PRESET", result.RunID)
	}
	alerts := alerter.Alerts()
	if len(alerts) == 0 {
		t.Fatal("expected lifecycle alerts")
	}
	for _, a := range alerts {
		if a.RunID != "01J0PRESET" {
			t.Errorf("%s: RunID = %q", a.Event, a.RunID)
		}
	}
}

func TestRunner_AbortKeepsPartialResult(t *testing.T) {
	feed := newFeed(t, "10", "10", "10", "10", "12", "14")
	broken := execution.HandlerFunc(func(context.Context, types.OrderEvent) (types.FillEvent, error) {
		return types.FillEvent{}, types.ErrExecutionFailed
	})
	runner := NewRunner(testConfig(), feed, newMAC(t, feed), broken, nil)

	result, err := runner.Run(context.Background())
	if !errors.Is(err, types.ErrExecutionFailed) {
		t.Fatalf("err = %v, want ErrExecutionFailed", err)
	}
	if result == nil {
		t.Fatal("result should be returned with the error")
	}
	if !errors.Is(result.Err, types.ErrExecutionFailed) {
		t.Errorf("result.Err = %v", result.Err)
	}
	if len(result.Holdings) == 0 || len(result.Fills) != 0 {
		t.Errorf("holdings = %d fills = %d, want history and no fills", len(result.Holdings), len(result.Fills))
	}
}

func TestRunner_InvalidCapital(t *testing.T) {
	feed := newFeed(t, "10")
	cfg := testConfig()
	cfg.InitialCapital = decimal.Zero

	if _, err := NewRunner(cfg, feed, newMAC(t, feed), nil, nil).Run(context.Background()); !errors.Is(err, types.ErrInvalidCapital) {
		t.Errorf("err = %v, want ErrInvalidCapital", err)
	}
}

func TestReport(t *testing.T) {
	feed := newFeed(t, "10", "10", "10", "10", "12", "14", "16", "8", "6")
	result, err := NewRunner(testConfig(), feed, newMAC(t, feed), nil, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var buf bytes.Buffer
	if err := Report(&buf, result); err != nil {
		t.Fatalf("Report: %v", err)
	}
	out := buf.String()
	for _, want := range []string{result.RunID, "99,600.00", "-0.40%", "2 / 2 / 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}
