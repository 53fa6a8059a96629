package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/portfolio"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func holdings(totals ...string) []portfolio.Holdings {
	out := make([]portfolio.Holdings, len(totals))
	for i, total := range totals {
		out[i] = portfolio.Holdings{Timestamp: t0.AddDate(0, 0, i), Total: dec(total)}
	}
	return out
}

func near(a decimal.Decimal, b float64) bool {
	return math.Abs(a.InexactFloat64()-b) < 1e-6
}

// TestEquityCurve tests returns, compounding and drawdown per point.
func TestEquityCurve(t *testing.T) {
	curve := EquityCurve(holdings("100", "110", "99", "105"))
	if len(curve) != 4 {
		t.Fatalf("points = %d, want 4", len(curve))
	}

	tests := []struct {
		ret, curve, drawdown float64
	}{
		{0, 1, 0},
		{0.1, 1.1, 0},
		{-0.1, 0.99, 0.1},
		{105.0/99 - 1, 1.05, (1.1 - 1.05) / 1.1},
	}
	for i, tt := range tests {
		p := curve[i]
		if !near(p.Return, tt.ret) {
			t.Errorf("point %d return = %s, want %f", i, p.Return, tt.ret)
		}
		if !near(p.Curve, tt.curve) {
			t.Errorf("point %d curve = %s, want %f", i, p.Curve, tt.curve)
		}
		if !near(p.Drawdown, tt.drawdown) {
			t.Errorf("point %d drawdown = %s, want %f", i, p.Drawdown, tt.drawdown)
		}
	}

	if EquityCurve(nil) != nil {
		t.Error("empty holdings should give a nil curve")
	}
}

func TestMetrics_MaxDrawdownAndDuration(t *testing.T) {
	m := NewMetrics(EquityCurve(holdings("100", "110", "99", "105", "111", "100")), nil, decimal.Zero, 0)

	if !near(m.MaxDrawdown(), 0.1) {
		t.Errorf("MaxDrawdown = %s, want 0.1", m.MaxDrawdown())
	}
	// 99 and 105 sit below the 110 peak.
	if got := m.DrawdownDuration(); got != 2 {
		t.Errorf("DrawdownDuration = %d, want 2", got)
	}
}

func TestMetrics_SharpeRatio(t *testing.T) {
	totals := []string{"100", "101", "100.5", "102", "103", "102.5"}
	m := NewMetrics(EquityCurve(holdings(totals...)), nil, decimal.Zero, 252)

	var returns []float64
	for i := 1; i < len(totals); i++ {
		prev, cur := dec(totals[i-1]).InexactFloat64(), dec(totals[i]).InexactFloat64()
		returns = append(returns, cur/prev-1)
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	want := math.Sqrt(252) * mean / math.Sqrt(ss/float64(len(returns)-1))

	if got := m.SharpeRatio().InexactFloat64(); math.Abs(got-want) > 1e-4 {
		t.Errorf("SharpeRatio = %f, want %f", got, want)
	}
}

func TestMetrics_SharpeRiskFreeLowersRatio(t *testing.T) {
	curve := EquityCurve(holdings("100", "101", "100.5", "102", "103"))
	base := NewMetrics(curve, nil, decimal.Zero, 252).SharpeRatio()
	withRf := NewMetrics(curve, nil, dec("0.05"), 252).SharpeRatio()
	if !withRf.LessThan(base) {
		t.Errorf("Sharpe with risk-free %s should be below %s", withRf, base)
	}
}

func TestMetrics_FlatCurve(t *testing.T) {
	m := NewMetrics(EquityCurve(holdings("100", "100", "100")), nil, decimal.Zero, 0)

	if !m.SharpeRatio().IsZero() {
		t.Errorf("SharpeRatio = %s, want 0", m.SharpeRatio())
	}
	if !m.SortinoRatio().IsZero() {
		t.Errorf("SortinoRatio = %s, want 0", m.SortinoRatio())
	}
	if !m.MaxDrawdown().IsZero() || m.DrawdownDuration() != 0 {
		t.Errorf("drawdown = %s over %d, want none", m.MaxDrawdown(), m.DrawdownDuration())
	}
	if !m.CalmarRatio().IsZero() {
		t.Errorf("CalmarRatio = %s, want 0", m.CalmarRatio())
	}
}

func TestMetrics_EmptyEquityCurve(t *testing.T) {
	s := NewMetrics(nil, nil, decimal.Zero, 0).Summary()

	if !s.TotalReturn.IsZero() || !s.SharpeRatio.IsZero() || !s.MaxDrawdown.IsZero() {
		t.Errorf("empty summary should be zero, got %+v", s)
	}
	if !s.EndEquity.IsZero() {
		t.Errorf("EndEquity = %s, want 0", s.EndEquity)
	}
}

func TestMetrics_AnnualizedReturn(t *testing.T) {
	// Short runs report the raw total.
	short := NewMetrics(EquityCurve(holdings("100", "105")), nil, decimal.Zero, 252)
	if !near(short.AnnualizedReturn(), 0.05) {
		t.Errorf("short AnnualizedReturn = %s, want 0.05", short.AnnualizedReturn())
	}

	// 504 periods at 252 per year is two years.
	totals := make([]string, 505)
	for i := range totals {
		totals[i] = "100"
	}
	totals[504] = "121"
	long := NewMetrics(EquityCurve(holdings(totals...)), nil, decimal.Zero, 252)
	if !near(long.AnnualizedReturn(), 0.1) {
		t.Errorf("two-year AnnualizedReturn = %s, want 0.1", long.AnnualizedReturn())
	}
}

func trades(pl ...int64) []portfolio.Trade {
	out := make([]portfolio.Trade, len(pl))
	for i, v := range pl {
		out[i] = portfolio.Trade{NetPL: decimal.NewFromInt(v)}
	}
	return out
}

func TestMetrics_TradeStats(t *testing.T) {
	tests := []struct {
		name         string
		trades       []portfolio.Trade
		winRate      string
		profitFactor string
		avgWin       string
		avgLoss      string
		expectancy   string
	}{
		{
			name:         "mixed",
			trades:       trades(100, -50, 200, -100),
			winRate:      "0.5",
			profitFactor: "2",
			avgWin:       "150",
			avgLoss:      "-75",
			expectancy:   "37.5",
		},
		{
			name:         "only winners",
			trades:       trades(100, 50),
			winRate:      "1",
			profitFactor: "0",
			avgWin:       "75",
			avgLoss:      "0",
			expectancy:   "75",
		},
		{
			name:         "no trades",
			winRate:      "0",
			profitFactor: "0",
			avgWin:       "0",
			avgLoss:      "0",
			expectancy:   "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMetrics(nil, tt.trades, decimal.Zero, 0)
			if !m.WinRate().Equal(dec(tt.winRate)) {
				t.Errorf("WinRate = %s, want %s", m.WinRate(), tt.winRate)
			}
			if !m.ProfitFactor().Equal(dec(tt.profitFactor)) {
				t.Errorf("ProfitFactor = %s, want %s", m.ProfitFactor(), tt.profitFactor)
			}
			if !m.AverageWin().Equal(dec(tt.avgWin)) {
				t.Errorf("AverageWin = %s, want %s", m.AverageWin(), tt.avgWin)
			}
			if !m.AverageLoss().Equal(dec(tt.avgLoss)) {
				t.Errorf("AverageLoss = %s, want %s", m.AverageLoss(), tt.avgLoss)
			}
			if !m.Expectancy().Equal(dec(tt.expectancy)) {
				t.Errorf("Expectancy = %s, want %s", m.Expectancy(), tt.expectancy)
			}
		})
	}
}
