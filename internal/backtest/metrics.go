package backtest

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/portfolio"
	"github.com/tathienbao/eventbt/internal/risk"
	"github.com/tathienbao/eventbt/pkg/indicator"
)

// DefaultPeriods is the number of return periods per year for daily bars.
const DefaultPeriods = 252

var one = decimal.NewFromInt(1)

// EquityPoint is one row of the equity curve.
type EquityPoint struct {
	Timestamp time.Time
	Equity    decimal.Decimal
	Return    decimal.Decimal // pct change from the previous point
	Curve     decimal.Decimal // cumulative product of (1 + Return)
	Drawdown  decimal.Decimal // as ratio of the running peak of Curve
}

// EquityCurve derives periodic returns, the compounded curve and drawdown
// from the portfolio's holdings history.
func EquityCurve(holdings []portfolio.Holdings) []EquityPoint {
	if len(holdings) == 0 {
		return nil
	}

	out := make([]EquityPoint, 0, len(holdings))
	curve := one
	peak := one
	for i, h := range holdings {
		ret := decimal.Zero
		if i > 0 {
			if prev := holdings[i-1].Total; !prev.IsZero() {
				ret = h.Total.Sub(prev).Div(prev)
			}
		}
		curve = curve.Mul(one.Add(ret))
		if curve.GreaterThan(peak) {
			peak = curve
		}
		dd := decimal.Zero
		if peak.IsPositive() {
			dd = peak.Sub(curve).Div(peak)
		}
		out = append(out, EquityPoint{
			Timestamp: h.Timestamp,
			Equity:    h.Total,
			Return:    ret,
			Curve:     curve,
			Drawdown:  dd,
		})
	}
	return out
}

// Summary is the headline report of a finished run.
type Summary struct {
	StartEquity      decimal.Decimal
	EndEquity        decimal.Decimal
	TotalReturn      decimal.Decimal // As ratio (0.15 = 15%)
	AnnualizedReturn decimal.Decimal
	SharpeRatio      decimal.Decimal
	SortinoRatio     decimal.Decimal
	CalmarRatio      decimal.Decimal
	MaxDrawdown      decimal.Decimal // As ratio
	DrawdownDuration int             // periods
	Trades           int
	WinRate          decimal.Decimal // As ratio
	ProfitFactor     decimal.Decimal // Gross profit / Gross loss
	Expectancy       decimal.Decimal
}

// Metrics provides performance metrics over an equity curve and the
// closed trades of a run.
type Metrics struct {
	curve        []EquityPoint
	trades       []portfolio.Trade
	riskFreeRate decimal.Decimal // Annual risk-free rate (e.g., 0.05 for 5%)
	periods      int
}

// NewMetrics creates a metrics calculator. A non-positive periods value
// means DefaultPeriods.
func NewMetrics(curve []EquityPoint, trades []portfolio.Trade, riskFreeRate decimal.Decimal, periods int) *Metrics {
	if periods <= 0 {
		periods = DefaultPeriods
	}
	return &Metrics{
		curve:        curve,
		trades:       trades,
		riskFreeRate: riskFreeRate,
		periods:      periods,
	}
}

// Summary computes every headline figure.
func (m *Metrics) Summary() Summary {
	s := Summary{
		TotalReturn:      m.TotalReturn(),
		AnnualizedReturn: m.AnnualizedReturn(),
		SharpeRatio:      m.SharpeRatio(),
		SortinoRatio:     m.SortinoRatio(),
		CalmarRatio:      m.CalmarRatio(),
		Trades:           len(m.trades),
		WinRate:          m.WinRate(),
		ProfitFactor:     m.ProfitFactor(),
		Expectancy:       m.Expectancy(),
	}
	s.MaxDrawdown, s.DrawdownDuration = m.drawdown()
	if len(m.curve) > 0 {
		s.StartEquity = m.curve[0].Equity
		s.EndEquity = m.curve[len(m.curve)-1].Equity
	}
	return s
}

// TotalReturn is the final value of the compounded curve minus one.
func (m *Metrics) TotalReturn() decimal.Decimal {
	if len(m.curve) == 0 {
		return decimal.Zero
	}
	return m.curve[len(m.curve)-1].Curve.Sub(one)
}

// SharpeRatio calculates the annualized Sharpe ratio.
// Sharpe = (mean_return - risk_free) / std_dev_returns * sqrt(periods)
func (m *Metrics) SharpeRatio() decimal.Decimal {
	returns := m.returns()
	if len(returns) < 2 {
		return decimal.Zero
	}

	stdDev := indicator.SampleStdDev(returns)
	if stdDev.IsZero() {
		return decimal.Zero
	}

	excess := indicator.Mean(returns).Sub(m.periodRiskFree())
	return excess.Div(stdDev).Mul(m.sqrtPeriods())
}

// SortinoRatio calculates the Sortino ratio (uses downside deviation).
func (m *Metrics) SortinoRatio() decimal.Decimal {
	returns := m.returns()
	if len(returns) < 2 {
		return decimal.Zero
	}

	downsideDev := downsideDeviation(returns, decimal.Zero)
	if downsideDev.IsZero() {
		return decimal.Zero
	}

	excess := indicator.Mean(returns).Sub(m.periodRiskFree())
	return excess.Div(downsideDev).Mul(m.sqrtPeriods())
}

// MaxDrawdown returns the maximum drawdown as a ratio.
func (m *Metrics) MaxDrawdown() decimal.Decimal {
	dd, _ := m.drawdown()
	return dd
}

// DrawdownDuration returns the longest run of periods spent below a
// previous peak.
func (m *Metrics) DrawdownDuration() int {
	_, d := m.drawdown()
	return d
}

func (m *Metrics) drawdown() (decimal.Decimal, int) {
	if len(m.curve) == 0 {
		return decimal.Zero, 0
	}
	hwm := risk.NewHighWaterMarkTracker(m.curve[0].Curve)
	for _, p := range m.curve {
		hwm.Observe(p.Timestamp, p.Curve)
	}
	return hwm.MaxDrawdown(), hwm.MaxDuration()
}

// CalmarRatio calculates the Calmar ratio (annual return / max drawdown).
func (m *Metrics) CalmarRatio() decimal.Decimal {
	maxDD := m.MaxDrawdown()
	if maxDD.IsZero() {
		return decimal.Zero
	}
	return m.AnnualizedReturn().Div(maxDD)
}

// AnnualizedReturn compounds the total return over the number of
// periods observed.
func (m *Metrics) AnnualizedReturn() decimal.Decimal {
	n := len(m.curve) - 1
	if n < 1 {
		return decimal.Zero
	}

	total := m.TotalReturn()
	// Less than a month of bars says nothing about a year.
	if n < m.periods/12 {
		return total
	}

	years := float64(n) / float64(m.periods)
	growth := one.Add(total).InexactFloat64()
	if growth <= 0 {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromFloat(math.Pow(growth, 1/years) - 1)
}

// WinRate returns the win rate as a ratio.
func (m *Metrics) WinRate() decimal.Decimal {
	if len(m.trades) == 0 {
		return decimal.Zero
	}

	wins := 0
	for _, trade := range m.trades {
		if trade.IsWin() {
			wins++
		}
	}
	return decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(len(m.trades))))
}

// ProfitFactor calculates gross profit / gross loss.
func (m *Metrics) ProfitFactor() decimal.Decimal {
	grossProfit := decimal.Zero
	grossLoss := decimal.Zero

	for _, trade := range m.trades {
		if trade.NetPL.IsPositive() {
			grossProfit = grossProfit.Add(trade.NetPL)
		} else {
			grossLoss = grossLoss.Add(trade.NetPL.Abs())
		}
	}

	if grossLoss.IsZero() {
		return decimal.Zero
	}
	return grossProfit.Div(grossLoss)
}

// AverageWin returns the average winning trade P&L.
func (m *Metrics) AverageWin() decimal.Decimal {
	var wins []decimal.Decimal
	for _, trade := range m.trades {
		if trade.NetPL.IsPositive() {
			wins = append(wins, trade.NetPL)
		}
	}
	return indicator.Mean(wins)
}

// AverageLoss returns the average losing trade P&L.
func (m *Metrics) AverageLoss() decimal.Decimal {
	var losses []decimal.Decimal
	for _, trade := range m.trades {
		if trade.NetPL.IsNegative() {
			losses = append(losses, trade.NetPL)
		}
	}
	return indicator.Mean(losses)
}

// Expectancy calculates expected value per trade.
// Expectancy = (WinRate * AvgWin) + ((1 - WinRate) * AvgLoss)
func (m *Metrics) Expectancy() decimal.Decimal {
	winRate := m.WinRate()
	return winRate.Mul(m.AverageWin()).Add(one.Sub(winRate).Mul(m.AverageLoss()))
}

// returns skips the seed point, whose return is zero by construction.
func (m *Metrics) returns() []decimal.Decimal {
	if len(m.curve) < 2 {
		return nil
	}
	out := make([]decimal.Decimal, 0, len(m.curve)-1)
	for _, p := range m.curve[1:] {
		out = append(out, p.Return)
	}
	return out
}

func (m *Metrics) periodRiskFree() decimal.Decimal {
	return m.riskFreeRate.Div(decimal.NewFromInt(int64(m.periods)))
}

func (m *Metrics) sqrtPeriods() decimal.Decimal {
	return indicator.Sqrt(decimal.NewFromInt(int64(m.periods)))
}

// downsideDeviation is the sample deviation of returns below target.
func downsideDeviation(returns []decimal.Decimal, target decimal.Decimal) decimal.Decimal {
	var below []decimal.Decimal
	for _, r := range returns {
		if r.LessThan(target) {
			below = append(below, r)
		}
	}
	if len(below) < 2 {
		return decimal.Zero
	}
	return indicator.SampleStdDev(below)
}
