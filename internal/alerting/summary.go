package alerting

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunSummary is the end-of-run report sent to alerters.
type RunSummary struct {
	RunID          string
	Start          time.Time
	End            time.Time
	StartingEquity decimal.Decimal
	EndingEquity   decimal.Decimal
	HighWaterMark  decimal.Decimal
	TotalPL        decimal.Decimal
	ReturnPct      decimal.Decimal
	MaxDrawdownPct decimal.Decimal
	Signals        int
	Orders         int
	Fills          int
}

// NewRunSummary derives P&L, return and drawdown percentages.
func NewRunSummary(
	runID string,
	start, end time.Time,
	startEquity, endEquity, highWater, maxDrawdown decimal.Decimal,
	signals, orders, fills int,
) RunSummary {
	totalPL := endEquity.Sub(startEquity)

	var returnPct decimal.Decimal
	if !startEquity.IsZero() {
		returnPct = totalPL.Div(startEquity).Mul(decimal.NewFromInt(100))
	}

	maxDD := maxDrawdown.Mul(decimal.NewFromInt(100))
	if maxDD.IsNegative() {
		maxDD = decimal.Zero
	}

	return RunSummary{
		RunID:          runID,
		Start:          start,
		End:            end,
		StartingEquity: startEquity,
		EndingEquity:   endEquity,
		HighWaterMark:  highWater,
		TotalPL:        totalPL,
		ReturnPct:      returnPct,
		MaxDrawdownPct: maxDD,
		Signals:        signals,
		Orders:         orders,
		Fills:          fills,
	}
}

// Fields returns the summary as alert key/value pairs.
func (s RunSummary) Fields() []any {
	return []any{
		"run_id", s.RunID,
		"period", s.Start.Format("2006-01-02") + " .. " + s.End.Format("2006-01-02"),
		"ending_equity", s.EndingEquity.StringFixed(2),
		"pnl", s.TotalPL.StringFixed(2),
		"return_pct", s.ReturnPct.StringFixed(2),
		"max_drawdown_pct", s.MaxDrawdownPct.StringFixed(2),
		"fills", s.Fills,
	}
}
