package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CommissionSchedule is the default fee policy applied to fills that arrive
// without an explicit commission.
type CommissionSchedule struct {
	PerShareMinimum decimal.Decimal
	PercentageCap   decimal.Decimal
}

// DefaultCommissionSchedule returns 0.0035 per share and 0.5% of notional.
func DefaultCommissionSchedule() CommissionSchedule {
	return CommissionSchedule{
		PerShareMinimum: decimal.RequireFromString("0.0035"),
		PercentageCap:   decimal.RequireFromString("0.005"),
	}
}

// Compute returns max(per_share*qty, pct*cost*qty) when cost is known, else zero.
func (c CommissionSchedule) Compute(qty int64, cost decimal.NullDecimal) decimal.Decimal {
	if !cost.Valid {
		return decimal.Zero
	}
	q := decimal.NewFromInt(qty)
	perShare := c.PerShareMinimum.Mul(q)
	notional := c.PercentageCap.Mul(cost.Decimal).Mul(q)
	return decimal.Max(perShare, notional)
}

// NewFill builds and validates a fill, filling in the commission from the
// schedule when it is null.
func (c CommissionSchedule) NewFill(ts time.Time, symbol, exchange string, qty int64, side Side, cost, commission decimal.NullDecimal) (FillEvent, error) {
	f := FillEvent{
		Timestamp: ts,
		Symbol:    symbol,
		Exchange:  exchange,
		Quantity:  qty,
		Side:      side,
		FillCost:  cost,
	}
	if commission.Valid {
		f.Commission = commission.Decimal
	} else {
		f.Commission = c.Compute(qty, cost)
	}
	if err := f.Validate(); err != nil {
		return FillEvent{}, fmt.Errorf("new fill: %w", err)
	}
	return f, nil
}
