package indicator

import "github.com/shopspring/decimal"

// ATR is the average true range over the last period bars. The first bar
// has no previous close, so its true range is high minus low.
type ATR struct {
	win       *window
	prevClose decimal.Decimal
	seen      bool
}

// NewATR returns an ATR over period bars.
func NewATR(period int) *ATR {
	return &ATR{win: newWindow(period)}
}

// Update pushes one bar and returns the ATR, or zero while warming up.
func (a *ATR) Update(high, low, close decimal.Decimal) decimal.Decimal {
	tr := high.Sub(low)
	if a.seen {
		tr = TrueRange(high, low, a.prevClose)
	}
	a.prevClose, a.seen = close, true
	a.win.push(tr)
	return a.win.mean()
}

// Current returns the ATR without pushing a bar.
func (a *ATR) Current() decimal.Decimal { return a.win.mean() }

// Ready reports whether a full period has been seen.
func (a *ATR) Ready() bool { return a.win.full() }

// TrueRange returns max(high - low, |high - prevClose|, |low - prevClose|).
func TrueRange(high, low, prevClose decimal.Decimal) decimal.Decimal {
	return decimal.Max(high.Sub(low), high.Sub(prevClose).Abs(), low.Sub(prevClose).Abs())
}
