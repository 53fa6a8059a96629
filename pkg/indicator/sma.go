package indicator

import "github.com/shopspring/decimal"

// SMA is a simple moving average over the last period values.
type SMA struct {
	win *window
}

// NewSMA returns an SMA over period values. Periods below one are raised to one.
func NewSMA(period int) *SMA {
	return &SMA{win: newWindow(period)}
}

// Update pushes value and returns the average, or zero while warming up.
func (s *SMA) Update(value decimal.Decimal) decimal.Decimal {
	s.win.push(value)
	return s.win.mean()
}

// Current returns the average without pushing a value.
func (s *SMA) Current() decimal.Decimal { return s.win.mean() }

// Ready reports whether a full period has been seen.
func (s *SMA) Ready() bool { return s.win.full() }
