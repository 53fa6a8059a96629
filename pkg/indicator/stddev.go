package indicator

import "github.com/shopspring/decimal"

// StdDev is the population standard deviation of the last period values.
type StdDev struct {
	win *window
}

// NewStdDev returns a StdDev over period values.
func NewStdDev(period int) *StdDev {
	return &StdDev{win: newWindow(period)}
}

// Update pushes value and returns the deviation, or zero while warming up.
func (s *StdDev) Update(value decimal.Decimal) decimal.Decimal {
	s.win.push(value)
	return s.Current()
}

// Current returns the deviation without pushing a value.
func (s *StdDev) Current() decimal.Decimal {
	if !s.win.full() {
		return decimal.Zero
	}
	ss := sumSquares(s.win.values, s.win.mean())
	return Sqrt(ss.Div(decimal.NewFromInt(int64(s.win.size))))
}

// Ready reports whether a full period has been seen.
func (s *StdDev) Ready() bool { return s.win.full() }

// SampleStdDev returns the sample standard deviation (n-1 denominator) of
// values. Fewer than two values give zero.
func SampleStdDev(values []decimal.Decimal) decimal.Decimal {
	if len(values) < 2 {
		return decimal.Zero
	}
	ss := sumSquares(values, Mean(values))
	return Sqrt(ss.Div(decimal.NewFromInt(int64(len(values) - 1))))
}

func sumSquares(values []decimal.Decimal, mean decimal.Decimal) decimal.Decimal {
	var sum decimal.Decimal
	for _, v := range values {
		d := v.Sub(mean)
		sum = sum.Add(d.Mul(d))
	}
	return sum
}

// Sqrt returns the square root of d to eight places by Newton iteration.
// Zero and negative inputs give zero.
func Sqrt(d decimal.Decimal) decimal.Decimal {
	if !d.IsPositive() {
		return decimal.Zero
	}
	two := decimal.NewFromInt(2)
	eps := decimal.New(1, -8)
	x := d.Div(two)
	if x.IsZero() {
		x = decimal.NewFromInt(1)
	}
	for range 100 {
		next := x.Add(d.Div(x)).Div(two)
		if next.Sub(x).Abs().LessThan(eps) {
			return next.Round(8)
		}
		x = next
	}
	return x.Round(8)
}
