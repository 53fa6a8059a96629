// Package indicator provides streaming and batch statistics over decimal
// price series.
package indicator

import "github.com/shopspring/decimal"

// window is a fixed-size rolling buffer that keeps a running sum.
type window struct {
	size   int
	values []decimal.Decimal
	sum    decimal.Decimal
}

func newWindow(size int) *window {
	if size < 1 {
		size = 1
	}
	return &window{size: size, values: make([]decimal.Decimal, 0, size+1)}
}

func (w *window) push(v decimal.Decimal) {
	w.values = append(w.values, v)
	w.sum = w.sum.Add(v)
	if len(w.values) > w.size {
		w.sum = w.sum.Sub(w.values[0])
		w.values = w.values[1:]
	}
}

func (w *window) full() bool { return len(w.values) >= w.size }

// mean is zero until the window is full.
func (w *window) mean() decimal.Decimal {
	if !w.full() {
		return decimal.Zero
	}
	return w.sum.Div(decimal.NewFromInt(int64(w.size)))
}

// Mean returns the arithmetic mean of values, or zero for an empty slice.
func Mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(values[0], values[1:]...).Div(decimal.NewFromInt(int64(len(values))))
}
