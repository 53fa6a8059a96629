package indicator

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decs(vs ...int64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vs))
	for i, v := range vs {
		out[i] = decimal.NewFromInt(v)
	}
	return out
}

func near(got, want decimal.Decimal, tol string) bool {
	return got.Sub(want).Abs().LessThanOrEqual(dec(tol))
}

// TestSMA tests warm-up, the rolling window and Current.
func TestSMA(t *testing.T) {
	tests := []struct {
		name   string
		period int
		in     []decimal.Decimal
		want   string
		ready  bool
	}{
		{"warming up", 3, decs(10, 20), "0", false},
		{"first full window", 3, decs(10, 20, 30), "20", true},
		{"oldest value evicted", 3, decs(10, 20, 30, 40), "30", true},
		{"period raised to one", 0, decs(7, 9), "9", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sma := NewSMA(tt.period)
			var got decimal.Decimal
			for _, v := range tt.in {
				got = sma.Update(v)
			}
			if !got.Equal(dec(tt.want)) {
				t.Errorf("Update = %s, want %s", got, tt.want)
			}
			if !sma.Current().Equal(got) {
				t.Errorf("Current = %s, want %s", sma.Current(), got)
			}
			if sma.Ready() != tt.ready {
				t.Errorf("Ready = %v, want %v", sma.Ready(), tt.ready)
			}
		})
	}
}

// TestATR tests the first-bar range, gaps against the previous close and rolling.
func TestATR(t *testing.T) {
	type bar struct{ h, l, c int64 }
	tests := []struct {
		name   string
		period int
		bars   []bar
		want   string
	}{
		{"first bar uses high minus low", 1, []bar{{110, 100, 105}}, "10"},
		{"gap up measured from previous close", 1, []bar{{105, 95, 100}, {120, 115, 118}}, "20"},
		{"gap down measured from previous close", 1, []bar{{105, 95, 100}, {85, 80, 82}}, "20"},
		{"average of two ranges", 2, []bar{{110, 100, 105}, {120, 115, 118}}, "12.5"},
		{"warming up", 3, []bar{{110, 100, 105}, {120, 115, 118}}, "0"},
		{"oldest range evicted", 2, []bar{{200, 100, 150}, {152, 148, 150}, {152, 148, 150}}, "4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			atr := NewATR(tt.period)
			var got decimal.Decimal
			for _, b := range tt.bars {
				got = atr.Update(decimal.NewFromInt(b.h), decimal.NewFromInt(b.l), decimal.NewFromInt(b.c))
			}
			if !got.Equal(dec(tt.want)) {
				t.Errorf("ATR = %s, want %s", got, tt.want)
			}
			if atr.Ready() != (len(tt.bars) >= tt.period) {
				t.Errorf("Ready = %v after %d bars", atr.Ready(), len(tt.bars))
			}
		})
	}
}

// TestTrueRange tests each branch of the true range maximum.
func TestTrueRange(t *testing.T) {
	tests := []struct {
		name            string
		high, low, prev string
		want            string
	}{
		{"inside bar", "110", "100", "105", "10"},
		{"gap up", "120", "115", "100", "20"},
		{"gap down", "85", "80", "100", "20"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrueRange(dec(tt.high), dec(tt.low), dec(tt.prev))
			if !got.Equal(dec(tt.want)) {
				t.Errorf("TrueRange = %s, want %s", got, tt.want)
			}
		})
	}
}

// TestStdDev tests the population deviation over a rolling window.
func TestStdDev(t *testing.T) {
	tests := []struct {
		name string
		in   []decimal.Decimal
		want string
	}{
		{"warming up", decs(10, 20), "0"},
		{"spread", decs(10, 20, 30), "8.165"},
		{"identical values", decs(10, 10, 10), "0"},
		{"oldest value evicted", decs(100, 10, 20, 30), "8.165"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sd := NewStdDev(3)
			var got decimal.Decimal
			for _, v := range tt.in {
				got = sd.Update(v)
			}
			if !near(got, dec(tt.want), "0.001") {
				t.Errorf("StdDev = %s, want ≈%s", got, tt.want)
			}
			if !sd.Current().Equal(got) {
				t.Errorf("Current = %s, want %s", sd.Current(), got)
			}
		})
	}
}

// TestSqrt tests Newton iteration against known roots.
func TestSqrt(t *testing.T) {
	tests := []struct{ in, want string }{
		{"0", "0"},
		{"-4", "0"},
		{"1", "1"},
		{"4", "2"},
		{"2", "1.41421356"},
		{"0.25", "0.5"},
		{"100", "10"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Sqrt(dec(tt.in)); !near(got, dec(tt.want), "0.0001") {
				t.Errorf("Sqrt(%s) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

// TestMean tests the batch mean.
func TestMean(t *testing.T) {
	if got := Mean(decs(1, 2, 3, 6)); !got.Equal(dec("3")) {
		t.Errorf("Mean = %s, want 3", got)
	}
	if got := Mean(nil); !got.IsZero() {
		t.Errorf("Mean(nil) = %s, want 0", got)
	}
}

// TestSampleStdDev tests the n-1 deviation used for return series.
func TestSampleStdDev(t *testing.T) {
	values := decs(2, 4, 4, 4, 5, 5, 7, 9)
	// mean 5, sum of squares 32, 32/7 = 4.5714
	if got := SampleStdDev(values); !near(got, dec("2.1381"), "0.0001") {
		t.Errorf("SampleStdDev = %s, want ≈2.1381", got)
	}
	if !SampleStdDev(values[:1]).IsZero() {
		t.Error("single value should give zero")
	}
}
