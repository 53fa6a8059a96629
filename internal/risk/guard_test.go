package risk

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDrawdownGuard_Check(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	g := NewDrawdownGuard(decimal.RequireFromString("0.10"), nil)

	tests := []struct {
		drawdown string
		want     bool
	}{
		{"0", false},
		{"0.05", false},
		{"0.0999", false},
		{"0.10", true},  // trips at the limit
		{"0.20", false}, // already latched
		{"0", false},
	}

	for i, tt := range tests {
		got := g.Check(day(i+1), decimal.RequireFromString(tt.drawdown))
		if got != tt.want {
			t.Errorf("Check(%s) = %v, want %v", tt.drawdown, got, tt.want)
		}
	}

	if !g.IsInSafeMode() {
		t.Error("guard should stay in safe mode after recovery")
	}
	if !g.SafeModeAt().Equal(day(4)) {
		t.Errorf("SafeModeAt = %s, want %s", g.SafeModeAt(), day(4))
	}
	if !g.Worst().Equal(decimal.RequireFromString("0.20")) {
		t.Errorf("Worst = %s, want 0.20", g.Worst())
	}
}

func TestDrawdownGuard_Reset(t *testing.T) {
	g := NewDrawdownGuard(decimal.RequireFromString("0.05"), nil)

	if !g.Check(time.Now(), decimal.RequireFromString("0.06")) {
		t.Fatal("expected guard to trip")
	}
	g.Reset()
	if g.IsInSafeMode() || !g.SafeModeAt().IsZero() || !g.Worst().IsZero() {
		t.Error("Reset should clear state")
	}
	if !g.Check(time.Now(), decimal.RequireFromString("0.07")) {
		t.Error("guard should trip again after Reset")
	}
}

func TestDrawdownGuard_DisabledLimit(t *testing.T) {
	for _, limit := range []string{"0", "-0.1"} {
		g := NewDrawdownGuard(decimal.RequireFromString(limit), nil)
		if g.Check(time.Now(), decimal.RequireFromString("0.99")) {
			t.Errorf("limit %s should never trip", limit)
		}
	}
}

// TestDrawdownGuard_ConcurrentCheck tests that exactly one of many
// concurrent breaching checks reports the trip.
func TestDrawdownGuard_ConcurrentCheck(t *testing.T) {
	g := NewDrawdownGuard(decimal.RequireFromString("0.10"), nil)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		tripped int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			dd := decimal.NewFromInt(int64(id)).Div(decimal.NewFromInt(100))
			if g.Check(time.Now(), dd) {
				mu.Lock()
				tripped++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if tripped != 1 {
		t.Errorf("tripped %d times, want 1", tripped)
	}
	if !g.Worst().Equal(decimal.RequireFromString("0.99")) {
		t.Errorf("Worst = %s, want 0.99", g.Worst())
	}
}

// FuzzDrawdownGuard tests that a guard trips at most once and only at or
// above its limit.
func FuzzDrawdownGuard(f *testing.F) {
	f.Add("0.10", "0.05", "0.15")
	f.Add("0.20", "0.20", "0.00")
	f.Add("0.00", "0.50", "0.90")
	f.Add("0.01", "1.00", "0.01")

	f.Fuzz(func(t *testing.T, limitStr, firstStr, secondStr string) {
		limit, err1 := decimal.NewFromString(limitStr)
		first, err2 := decimal.NewFromString(firstStr)
		second, err3 := decimal.NewFromString(secondStr)
		if err1 != nil || err2 != nil || err3 != nil {
			return
		}

		g := NewDrawdownGuard(limit, nil)
		a := g.Check(time.Now(), first)
		b := g.Check(time.Now(), second)

		if a && b {
			t.Fatal("guard tripped twice")
		}
		if a && first.LessThan(limit) {
			t.Errorf("tripped below limit: %s < %s", first, limit)
		}
		if b && second.LessThan(limit) {
			t.Errorf("tripped below limit: %s < %s", second, limit)
		}
		if (a || b) && !limit.IsPositive() {
			t.Errorf("non-positive limit %s tripped", limit)
		}
	})
}
