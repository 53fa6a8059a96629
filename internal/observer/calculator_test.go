package observer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/types"
)

func calcBar(symbol string, i int) types.Bar {
	c := decimal.NewFromInt(int64(100 + i))
	return types.Bar{
		Symbol:    symbol,
		Timestamp: time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC),
		High:      c.Add(decimal.NewFromInt(2)),
		Low:       c.Sub(decimal.NewFromInt(2)),
		Close:     c,
		AdjClose:  c,
	}
}

// TestNewCalculator tests calculator constructor.
func TestNewCalculator(t *testing.T) {
	calc := NewCalculator(DefaultCalculatorConfig())

	if calc.cfg.ATRPeriod != 14 {
		t.Errorf("expected ATR period 14, got %d", calc.cfg.ATRPeriod)
	}
	if calc.cfg.StdDevPeriod != 20 {
		t.Errorf("expected StdDev period 20, got %d", calc.cfg.StdDevPeriod)
	}
}

// TestCalculator_Ready tests warmup per symbol.
func TestCalculator_Ready(t *testing.T) {
	calc := NewCalculator(CalculatorConfig{ATRPeriod: 3, StdDevPeriod: 3, SMAPeriod: 3})

	var ind Indicators
	for i := 0; i < 3; i++ {
		ind = calc.OnBar(calcBar("A", i))
	}
	if !ind.Ready {
		t.Error("expected A to be ready after 3 bars")
	}
	if ind.ATR.IsZero() || ind.SMA.IsZero() {
		t.Errorf("expected non-zero ATR and SMA, got %+v", ind)
	}

	if calc.OnBar(calcBar("B", 0)).Ready {
		t.Error("B should warm up independently")
	}
}

// TestCalculator_SMA tests that the SMA follows adjusted close.
func TestCalculator_SMA(t *testing.T) {
	calc := NewCalculator(CalculatorConfig{ATRPeriod: 1, StdDevPeriod: 2, SMAPeriod: 2})

	calc.OnBar(calcBar("A", 0))
	ind := calc.OnBar(calcBar("A", 1))

	if !ind.SMA.Equal(decimal.RequireFromString("100.5")) {
		t.Errorf("expected SMA 100.5, got %s", ind.SMA)
	}
	if !calc.Current("A").SMA.Equal(ind.SMA) {
		t.Error("Current should match last OnBar result")
	}
}

// TestCalculator_Reset tests state reset.
func TestCalculator_Reset(t *testing.T) {
	calc := NewCalculator(CalculatorConfig{ATRPeriod: 1, StdDevPeriod: 1, SMAPeriod: 1})
	calc.OnBar(calcBar("A", 0))
	calc.Reset()

	if calc.Current("A").Ready {
		t.Error("expected no state after reset")
	}
}
