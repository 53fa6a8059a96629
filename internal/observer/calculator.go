package observer

import (
	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/types"
	"github.com/tathienbao/eventbt/pkg/indicator"
)

// CalculatorConfig holds configuration for the indicator calculator.
type CalculatorConfig struct {
	ATRPeriod    int // Period for ATR calculation
	StdDevPeriod int // Period for StdDev calculation
	SMAPeriod    int // Period for SMA calculation
}

// DefaultCalculatorConfig returns sensible defaults.
func DefaultCalculatorConfig() CalculatorConfig {
	return CalculatorConfig{
		ATRPeriod:    14,
		StdDevPeriod: 20,
		SMAPeriod:    20,
	}
}

// Indicators is the indicator state of one symbol after a bar.
type Indicators struct {
	ATR    decimal.Decimal
	StdDev decimal.Decimal
	SMA    decimal.Decimal
	Ready  bool
}

type symbolIndicators struct {
	atr    *indicator.ATR
	stddev *indicator.StdDev
	sma    *indicator.SMA
}

// Calculator keeps streaming indicators per symbol over adjusted closes.
type Calculator struct {
	cfg     CalculatorConfig
	symbols map[string]*symbolIndicators
}

// NewCalculator creates a new indicator calculator.
func NewCalculator(cfg CalculatorConfig) *Calculator {
	return &Calculator{
		cfg:     cfg,
		symbols: make(map[string]*symbolIndicators),
	}
}

func (c *Calculator) get(symbol string) *symbolIndicators {
	si, ok := c.symbols[symbol]
	if !ok {
		si = &symbolIndicators{
			atr:    indicator.NewATR(c.cfg.ATRPeriod),
			stddev: indicator.NewStdDev(c.cfg.StdDevPeriod),
			sma:    indicator.NewSMA(c.cfg.SMAPeriod),
		}
		c.symbols[symbol] = si
	}
	return si
}

// OnBar feeds a bar into its symbol's indicators and returns the new state.
func (c *Calculator) OnBar(bar types.Bar) Indicators {
	si := c.get(bar.Symbol)
	return Indicators{
		ATR:    si.atr.Update(bar.High, bar.Low, bar.Close),
		StdDev: si.stddev.Update(bar.AdjClose),
		SMA:    si.sma.Update(bar.AdjClose),
		Ready:  si.atr.Ready() && si.stddev.Ready() && si.sma.Ready(),
	}
}

// Current returns the indicator state of symbol without feeding a bar.
func (c *Calculator) Current(symbol string) Indicators {
	si, ok := c.symbols[symbol]
	if !ok {
		return Indicators{}
	}
	return Indicators{
		ATR:    si.atr.Current(),
		StdDev: si.stddev.Current(),
		SMA:    si.sma.Current(),
		Ready:  si.atr.Ready() && si.stddev.Ready() && si.sma.Ready(),
	}
}

// Reset clears all indicator state.
func (c *Calculator) Reset() {
	c.symbols = make(map[string]*symbolIndicators)
}
