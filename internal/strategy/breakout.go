package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/observer"
	"github.com/tathienbao/eventbt/internal/types"
)

// BreakoutConfig holds configuration for the breakout strategy.
type BreakoutConfig struct {
	LookbackBars   int             // Number of prior bars forming the range
	BreakoutBuffer decimal.Decimal // Buffer beyond the range as a ratio of its width
	AllowShort     bool            // Emit Short on a downside break while flat
}

// DefaultBreakoutConfig returns sensible defaults.
func DefaultBreakoutConfig() BreakoutConfig {
	return BreakoutConfig{
		LookbackBars:   20,
		BreakoutBuffer: decimal.RequireFromString("0.0005"), // 0.05%
	}
}

// Breakout trades closes outside the high/low range of the previous
// LookbackBars bars. An upside break enters long; a downside break exits a
// long, or enters short when enabled.
type Breakout struct {
	cfg     BreakoutConfig
	bars    observer.BarReader
	symbols []string
	state   map[string]position
}

// NewBreakout creates a new breakout strategy.
func NewBreakout(cfg BreakoutConfig, bars observer.BarReader, symbols []string) (*Breakout, error) {
	if cfg.LookbackBars < 1 {
		return nil, fmt.Errorf("%w: breakout lookback %d", types.ErrInvalidConfig, cfg.LookbackBars)
	}
	b := &Breakout{
		cfg:     cfg,
		bars:    bars,
		symbols: append([]string(nil), symbols...),
	}
	b.Reset()
	return b, nil
}

// CalculateSignals checks the symbols that received a fresh bar.
func (b *Breakout) CalculateSignals(ctx context.Context, event types.MarketEvent) ([]types.SignalEvent, error) {
	var signals []types.SignalEvent

	for _, sym := range event.Symbols {
		if _, ok := b.state[sym]; !ok {
			continue
		}
		window, err := b.bars.LatestBars(sym, b.cfg.LookbackBars+1)
		if errors.Is(err, types.ErrNoMarketData) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", sym, err)
		}
		if len(window) <= b.cfg.LookbackBars {
			continue
		}

		current := window[len(window)-1]
		rangeHigh, rangeLow := highLow(window[:len(window)-1])

		buffer := rangeHigh.Sub(rangeLow).Mul(b.cfg.BreakoutBuffer)
		upper := rangeHigh.Add(buffer)
		lower := rangeLow.Sub(buffer)

		builder := NewSignalBuilder(b.Name(), sym, event.Timestamp)
		switch {
		case current.Close.GreaterThan(upper) && b.state[sym] == out:
			signals = append(signals, builder.Long().WithReason("breakout above %s", upper.StringFixed(2)).Build())
			b.state[sym] = long
		case current.Close.GreaterThan(upper) && b.state[sym] == short:
			signals = append(signals, builder.Exit().WithReason("breakout above %s", upper.StringFixed(2)).Build())
			b.state[sym] = out
		case current.Close.LessThan(lower) && b.state[sym] == long:
			signals = append(signals, builder.Exit().WithReason("breakdown below %s", lower.StringFixed(2)).Build())
			b.state[sym] = out
		case current.Close.LessThan(lower) && b.state[sym] == out && b.cfg.AllowShort:
			signals = append(signals, builder.Short().WithReason("breakdown below %s", lower.StringFixed(2)).Build())
			b.state[sym] = short
		}
	}

	return signals, nil
}

// Name returns the strategy name.
func (b *Breakout) Name() string {
	return "breakout"
}

// Reset clears all state.
func (b *Breakout) Reset() {
	b.state = make(map[string]position, len(b.symbols))
	for _, s := range b.symbols {
		b.state[s] = out
	}
}

// highLow returns the highest high and lowest low of the bars.
func highLow(bars []types.Bar) (high, low decimal.Decimal) {
	if len(bars) == 0 {
		return decimal.Zero, decimal.Zero
	}
	high, low = bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		if b.High.GreaterThan(high) {
			high = b.High
		}
		if b.Low.LessThan(low) {
			low = b.Low
		}
	}
	return high, low
}
