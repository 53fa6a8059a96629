package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/observer"
	"github.com/tathienbao/eventbt/internal/types"
)

// MeanRevConfig holds configuration for the mean reversion strategy.
type MeanRevConfig struct {
	Period      int             // Period for SMA and StdDev
	EntryStdDev decimal.Decimal // Number of StdDevs from mean to enter (e.g., 2.0)
	MinStdDev   decimal.Decimal // Minimum StdDev to generate signal
	AllowShort  bool
}

// DefaultMeanRevConfig returns sensible defaults.
func DefaultMeanRevConfig() MeanRevConfig {
	return MeanRevConfig{
		Period:      20,
		EntryStdDev: decimal.RequireFromString("2.0"),
		MinStdDev:   decimal.Zero,
	}
}

// MeanReversion buys when adjusted close falls below SMA - k*StdDev and
// exits once price is back at the mean. With AllowShort it also sells
// above SMA + k*StdDev. Bands come from the bars before the current one.
type MeanReversion struct {
	cfg   MeanRevConfig
	bars  observer.BarReader
	calc  *observer.Calculator
	state map[string]position
	prev  map[string]observer.Indicators
	syms  []string
}

// NewMeanReversion creates a new mean reversion strategy.
func NewMeanReversion(cfg MeanRevConfig, bars observer.BarReader, symbols []string) (*MeanReversion, error) {
	if cfg.Period < 2 {
		return nil, fmt.Errorf("%w: meanrev period %d", types.ErrInvalidConfig, cfg.Period)
	}
	m := &MeanReversion{
		cfg:  cfg,
		bars: bars,
		syms: append([]string(nil), symbols...),
	}
	m.Reset()
	return m, nil
}

// CalculateSignals feeds fresh bars into the per-symbol indicators and
// compares each close against the bands from the previous bar.
func (m *MeanReversion) CalculateSignals(ctx context.Context, event types.MarketEvent) ([]types.SignalEvent, error) {
	var signals []types.SignalEvent

	for _, sym := range event.Symbols {
		if _, ok := m.state[sym]; !ok {
			continue
		}
		bar, err := m.bars.LatestBar(sym)
		if errors.Is(err, types.ErrNoMarketData) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", sym, err)
		}

		prev := m.prev[sym]
		m.prev[sym] = m.calc.OnBar(bar)
		if !prev.Ready {
			continue
		}
		if !m.cfg.MinStdDev.IsZero() && prev.StdDev.LessThan(m.cfg.MinStdDev) {
			continue
		}

		deviation := prev.StdDev.Mul(m.cfg.EntryStdDev)
		upper := prev.SMA.Add(deviation)
		lower := prev.SMA.Sub(deviation)
		price := bar.AdjClose

		builder := NewSignalBuilder(m.Name(), sym, event.Timestamp)
		switch m.state[sym] {
		case out:
			if price.LessThan(lower) {
				signals = append(signals, builder.Long().
					WithReason("price %s below lower band %s", price.StringFixed(2), lower.StringFixed(2)).Build())
				m.state[sym] = long
			} else if m.cfg.AllowShort && price.GreaterThan(upper) {
				signals = append(signals, builder.Short().
					WithReason("price %s above upper band %s", price.StringFixed(2), upper.StringFixed(2)).Build())
				m.state[sym] = short
			}
		case long:
			if price.GreaterThanOrEqual(prev.SMA) {
				signals = append(signals, builder.Exit().
					WithReason("price %s back at mean %s", price.StringFixed(2), prev.SMA.StringFixed(2)).Build())
				m.state[sym] = out
			}
		case short:
			if price.LessThanOrEqual(prev.SMA) {
				signals = append(signals, builder.Exit().
					WithReason("price %s back at mean %s", price.StringFixed(2), prev.SMA.StringFixed(2)).Build())
				m.state[sym] = out
			}
		}
	}

	return signals, nil
}

// Name returns the strategy name.
func (m *MeanReversion) Name() string {
	return "meanrev"
}

// Reset clears all state.
func (m *MeanReversion) Reset() {
	if m.calc == nil {
		m.calc = observer.NewCalculator(observer.CalculatorConfig{
			ATRPeriod:    m.cfg.Period,
			StdDevPeriod: m.cfg.Period,
			SMAPeriod:    m.cfg.Period,
		})
	}
	m.calc.Reset()
	m.state = make(map[string]position, len(m.syms))
	m.prev = make(map[string]observer.Indicators, len(m.syms))
	for _, s := range m.syms {
		m.state[s] = out
	}
}

// Bands returns the current upper and lower bands for symbol.
func (m *MeanReversion) Bands(symbol string) (upper, lower decimal.Decimal) {
	ind := m.calc.Current(symbol)
	deviation := ind.StdDev.Mul(m.cfg.EntryStdDev)
	return ind.SMA.Add(deviation), ind.SMA.Sub(deviation)
}
