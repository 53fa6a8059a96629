package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tathienbao/eventbt/internal/observer"
	"github.com/tathienbao/eventbt/internal/types"
	"github.com/tathienbao/eventbt/pkg/indicator"
)

// MACConfig holds configuration for the moving average crossover.
type MACConfig struct {
	ShortWindow int
	LongWindow  int
}

// DefaultMACConfig returns the classic 100/400 bar windows.
func DefaultMACConfig() MACConfig {
	return MACConfig{
		ShortWindow: 100,
		LongWindow:  400,
	}
}

// Validate checks the windows.
func (c MACConfig) Validate() error {
	if c.ShortWindow < 1 || c.LongWindow <= c.ShortWindow {
		return fmt.Errorf("%w: mac windows short=%d long=%d", types.ErrInvalidConfig, c.ShortWindow, c.LongWindow)
	}
	return nil
}

// MovingAverageCrossover goes long when the short SMA of adjusted close
// rises above the long SMA and exits when it falls back below.
// Long only. Signals start once LongWindow bars are available.
type MovingAverageCrossover struct {
	cfg     MACConfig
	bars    observer.BarReader
	symbols []string
	state   map[string]position
	logger  *slog.Logger
}

// NewMovingAverageCrossover creates the strategy for the given symbols.
func NewMovingAverageCrossover(cfg MACConfig, bars observer.BarReader, symbols []string, logger *slog.Logger) (*MovingAverageCrossover, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &MovingAverageCrossover{
		cfg:     cfg,
		bars:    bars,
		symbols: append([]string(nil), symbols...),
		logger:  logger,
	}
	m.Reset()
	return m, nil
}

// CalculateSignals evaluates every tracked symbol against its latest bars.
func (m *MovingAverageCrossover) CalculateSignals(ctx context.Context, event types.MarketEvent) ([]types.SignalEvent, error) {
	var signals []types.SignalEvent

	for _, sym := range m.symbols {
		values, err := m.bars.LatestValues(sym, types.FieldAdjClose, m.cfg.LongWindow)
		if errors.Is(err, types.ErrNoMarketData) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", sym, err)
		}
		if len(values) < m.cfg.LongWindow {
			continue
		}

		shortSMA := indicator.Mean(values[len(values)-m.cfg.ShortWindow:])
		longSMA := indicator.Mean(values)

		switch {
		case shortSMA.GreaterThan(longSMA) && m.state[sym] == out:
			m.logger.Info("long", "symbol", sym, "timestamp", event.Timestamp)
			signals = append(signals, NewSignalBuilder(m.Name(), sym, event.Timestamp).
				Long().
				WithReason("sma%d %s > sma%d %s", m.cfg.ShortWindow, shortSMA.StringFixed(4), m.cfg.LongWindow, longSMA.StringFixed(4)).
				Build())
			m.state[sym] = long
		case shortSMA.LessThan(longSMA) && m.state[sym] == long:
			m.logger.Info("exit", "symbol", sym, "timestamp", event.Timestamp)
			signals = append(signals, NewSignalBuilder(m.Name(), sym, event.Timestamp).
				Exit().
				WithReason("sma%d %s < sma%d %s", m.cfg.ShortWindow, shortSMA.StringFixed(4), m.cfg.LongWindow, longSMA.StringFixed(4)).
				Build())
			m.state[sym] = out
		}
	}

	return signals, nil
}

// Name returns the strategy name.
func (m *MovingAverageCrossover) Name() string {
	return "mac"
}

// Reset puts every symbol back out of the market.
func (m *MovingAverageCrossover) Reset() {
	m.state = make(map[string]position, len(m.symbols))
	for _, s := range m.symbols {
		m.state[s] = out
	}
}
