// Package strategy implements trading strategies.
package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/types"
)

// Strategy turns market events into advisory signals.
// Strategies read bars through an observer.BarReader supplied at
// construction and must not size positions or touch the ledger.
type Strategy interface {
	// CalculateSignals reacts to a market event and returns zero or more signals.
	CalculateSignals(ctx context.Context, event types.MarketEvent) ([]types.SignalEvent, error)

	// Name returns the strategy identifier.
	Name() string
}

// Resetter is implemented by strategies that keep per-run state.
type Resetter interface {
	Reset()
}

// SignalBuilder helps construct signals with consistent defaults.
type SignalBuilder struct {
	signal types.SignalEvent
}

// NewSignalBuilder creates a builder for one symbol at one timestamp.
func NewSignalBuilder(strategyID, symbol string, ts time.Time) *SignalBuilder {
	return &SignalBuilder{
		signal: types.SignalEvent{
			ID:         uuid.New().String(),
			StrategyID: strategyID,
			Symbol:     symbol,
			Timestamp:  ts,
			Strength:   decimal.NewFromInt(1),
		},
	}
}

// Long sets the signal direction to long.
func (b *SignalBuilder) Long() *SignalBuilder {
	b.signal.Direction = types.DirectionLong
	return b
}

// Short sets the signal direction to short.
func (b *SignalBuilder) Short() *SignalBuilder {
	b.signal.Direction = types.DirectionShort
	return b
}

// Exit sets the signal direction to exit.
func (b *SignalBuilder) Exit() *SignalBuilder {
	b.signal.Direction = types.DirectionExit
	return b
}

// WithStrength sets the signal strength.
func (b *SignalBuilder) WithStrength(strength decimal.Decimal) *SignalBuilder {
	b.signal.Strength = strength
	return b
}

// WithReason sets the signal reason.
func (b *SignalBuilder) WithReason(format string, args ...any) *SignalBuilder {
	b.signal.Reason = fmt.Sprintf(format, args...)
	return b
}

// Build returns the constructed signal.
func (b *SignalBuilder) Build() types.SignalEvent {
	return b.signal
}

// MultiStrategy combines multiple strategies.
type MultiStrategy struct {
	strategies []Strategy
	name       string
}

// NewMultiStrategy creates a strategy that runs multiple sub-strategies.
func NewMultiStrategy(name string, strategies ...Strategy) *MultiStrategy {
	return &MultiStrategy{
		strategies: strategies,
		name:       name,
	}
}

// CalculateSignals runs every sub-strategy in order and concatenates their signals.
func (m *MultiStrategy) CalculateSignals(ctx context.Context, event types.MarketEvent) ([]types.SignalEvent, error) {
	var all []types.SignalEvent

	for _, s := range m.strategies {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		signals, err := s.CalculateSignals(ctx, event)
		if err != nil {
			return all, fmt.Errorf("%s: %w", s.Name(), err)
		}
		all = append(all, signals...)
	}

	return all, nil
}

// Name returns the multi-strategy name.
func (m *MultiStrategy) Name() string {
	return m.name
}

// Reset resets all sub-strategies that keep state.
func (m *MultiStrategy) Reset() {
	for _, s := range m.strategies {
		if r, ok := s.(Resetter); ok {
			r.Reset()
		}
	}
}

// position is the strategy's own view of whether it is in the market.
type position int

const (
	out position = iota
	long
	short
)
