package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/observer"
	"github.com/tathienbao/eventbt/internal/types"
)

// SimulatedConfig holds configuration for the simulated handler.
type SimulatedConfig struct {
	Exchange       string
	ReportFillCost bool // Report the latest adjusted close as fill cost
	Commission     types.CommissionSchedule
}

// DefaultSimulatedConfig fills on exchange "N/A" without a reported cost.
func DefaultSimulatedConfig() SimulatedConfig {
	return SimulatedConfig{
		Exchange:   "N/A",
		Commission: types.DefaultCommissionSchedule(),
	}
}

// SimulatedHandler fills every order immediately and in full, with no
// slippage and no latency. It is the backtest execution handler.
type SimulatedHandler struct {
	cfg  SimulatedConfig
	bars observer.BarReader
	now  func() time.Time
}

// NewSimulatedHandler creates a simulated handler. bars supplies fill
// timestamps and, with ReportFillCost, fill prices.
func NewSimulatedHandler(cfg SimulatedConfig, bars observer.BarReader) *SimulatedHandler {
	if cfg.Exchange == "" {
		cfg.Exchange = "N/A"
	}
	if cfg.Commission.PerShareMinimum.IsZero() && cfg.Commission.PercentageCap.IsZero() {
		cfg.Commission = types.DefaultCommissionSchedule()
	}
	return &SimulatedHandler{
		cfg:  cfg,
		bars: bars,
		now:  time.Now,
	}
}

// ExecuteOrder converts order into a fill dated at the symbol's latest bar.
func (s *SimulatedHandler) ExecuteOrder(ctx context.Context, order types.OrderEvent) (types.FillEvent, error) {
	if err := ctx.Err(); err != nil {
		return types.FillEvent{}, err
	}
	if err := order.Validate(); err != nil {
		return types.FillEvent{}, fmt.Errorf("%w: %v", types.ErrExecutionFailed, err)
	}

	ts, err := s.bars.LatestBarTime(order.Symbol)
	switch {
	case errors.Is(err, types.ErrNoMarketData):
		ts = s.now().UTC()
	case err != nil:
		return types.FillEvent{}, fmt.Errorf("%w: %v", types.ErrExecutionFailed, err)
	}

	var cost decimal.NullDecimal
	if s.cfg.ReportFillCost {
		price, err := s.bars.LatestValue(order.Symbol, types.FieldAdjClose)
		if err != nil {
			return types.FillEvent{}, fmt.Errorf("%w: price %s: %v", types.ErrExecutionFailed, order.Symbol, err)
		}
		cost = decimal.NewNullDecimal(price)
	}

	fill, err := s.cfg.Commission.NewFill(ts, order.Symbol, s.cfg.Exchange, order.Quantity, order.Side, cost, decimal.NullDecimal{})
	if err != nil {
		return types.FillEvent{}, fmt.Errorf("%w: %v", types.ErrExecutionFailed, err)
	}
	fill.OrderID = order.ID
	return fill, nil
}
