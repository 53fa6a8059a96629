// Package paper provides a simulated broker for paper trading.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/broker"
	"github.com/tathienbao/eventbt/internal/observer"
	"github.com/tathienbao/eventbt/internal/types"
)

// Config holds paper trading configuration.
type Config struct {
	Exchange    string
	SlippageBps decimal.Decimal // Adverse slippage in basis points of price
	Commission  types.CommissionSchedule
	FillDelay   time.Duration

	// FailFirst makes the first N PlaceOrder calls return FailWith.
	FailFirst int
	FailWith  error
}

// DefaultConfig returns default paper trading config.
func DefaultConfig() Config {
	return Config{
		Exchange:    "PAPER",
		SlippageBps: decimal.Zero,
		Commission:  types.DefaultCommissionSchedule(),
		FillDelay:   50 * time.Millisecond,
	}
}

// Broker implements broker.Broker by filling every order at the latest
// adjusted close seen by a BarReader.
type Broker struct {
	cfg    Config
	bars   observer.BarReader
	logger *slog.Logger
	now    func() time.Time

	state       atomic.Int32
	nextOrderID atomic.Int64
	failures    atomic.Int64

	mu         sync.RWMutex
	positions  map[string]int64
	executions []broker.Execution
}

// NewBroker creates a new paper trading broker.
func NewBroker(cfg Config, bars observer.BarReader, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Exchange == "" {
		cfg.Exchange = "PAPER"
	}
	if cfg.FailWith == nil {
		cfg.FailWith = broker.ErrRateLimited
	}

	b := &Broker{
		cfg:       cfg,
		bars:      bars,
		logger:    logger,
		now:       time.Now,
		positions: make(map[string]int64),
	}

	b.state.Store(int32(broker.StateDisconnected))
	b.failures.Store(int64(cfg.FailFirst))

	return b
}

// Name returns the broker name.
func (b *Broker) Name() string {
	return b.cfg.Exchange
}

// Connect simulates connecting to broker.
func (b *Broker) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.state.Store(int32(broker.StateConnected))
	b.logger.Info("paper broker connected", "exchange", b.cfg.Exchange)
	return nil
}

// Disconnect simulates disconnecting.
func (b *Broker) Disconnect() error {
	b.state.Store(int32(broker.StateDisconnected))
	b.logger.Info("paper broker disconnected")
	return nil
}

// State returns the connection state.
func (b *Broker) State() broker.ConnectionState {
	return broker.ConnectionState(b.state.Load())
}

// IsConnected returns true if connected.
func (b *Broker) IsConnected() bool {
	return b.State() == broker.StateConnected
}

// PlaceOrder fills order after the configured delay. Limit orders are
// rejected when the market is through the limit.
func (b *Broker) PlaceOrder(ctx context.Context, order types.OrderEvent) (*broker.Execution, error) {
	if !b.IsConnected() {
		return nil, broker.ErrNotConnected
	}
	if err := order.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", broker.ErrOrderRejected, err)
	}
	if b.failures.Add(-1) >= 0 {
		return nil, b.cfg.FailWith
	}

	if b.cfg.FillDelay > 0 {
		timer := time.NewTimer(b.cfg.FillDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	price, err := b.bars.LatestValue(order.Symbol, types.FieldAdjClose)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", broker.ErrNoPrice, order.Symbol, err)
	}
	price = b.slip(price, order.Side)

	if order.Type == types.OrderKindLimit {
		if (order.Side == types.SideBuy && price.GreaterThan(order.LimitPrice)) ||
			(order.Side == types.SideSell && price.LessThan(order.LimitPrice)) {
			return nil, fmt.Errorf("%w: %s limit %s, market %s", broker.ErrOrderRejected, order, order.LimitPrice, price)
		}
	}

	exec := broker.Execution{
		OrderID:    fmt.Sprintf("PAPER-%d", b.nextOrderID.Add(1)),
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   order.Quantity,
		Price:      price,
		Commission: decimal.NewNullDecimal(b.cfg.Commission.Compute(order.Quantity, decimal.NewNullDecimal(price))),
		Exchange:   b.cfg.Exchange,
		FilledAt:   b.now().UTC(),
	}

	b.mu.Lock()
	b.positions[order.Symbol] += order.Side.Sign() * order.Quantity
	b.executions = append(b.executions, exec)
	b.mu.Unlock()

	b.logger.Info("paper order filled",
		"order_id", exec.OrderID,
		"symbol", exec.Symbol,
		"side", exec.Side,
		"qty", exec.Quantity,
		"price", exec.Price,
		"commission", exec.Commission.Decimal,
	)

	return &exec, nil
}

func (b *Broker) slip(price decimal.Decimal, side types.Side) decimal.Decimal {
	if b.cfg.SlippageBps.IsZero() {
		return price
	}
	adj := price.Mul(b.cfg.SlippageBps).Div(decimal.NewFromInt(10000))
	if side == types.SideBuy {
		return price.Add(adj)
	}
	return price.Sub(adj)
}

// Position returns the broker's view of the net position in symbol.
func (b *Broker) Position(symbol string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.positions[symbol]
}

// Executions returns a copy of every execution so far.
func (b *Broker) Executions() []broker.Execution {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]broker.Execution, len(b.executions))
	copy(out, b.executions)
	return out
}
