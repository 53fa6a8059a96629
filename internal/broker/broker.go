// Package broker defines the brokerage contract used by live execution.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/types"
)

// Common broker errors.
var (
	ErrNotConnected      = errors.New("broker not connected")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrOrderRejected     = errors.New("order rejected by broker")
	ErrRateLimited       = errors.New("rate limited by broker")
	ErrNoPrice           = errors.New("no price for symbol")
)

// IsRetryable reports whether err is a transient broker error worth another
// attempt. Rejections are final.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrNotConnected) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ConnectionState represents the broker connection state.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Broker places orders with a brokerage and reports their executions.
type Broker interface {
	// PlaceOrder submits the order and blocks until it executes, fails or
	// ctx is done.
	PlaceOrder(ctx context.Context, order types.OrderEvent) (*Execution, error)

	// Name identifies the broker in logs and as the fill exchange.
	Name() string
}

// Connector is implemented by brokers with an explicit session.
type Connector interface {
	Connect(ctx context.Context) error
	Disconnect() error
	State() ConnectionState
}

// Execution is a completed order as reported by the broker.
type Execution struct {
	OrderID    string
	Symbol     string
	Side       types.Side
	Quantity   int64
	Price      decimal.Decimal
	Commission decimal.NullDecimal
	Exchange   string
	FilledAt   time.Time
}

// Notional returns price times quantity.
func (e Execution) Notional() decimal.Decimal {
	return e.Price.Mul(decimal.NewFromInt(e.Quantity))
}
