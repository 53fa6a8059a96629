package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EventKind tags each event variant.
type EventKind int

const (
	EventMarket EventKind = iota + 1
	EventSignal
	EventOrder
	EventFill
)

func (k EventKind) String() string {
	switch k {
	case EventMarket:
		return "MARKET"
	case EventSignal:
		return "SIGNAL"
	case EventOrder:
		return "ORDER"
	case EventFill:
		return "FILL"
	default:
		return "UNKNOWN"
	}
}

// Event is the closed set of messages flowing through the engine queue.
// Only the four variants in this package implement it.
type Event interface {
	Kind() EventKind
	event()
}

// MarketEvent announces that new bars are available as of Timestamp.
// Symbols lists the instruments that received a fresh bar.
type MarketEvent struct {
	Timestamp time.Time
	Symbols   []string
}

func (MarketEvent) Kind() EventKind { return EventMarket }
func (MarketEvent) event()          {}

// SignalEvent is strategy advice. It never changes ledger state by itself.
type SignalEvent struct {
	ID         string
	StrategyID string
	Symbol     string
	Timestamp  time.Time
	Direction  Direction
	Strength   decimal.Decimal
	Reason     string
}

func (SignalEvent) Kind() EventKind { return EventSignal }
func (SignalEvent) event()          {}

// Validate checks direction and strength.
func (s SignalEvent) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidSignal)
	}
	if !s.Direction.Valid() {
		return fmt.Errorf("%w: direction %d", ErrInvalidSignal, s.Direction)
	}
	if !s.Strength.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidStrength, s.Strength)
	}
	return nil
}

// OrderEvent is a request to transact.
type OrderEvent struct {
	ID         string
	SignalID   string
	Symbol     string
	Type       OrderKind
	Quantity   int64
	Side       Side
	LimitPrice decimal.Decimal
}

func (OrderEvent) Kind() EventKind { return EventOrder }
func (OrderEvent) event()          {}

// NewOrderEvent builds a validated order. Limit orders need a positive price.
func NewOrderEvent(id, symbol string, kind OrderKind, qty int64, side Side, limit decimal.Decimal) (OrderEvent, error) {
	o := OrderEvent{
		ID:         id,
		Symbol:     symbol,
		Type:       kind,
		Quantity:   qty,
		Side:       side,
		LimitPrice: limit,
	}
	if err := o.Validate(); err != nil {
		return OrderEvent{}, err
	}
	return o, nil
}

// Validate rejects zero quantities, unknown sides and unpriced limit orders.
func (o OrderEvent) Validate() error {
	if o.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidOrder)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, o.Quantity)
	}
	if o.Side.Sign() == 0 {
		return fmt.Errorf("%w: side %d", ErrInvalidOrder, o.Side)
	}
	switch o.Type {
	case OrderKindMarket:
	case OrderKindLimit:
		if !o.LimitPrice.IsPositive() {
			return fmt.Errorf("%w: limit order needs a positive price", ErrInvalidOrder)
		}
	default:
		return fmt.Errorf("%w: order kind %d", ErrInvalidOrder, o.Type)
	}
	return nil
}

func (o OrderEvent) String() string {
	return fmt.Sprintf("%s %s %d %s", o.Type, o.Side, o.Quantity, o.Symbol)
}

// FillEvent is the authoritative record of a completed transaction.
// FillCost is the per-unit price when the venue reported one.
type FillEvent struct {
	Timestamp  time.Time
	Symbol     string
	Exchange   string
	Quantity   int64
	Side       Side
	FillCost   decimal.NullDecimal
	Commission decimal.Decimal
	OrderID    string
}

func (FillEvent) Kind() EventKind { return EventFill }
func (FillEvent) event()          {}

// NewFillEvent builds a fill. When commission is null it is derived from
// the default schedule, which yields zero if the fill cost is unknown.
func NewFillEvent(ts time.Time, symbol, exchange string, qty int64, side Side, cost, commission decimal.NullDecimal) (FillEvent, error) {
	return DefaultCommissionSchedule().NewFill(ts, symbol, exchange, qty, side, cost, commission)
}

// Validate checks quantity, side and non-negative money fields.
func (f FillEvent) Validate() error {
	if f.Symbol == "" {
		return fmt.Errorf("%w: fill with empty symbol", ErrInvalidOrder)
	}
	if f.Quantity < 0 {
		return fmt.Errorf("%w: fill quantity %d", ErrInvalidQuantity, f.Quantity)
	}
	if f.Side.Sign() == 0 {
		return fmt.Errorf("%w: fill side %d", ErrInvalidOrder, f.Side)
	}
	if f.FillCost.Valid && f.FillCost.Decimal.IsNegative() {
		return fmt.Errorf("%w: fill cost %s", ErrInvalidPrice, f.FillCost.Decimal)
	}
	if f.Commission.IsNegative() {
		return fmt.Errorf("%w: commission %s", ErrInvalidPrice, f.Commission)
	}
	return nil
}
