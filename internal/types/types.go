// Package types defines the bar record, the event taxonomy and the enums
// shared across the backtesting engine.
package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the side of an order or fill.
type Side int

const (
	SideBuy Side = iota + 1
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the opposite side.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return s
	}
}

// Sign returns +1 for buys and -1 for sells. Any other value yields 0.
func (s Side) Sign() int64 {
	switch s {
	case SideBuy:
		return 1
	case SideSell:
		return -1
	default:
		return 0
	}
}

// ParseSide parses "BUY" or "SELL" (case-insensitive).
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	default:
		return 0, fmt.Errorf("%w: side %q", ErrInvalidOrder, s)
	}
}

// Direction is the advisory direction carried by a signal.
type Direction int

const (
	DirectionLong Direction = iota + 1
	DirectionShort
	DirectionExit
)

func (d Direction) String() string {
	switch d {
	case DirectionLong:
		return "LONG"
	case DirectionShort:
		return "SHORT"
	case DirectionExit:
		return "EXIT"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort || d == DirectionExit
}

// OrderKind is the order type.
type OrderKind int

const (
	OrderKindMarket OrderKind = iota + 1
	OrderKindLimit
)

func (k OrderKind) String() string {
	switch k {
	case OrderKindMarket:
		return "MKT"
	case OrderKindLimit:
		return "LMT"
	default:
		return "UNKNOWN"
	}
}

// BarField selects one numeric column of a Bar.
type BarField int

const (
	FieldOpen BarField = iota + 1
	FieldHigh
	FieldLow
	FieldClose
	FieldVolume
	FieldAdjClose
)

var barFieldNames = map[BarField]string{
	FieldOpen:     "open",
	FieldHigh:     "high",
	FieldLow:      "low",
	FieldClose:    "close",
	FieldVolume:   "volume",
	FieldAdjClose: "adj_close",
}

func (f BarField) String() string {
	if name, ok := barFieldNames[f]; ok {
		return name
	}
	return "unknown"
}

// ParseBarField maps a column name such as "close" or "adj_close" to its field.
func ParseBarField(name string) (BarField, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for f, fname := range barFieldNames {
		if fname == n {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown bar field %q", ErrInvalidData, name)
}

// Bar is one OHLCV observation, plus adjusted close, for one instrument.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
	AdjClose  decimal.Decimal
}

// Value returns the column selected by f.
func (b Bar) Value(f BarField) (decimal.Decimal, error) {
	switch f {
	case FieldOpen:
		return b.Open, nil
	case FieldHigh:
		return b.High, nil
	case FieldLow:
		return b.Low, nil
	case FieldClose:
		return b.Close, nil
	case FieldVolume:
		return decimal.NewFromInt(b.Volume), nil
	case FieldAdjClose:
		return b.AdjClose, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown bar field %d", ErrInvalidData, f)
	}
}

// Validate checks the bar for obviously broken prices.
func (b Bar) Validate() error {
	if b.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidData)
	}
	if b.Timestamp.IsZero() {
		return fmt.Errorf("%w: %s has zero timestamp", ErrInvalidData, b.Symbol)
	}
	for _, p := range []decimal.Decimal{b.Open, b.High, b.Low, b.Close, b.AdjClose} {
		if p.IsNegative() {
			return fmt.Errorf("%w: %s at %s has negative price", ErrInvalidPrice, b.Symbol, b.Timestamp.Format(time.RFC3339))
		}
	}
	if b.High.LessThan(b.Low) {
		return fmt.Errorf("%w: %s at %s has high < low", ErrInvalidPrice, b.Symbol, b.Timestamp.Format(time.RFC3339))
	}
	if b.Volume < 0 {
		return fmt.Errorf("%w: %s has negative volume", ErrInvalidData, b.Symbol)
	}
	return nil
}
