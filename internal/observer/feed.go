// Package observer supplies market data to the engine: time-ordered bar
// sources and read-only views of the bars released so far.
package observer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/types"
)

// DataSource releases bars to the engine one timestamp at a time.
type DataSource interface {
	// HasMore reports whether Advance can produce another market event.
	HasMore() bool

	// Advance releases the next bars and returns the market event announcing
	// them. It returns types.ErrDataExhausted once the source is drained.
	// Timestamps never decrease across calls.
	Advance(ctx context.Context) (types.MarketEvent, error)
}

// BarReader gives strategies, the portfolio and simulated execution access
// to bars already released by Advance. Bars not yet released are invisible.
type BarReader interface {
	// LatestBar returns the most recent bar for symbol.
	LatestBar(symbol string) (types.Bar, error)

	// LatestBars returns up to n most recent bars, oldest first.
	LatestBars(symbol string, n int) ([]types.Bar, error)

	// LatestBarTime returns the timestamp of the most recent bar.
	LatestBarTime(symbol string) (time.Time, error)

	// LatestValue returns one column of the most recent bar.
	LatestValue(symbol string, field types.BarField) (decimal.Decimal, error)

	// LatestValues returns one column of up to n most recent bars, oldest first.
	LatestValues(symbol string, field types.BarField, n int) ([]decimal.Decimal, error)
}

// Feed is a data source that also serves its own released bars.
type Feed interface {
	DataSource
	BarReader

	// Symbols returns the tracked instruments.
	Symbols() []string

	// Name returns the feed identifier (e.g., "replay", "websocket").
	Name() string
}
