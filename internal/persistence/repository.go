// Package persistence journals finished runs: the headline summary, the
// holdings history, every fill and every closed trade.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/backtest"
	"github.com/tathienbao/eventbt/internal/types"
)

// ErrRunNotFound is returned when a run ID has no journal entry.
var ErrRunNotFound = errors.New("run not found")

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Repository defines the interface for the run journal.
type Repository interface {
	// Run operations
	SaveRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, runID string) (*RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// History operations
	SaveHoldings(ctx context.Context, runID string, holdings []HoldingsRecord) error
	GetHoldings(ctx context.Context, runID string) ([]HoldingsRecord, error)
	SaveFills(ctx context.Context, runID string, fills []FillRecord) error
	GetFills(ctx context.Context, runID string) ([]FillRecord, error)
	SaveTrades(ctx context.Context, runID string, trades []TradeRecord) error
	GetTrades(ctx context.Context, runID string) ([]TradeRecord, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// RunRecord is the journal header of one run.
type RunRecord struct {
	ID               string
	Strategy         string
	Instruments      []string
	Status           string
	Error            string
	StartedAt        time.Time
	FinishedAt       time.Time
	StartEquity      decimal.Decimal
	EndEquity        decimal.Decimal
	TotalReturn      decimal.Decimal
	SharpeRatio      decimal.Decimal
	SortinoRatio     decimal.Decimal
	MaxDrawdown      decimal.Decimal
	DrawdownDuration int
	Heartbeats       int
	Signals          int
	Orders           int
	Fills            int
}

// HoldingsRecord is one dated valuation snapshot.
type HoldingsRecord struct {
	Timestamp  time.Time
	Cash       decimal.Decimal
	Commission decimal.Decimal
	Total      decimal.Decimal
}

// FillRecord is a persisted fill. FillCost is null when the venue did not
// report one.
type FillRecord struct {
	OrderID    string
	Timestamp  time.Time
	Symbol     string
	Exchange   string
	Side       types.Side
	Quantity   int64
	FillCost   decimal.NullDecimal
	Commission decimal.Decimal
}

// TradeRecord is a persisted round trip.
type TradeRecord struct {
	ID         string
	Symbol     string
	Side       types.Side
	Quantity   int64
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	EntryTime  time.Time
	ExitTime   time.Time
	GrossPL    decimal.Decimal
	Commission decimal.Decimal
	NetPL      decimal.Decimal
}

// Open returns the repository named by kind: "sqlite" opens the file at
// target, "postgres" treats target as a connection string.
func Open(ctx context.Context, kind, target string) (Repository, error) {
	switch kind {
	case "sqlite":
		return NewSQLiteRepository(ctx, target)
	case "postgres":
		return NewPostgresRepository(ctx, PostgresOption{ConnString: target})
	default:
		return nil, fmt.Errorf("%w: persistence type %q", types.ErrInvalidConfig, kind)
	}
}

// Save journals a finished run. An aborted run is stored with status
// failed and its error text.
func Save(ctx context.Context, repo Repository, result *backtest.Result) error {
	if result == nil {
		return fmt.Errorf("%w: nil result", types.ErrInvalidConfig)
	}

	if err := repo.SaveRun(ctx, NewRunRecord(result)); err != nil {
		return fmt.Errorf("save run %s: %w", result.RunID, err)
	}

	holdings := make([]HoldingsRecord, len(result.Holdings))
	for i, h := range result.Holdings {
		holdings[i] = HoldingsRecord{Timestamp: h.Timestamp, Cash: h.Cash, Commission: h.Commission, Total: h.Total}
	}
	if err := repo.SaveHoldings(ctx, result.RunID, holdings); err != nil {
		return fmt.Errorf("save holdings %s: %w", result.RunID, err)
	}

	fills := make([]FillRecord, len(result.Fills))
	for i, f := range result.Fills {
		fills[i] = FillRecord{
			OrderID:    f.OrderID,
			Timestamp:  f.Timestamp,
			Symbol:     f.Symbol,
			Exchange:   f.Exchange,
			Side:       f.Side,
			Quantity:   f.Quantity,
			FillCost:   f.FillCost,
			Commission: f.Commission,
		}
	}
	if err := repo.SaveFills(ctx, result.RunID, fills); err != nil {
		return fmt.Errorf("save fills %s: %w", result.RunID, err)
	}

	trades := make([]TradeRecord, len(result.Trades))
	for i, t := range result.Trades {
		trades[i] = TradeRecord{
			ID:         t.ID,
			Symbol:     t.Symbol,
			Side:       t.Side,
			Quantity:   t.Quantity,
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			EntryTime:  t.EntryTime,
			ExitTime:   t.ExitTime,
			GrossPL:    t.GrossPL,
			Commission: t.Commission,
			NetPL:      t.NetPL,
		}
	}
	if err := repo.SaveTrades(ctx, result.RunID, trades); err != nil {
		return fmt.Errorf("save trades %s: %w", result.RunID, err)
	}
	return nil
}

// NewRunRecord builds the journal header for result.
func NewRunRecord(result *backtest.Result) RunRecord {
	rec := RunRecord{
		ID:               result.RunID,
		Strategy:         result.Strategy,
		Instruments:      append([]string(nil), result.Instruments...),
		Status:           StatusCompleted,
		StartedAt:        result.StartedAt,
		FinishedAt:       result.FinishedAt,
		StartEquity:      result.Summary.StartEquity,
		EndEquity:        result.Summary.EndEquity,
		TotalReturn:      result.Summary.TotalReturn,
		SharpeRatio:      result.Summary.SharpeRatio,
		SortinoRatio:     result.Summary.SortinoRatio,
		MaxDrawdown:      result.Summary.MaxDrawdown,
		DrawdownDuration: result.Summary.DrawdownDuration,
		Heartbeats:       result.Stats.Heartbeats,
		Signals:          result.Stats.Signals,
		Orders:           result.Stats.Orders,
		Fills:            result.Stats.Fills,
	}
	if result.Err != nil {
		rec.Status = StatusFailed
		rec.Error = result.Err.Error()
	}
	return rec
}

func joinInstruments(symbols []string) string {
	return strings.Join(symbols, ",")
}

func splitInstruments(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
