package observer

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/types"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdent(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("%w: table name %q", types.ErrInvalidConfig, name)
	}
	return nil
}

// BarStore keeps historical bars in a SQLite table.
// Prices are stored as TEXT to keep decimal precision.
type BarStore struct {
	db    *sql.DB
	table string
}

// OpenBarStore opens (or creates) a bar database at path.
func OpenBarStore(ctx context.Context, path, table string) (*BarStore, error) {
	if table == "" {
		table = "bars"
	}
	if err := validIdent(table); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &BarStore{db: db, table: table}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *BarStore) migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			symbol TEXT NOT NULL,
			ts DATETIME NOT NULL,
			open TEXT NOT NULL,
			high TEXT NOT NULL,
			low TEXT NOT NULL,
			close TEXT NOT NULL,
			volume INTEGER NOT NULL DEFAULT 0,
			adj_close TEXT NOT NULL,
			PRIMARY KEY (symbol, ts)
		)`, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}
	return nil
}

// Insert writes bars in one transaction, replacing rows with the same key.
func (s *BarStore) Insert(ctx context.Context, bars []types.Bar) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT OR REPLACE INTO %s (symbol, ts, open, high, low, close, volume, adj_close)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.table))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx, b.Symbol, b.Timestamp.UTC(),
			b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(),
			b.Volume, b.AdjClose.String())
		if err != nil {
			return fmt.Errorf("insert %s: %w", b.Symbol, err)
		}
	}
	return tx.Commit()
}

// Load reads the bars for each symbol inside [start, end]. Zero bounds are open.
func (s *BarStore) Load(ctx context.Context, symbols []string, start, end time.Time) (map[string][]types.Bar, error) {
	if end.IsZero() {
		end = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	query := fmt.Sprintf(
		`SELECT ts, open, high, low, close, volume, adj_close FROM %s
		 WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts ASC`, s.table)

	out := make(map[string][]types.Bar, len(symbols))
	for _, sym := range symbols {
		rows, err := s.db.QueryContext(ctx, query, sym, start.UTC(), end.UTC())
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", sym, err)
		}
		bars, err := scanBars(rows, sym)
		rows.Close()
		if err != nil {
			return nil, err
		}
		if len(bars) == 0 {
			return nil, fmt.Errorf("%w: %s", types.ErrNoMarketData, sym)
		}
		out[sym] = bars
	}
	return out, nil
}

func scanBars(rows *sql.Rows, symbol string) ([]types.Bar, error) {
	var bars []types.Bar
	for rows.Next() {
		var (
			ts                         time.Time
			open, high, low, cls, adjc string
			volume                     int64
		)
		if err := rows.Scan(&ts, &open, &high, &low, &cls, &volume, &adjc); err != nil {
			return nil, fmt.Errorf("scan %s: %w", symbol, err)
		}
		bar := types.Bar{Symbol: symbol, Timestamp: ts.UTC(), Volume: volume}
		var err error
		for _, p := range []struct {
			raw string
			dst *decimal.Decimal
		}{{open, &bar.Open}, {high, &bar.High}, {low, &bar.Low}, {cls, &bar.Close}, {adjc, &bar.AdjClose}} {
			if *p.dst, err = decimal.NewFromString(p.raw); err != nil {
				return nil, fmt.Errorf("%w: %s price %q", types.ErrInvalidData, symbol, p.raw)
			}
		}
		bars = append(bars, bar)
	}
	return bars, rows.Err()
}

// Close closes the database.
func (s *BarStore) Close() error {
	return s.db.Close()
}
