package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteRepository implements Repository using SQLite. Decimals are stored
// as TEXT to keep their exact value.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (or creates) a journal at path.
func NewSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return repo, nil
}

// Migrate runs database migrations.
func (r *SQLiteRepository) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			strategy TEXT NOT NULL,
			instruments TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL,
			start_equity TEXT NOT NULL,
			end_equity TEXT NOT NULL,
			total_return TEXT NOT NULL,
			sharpe_ratio TEXT NOT NULL,
			sortino_ratio TEXT NOT NULL,
			max_drawdown TEXT NOT NULL,
			drawdown_duration INTEGER NOT NULL DEFAULT 0,
			heartbeats INTEGER NOT NULL DEFAULT 0,
			signals INTEGER NOT NULL DEFAULT 0,
			orders INTEGER NOT NULL DEFAULT 0,
			fills INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS holdings (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			timestamp DATETIME NOT NULL,
			cash TEXT NOT NULL,
			commission TEXT NOT NULL,
			total TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		)`,

		`CREATE TABLE IF NOT EXISTS fills (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			order_id TEXT NOT NULL DEFAULT '',
			timestamp DATETIME NOT NULL,
			symbol TEXT NOT NULL,
			exchange TEXT NOT NULL,
			side INTEGER NOT NULL,
			quantity INTEGER NOT NULL,
			fill_cost TEXT,
			commission TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fills_symbol ON fills(symbol)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			symbol TEXT NOT NULL,
			side INTEGER NOT NULL,
			quantity INTEGER NOT NULL,
			entry_price TEXT NOT NULL,
			exit_price TEXT NOT NULL,
			entry_time DATETIME NOT NULL,
			exit_time DATETIME NOT NULL,
			gross_pl TEXT NOT NULL,
			commission TEXT NOT NULL,
			net_pl TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run_id ON trades(run_id)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}
	return nil
}

// SaveRun inserts or replaces a run header.
func (r *SQLiteRepository) SaveRun(ctx context.Context, run RunRecord) error {
	query := `INSERT OR REPLACE INTO runs
		(id, strategy, instruments, status, error, started_at, finished_at, start_equity, end_equity,
		 total_return, sharpe_ratio, sortino_ratio, max_drawdown, drawdown_duration,
		 heartbeats, signals, orders, fills)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Strategy,
		joinInstruments(run.Instruments),
		run.Status,
		run.Error,
		run.StartedAt,
		run.FinishedAt,
		run.StartEquity.String(),
		run.EndEquity.String(),
		run.TotalReturn.String(),
		run.SharpeRatio.String(),
		run.SortinoRatio.String(),
		run.MaxDrawdown.String(),
		run.DrawdownDuration,
		run.Heartbeats,
		run.Signals,
		run.Orders,
		run.Fills,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const runColumns = `id, strategy, instruments, status, error, started_at, finished_at, start_equity, end_equity,
	total_return, sharpe_ratio, sortino_ratio, max_drawdown, drawdown_duration, heartbeats, signals, orders, fills`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var run RunRecord
	var instruments, startEq, endEq, ret, sharpe, sortino, maxDD string

	if err := row.Scan(&run.ID, &run.Strategy, &instruments, &run.Status, &run.Error, &run.StartedAt, &run.FinishedAt,
		&startEq, &endEq, &ret, &sharpe, &sortino, &maxDD, &run.DrawdownDuration,
		&run.Heartbeats, &run.Signals, &run.Orders, &run.Fills); err != nil {
		return RunRecord{}, err
	}

	run.Instruments = splitInstruments(instruments)
	err := parseDecimals(
		decimalField{startEq, &run.StartEquity},
		decimalField{endEq, &run.EndEquity},
		decimalField{ret, &run.TotalReturn},
		decimalField{sharpe, &run.SharpeRatio},
		decimalField{sortino, &run.SortinoRatio},
		decimalField{maxDD, &run.MaxDrawdown},
	)
	return run, err
}

// GetRun returns the header of one run, or ErrRunNotFound.
func (r *SQLiteRepository) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs first. A non-positive limit
// returns every run.
func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SaveHoldings replaces the holdings history of a run.
func (r *SQLiteRepository) SaveHoldings(ctx context.Context, runID string, holdings []HoldingsRecord) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM holdings WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("clear holdings: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO holdings (run_id, seq, timestamp, cash, commission, total) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for i, h := range holdings {
			if _, err := stmt.ExecContext(ctx, runID, i, h.Timestamp, h.Cash.String(), h.Commission.String(), h.Total.String()); err != nil {
				return fmt.Errorf("insert holdings %d: %w", i, err)
			}
		}
		return nil
	})
}

// GetHoldings returns the holdings history of a run in order.
func (r *SQLiteRepository) GetHoldings(ctx context.Context, runID string) ([]HoldingsRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT timestamp, cash, commission, total FROM holdings WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query holdings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []HoldingsRecord
	for rows.Next() {
		var h HoldingsRecord
		var cash, commission, total string
		if err := rows.Scan(&h.Timestamp, &cash, &commission, &total); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if err := parseDecimals(
			decimalField{cash, &h.Cash},
			decimalField{commission, &h.Commission},
			decimalField{total, &h.Total},
		); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// SaveFills replaces the fills of a run.
func (r *SQLiteRepository) SaveFills(ctx context.Context, runID string, fills []FillRecord) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM fills WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("clear fills: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO fills
			(run_id, seq, order_id, timestamp, symbol, exchange, side, quantity, fill_cost, commission)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for i, f := range fills {
			var cost sql.NullString
			if f.FillCost.Valid {
				cost = sql.NullString{String: f.FillCost.Decimal.String(), Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, runID, i, f.OrderID, f.Timestamp, f.Symbol, f.Exchange,
				f.Side, f.Quantity, cost, f.Commission.String()); err != nil {
				return fmt.Errorf("insert fill %d: %w", i, err)
			}
		}
		return nil
	})
}

// GetFills returns the fills of a run in the order they were applied.
func (r *SQLiteRepository) GetFills(ctx context.Context, runID string) ([]FillRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT order_id, timestamp, symbol, exchange, side, quantity, fill_cost, commission
		FROM fills WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query fills: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []FillRecord
	for rows.Next() {
		var f FillRecord
		var cost sql.NullString
		var commission string
		if err := rows.Scan(&f.OrderID, &f.Timestamp, &f.Symbol, &f.Exchange, &f.Side, &f.Quantity, &cost, &commission); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if cost.Valid {
			d, err := decimal.NewFromString(cost.String)
			if err != nil {
				return nil, fmt.Errorf("parse fill cost %q: %w", cost.String, err)
			}
			f.FillCost = decimal.NewNullDecimal(d)
		}
		if err := parseDecimals(decimalField{commission, &f.Commission}); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SaveTrades replaces the closed trades of a run.
func (r *SQLiteRepository) SaveTrades(ctx context.Context, runID string, trades []TradeRecord) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM trades WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("clear trades: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO trades
			(id, run_id, symbol, side, quantity, entry_price, exit_price, entry_time, exit_time, gross_pl, commission, net_pl)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, t := range trades {
			if _, err := stmt.ExecContext(ctx, t.ID, runID, t.Symbol, t.Side, t.Quantity,
				t.EntryPrice.String(), t.ExitPrice.String(), t.EntryTime, t.ExitTime,
				t.GrossPL.String(), t.Commission.String(), t.NetPL.String()); err != nil {
				return fmt.Errorf("insert trade %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

// GetTrades returns the closed trades of a run by exit time.
func (r *SQLiteRepository) GetTrades(ctx context.Context, runID string) ([]TradeRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, symbol, side, quantity, entry_price, exit_price, entry_time, exit_time, gross_pl, commission, net_pl
		FROM trades WHERE run_id = ? ORDER BY exit_time, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var entry, exit, gross, commission, net string
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Side, &t.Quantity, &entry, &exit, &t.EntryTime, &t.ExitTime, &gross, &commission, &net); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if err := parseDecimals(
			decimalField{entry, &t.EntryPrice},
			decimalField{exit, &t.ExitPrice},
			decimalField{gross, &t.GrossPL},
			decimalField{commission, &t.Commission},
			decimalField{net, &t.NetPL},
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type decimalField struct {
	text string
	dst  *decimal.Decimal
}

func parseDecimals(fields ...decimalField) error {
	for _, f := range fields {
		d, err := decimal.NewFromString(f.text)
		if err != nil {
			return fmt.Errorf("parse decimal %q: %w", f.text, err)
		}
		*f.dst = d
	}
	return nil
}
