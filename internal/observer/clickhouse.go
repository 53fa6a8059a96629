package observer

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/types"
)

// ClickHouseConfig locates a ClickHouse candle table.
// Expected columns: symbol, ts, open, high, low, close, volume, adj_close.
type ClickHouseConfig struct {
	Addr     []string
	Database string
	Username string
	Password string
	Table    string
}

func (c ClickHouseConfig) query() (string, error) {
	if c.Database == "" {
		c.Database = "default"
	}
	if c.Table == "" {
		c.Table = "bars"
	}
	if err := validIdent(c.Database); err != nil {
		return "", err
	}
	if err := validIdent(c.Table); err != nil {
		return "", err
	}
	return fmt.Sprintf(`SELECT toDateTime64(ts, 3), toFloat64(open), toFloat64(high), toFloat64(low),
		toFloat64(close), toInt64(volume), toFloat64(adj_close)
		FROM %s.%s WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts ASC`, c.Database, c.Table), nil
}

// LoadClickHouse reads bars for each symbol inside [start, end].
func LoadClickHouse(ctx context.Context, cfg ClickHouseConfig, symbols []string, start, end time.Time) (map[string][]types.Bar, error) {
	query, err := cfg.query()
	if err != nil {
		return nil, err
	}
	if len(cfg.Addr) == 0 {
		return nil, fmt.Errorf("%w: clickhouse address required", types.ErrInvalidConfig)
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	defer conn.Close()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	if end.IsZero() {
		end = time.Date(2299, 12, 31, 0, 0, 0, 0, time.UTC)
	}

	out := make(map[string][]types.Bar, len(symbols))
	for _, sym := range symbols {
		rows, err := conn.Query(ctx, query, sym, start.UTC(), end.UTC())
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", sym, err)
		}

		var bars []types.Bar
		for rows.Next() {
			var (
				ts                          time.Time
				open, high, low, cls, adjCl float64
				volume                      int64
			)
			if err := rows.Scan(&ts, &open, &high, &low, &cls, &volume, &adjCl); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan %s: %w", sym, err)
			}
			bars = append(bars, types.Bar{
				Symbol:    sym,
				Timestamp: ts.UTC(),
				Open:      decimal.NewFromFloat(open),
				High:      decimal.NewFromFloat(high),
				Low:       decimal.NewFromFloat(low),
				Close:     decimal.NewFromFloat(cls),
				Volume:    volume,
				AdjClose:  decimal.NewFromFloat(adjCl),
			})
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", sym, err)
		}
		if len(bars) == 0 {
			return nil, fmt.Errorf("%w: %s", types.ErrNoMarketData, sym)
		}
		out[sym] = bars
	}
	return out, nil
}
