package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tathienbao/eventbt/internal/alerting"
	"github.com/tathienbao/eventbt/internal/backtest"
	"github.com/tathienbao/eventbt/internal/broker/paper"
	"github.com/tathienbao/eventbt/internal/config"
	"github.com/tathienbao/eventbt/internal/execution"
	"github.com/tathienbao/eventbt/internal/metrics"
	"github.com/tathienbao/eventbt/internal/observer"
	"github.com/tathienbao/eventbt/internal/persistence"
	"github.com/tathienbao/eventbt/internal/strategy"
	"github.com/tathienbao/eventbt/internal/types"
)

// openFeed builds the configured market data feed. The returned close
// function is never nil.
func openFeed(ctx context.Context, cfg *config.Config, alerts *alerting.Notifier, logger *slog.Logger) (observer.Feed, func(), error) {
	noop := func() {}
	symbols := cfg.Market.Instruments
	start, end := cfg.DataRange()

	var (
		bars map[string][]types.Bar
		err  error
	)
	switch cfg.Data.Type {
	case "csv":
		bars, err = observer.LoadCSVDir(cfg.Data.Path, symbols)
	case "sqlite":
		var store *observer.BarStore
		store, err = observer.OpenBarStore(ctx, cfg.Data.Path, cfg.Data.Table)
		if err == nil {
			bars, err = store.Load(ctx, symbols, start, end)
			_ = store.Close()
		}
	case "clickhouse":
		bars, err = observer.LoadClickHouse(ctx, cfg.ClickHouseConfig(), symbols, start, end)
	case "websocket":
		src, err := observer.DialLive(ctx, cfg.LiveSourceConfig(), alerts, logger)
		if err != nil {
			return nil, noop, fmt.Errorf("connect feed: %w", err)
		}
		return src, func() { _ = src.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("%w: data type %q", types.ErrInvalidConfig, cfg.Data.Type)
	}
	if err != nil {
		return nil, noop, fmt.Errorf("load %s bars: %w", cfg.Data.Type, err)
	}

	src, err := observer.NewReplaySource(observer.ReplayConfig{Symbols: symbols, Start: start, End: end}, bars, logger)
	if err != nil {
		return nil, noop, fmt.Errorf("build replay: %w", err)
	}
	logger.Info("market data loaded", "source", cfg.Data.Type, "instruments", len(symbols), "timestamps", src.Len())
	return src, noop, nil
}

// newStrategy builds the configured strategy over the feed's bars.
func newStrategy(cfg *config.Config, bars observer.BarReader, logger *slog.Logger) (strategy.Strategy, error) {
	symbols := cfg.Market.Instruments
	switch cfg.Strategy.Name {
	case "mac":
		return strategy.NewMovingAverageCrossover(cfg.MACConfig(), bars, symbols, logger)
	case "breakout":
		return strategy.NewBreakout(cfg.BreakoutConfig(), bars, symbols)
	case "meanrev":
		return strategy.NewMeanReversion(cfg.MeanRevConfig(), bars, symbols)
	default:
		return nil, fmt.Errorf("%w: strategy %q", types.ErrInvalidConfig, cfg.Strategy.Name)
	}
}

// newExecution builds the configured execution handler. For paper
// trading the broker is connected before it is returned.
func newExecution(ctx context.Context, cfg *config.Config, bars observer.BarReader, recorder *metrics.Recorder, alerts *alerting.Notifier, logger *slog.Logger) (execution.Handler, func(), error) {
	switch cfg.Execution.Type {
	case "simulated":
		return execution.NewSimulatedHandler(cfg.SimulatedConfig(), bars), func() {}, nil
	case "paper":
		brk := paper.NewBroker(cfg.PaperConfig(), bars, logger)
		if err := brk.Connect(ctx); err != nil {
			return nil, func() {}, fmt.Errorf("connect broker: %w", err)
		}
		if recorder != nil {
			recorder.RecordBrokerStatus(true)
		}
		disconnect := func() {
			if err := brk.Disconnect(); err != nil {
				logger.Warn("broker disconnect failed", "err", err)
			}
			if recorder != nil {
				recorder.RecordBrokerStatus(false)
			}
		}
		return execution.NewLiveHandler(cfg.LiveConfig(), brk, recorder, alerts, logger), disconnect, nil
	default:
		return nil, func() {}, fmt.Errorf("%w: execution type %q", types.ErrInvalidConfig, cfg.Execution.Type)
	}
}

// newAlerter returns nil when alerting is disabled.
func newAlerter(cfg *config.Config, logger *slog.Logger) (alerting.Alerter, *alerting.WebhookAlerter) {
	if !cfg.Alerting.Enabled {
		return nil, nil
	}
	var webhook *alerting.WebhookAlerter
	if cfg.Alerting.WebhookURL != "" {
		webhook = alerting.NewWebhookAlerter(cfg.WebhookConfig())
		return alerting.NewMultiAlerter(logger, alerting.NewConsoleAlerter(logger), webhook), webhook
	}
	return alerting.NewMultiAlerter(logger, alerting.NewConsoleAlerter(logger)), nil
}

// heartbeatClock remembers the wall time of the latest heartbeat for the
// health endpoint.
type heartbeatClock struct {
	last atomic.Int64
}

func (c *heartbeatClock) beat() {
	c.last.Store(time.Now().UnixNano())
}

func (c *heartbeatClock) Last() time.Time {
	ns := c.last.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// startMetrics serves Prometheus metrics and health checks. maxAge bounds
// the gap between heartbeats before the engine is reported unhealthy.
func startMetrics(cfg *config.Config, clock *heartbeatClock, maxAge time.Duration, logger *slog.Logger) (*metrics.Server, error) {
	srv := metrics.NewServer(cfg.ServerConfig(), logger)
	srv.RegisterHealthCheck("engine", metrics.HeartbeatCheck(clock.Last, maxAge))
	if err := srv.Start(); err != nil {
		return nil, err
	}
	return srv, nil
}

// journal saves result when persistence is enabled.
func journal(ctx context.Context, cfg *config.Config, result *backtest.Result, logger *slog.Logger) error {
	if !cfg.Persistence.Enabled {
		return nil
	}
	repo, err := persistence.Open(ctx, cfg.Persistence.Type, cfg.PersistenceTarget())
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() { _ = repo.Close() }()

	if err := persistence.Save(ctx, repo, result); err != nil {
		return err
	}
	logger.Info("run journaled", "run_id", result.RunID, "store", cfg.Persistence.Type)
	return nil
}

// summarize builds the end-of-run report for alerters.
func summarize(result *backtest.Result) alerting.RunSummary {
	var start, end time.Time
	highWater := result.Summary.StartEquity
	for i, h := range result.Holdings {
		if i == 0 {
			start = h.Timestamp
		}
		end = h.Timestamp
		if h.Total.GreaterThan(highWater) {
			highWater = h.Total
		}
	}
	return alerting.NewRunSummary(
		result.RunID,
		start, end,
		result.Summary.StartEquity, result.Summary.EndEquity, highWater, result.Summary.MaxDrawdown,
		result.Stats.Signals, result.Stats.Orders, result.Stats.Fills,
	)
}
