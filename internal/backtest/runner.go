// Package backtest wires a feed, a strategy and an execution handler to a
// fresh portfolio and engine, runs them, and reports the outcome.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/engine"
	"github.com/tathienbao/eventbt/internal/execution"
	"github.com/tathienbao/eventbt/internal/observer"
	"github.com/tathienbao/eventbt/internal/portfolio"
	"github.com/tathienbao/eventbt/internal/risk"
	"github.com/tathienbao/eventbt/internal/strategy"
	"github.com/tathienbao/eventbt/internal/types"
)

// ProgressCallback is called once per heartbeat from a separate goroutine.
type ProgressCallback func(update engine.Progress)

// NewRunID returns a time-sortable run identifier.
func NewRunID() string {
	return ulid.Make().String()
}

// Config holds backtest configuration.
type Config struct {
	RunID          string // generated when empty
	InitialCapital decimal.Decimal
	Start          time.Time
	Heartbeat      time.Duration
	Sizing         risk.SizingPolicy
	FillPricing    portfolio.FillPricing
	RiskFreeRate   decimal.Decimal
	Periods        int
}

// Result holds everything a finished run leaves behind.
type Result struct {
	RunID       string
	Strategy    string
	Instruments []string
	StartedAt   time.Time
	FinishedAt  time.Time
	Stats       engine.Stats
	Summary     Summary
	EquityCurve []EquityPoint
	Positions   []portfolio.Positions
	Holdings    []portfolio.Holdings
	Fills       []types.FillEvent
	Trades      []portfolio.Trade
	Err         error // set when the run aborted
}

// Runner executes backtests.
type Runner struct {
	cfg        Config
	feed       observer.Feed
	strategy   strategy.Strategy
	execution  execution.Handler
	logger     *slog.Logger
	engineOpts []engine.Option
	progressCb ProgressCallback
}

// NewRunner creates a runner. A nil execution handler means a simulated
// handler with default settings reading from feed.
func NewRunner(cfg Config, feed observer.Feed, strat strategy.Strategy, exec execution.Handler, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if exec == nil {
		exec = execution.NewSimulatedHandler(execution.DefaultSimulatedConfig(), feed)
	}
	return &Runner{
		cfg:       cfg,
		feed:      feed,
		strategy:  strat,
		execution: exec,
		logger:    logger,
	}
}

// SetProgressCallback sets a callback for UI updates.
func (r *Runner) SetProgressCallback(cb ProgressCallback) {
	r.progressCb = cb
}

// SetEngineOptions passes extra options such as a metrics recorder or an
// alerter to the engine.
func (r *Runner) SetEngineOptions(opts ...engine.Option) {
	r.engineOpts = append(r.engineOpts, opts...)
}

// Run executes the backtest. When the engine aborts, Run returns the
// partial result together with the error.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if r.feed == nil || r.strategy == nil {
		return nil, fmt.Errorf("%w: runner needs a feed and a strategy", types.ErrInvalidConfig)
	}

	pf, err := portfolio.New(portfolio.Config{
		Instruments:    r.feed.Symbols(),
		InitialCapital: r.cfg.InitialCapital,
		Start:          r.cfg.Start,
		Sizing:         r.cfg.Sizing,
		FillPricing:    r.cfg.FillPricing,
	}, r.feed, r.logger)
	if err != nil {
		return nil, fmt.Errorf("create portfolio: %w", err)
	}

	runID := r.cfg.RunID
	if runID == "" {
		runID = NewRunID()
	}

	opts := append([]engine.Option{engine.WithLogger(r.logger), engine.WithRunID(runID)}, r.engineOpts...)
	eng, err := engine.New(engine.Config{Heartbeat: r.cfg.Heartbeat}, r.feed, r.strategy, pf, r.execution, opts...)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	var done chan struct{}
	if r.progressCb != nil {
		progress := eng.Progress(64)
		done = make(chan struct{})
		go func() {
			defer close(done)
			for p := range progress {
				r.progressCb(p)
			}
		}()
	}

	result := &Result{
		RunID:       runID,
		Strategy:    r.strategy.Name(),
		Instruments: r.feed.Symbols(),
		StartedAt:   time.Now().UTC(),
	}
	r.logger.Info("backtest started", "run_id", result.RunID, "strategy", result.Strategy, "instruments", len(result.Instruments))

	runErr := eng.Run(ctx)
	if done != nil {
		<-done
	}

	result.FinishedAt = time.Now().UTC()
	result.Stats = eng.Stats()
	result.Positions = pf.AllPositions()
	result.Holdings = pf.AllHoldings()
	result.Fills = pf.Fills()
	result.Trades = pf.Trades()
	result.EquityCurve = EquityCurve(result.Holdings)
	result.Summary = NewMetrics(result.EquityCurve, result.Trades, r.cfg.RiskFreeRate, r.cfg.Periods).Summary()
	result.Err = runErr

	if runErr != nil {
		return result, runErr
	}
	r.logger.Info("backtest finished",
		"run_id", result.RunID,
		"end_equity", result.Summary.EndEquity.StringFixed(2),
		"total_return", result.Summary.TotalReturn.StringFixed(4),
		"fills", result.Stats.Fills,
	)
	return result, nil
}
