// Package engine runs the event loop that ties a data source, a strategy,
// a portfolio and an execution handler together.
//
// The engine is single threaded. Each heartbeat admits one market event and
// drains every event it causes (signals, orders, fills) before the next
// market event is read, so a later bar can never influence the handling of
// an earlier one.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/alerting"
	"github.com/tathienbao/eventbt/internal/execution"
	"github.com/tathienbao/eventbt/internal/metrics"
	"github.com/tathienbao/eventbt/internal/observer"
	"github.com/tathienbao/eventbt/internal/risk"
	"github.com/tathienbao/eventbt/internal/strategy"
	"github.com/tathienbao/eventbt/internal/types"
)

// ErrAlreadyRunning is returned when Run is called twice.
var ErrAlreadyRunning = errors.New("engine already running")

// Config holds engine configuration.
type Config struct {
	// Heartbeat is the pause after each drained market event. Zero for
	// backtests.
	Heartbeat time.Duration
}

// DefaultConfig returns a backtest configuration with no pacing.
func DefaultConfig() Config {
	return Config{}
}

// Portfolio is the ledger side of the loop.
type Portfolio interface {
	UpdateTimeIndex(event types.MarketEvent) error
	UpdateSignal(signal types.SignalEvent) (*types.OrderEvent, error)
	UpdateFill(fill types.FillEvent) error
}

// valuer is implemented by portfolios that can report their value. The
// engine uses it for progress and equity metrics only.
type valuer interface {
	Cash() decimal.Decimal
	Total() decimal.Decimal
}

// Stats counts processed events. Counts are for reporting and never
// influence dispatch.
type Stats struct {
	Heartbeats int
	Events     int
	Markets    int
	Signals    int
	Orders     int
	Fills      int
}

// Progress is published once per heartbeat.
type Progress struct {
	Heartbeat int
	Timestamp time.Time
	Stats     Stats
	Cash      decimal.Decimal
	Total     decimal.Decimal
	Drawdown  decimal.Decimal
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRecorder enables Prometheus metrics.
func WithRecorder(r *metrics.Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithAlerter sends run lifecycle notifications to a.
func WithAlerter(a alerting.Alerter) Option {
	return func(e *Engine) { e.alerter = a }
}

// WithRunID tags alerts with the run they belong to.
func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

// WithDrawdownAlert raises a drawdown_breached alert the first time the
// running drawdown reaches limit.
func WithDrawdownAlert(limit decimal.Decimal) Option {
	return func(e *Engine) { e.drawdownLimit = limit }
}

// WithClock replaces the heartbeat sleep.
func WithClock(sleep SleepFunc) Option {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// Engine coordinates the data source, strategy, portfolio and execution
// handler through one FIFO event queue.
type Engine struct {
	cfg       Config
	data      observer.DataSource
	strategy  strategy.Strategy
	portfolio Portfolio
	execution execution.Handler

	logger   *slog.Logger
	recorder *metrics.Recorder
	alerter  alerting.Alerter
	notify   *alerting.Notifier
	runID    string
	sleep    SleepFunc
	hwm      *risk.HighWaterMarkTracker
	guard    *risk.DrawdownGuard

	drawdownLimit decimal.Decimal

	events queue

	mu       sync.RWMutex
	stats    Stats
	running  bool
	finished bool
	progress chan Progress
	lastBeat time.Time
}

// New creates an engine. The engine owns its queue; collaborators must not
// be shared with another engine.
func New(cfg Config, src observer.DataSource, strat strategy.Strategy, pf Portfolio, exec execution.Handler, opts ...Option) (*Engine, error) {
	if src == nil || strat == nil || pf == nil || exec == nil {
		return nil, fmt.Errorf("%w: engine needs a data source, strategy, portfolio and execution handler", types.ErrInvalidConfig)
	}
	if cfg.Heartbeat < 0 {
		return nil, fmt.Errorf("%w: negative heartbeat %s", types.ErrInvalidConfig, cfg.Heartbeat)
	}

	e := &Engine{
		cfg:       cfg,
		data:      src,
		strategy:  strat,
		portfolio: pf,
		execution: exec,
		logger:    slog.Default(),
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.notify = alerting.NewNotifier(e.alerter, e.runID, e.logger)
	if v, ok := pf.(valuer); ok {
		e.hwm = risk.NewHighWaterMarkTracker(v.Total())
		if e.drawdownLimit.IsPositive() {
			e.guard = risk.NewDrawdownGuard(e.drawdownLimit, e.logger)
		}
	}
	return e, nil
}

// Progress returns a channel that receives one snapshot per heartbeat.
// Sends never block: when the reader lags, snapshots are dropped. The
// channel is closed when Run returns.
func (e *Engine) Progress(buffer int) <-chan Progress {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.progress == nil {
		e.progress = make(chan Progress, max(buffer, 1))
		if e.finished {
			close(e.progress)
		}
	}
	return e.progress
}

// Stats returns a copy of the event counters.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// LastHeartbeat returns the wall time of the last completed heartbeat.
func (e *Engine) LastHeartbeat() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastBeat
}

// Run drives the outer loop until the data source is exhausted, ctx is
// done, or a collaborator fails. Exhaustion returns nil. After a failure
// the portfolio history remains inspectable.
func (e *Engine) Run(ctx context.Context) (err error) {
	e.mu.Lock()
	if e.running || e.finished {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	e.mu.Unlock()

	defer e.finish()

	e.logger.Info("run started",
		"run_id", e.runID,
		"strategy", e.strategy.Name(),
		"heartbeat", e.cfg.Heartbeat,
	)
	e.notify.Raise(ctx, alerting.EventRunStarted, "run started", "strategy", e.strategy.Name())

	// Collaborators see a context that outlives cancellation so a cascade
	// that has started always reaches its fill. Cancellation is observed
	// between heartbeats.
	work := context.WithoutCancel(ctx)

	defer func() {
		stats := e.Stats()
		switch {
		case err == nil:
			e.logger.Info("run finished",
				"heartbeats", stats.Heartbeats,
				"signals", stats.Signals,
				"orders", stats.Orders,
				"fills", stats.Fills,
			)
			e.recordRun("completed")
			e.notify.Raise(work, alerting.EventRunFinished, "run finished",
				"heartbeats", stats.Heartbeats, "fills", stats.Fills)
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			e.logger.Warn("run cancelled", "heartbeats", stats.Heartbeats, "err", err)
			e.recordRun("cancelled")
			e.notify.Raise(work, alerting.EventRunCancelled, "run cancelled", "heartbeats", stats.Heartbeats)
		default:
			e.logger.Error("run aborted", "heartbeats", stats.Heartbeats, "err", err)
			e.recordRun("failed")
			e.notify.Raise(work, alerting.EventRunAborted, "run aborted",
				"heartbeats", stats.Heartbeats, "error", err.Error())
		}
	}()

	for e.data.HasMore() {
		if err := ctx.Err(); err != nil {
			return err
		}

		timer := metrics.NewTimer()
		market, err := e.data.Advance(ctx)
		if errors.Is(err, types.ErrDataExhausted) {
			break
		}
		if err != nil {
			e.recordError("data")
			return fmt.Errorf("advance data source: %w", err)
		}
		if e.recorder != nil {
			timer.ObserveDataFeed()
		}

		e.events.push(market)
		if err := e.drain(work); err != nil {
			return err
		}
		e.heartbeat(work, market)

		if e.cfg.Heartbeat > 0 {
			if err := e.sleep(ctx, e.cfg.Heartbeat); err != nil {
				return err
			}
		}
	}

	return nil
}

// drain processes queued events until none remain.
func (e *Engine) drain(ctx context.Context) error {
	for {
		ev, ok := e.events.pop()
		if !ok {
			return nil
		}
		if err := e.dispatch(ctx, ev); err != nil {
			e.recordError(ev.Kind().String())
			return fmt.Errorf("%s: %w", describe(ev), err)
		}
		e.count(func(s *Stats) { s.Events++ })
		if e.recorder != nil {
			e.recorder.RecordEvent(ev.Kind().String())
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, ev types.Event) error {
	switch ev := ev.(type) {
	case types.MarketEvent:
		e.count(func(s *Stats) { s.Markets++ })

		timer := metrics.NewTimer()
		signals, err := e.strategy.CalculateSignals(ctx, ev)
		if err != nil {
			return fmt.Errorf("strategy %s: %w", e.strategy.Name(), err)
		}
		if e.recorder != nil {
			timer.ObserveStrategy(e.strategy.Name())
		}
		for _, sig := range signals {
			e.events.push(sig)
		}
		if err := e.portfolio.UpdateTimeIndex(ev); err != nil {
			return fmt.Errorf("update time index: %w", err)
		}

	case types.SignalEvent:
		e.count(func(s *Stats) { s.Signals++ })
		if e.recorder != nil {
			e.recorder.RecordSignal(ev.StrategyID, ev.Direction.String())
		}

		order, err := e.portfolio.UpdateSignal(ev)
		if err != nil {
			return fmt.Errorf("update signal: %w", err)
		}
		if order == nil {
			e.logger.Debug("signal ignored", "symbol", ev.Symbol, "direction", ev.Direction)
			if e.recorder != nil {
				e.recorder.RecordSignalIgnored(ev.Direction.String())
			}
			return nil
		}
		e.events.push(*order)

	case types.OrderEvent:
		e.count(func(s *Stats) { s.Orders++ })

		timer := metrics.NewTimer()
		fill, err := e.execution.ExecuteOrder(ctx, ev)
		if err != nil {
			return fmt.Errorf("execute order: %w", err)
		}
		if e.recorder != nil {
			timer.ObserveExecution()
		}
		e.logger.Debug("order executed", "order", ev.String(), "exchange", fill.Exchange)
		e.events.push(fill)

	case types.FillEvent:
		e.count(func(s *Stats) { s.Fills++ })

		if err := e.portfolio.UpdateFill(ev); err != nil {
			return fmt.Errorf("update fill: %w", err)
		}
		if e.recorder != nil {
			e.recorder.RecordFill(ev.Symbol, ev.Side.String(), ev.Quantity)
		}

	default:
		return fmt.Errorf("%w: %T", types.ErrUnknownEvent, ev)
	}

	return nil
}

// heartbeat closes one outer loop iteration and publishes progress.
func (e *Engine) heartbeat(ctx context.Context, market types.MarketEvent) {
	e.mu.Lock()
	e.stats.Heartbeats++
	e.lastBeat = time.Now()
	p := Progress{
		Heartbeat: e.stats.Heartbeats,
		Timestamp: market.Timestamp,
		Stats:     e.stats,
	}
	ch := e.progress
	e.mu.Unlock()

	if v, ok := e.portfolio.(valuer); ok {
		p.Cash, p.Total = v.Cash(), v.Total()
		e.hwm.Observe(market.Timestamp, p.Total)
		p.Drawdown = e.hwm.Drawdown()
		if e.recorder != nil {
			e.recorder.RecordEquity(p.Cash, p.Total)
			e.recorder.RecordDrawdown(e.hwm.Peak(), p.Drawdown)
		}
		if e.guard != nil && e.guard.Check(market.Timestamp, p.Drawdown) {
			e.notify.Raise(ctx, alerting.EventDrawdownBreached, "drawdown limit reached",
				"drawdown", p.Drawdown.StringFixed(4),
				"limit", e.guard.Limit().StringFixed(4),
				"equity", p.Total.StringFixed(2),
			)
		}
	}
	if e.recorder != nil {
		e.recorder.RecordHeartbeat(market.Timestamp)
	}

	e.logger.Debug("heartbeat",
		"n", p.Heartbeat,
		"timestamp", market.Timestamp,
		"symbols", len(market.Symbols),
	)

	if ch != nil {
		select {
		case ch <- p:
		default:
		}
	}
}

func (e *Engine) finish() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.running = false
	e.finished = true
	if e.progress != nil {
		close(e.progress)
	}
}

func (e *Engine) count(f func(*Stats)) {
	e.mu.Lock()
	f(&e.stats)
	e.mu.Unlock()
}

func (e *Engine) recordRun(status string) {
	if e.recorder != nil {
		e.recorder.RecordRun(status)
	}
}

func (e *Engine) recordError(kind string) {
	if e.recorder != nil {
		e.recorder.RecordError(kind)
	}
}

// describe names the event that triggered an error.
func describe(ev types.Event) string {
	switch ev := ev.(type) {
	case types.MarketEvent:
		return fmt.Sprintf("market %s", ev.Timestamp.Format(time.RFC3339))
	case types.SignalEvent:
		return fmt.Sprintf("signal %s %s from %s", ev.Direction, ev.Symbol, ev.StrategyID)
	case types.OrderEvent:
		return fmt.Sprintf("order %s", ev)
	case types.FillEvent:
		return fmt.Sprintf("fill %s %d %s", ev.Side, ev.Quantity, ev.Symbol)
	default:
		return fmt.Sprintf("event %T", ev)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
