package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tathienbao/eventbt/internal/alerting"
	"github.com/tathienbao/eventbt/internal/backtest"
	"github.com/tathienbao/eventbt/internal/config"
	"github.com/tathienbao/eventbt/internal/engine"
	"github.com/tathienbao/eventbt/internal/metrics"
	"github.com/tathienbao/eventbt/internal/ui"
)

// sessionOptions distinguishes an interactive backtest from a long-running
// session.
type sessionOptions struct {
	jsonLogs    bool
	showUI      bool
	renderEvery int
	out         io.Writer

	// Overrides applied on top of the config file.
	dataPath     string
	strategyName string
	dbPath       string
}

var (
	noUI         bool
	renderEvery  int
	dataPath     string
	strategyName string
	dbPath       string
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a backtest over historical data",
	RunE: func(cmd *cobra.Command, args []string) error {
		return session(cmd.Context(), sessionOptions{
			showUI:       !noUI,
			renderEvery:  renderEvery,
			out:          cmd.OutOrStdout(),
			dataPath:     dataPath,
			strategyName: strategyName,
			dbPath:       dbPath,
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a paper session until the feed ends or a shutdown signal arrives",
	RunE: func(cmd *cobra.Command, args []string) error {
		return session(cmd.Context(), sessionOptions{
			jsonLogs: true,
			out:      cmd.OutOrStdout(),
		})
	},
}

func init() {
	backtestCmd.Flags().BoolVar(&noUI, "no-ui", false, "disable the terminal progress view")
	backtestCmd.Flags().IntVar(&renderEvery, "render-every", 10, "redraw the progress view every N heartbeats")
	backtestCmd.Flags().StringVar(&dataPath, "data", "", "override data.path")
	backtestCmd.Flags().StringVar(&strategyName, "strategy", "", "override strategy.name (mac, breakout, meanrev)")
	backtestCmd.Flags().StringVar(&dbPath, "db", "", "journal the run to this SQLite file")
	rootCmd.AddCommand(backtestCmd, runCmd)
}

func session(parent context.Context, opts sessionOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	logger := newLogger(opts.jsonLogs)

	cfg, err := config.Load(configPath)
	if err == nil {
		err = applyOverrides(cfg, opts)
	}
	if err != nil {
		logger.Error("failed to load config", "err", err)
		return err
	}

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The run ID is fixed up front so alerts from the feed, the execution
	// handler and the engine all carry it.
	runID := backtest.NewRunID()
	alerter, webhook := newAlerter(cfg, logger)
	alerts := alerting.NewNotifier(alerter, runID, logger)

	feed, closeFeed, err := openFeed(ctx, cfg, alerts, logger)
	if err != nil {
		logger.Error("failed to open market data", "err", err)
		return err
	}
	defer closeFeed()

	strat, err := newStrategy(cfg, feed, logger)
	if err != nil {
		logger.Error("failed to create strategy", "err", err)
		return err
	}

	var recorder *metrics.Recorder
	clock := &heartbeatClock{}
	if cfg.Metrics.Enabled {
		recorder = metrics.NewRecorder()
		srv, err := startMetrics(cfg, clock, healthWindow(cfg), logger)
		if err != nil {
			logger.Error("failed to start metrics server", "err", err)
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown failed", "err", err)
			}
		}()
	}

	exec, closeExec, err := newExecution(ctx, cfg, feed, recorder, alerts, logger)
	if err != nil {
		logger.Error("failed to create execution handler", "err", err)
		return err
	}
	defer closeExec()

	runCfg := cfg.BacktestConfig()
	runCfg.RunID = runID
	runner := backtest.NewRunner(runCfg, feed, strat, exec, logger)
	if recorder != nil {
		runner.SetEngineOptions(engine.WithRecorder(recorder))
	}
	if alerter != nil {
		runner.SetEngineOptions(engine.WithAlerter(alerter))
	}
	if limit := cfg.DrawdownLimit(); limit.IsPositive() {
		runner.SetEngineOptions(engine.WithDrawdownAlert(limit))
	}

	var view *ui.ProgressView
	if opts.showUI {
		expected := 0
		if n, ok := feed.(interface{ Len() int }); ok {
			expected = n.Len()
		}
		view = ui.NewProgressView(os.Stdout, cfg.InitialCapital(), expected)
		view.SetRenderEvery(opts.renderEvery)
		view.Start()
	}
	runner.SetProgressCallback(func(p engine.Progress) {
		clock.beat()
		if view != nil {
			view.Observe(p)
		}
	})

	logger.Info("session starting",
		"run_id", runID,
		"version", Version,
		"data", cfg.Data.Type,
		"strategy", strat.Name(),
		"execution", cfg.Execution.Type,
		"capital", cfg.InitialCapital().StringFixed(2),
	)

	result, runErr := runner.Run(ctx)
	if view != nil {
		view.Stop()
	}
	if result == nil {
		logger.Error("session failed", "err", runErr)
		return runErr
	}

	// Finish the bookkeeping even after a shutdown signal.
	finishCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := backtest.Report(opts.out, result); err != nil {
		logger.Warn("failed to print report", "err", err)
	}
	if err := journal(finishCtx, cfg, result, logger); err != nil {
		logger.Error("failed to journal run", "err", err)
	}
	if webhook != nil {
		if err := webhook.SendSummary(finishCtx, summarize(result)); err != nil {
			logger.Warn("failed to send run summary", "err", err)
		}
	}

	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, context.Canceled):
		logger.Info("session stopped by signal", "run_id", result.RunID)
		return nil
	default:
		logger.Error("session aborted", "run_id", result.RunID, "err", runErr)
		return fmt.Errorf("run %s: %w", result.RunID, runErr)
	}
}

// applyOverrides applies command line flags and validates the result again.
func applyOverrides(cfg *config.Config, opts sessionOptions) error {
	if opts.dataPath == "" && opts.strategyName == "" && opts.dbPath == "" {
		return nil
	}
	if opts.dataPath != "" {
		cfg.Data.Path = opts.dataPath
	}
	if opts.strategyName != "" {
		cfg.Strategy.Name = opts.strategyName
	}
	if opts.dbPath != "" {
		cfg.Persistence = config.PersistenceConfig{Enabled: true, Type: "sqlite", Path: opts.dbPath}
	}
	return cfg.Validate()
}

// healthWindow is how long the engine may go without a heartbeat before
// the health endpoint reports it.
func healthWindow(cfg *config.Config) time.Duration {
	window := time.Minute
	if cfg.Data.ReadTimeout > 0 {
		window = 2 * cfg.Data.ReadTimeout
	}
	if cfg.Engine.Heartbeat > 0 {
		window = max(window, 10*cfg.Engine.Heartbeat)
	}
	return window
}
