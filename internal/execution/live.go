package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/alerting"
	"github.com/tathienbao/eventbt/internal/broker"
	"github.com/tathienbao/eventbt/internal/metrics"
	"github.com/tathienbao/eventbt/internal/types"
	"golang.org/x/time/rate"
)

// LiveConfig holds the live handler's timeout, retry and rate limits.
type LiveConfig struct {
	Timeout            time.Duration // Per attempt
	MaxRetries         int           // Additional attempts after the first
	RetryDelay         time.Duration
	RateLimitPerSecond float64 // Zero disables limiting
	Commission         types.CommissionSchedule
}

// DefaultLiveConfig returns conservative defaults.
func DefaultLiveConfig() LiveConfig {
	return LiveConfig{
		Timeout:            10 * time.Second,
		MaxRetries:         3,
		RetryDelay:         500 * time.Millisecond,
		RateLimitPerSecond: 10,
		Commission:         types.DefaultCommissionSchedule(),
	}
}

// LiveHandler executes orders through a broker. Every attempt runs under
// its own timeout so a hung broker can never stall the engine.
type LiveHandler struct {
	cfg      LiveConfig
	broker   broker.Broker
	limiter  *rate.Limiter
	logger   *slog.Logger
	recorder *metrics.Recorder
	alerts   *alerting.Notifier
}

// NewLiveHandler creates a live handler around brk. Orders it gives up on
// raise order_failed through alerts, which may be nil.
func NewLiveHandler(cfg LiveConfig, brk broker.Broker, recorder *metrics.Recorder, alerts *alerting.Notifier, logger *slog.Logger) *LiveHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultLiveConfig().Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	limit, burst := rate.Inf, 1
	if cfg.RateLimitPerSecond > 0 {
		limit = rate.Limit(cfg.RateLimitPerSecond)
		burst = max(1, int(cfg.RateLimitPerSecond))
	}

	return &LiveHandler{
		cfg:      cfg,
		broker:   brk,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger,
		recorder: recorder,
		alerts:   alerts,
	}
}

// ExecuteOrder places order, retrying transient broker errors.
func (h *LiveHandler) ExecuteOrder(ctx context.Context, order types.OrderEvent) (types.FillEvent, error) {
	if err := order.Validate(); err != nil {
		return types.FillEvent{}, fmt.Errorf("%w: %v", types.ErrExecutionFailed, err)
	}

	var lastErr error
	for attempt := 0; attempt <= h.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, h.cfg.RetryDelay); err != nil {
				return types.FillEvent{}, fmt.Errorf("%w: %s: %v", types.ErrExecutionFailed, order, err)
			}
		}
		if err := h.limiter.Wait(ctx); err != nil {
			return types.FillEvent{}, fmt.Errorf("%w: %s: rate limiter: %v", types.ErrExecutionFailed, order, err)
		}

		exec, err := h.attempt(ctx, order)
		if err == nil {
			fill, err := h.toFill(order, exec)
			if err != nil {
				h.fail(ctx, order, err)
				return types.FillEvent{}, err
			}
			h.record(order, "filled")
			return fill, nil
		}
		lastErr = err

		if ctx.Err() != nil || !broker.IsRetryable(err) {
			break
		}
		h.logger.Warn("order attempt failed",
			"order", order.String(),
			"attempt", attempt+1,
			"err", err,
		)
	}

	var err error
	if errors.Is(lastErr, context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("%w: %s after %d attempts", types.ErrExecutionTimeout, order, h.cfg.MaxRetries+1)
	} else {
		err = fmt.Errorf("%w: %s: %v", types.ErrExecutionFailed, order, lastErr)
	}
	h.fail(ctx, order, err)
	return types.FillEvent{}, err
}

func (h *LiveHandler) fail(ctx context.Context, order types.OrderEvent, err error) {
	h.record(order, "failed")
	h.alerts.Raise(context.WithoutCancel(ctx), alerting.EventOrderFailed, "order failed",
		"order_id", order.ID,
		"symbol", order.Symbol,
		"side", order.Side.String(),
		"qty", order.Quantity,
		"broker", h.broker.Name(),
		"error", err.Error(),
	)
}

func (h *LiveHandler) attempt(ctx context.Context, order types.OrderEvent) (*broker.Execution, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	start := time.Now()
	exec, err := h.broker.PlaceOrder(attemptCtx, order)
	if h.recorder != nil {
		h.recorder.RecordExecutionLatency(time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, errors.New("broker returned no execution")
	}
	return exec, nil
}

func (h *LiveHandler) record(order types.OrderEvent, status string) {
	if h.recorder != nil {
		h.recorder.RecordOrder(order.Symbol, order.Side.String(), status)
	}
}

// toFill checks the execution against the order. Partial fills are not
// modelled, so any mismatch is an error.
func (h *LiveHandler) toFill(order types.OrderEvent, exec *broker.Execution) (types.FillEvent, error) {
	if exec.Symbol != order.Symbol || exec.Side != order.Side || exec.Quantity != order.Quantity {
		return types.FillEvent{}, fmt.Errorf("%w: %s executed as %s %s %d",
			types.ErrExecutionFailed, order, exec.Side, exec.Symbol, exec.Quantity)
	}

	exchange := exec.Exchange
	if exchange == "" {
		exchange = h.broker.Name()
	}

	fill, err := h.cfg.Commission.NewFill(exec.FilledAt, exec.Symbol, exchange, exec.Quantity, exec.Side,
		decimal.NewNullDecimal(exec.Price), exec.Commission)
	if err != nil {
		return types.FillEvent{}, fmt.Errorf("%w: %v", types.ErrExecutionFailed, err)
	}
	fill.OrderID = order.ID

	h.logger.Info("order filled",
		"order_id", order.ID,
		"broker_order_id", exec.OrderID,
		"symbol", fill.Symbol,
		"side", fill.Side,
		"qty", fill.Quantity,
		"price", exec.Price,
	)
	return fill, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
