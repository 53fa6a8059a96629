package risk

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DrawdownGuard latches into safe mode the first time drawdown reaches
// its limit. It only reports; nothing is blocked or liquidated.
// Thread-safe for concurrent access.
type DrawdownGuard struct {
	mu sync.RWMutex

	limit      decimal.Decimal
	safeMode   bool
	safeModeAt time.Time
	worst      decimal.Decimal

	logger *slog.Logger
}

// NewDrawdownGuard creates a guard. A non-positive limit never trips.
func NewDrawdownGuard(limit decimal.Decimal, logger *slog.Logger) *DrawdownGuard {
	if logger == nil {
		logger = slog.Default()
	}
	return &DrawdownGuard{limit: limit, logger: logger}
}

// Check records the drawdown observed at ts and returns true only on the
// observation that enters safe mode.
func (g *DrawdownGuard) Check(ts time.Time, drawdown decimal.Decimal) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if drawdown.GreaterThan(g.worst) {
		g.worst = drawdown
	}
	if g.safeMode || !g.limit.IsPositive() || drawdown.LessThan(g.limit) {
		return false
	}

	g.safeMode = true
	g.safeModeAt = ts
	g.logger.Warn("drawdown limit reached",
		"drawdown", drawdown.StringFixed(4),
		"limit", g.limit.StringFixed(4),
		"at", ts,
	)
	return true
}

// Limit returns the configured threshold.
func (g *DrawdownGuard) Limit() decimal.Decimal {
	return g.limit
}

// IsInSafeMode reports whether the limit has been reached.
func (g *DrawdownGuard) IsInSafeMode() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.safeMode
}

// SafeModeAt returns the market time at which the guard tripped.
func (g *DrawdownGuard) SafeModeAt() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.safeModeAt
}

// Worst returns the deepest drawdown checked so far.
func (g *DrawdownGuard) Worst() decimal.Decimal {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.worst
}

// Reset leaves safe mode so the guard can trip again.
func (g *DrawdownGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.safeMode {
		g.logger.Info("drawdown guard reset", "tripped_at", g.safeModeAt)
	}
	g.safeMode = false
	g.safeModeAt = time.Time{}
	g.worst = decimal.Zero
}
