// Package risk holds the position sizing policy and drawdown tracking.
package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// HighWaterMarkTracker tracks the peak equity value and how long equity
// has stayed below it.
// Thread-safe for concurrent access.
type HighWaterMarkTracker struct {
	mu          sync.RWMutex
	peak        decimal.Decimal
	current     decimal.Decimal
	maxDrawdown decimal.Decimal
	duration    int // periods since the last peak
	maxDuration int
	peakAt      time.Time
}

// NewHighWaterMarkTracker creates a new tracker with initial equity.
func NewHighWaterMarkTracker(initialEquity decimal.Decimal) *HighWaterMarkTracker {
	return &HighWaterMarkTracker{
		peak:    initialEquity,
		current: initialEquity,
	}
}

// Update records one equity observation and adjusts the peak if necessary.
// Returns true if a new peak was set.
func (h *HighWaterMarkTracker) Update(equity decimal.Decimal) bool {
	return h.Observe(time.Time{}, equity)
}

// Observe is Update with the observation time, used to date the peak.
func (h *HighWaterMarkTracker) Observe(ts time.Time, equity decimal.Decimal) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.current = equity

	if equity.GreaterThanOrEqual(h.peak) {
		newPeak := equity.GreaterThan(h.peak)
		h.peak = equity
		h.peakAt = ts
		h.duration = 0
		return newPeak
	}

	h.duration++
	if h.duration > h.maxDuration {
		h.maxDuration = h.duration
	}
	if dd := h.drawdownLocked(); dd.GreaterThan(h.maxDrawdown) {
		h.maxDrawdown = dd
	}
	return false
}

func (h *HighWaterMarkTracker) drawdownLocked() decimal.Decimal {
	if !h.peak.IsPositive() || h.current.GreaterThanOrEqual(h.peak) {
		return decimal.Zero
	}
	// DD = (peak - current) / peak
	return h.peak.Sub(h.current).Div(h.peak)
}

// Current returns the current equity value.
func (h *HighWaterMarkTracker) Current() decimal.Decimal {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Peak returns the high water mark (peak equity).
func (h *HighWaterMarkTracker) Peak() decimal.Decimal {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.peak
}

// Drawdown returns the current drawdown as a ratio. 0.15 means 15%.
func (h *HighWaterMarkTracker) Drawdown() decimal.Decimal {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.drawdownLocked()
}

// MaxDrawdown returns the deepest drawdown observed.
func (h *HighWaterMarkTracker) MaxDrawdown() decimal.Decimal {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.maxDrawdown
}

// Duration returns the number of observations since the last peak.
func (h *HighWaterMarkTracker) Duration() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.duration
}

// MaxDuration returns the longest run of observations below a peak.
func (h *HighWaterMarkTracker) MaxDuration() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.maxDuration
}

// Reset resets the tracker to a new initial equity.
func (h *HighWaterMarkTracker) Reset(equity decimal.Decimal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peak = equity
	h.current = equity
	h.maxDrawdown = decimal.Zero
	h.duration = 0
	h.maxDuration = 0
	h.peakAt = time.Time{}
}

// Snapshot returns the current state as a copy.
func (h *HighWaterMarkTracker) Snapshot() (current, peak, drawdown decimal.Decimal) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current, h.peak, h.drawdownLocked()
}

// PeakTime returns when the current peak was observed.
func (h *HighWaterMarkTracker) PeakTime() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.peakAt
}
