package observer

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/types"
)

// History stores the bars released so far and implements BarReader.
// A symbol without a fresh bar keeps serving its previous one.
type History struct {
	mu      sync.RWMutex
	symbols map[string]struct{}
	bars    map[string][]types.Bar
	limit   int
}

// NewHistory creates a history for the given symbols. limit caps the bars
// retained per symbol; 0 keeps everything.
func NewHistory(symbols []string, limit int) *History {
	h := &History{
		symbols: make(map[string]struct{}, len(symbols)),
		bars:    make(map[string][]types.Bar, len(symbols)),
		limit:   limit,
	}
	for _, s := range symbols {
		h.symbols[s] = struct{}{}
	}
	return h
}

// Append records a released bar. The bar must be newer than the last one
// stored for its symbol.
func (h *History) Append(bar types.Bar) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.symbols[bar.Symbol]; !ok {
		return fmt.Errorf("%w: %s", types.ErrUnknownInstrument, bar.Symbol)
	}
	bars := h.bars[bar.Symbol]
	if n := len(bars); n > 0 && !bar.Timestamp.After(bars[n-1].Timestamp) {
		return fmt.Errorf("%w: %s %s after %s", types.ErrOutOfOrder, bar.Symbol,
			bar.Timestamp.Format(time.RFC3339), bars[n-1].Timestamp.Format(time.RFC3339))
	}
	bars = append(bars, bar)
	if h.limit > 0 && len(bars) > h.limit {
		bars = bars[len(bars)-h.limit:]
	}
	h.bars[bar.Symbol] = bars
	return nil
}

func (h *History) series(symbol string) ([]types.Bar, error) {
	if _, ok := h.symbols[symbol]; !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownInstrument, symbol)
	}
	bars := h.bars[symbol]
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrNoMarketData, symbol)
	}
	return bars, nil
}

// LatestBar returns the most recent bar for symbol.
func (h *History) LatestBar(symbol string) (types.Bar, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	bars, err := h.series(symbol)
	if err != nil {
		return types.Bar{}, err
	}
	return bars[len(bars)-1], nil
}

// LatestBars returns up to n most recent bars, oldest first.
func (h *History) LatestBars(symbol string, n int) ([]types.Bar, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	bars, err := h.series(symbol)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	if n > len(bars) {
		n = len(bars)
	}
	out := make([]types.Bar, n)
	copy(out, bars[len(bars)-n:])
	return out, nil
}

// LatestBarTime returns the timestamp of the most recent bar.
func (h *History) LatestBarTime(symbol string) (time.Time, error) {
	bar, err := h.LatestBar(symbol)
	if err != nil {
		return time.Time{}, err
	}
	return bar.Timestamp, nil
}

// LatestValue returns one column of the most recent bar.
func (h *History) LatestValue(symbol string, field types.BarField) (decimal.Decimal, error) {
	bar, err := h.LatestBar(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return bar.Value(field)
}

// LatestValues returns one column of up to n most recent bars, oldest first.
func (h *History) LatestValues(symbol string, field types.BarField, n int) ([]decimal.Decimal, error) {
	bars, err := h.LatestBars(symbol, n)
	if err != nil {
		return nil, err
	}
	out := make([]decimal.Decimal, 0, len(bars))
	for _, b := range bars {
		v, err := b.Value(field)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
