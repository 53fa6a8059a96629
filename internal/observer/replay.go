package observer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/types"
)

// ReplayConfig configures a historical replay.
type ReplayConfig struct {
	Symbols []string
	Start   time.Time // zero means unbounded
	End     time.Time // zero means unbounded
}

// ReplaySource replays historical bars for several instruments over the
// union of their timestamps. At each timestamp only the symbols that own a
// bar there are announced; the others keep their previous bar.
type ReplaySource struct {
	symbols  []string
	bars     map[string][]types.Bar
	cursor   map[string]int
	timeline []time.Time
	pos      int
	history  *History
	logger   *slog.Logger
}

// NewReplaySource builds a replay from per-symbol bars. Every configured
// symbol needs at least one bar inside the window and each series must be
// strictly increasing in time.
func NewReplaySource(cfg ReplayConfig, bars map[string][]types.Bar, logger *slog.Logger) (*ReplaySource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Symbols) == 0 {
		return nil, types.ErrNoInstruments
	}

	src := &ReplaySource{
		symbols: append([]string(nil), cfg.Symbols...),
		bars:    make(map[string][]types.Bar, len(cfg.Symbols)),
		cursor:  make(map[string]int, len(cfg.Symbols)),
		history: NewHistory(cfg.Symbols, 0),
		logger:  logger,
	}

	seen := make(map[time.Time]struct{})
	for _, sym := range cfg.Symbols {
		series, ok := bars[sym]
		if !ok || len(series) == 0 {
			return nil, fmt.Errorf("%w: %s", types.ErrNoMarketData, sym)
		}

		var kept []types.Bar
		for i, b := range series {
			if i > 0 && !b.Timestamp.After(series[i-1].Timestamp) {
				return nil, fmt.Errorf("%w: %s at index %d", types.ErrOutOfOrder, sym, i)
			}
			if !cfg.Start.IsZero() && b.Timestamp.Before(cfg.Start) {
				continue
			}
			if !cfg.End.IsZero() && b.Timestamp.After(cfg.End) {
				continue
			}
			b.Symbol = sym
			b.Timestamp = b.Timestamp.UTC()
			kept = append(kept, b)
			seen[b.Timestamp] = struct{}{}
		}
		if len(kept) == 0 {
			return nil, fmt.Errorf("%w: %s has no bars in window", types.ErrNoMarketData, sym)
		}
		src.bars[sym] = kept
	}

	src.timeline = make([]time.Time, 0, len(seen))
	for ts := range seen {
		src.timeline = append(src.timeline, ts)
	}
	sort.Slice(src.timeline, func(i, j int) bool { return src.timeline[i].Before(src.timeline[j]) })

	logger.Info("replay source ready",
		"symbols", len(src.symbols),
		"timestamps", len(src.timeline),
	)
	return src, nil
}

// HasMore reports whether timestamps remain.
func (s *ReplaySource) HasMore() bool {
	return s.pos < len(s.timeline)
}

// Advance releases every bar stamped with the next timestamp.
func (s *ReplaySource) Advance(ctx context.Context) (types.MarketEvent, error) {
	if err := ctx.Err(); err != nil {
		return types.MarketEvent{}, err
	}
	if !s.HasMore() {
		return types.MarketEvent{}, types.ErrDataExhausted
	}

	ts := s.timeline[s.pos]
	s.pos++

	ev := types.MarketEvent{Timestamp: ts}
	for _, sym := range s.symbols {
		i := s.cursor[sym]
		series := s.bars[sym]
		if i >= len(series) || !series[i].Timestamp.Equal(ts) {
			continue
		}
		if err := s.history.Append(series[i]); err != nil {
			return types.MarketEvent{}, err
		}
		s.cursor[sym] = i + 1
		ev.Symbols = append(ev.Symbols, sym)
	}
	return ev, nil
}

// Len returns the number of distinct timestamps in the replay.
func (s *ReplaySource) Len() int {
	return len(s.timeline)
}

// Position returns how many timestamps have been released.
func (s *ReplaySource) Position() int {
	return s.pos
}

// Symbols returns the tracked instruments.
func (s *ReplaySource) Symbols() []string {
	return append([]string(nil), s.symbols...)
}

// Name returns the feed identifier.
func (s *ReplaySource) Name() string {
	return "replay"
}

// Reader returns the view over released bars.
func (s *ReplaySource) Reader() *History {
	return s.history
}

func (s *ReplaySource) LatestBar(symbol string) (types.Bar, error) {
	return s.history.LatestBar(symbol)
}

func (s *ReplaySource) LatestBars(symbol string, n int) ([]types.Bar, error) {
	return s.history.LatestBars(symbol, n)
}

func (s *ReplaySource) LatestBarTime(symbol string) (time.Time, error) {
	return s.history.LatestBarTime(symbol)
}

func (s *ReplaySource) LatestValue(symbol string, field types.BarField) (decimal.Decimal, error) {
	return s.history.LatestValue(symbol, field)
}

func (s *ReplaySource) LatestValues(symbol string, field types.BarField, n int) ([]decimal.Decimal, error) {
	return s.history.LatestValues(symbol, field, n)
}
