package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/alerting"
	"github.com/tathienbao/eventbt/internal/types"
)

// LiveConfig configures a websocket bar feed.
type LiveConfig struct {
	URL         string
	Symbols     []string
	Subscribe   []byte        // optional message sent after connecting
	ReadTimeout time.Duration // 0 disables the read deadline
	HistorySize int           // bars kept per symbol, 0 keeps all
	BufferSize  int
}

// wireBar is the JSON shape of one bar on the socket.
type wireBar struct {
	Symbol    string           `json:"symbol"`
	Timestamp time.Time        `json:"timestamp"`
	Open      decimal.Decimal  `json:"open"`
	High      decimal.Decimal  `json:"high"`
	Low       decimal.Decimal  `json:"low"`
	Close     decimal.Decimal  `json:"close"`
	Volume    int64            `json:"volume"`
	AdjClose  *decimal.Decimal `json:"adj_close,omitempty"`
}

func (w wireBar) bar() types.Bar {
	b := types.Bar{
		Symbol:    w.Symbol,
		Timestamp: w.Timestamp.UTC(),
		Open:      w.Open,
		High:      w.High,
		Low:       w.Low,
		Close:     w.Close,
		Volume:    w.Volume,
		AdjClose:  w.Close,
	}
	if w.AdjClose != nil {
		b.AdjClose = *w.AdjClose
	}
	return b
}

// LiveSource streams bars from a websocket. Advance blocks until at least
// one bar arrives and groups bars sharing a timestamp into one event.
// Event timestamps never decrease: a bar older than the last emitted event
// is dropped, whatever its symbol.
type LiveSource struct {
	cfg     LiveConfig
	conn    *websocket.Conn
	bars    chan types.Bar
	history *History
	alerts  *alerting.Notifier
	logger  *slog.Logger

	pending   *types.Bar
	exhausted bool

	mu   sync.Mutex
	last time.Time

	closeOnce sync.Once
	done      chan struct{}
}

// DialLive connects to the feed and starts the read pump. An unexpected
// disconnect raises feed_disconnected through alerts, which may be nil.
func DialLive(ctx context.Context, cfg LiveConfig, alerts *alerting.Notifier, logger *slog.Logger) (*LiveSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Symbols) == 0 {
		return nil, types.ErrNoInstruments
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}

	logger.Info("connecting to bar feed", "url", cfg.URL)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}

	if len(cfg.Subscribe) > 0 {
		if err := conn.WriteMessage(websocket.TextMessage, cfg.Subscribe); err != nil {
			conn.Close()
			return nil, fmt.Errorf("subscribe: %w", err)
		}
	}

	s := &LiveSource{
		cfg:     cfg,
		conn:    conn,
		bars:    make(chan types.Bar, cfg.BufferSize),
		history: NewHistory(cfg.Symbols, cfg.HistorySize),
		alerts:  alerts,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go s.readPump()
	return s, nil
}

func (s *LiveSource) readPump() {
	defer close(s.bars)

	s.conn.SetReadLimit(1024 * 1024)
	if s.cfg.ReadTimeout > 0 {
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		})
	}

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Warn("bar feed closed", "url", s.cfg.URL, "error", err)
				s.alerts.Raise(context.Background(), alerting.EventFeedDisconnected, "bar feed closed",
					"url", s.cfg.URL,
					"last_bar", s.lastBar(),
					"error", err.Error(),
				)
			}
			return
		}
		if s.cfg.ReadTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}

		var w wireBar
		if err := json.Unmarshal(msg, &w); err != nil {
			s.logger.Warn("dropping malformed bar", "error", err)
			continue
		}

		select {
		case s.bars <- w.bar():
		case <-s.done:
			return
		}
	}
}

// HasMore reports whether the socket may still deliver bars.
func (s *LiveSource) HasMore() bool {
	return !s.exhausted
}

// Advance waits for the next bar and releases every queued bar with the same timestamp.
func (s *LiveSource) Advance(ctx context.Context) (types.MarketEvent, error) {
	for {
		first, err := s.next(ctx)
		if err != nil {
			return types.MarketEvent{}, err
		}
		if !s.accept(first) {
			continue
		}
		s.setLast(first.Timestamp)

		ev := types.MarketEvent{Timestamp: first.Timestamp, Symbols: []string{first.Symbol}}
		for {
			var b types.Bar
			var ok bool
			select {
			case b, ok = <-s.bars:
			default:
			}
			if !ok {
				break
			}
			if !b.Timestamp.Equal(ev.Timestamp) {
				s.pending = &b
				break
			}
			if s.accept(b) {
				ev.Symbols = append(ev.Symbols, b.Symbol)
			}
		}
		return ev, nil
	}
}

func (s *LiveSource) next(ctx context.Context) (types.Bar, error) {
	if s.pending != nil {
		b := *s.pending
		s.pending = nil
		return b, nil
	}
	select {
	case <-ctx.Done():
		return types.Bar{}, ctx.Err()
	case b, ok := <-s.bars:
		if !ok {
			s.exhausted = true
			return types.Bar{}, types.ErrDataExhausted
		}
		return b, nil
	}
}

// accept stores b, dropping unknown symbols and stale or invalid bars.
func (s *LiveSource) accept(b types.Bar) bool {
	if err := b.Validate(); err != nil {
		s.logger.Warn("dropping invalid bar", "symbol", b.Symbol, "error", err)
		return false
	}
	if last := s.lastBar(); b.Timestamp.Before(last) {
		s.logger.Warn("dropping stale bar",
			"symbol", b.Symbol,
			"timestamp", b.Timestamp,
			"last_event", last,
		)
		return false
	}
	if err := s.history.Append(b); err != nil {
		s.logger.Warn("dropping bar", "symbol", b.Symbol, "timestamp", b.Timestamp, "error", err)
		return false
	}
	return true
}

func (s *LiveSource) setLast(ts time.Time) {
	s.mu.Lock()
	s.last = ts
	s.mu.Unlock()
}

// lastBar returns the timestamp of the last emitted event. The read pump
// reads it when reporting a disconnect.
func (s *LiveSource) lastBar() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Close stops the read pump and closes the connection.
func (s *LiveSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}

// Symbols returns the tracked instruments.
func (s *LiveSource) Symbols() []string {
	return append([]string(nil), s.cfg.Symbols...)
}

// Name returns the feed identifier.
func (s *LiveSource) Name() string {
	return "websocket"
}

func (s *LiveSource) LatestBar(symbol string) (types.Bar, error) {
	return s.history.LatestBar(symbol)
}

func (s *LiveSource) LatestBars(symbol string, n int) ([]types.Bar, error) {
	return s.history.LatestBars(symbol, n)
}

func (s *LiveSource) LatestBarTime(symbol string) (time.Time, error) {
	return s.history.LatestBarTime(symbol)
}

func (s *LiveSource) LatestValue(symbol string, field types.BarField) (decimal.Decimal, error) {
	return s.history.LatestValue(symbol, field)
}

func (s *LiveSource) LatestValues(symbol string, field types.BarField, n int) ([]decimal.Decimal, error) {
	return s.history.LatestValues(symbol, field, n)
}
