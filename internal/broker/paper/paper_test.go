package paper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/broker"
	"github.com/tathienbao/eventbt/internal/observer"
	"github.com/tathienbao/eventbt/internal/types"
)

func newHistory(t *testing.T, symbol string, price string) *observer.History {
	t.Helper()

	h := observer.NewHistory([]string{symbol}, 0)
	p := decimal.RequireFromString(price)
	err := h.Append(types.Bar{
		Symbol:    symbol,
		Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Open:      p, High: p, Low: p, Close: p, AdjClose: p,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	return h
}

func newConnected(t *testing.T, cfg Config) *Broker {
	t.Helper()

	b := NewBroker(cfg, newHistory(t, "AAPL", "100"), nil)
	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return b
}

func marketOrder(side types.Side, qty int64) types.OrderEvent {
	return types.OrderEvent{ID: "o1", Symbol: "AAPL", Type: types.OrderKindMarket, Quantity: qty, Side: side}
}

func TestBroker_Connect(t *testing.T) {
	b := NewBroker(DefaultConfig(), observer.NewHistory(nil, 0), nil)

	if b.State() != broker.StateDisconnected {
		t.Errorf("State() = %v, want disconnected", b.State())
	}
	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !b.IsConnected() {
		t.Error("expected connected state")
	}

	_ = b.Disconnect()
	if b.IsConnected() {
		t.Error("expected disconnected state")
	}
}

func TestBroker_NotConnected(t *testing.T) {
	b := NewBroker(DefaultConfig(), newHistory(t, "AAPL", "100"), nil)

	_, err := b.PlaceOrder(context.Background(), marketOrder(types.SideBuy, 10))
	if !errors.Is(err, broker.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestBroker_PlaceOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FillDelay = 0
	b := newConnected(t, cfg)

	exec, err := b.PlaceOrder(context.Background(), marketOrder(types.SideBuy, 1000))
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}

	if !exec.Price.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Price = %s, want 100", exec.Price)
	}
	// max(0.0035*1000, 0.005*100*1000) = 500
	if !exec.Commission.Valid || !exec.Commission.Decimal.Equal(decimal.NewFromInt(500)) {
		t.Errorf("Commission = %v, want 500", exec.Commission)
	}
	if exec.Exchange != "PAPER" || exec.OrderID == "" {
		t.Errorf("unexpected execution: %+v", exec)
	}
	if b.Position("AAPL") != 1000 {
		t.Errorf("Position = %d, want 1000", b.Position("AAPL"))
	}

	if _, err := b.PlaceOrder(context.Background(), marketOrder(types.SideSell, 400)); err != nil {
		t.Fatalf("PlaceOrder() sell error = %v", err)
	}
	if b.Position("AAPL") != 600 {
		t.Errorf("Position = %d, want 600", b.Position("AAPL"))
	}
	if len(b.Executions()) != 2 {
		t.Errorf("Executions = %d, want 2", len(b.Executions()))
	}
}

func TestBroker_Slippage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FillDelay = 0
	cfg.SlippageBps = decimal.NewFromInt(10)
	b := newConnected(t, cfg)

	buy, _ := b.PlaceOrder(context.Background(), marketOrder(types.SideBuy, 1))
	sell, _ := b.PlaceOrder(context.Background(), marketOrder(types.SideSell, 1))

	if !buy.Price.Equal(decimal.RequireFromString("100.1")) {
		t.Errorf("buy price = %s, want 100.1", buy.Price)
	}
	if !sell.Price.Equal(decimal.RequireFromString("99.9")) {
		t.Errorf("sell price = %s, want 99.9", sell.Price)
	}
}

func TestBroker_LimitRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FillDelay = 0
	b := newConnected(t, cfg)

	order := marketOrder(types.SideBuy, 10)
	order.Type = types.OrderKindLimit
	order.LimitPrice = decimal.NewFromInt(95)

	if _, err := b.PlaceOrder(context.Background(), order); !errors.Is(err, broker.ErrOrderRejected) {
		t.Errorf("expected ErrOrderRejected, got %v", err)
	}

	order.LimitPrice = decimal.NewFromInt(105)
	if _, err := b.PlaceOrder(context.Background(), order); err != nil {
		t.Errorf("marketable limit should fill, got %v", err)
	}
}

func TestBroker_FailureInjection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FillDelay = 0
	cfg.FailFirst = 2
	b := newConnected(t, cfg)

	for i := 0; i < 2; i++ {
		if _, err := b.PlaceOrder(context.Background(), marketOrder(types.SideBuy, 1)); !errors.Is(err, broker.ErrRateLimited) {
			t.Fatalf("attempt %d: expected ErrRateLimited, got %v", i, err)
		}
	}
	if _, err := b.PlaceOrder(context.Background(), marketOrder(types.SideBuy, 1)); err != nil {
		t.Fatalf("third attempt should fill, got %v", err)
	}
}

func TestBroker_FillDelayHonoursContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FillDelay = time.Hour
	b := newConnected(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := b.PlaceOrder(ctx, marketOrder(types.SideBuy, 1))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
	if b.Position("AAPL") != 0 {
		t.Error("cancelled order must not change position")
	}
}

func TestBroker_NoPrice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FillDelay = 0
	b := NewBroker(cfg, observer.NewHistory([]string{"AAPL"}, 0), nil)
	_ = b.Connect(context.Background())

	if _, err := b.PlaceOrder(context.Background(), marketOrder(types.SideBuy, 1)); !errors.Is(err, broker.ErrNoPrice) {
		t.Errorf("expected ErrNoPrice, got %v", err)
	}
}
