package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/observer"
	"github.com/tathienbao/eventbt/internal/types"
)

var barTime = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func newHistory(t *testing.T, price string) *observer.History {
	t.Helper()

	h := observer.NewHistory([]string{"X"}, 0)
	p := decimal.RequireFromString(price)
	if err := h.Append(types.Bar{Symbol: "X", Timestamp: barTime, Open: p, High: p, Low: p, Close: p, AdjClose: p}); err != nil {
		t.Fatalf("append: %v", err)
	}
	return h
}

func buyX(qty int64) types.OrderEvent {
	return types.OrderEvent{ID: "ord-1", Symbol: "X", Type: types.OrderKindMarket, Quantity: qty, Side: types.SideBuy}
}

func TestSimulatedHandler_DefaultFill(t *testing.T) {
	h := NewSimulatedHandler(DefaultSimulatedConfig(), newHistory(t, "10"))

	fill, err := h.ExecuteOrder(context.Background(), buyX(100))
	if err != nil {
		t.Fatalf("ExecuteOrder: %v", err)
	}

	if fill.Symbol != "X" || fill.Side != types.SideBuy || fill.Quantity != 100 {
		t.Errorf("unexpected fill: %+v", fill)
	}
	if fill.Exchange != "N/A" {
		t.Errorf("Exchange = %s, want N/A", fill.Exchange)
	}
	if fill.FillCost.Valid {
		t.Errorf("fill cost should be unknown, got %s", fill.FillCost.Decimal)
	}
	if !fill.Commission.IsZero() {
		t.Errorf("commission with unknown cost = %s, want 0", fill.Commission)
	}
	if !fill.Timestamp.Equal(barTime) {
		t.Errorf("Timestamp = %v, want latest bar time %v", fill.Timestamp, barTime)
	}
	if fill.OrderID != "ord-1" {
		t.Errorf("OrderID = %s, want ord-1", fill.OrderID)
	}
}

func TestSimulatedHandler_ReportFillCost(t *testing.T) {
	cfg := DefaultSimulatedConfig()
	cfg.ReportFillCost = true
	h := NewSimulatedHandler(cfg, newHistory(t, "100"))

	fill, err := h.ExecuteOrder(context.Background(), buyX(1000))
	if err != nil {
		t.Fatalf("ExecuteOrder: %v", err)
	}

	if !fill.FillCost.Valid || !fill.FillCost.Decimal.Equal(decimal.NewFromInt(100)) {
		t.Errorf("FillCost = %v, want 100", fill.FillCost)
	}
	if !fill.Commission.Equal(decimal.NewFromInt(500)) {
		t.Errorf("Commission = %s, want 500", fill.Commission)
	}
}

func TestSimulatedHandler_InvalidOrder(t *testing.T) {
	h := NewSimulatedHandler(DefaultSimulatedConfig(), newHistory(t, "10"))

	_, err := h.ExecuteOrder(context.Background(), buyX(0))
	if !errors.Is(err, types.ErrExecutionFailed) {
		t.Errorf("expected ErrExecutionFailed, got %v", err)
	}
}

func TestSimulatedHandler_Cancelled(t *testing.T) {
	h := NewSimulatedHandler(DefaultSimulatedConfig(), newHistory(t, "10"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := h.ExecuteOrder(ctx, buyX(1)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestHandlerFunc(t *testing.T) {
	var got types.OrderEvent
	var h Handler = HandlerFunc(func(_ context.Context, o types.OrderEvent) (types.FillEvent, error) {
		got = o
		return types.FillEvent{Symbol: o.Symbol}, nil
	})

	fill, err := h.ExecuteOrder(context.Background(), buyX(5))
	if err != nil || fill.Symbol != "X" || got.Quantity != 5 {
		t.Errorf("HandlerFunc did not delegate: fill=%+v err=%v", fill, err)
	}
}
