package observer

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/types"
)

func TestHistory_AppendAndRead(t *testing.T) {
	h := NewHistory([]string{"A"}, 0)

	for i := 1; i <= 3; i++ {
		if err := h.Append(priceBar("A", day(i), int64(i))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	vals, err := h.LatestValues("A", types.FieldClose, 2)
	if err != nil {
		t.Fatalf("LatestValues: %v", err)
	}
	if len(vals) != 2 || !vals[0].Equal(decimal.NewFromInt(2)) || !vals[1].Equal(decimal.NewFromInt(3)) {
		t.Errorf("unexpected values: %v", vals)
	}

	ts, err := h.LatestBarTime("A")
	if err != nil || !ts.Equal(day(3)) {
		t.Errorf("LatestBarTime = %v, %v", ts, err)
	}
}

func TestHistory_Rejects(t *testing.T) {
	h := NewHistory([]string{"A"}, 0)

	if err := h.Append(priceBar("Z", day(1), 1)); !errors.Is(err, types.ErrUnknownInstrument) {
		t.Errorf("expected ErrUnknownInstrument, got %v", err)
	}
	if err := h.Append(priceBar("A", day(2), 1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := h.Append(priceBar("A", day(2), 1)); !errors.Is(err, types.ErrOutOfOrder) {
		t.Errorf("expected ErrOutOfOrder for duplicate, got %v", err)
	}
	if _, err := h.LatestBar("Z"); !errors.Is(err, types.ErrUnknownInstrument) {
		t.Errorf("expected ErrUnknownInstrument, got %v", err)
	}
}

func TestHistory_Limit(t *testing.T) {
	h := NewHistory([]string{"A"}, 2)
	for i := 1; i <= 5; i++ {
		if err := h.Append(priceBar("A", day(i), int64(i))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	bars, _ := h.LatestBars("A", 10)
	if len(bars) != 2 || !bars[0].Timestamp.Equal(day(4)) {
		t.Errorf("expected last 2 bars, got %+v", bars)
	}
}
