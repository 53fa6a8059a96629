package strategy

import (
	"errors"
	"testing"

	"github.com/tathienbao/eventbt/internal/types"
)

func TestMAC_CrossoverLongThenExit(t *testing.T) {
	f := newFeed(t, "X")
	mac, err := NewMovingAverageCrossover(MACConfig{ShortWindow: 2, LongWindow: 4}, f.hist, []string{"X"}, nil)
	if err != nil {
		t.Fatalf("NewMovingAverageCrossover: %v", err)
	}

	for i := 0; i < 4; i++ {
		if got := f.close(mac, "X", 10); len(got) != 0 {
			t.Fatalf("bar %d: flat prices should not signal, got %+v", i, got)
		}
	}

	// window 10,10,10,12: sma2 11 > sma4 10.5
	got := f.close(mac, "X", 12)
	if len(got) != 1 || got[0].Direction != types.DirectionLong {
		t.Fatalf("expected LONG, got %+v", got)
	}
	if got[0].StrategyID != "mac" || !got[0].Strength.Equal(got[0].Strength.Abs()) {
		t.Errorf("unexpected signal fields: %+v", got[0])
	}

	// Still above: no repeat entry.
	if got := f.close(mac, "X", 13); len(got) != 0 {
		t.Fatalf("expected no repeat signal, got %+v", got)
	}

	f.close(mac, "X", 8)
	got = f.close(mac, "X", 6)
	if len(got) != 1 || got[0].Direction != types.DirectionExit {
		t.Fatalf("expected EXIT, got %+v", got)
	}
}

func TestMAC_WaitsForLongWindow(t *testing.T) {
	f := newFeed(t, "X")
	mac, _ := NewMovingAverageCrossover(MACConfig{ShortWindow: 1, LongWindow: 3}, f.hist, []string{"X"}, nil)

	f.close(mac, "X", 10)
	if got := f.close(mac, "X", 20); len(got) != 0 {
		t.Errorf("expected no signal before the long window fills, got %+v", got)
	}
	if got := f.close(mac, "X", 30); len(got) != 1 {
		t.Errorf("expected signal once the window fills, got %+v", got)
	}
}

func TestMAC_SkipsSymbolsWithoutData(t *testing.T) {
	f := newFeed(t, "X", "Y")
	mac, _ := NewMovingAverageCrossover(MACConfig{ShortWindow: 1, LongWindow: 2}, f.hist, []string{"X", "Y"}, nil)

	f.close(mac, "X", 10)
	if got := f.close(mac, "X", 11); len(got) != 1 || got[0].Symbol != "X" {
		t.Errorf("expected one X signal, got %+v", got)
	}
}

func TestMACConfig_Validate(t *testing.T) {
	if err := DefaultMACConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	if err := (MACConfig{ShortWindow: 5, LongWindow: 5}).Validate(); !errors.Is(err, types.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
