package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/types"
)

func newTestBreakout(t *testing.T, f *feed, allowShort bool) *Breakout {
	t.Helper()

	cfg := DefaultBreakoutConfig()
	cfg.LookbackBars = 3
	cfg.BreakoutBuffer = decimal.Zero
	cfg.AllowShort = allowShort
	b, err := NewBreakout(cfg, f.hist, []string{"X"})
	if err != nil {
		t.Fatalf("NewBreakout: %v", err)
	}
	return b
}

func buildRange(f *feed, s Strategy) {
	f.push(s, "X", 105, 95, 100)
	f.push(s, "X", 103, 97, 100)
	f.push(s, "X", 104, 96, 100)
}

func TestBreakout_NotReadyUntilEnoughBars(t *testing.T) {
	f := newFeed(t, "X")
	b := newTestBreakout(t, f, false)

	for i := 0; i < 3; i++ {
		if got := f.push(b, "X", 200, 1, 150); len(got) > 0 {
			t.Fatalf("should not signal before enough bars, got %+v", got)
		}
	}
}

func TestBreakout_LongThenExit(t *testing.T) {
	f := newFeed(t, "X")
	b := newTestBreakout(t, f, false)
	buildRange(f, b)

	got := f.push(b, "X", 108, 105, 107)
	if len(got) != 1 || got[0].Direction != types.DirectionLong {
		t.Fatalf("expected LONG on breakout above 105, got %+v", got)
	}
	if got[0].StrategyID != "breakout" {
		t.Errorf("StrategyID = %s, want breakout", got[0].StrategyID)
	}

	if got := f.push(b, "X", 112, 108, 111); len(got) != 0 {
		t.Errorf("should not re-enter while long, got %+v", got)
	}

	got = f.push(b, "X", 92, 88, 90)
	if len(got) != 1 || got[0].Direction != types.DirectionExit {
		t.Fatalf("expected EXIT on breakdown, got %+v", got)
	}
}

func TestBreakout_ShortOnlyWhenEnabled(t *testing.T) {
	f := newFeed(t, "X")
	b := newTestBreakout(t, f, false)
	buildRange(f, b)
	if got := f.push(b, "X", 94, 90, 91); len(got) != 0 {
		t.Errorf("long-only breakout should ignore breakdowns while flat, got %+v", got)
	}

	f = newFeed(t, "X")
	b = newTestBreakout(t, f, true)
	buildRange(f, b)
	got := f.push(b, "X", 94, 90, 91)
	if len(got) != 1 || got[0].Direction != types.DirectionShort {
		t.Fatalf("expected SHORT, got %+v", got)
	}
	got = f.push(b, "X", 120, 110, 115)
	if len(got) != 1 || got[0].Direction != types.DirectionExit {
		t.Fatalf("expected EXIT of short, got %+v", got)
	}
}

func TestBreakout_Reset(t *testing.T) {
	f := newFeed(t, "X")
	b := newTestBreakout(t, f, false)
	buildRange(f, b)
	f.push(b, "X", 108, 105, 107)

	b.Reset()
	if b.state["X"] != out {
		t.Error("Reset should put symbols back out of the market")
	}
}
