package risk

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/types"
)

func TestSizingPolicy_Quantity(t *testing.T) {
	tests := []struct {
		name     string
		policy   SizingPolicy
		strength string
		want     int64
		wantErr  error
	}{
		{"unit strength", DefaultSizingPolicy(), "1", 100, nil},
		{"scaled down", DefaultSizingPolicy(), "0.5", 50, nil},
		{"floored", DefaultSizingPolicy(), "0.257", 25, nil},
		{"scaled up", DefaultSizingPolicy(), "2", 200, nil},
		{"rounds to zero", DefaultSizingPolicy(), "0.001", 0, types.ErrInvalidQuantity},
		{"zero strength", DefaultSizingPolicy(), "0", 0, types.ErrInvalidStrength},
		{"scaling disabled", SizingPolicy{LotSize: 100}, "0.3", 100, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.policy.Quantity(decimal.RequireFromString(tt.strength))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Quantity() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Quantity() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Quantity() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSizingPolicy_Order(t *testing.T) {
	one := decimal.NewFromInt(1)
	longOnly := DefaultSizingPolicy()
	withShort := DefaultSizingPolicy()
	withShort.AllowShort = true

	tests := []struct {
		name     string
		policy   SizingPolicy
		dir      types.Direction
		position int64
		wantSide types.Side
		wantQty  int64
		wantOK   bool
	}{
		{"long while flat", longOnly, types.DirectionLong, 0, types.SideBuy, 100, true},
		{"long while long", longOnly, types.DirectionLong, 100, 0, 0, false},
		{"long while short", withShort, types.DirectionLong, -100, 0, 0, false},
		{"short while flat, disabled", longOnly, types.DirectionShort, 0, 0, 0, false},
		{"short while flat, enabled", withShort, types.DirectionShort, 0, types.SideSell, 100, true},
		{"exit while long", longOnly, types.DirectionExit, 37, types.SideSell, 37, true},
		{"exit while short", withShort, types.DirectionExit, -40, types.SideBuy, 40, true},
		{"exit while flat", longOnly, types.DirectionExit, 0, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			side, qty, ok, err := tt.policy.Order(tt.dir, tt.position, one)
			if err != nil {
				t.Fatalf("Order() unexpected error: %v", err)
			}
			if ok != tt.wantOK || side != tt.wantSide || qty != tt.wantQty {
				t.Errorf("Order() = %s %d %v, want %s %d %v", side, qty, ok, tt.wantSide, tt.wantQty, tt.wantOK)
			}
		})
	}
}

func TestSizingPolicy_OrderUnknownDirection(t *testing.T) {
	_, _, _, err := DefaultSizingPolicy().Order(types.Direction(9), 0, decimal.NewFromInt(1))
	if !errors.Is(err, types.ErrInvalidSignal) {
		t.Errorf("expected ErrInvalidSignal, got %v", err)
	}
}

func TestSizingPolicy_Validate(t *testing.T) {
	if err := DefaultSizingPolicy().Validate(); err != nil {
		t.Errorf("default policy invalid: %v", err)
	}
	if err := (SizingPolicy{}).Validate(); !errors.Is(err, types.ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
}
