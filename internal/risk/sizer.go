package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/types"
)

// DefaultLotSize is the fixed order size used when none is configured.
const DefaultLotSize = 100

// SizingPolicy turns a signal into an order quantity.
type SizingPolicy struct {
	LotSize         int64 // Base quantity per entry
	ScaleByStrength bool  // Multiply the lot by signal strength (floored)
	AllowShort      bool  // Permit Short signals to open positions
}

// DefaultSizingPolicy returns a 100 unit lot scaled by strength, long only.
func DefaultSizingPolicy() SizingPolicy {
	return SizingPolicy{
		LotSize:         DefaultLotSize,
		ScaleByStrength: true,
	}
}

// Validate checks the policy parameters.
func (p SizingPolicy) Validate() error {
	if p.LotSize <= 0 {
		return fmt.Errorf("%w: lot size %d", types.ErrInvalidQuantity, p.LotSize)
	}
	return nil
}

// Quantity returns the entry size for a signal strength.
//
// Formula:
//
//	qty = floor(lot * strength)  when scaling
//	qty = lot                    otherwise
//
// A result below one unit is an error rather than a silent zero order.
func (p SizingPolicy) Quantity(strength decimal.Decimal) (int64, error) {
	if !strength.IsPositive() {
		return 0, fmt.Errorf("%w: %s", types.ErrInvalidStrength, strength)
	}
	if !p.ScaleByStrength {
		return p.LotSize, nil
	}
	qty := decimal.NewFromInt(p.LotSize).Mul(strength).Floor().IntPart()
	if qty < 1 {
		return 0, fmt.Errorf("%w: lot %d x strength %s rounds to zero", types.ErrInvalidQuantity, p.LotSize, strength)
	}
	return qty, nil
}

// Order decides the order for a signal given the current signed position.
// It returns ok=false when the combination is a no-op:
//
//	Long  while flat  -> Buy  lot
//	Short while flat  -> Sell lot (only with AllowShort)
//	Exit  while long  -> Sell |position|
//	Exit  while short -> Buy  |position|
func (p SizingPolicy) Order(dir types.Direction, position int64, strength decimal.Decimal) (side types.Side, qty int64, ok bool, err error) {
	switch dir {
	case types.DirectionLong:
		if position != 0 {
			return 0, 0, false, nil
		}
		qty, err = p.Quantity(strength)
		if err != nil {
			return 0, 0, false, err
		}
		return types.SideBuy, qty, true, nil

	case types.DirectionShort:
		if position != 0 || !p.AllowShort {
			return 0, 0, false, nil
		}
		qty, err = p.Quantity(strength)
		if err != nil {
			return 0, 0, false, err
		}
		return types.SideSell, qty, true, nil

	case types.DirectionExit:
		switch {
		case position > 0:
			return types.SideSell, position, true, nil
		case position < 0:
			return types.SideBuy, -position, true, nil
		default:
			return 0, 0, false, nil
		}

	default:
		return 0, 0, false, fmt.Errorf("%w: direction %d", types.ErrInvalidSignal, dir)
	}
}
