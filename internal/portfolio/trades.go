package portfolio

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/types"
)

// Trade is a closed round trip: an entry and the fills that brought the
// position back toward flat.
type Trade struct {
	ID         string
	Symbol     string
	Side       types.Side // side of the entry
	Quantity   int64
	EntryPrice decimal.Decimal // volume-weighted
	ExitPrice  decimal.Decimal
	EntryTime  time.Time
	ExitTime   time.Time
	GrossPL    decimal.Decimal
	Commission decimal.Decimal
	NetPL      decimal.Decimal
}

// IsWin reports whether the trade made money after commission.
func (t Trade) IsWin() bool {
	return t.NetPL.IsPositive()
}

type lot struct {
	side       types.Side
	qty        int64
	avgPrice   decimal.Decimal
	entryTime  time.Time
	commission decimal.Decimal
}

// tradeBook pairs fills into round trips using average cost.
type tradeBook struct {
	open   map[string]*lot
	closed []Trade
}

func newTradeBook() *tradeBook {
	return &tradeBook{open: make(map[string]*lot)}
}

func (b *tradeBook) apply(f types.FillEvent, price decimal.Decimal) {
	if f.Quantity == 0 {
		return
	}
	l, ok := b.open[f.Symbol]
	if !ok {
		b.open[f.Symbol] = &lot{
			side:       f.Side,
			qty:        f.Quantity,
			avgPrice:   price,
			entryTime:  f.Timestamp,
			commission: f.Commission,
		}
		return
	}

	if l.side == f.Side {
		oldQty := decimal.NewFromInt(l.qty)
		addQty := decimal.NewFromInt(f.Quantity)
		l.avgPrice = l.avgPrice.Mul(oldQty).Add(price.Mul(addQty)).Div(oldQty.Add(addQty))
		l.qty += f.Quantity
		l.commission = l.commission.Add(f.Commission)
		return
	}

	closeQty := min(l.qty, f.Quantity)
	cq := decimal.NewFromInt(closeQty)
	entryComm := l.commission.Mul(cq).Div(decimal.NewFromInt(l.qty))
	exitComm := f.Commission.Mul(cq).Div(decimal.NewFromInt(f.Quantity))

	gross := price.Sub(l.avgPrice).Mul(cq).Mul(decimal.NewFromInt(l.side.Sign()))
	comm := entryComm.Add(exitComm)
	b.closed = append(b.closed, Trade{
		ID:         uuid.New().String(),
		Symbol:     f.Symbol,
		Side:       l.side,
		Quantity:   closeQty,
		EntryPrice: l.avgPrice,
		ExitPrice:  price,
		EntryTime:  l.entryTime,
		ExitTime:   f.Timestamp,
		GrossPL:    gross,
		Commission: comm,
		NetPL:      gross.Sub(comm),
	})

	l.qty -= closeQty
	l.commission = l.commission.Sub(entryComm)
	if l.qty == 0 {
		delete(b.open, f.Symbol)
	}

	// A fill larger than the open lot reverses the position.
	if rest := f.Quantity - closeQty; rest > 0 {
		b.open[f.Symbol] = &lot{
			side:       f.Side,
			qty:        rest,
			avgPrice:   price,
			entryTime:  f.Timestamp,
			commission: f.Commission.Sub(exitComm),
		}
	}
}

func (b *tradeBook) trades() []Trade {
	out := make([]Trade, len(b.closed))
	copy(out, b.closed)
	return out
}
