// Package portfolio is the position and cash ledger. It sizes signals into
// orders and applies fills, keeping total equal to cash plus the
// mark-to-market value of every position.
package portfolio

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/observer"
	"github.com/tathienbao/eventbt/internal/risk"
	"github.com/tathienbao/eventbt/internal/types"
)

// FillPricing selects the price used for the cash impact of a fill.
type FillPricing int

const (
	// PriceAtMarket values fills at the latest adjusted close.
	PriceAtMarket FillPricing = iota
	// PriceAsReported uses the fill's own cost, falling back to market.
	PriceAsReported
)

func (p FillPricing) String() string {
	switch p {
	case PriceAsReported:
		return "reported"
	default:
		return "market"
	}
}

// ParseFillPricing parses "market" or "reported". Empty means market.
func ParseFillPricing(s string) (FillPricing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "market":
		return PriceAtMarket, nil
	case "reported":
		return PriceAsReported, nil
	default:
		return 0, fmt.Errorf("%w: fill pricing %q", types.ErrInvalidConfig, s)
	}
}

// Config holds portfolio construction parameters.
type Config struct {
	Instruments    []string
	InitialCapital decimal.Decimal
	Start          time.Time
	Sizing         risk.SizingPolicy
	FillPricing    FillPricing
}

// Holdings is a valuation snapshot.
type Holdings struct {
	Timestamp   time.Time
	Cash        decimal.Decimal
	Commission  decimal.Decimal // cumulative
	Total       decimal.Decimal
	MarketValue map[string]decimal.Decimal
}

func (h Holdings) clone() Holdings {
	mv := make(map[string]decimal.Decimal, len(h.MarketValue))
	for k, v := range h.MarketValue {
		mv[k] = v
	}
	h.MarketValue = mv
	return h
}

// Positions is a dated copy of the signed position ledger.
type Positions struct {
	Timestamp time.Time
	Quantity  map[string]int64
}

// Portfolio owns the ledgers for one run. It is not safe for concurrent
// use; the engine drives it from a single goroutine.
type Portfolio struct {
	cfg    Config
	bars   observer.BarReader
	logger *slog.Logger

	symbols   map[string]struct{}
	positions map[string]int64
	working   map[string]int64 // signed quantity of orders not yet filled
	current   Holdings

	allPositions []Positions
	allHoldings  []Holdings
	fills        []types.FillEvent
	book         *tradeBook
	lastMarket   time.Time
}

// New creates a portfolio and seeds the history with a snapshot dated cfg.Start.
func New(cfg Config, bars observer.BarReader, logger *slog.Logger) (*Portfolio, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.InitialCapital.IsPositive() {
		return nil, fmt.Errorf("%w: %s", types.ErrInvalidCapital, cfg.InitialCapital)
	}
	if len(cfg.Instruments) == 0 {
		return nil, types.ErrNoInstruments
	}
	if bars == nil {
		return nil, fmt.Errorf("%w: bar reader required", types.ErrInvalidConfig)
	}
	if cfg.Sizing.LotSize == 0 {
		cfg.Sizing = risk.DefaultSizingPolicy()
	}
	if err := cfg.Sizing.Validate(); err != nil {
		return nil, err
	}

	p := &Portfolio{
		cfg:       cfg,
		bars:      bars,
		logger:    logger,
		symbols:   make(map[string]struct{}, len(cfg.Instruments)),
		positions: make(map[string]int64, len(cfg.Instruments)),
		working:   make(map[string]int64, len(cfg.Instruments)),
		book:      newTradeBook(),
	}
	for _, sym := range cfg.Instruments {
		if _, dup := p.symbols[sym]; dup {
			return nil, fmt.Errorf("%w: duplicate instrument %s", types.ErrInvalidConfig, sym)
		}
		p.symbols[sym] = struct{}{}
		p.positions[sym] = 0
	}

	p.current = Holdings{
		Timestamp:   cfg.Start,
		Cash:        cfg.InitialCapital,
		Commission:  decimal.Zero,
		Total:       cfg.InitialCapital,
		MarketValue: make(map[string]decimal.Decimal, len(cfg.Instruments)),
	}
	for _, sym := range cfg.Instruments {
		p.current.MarketValue[sym] = decimal.Zero
	}

	p.allPositions = []Positions{p.positionSnapshot(cfg.Start)}
	p.allHoldings = []Holdings{p.current.clone()}
	return p, nil
}

func (p *Portfolio) known(symbol string) error {
	if _, ok := p.symbols[symbol]; !ok {
		return fmt.Errorf("%w: %s", types.ErrUnknownInstrument, symbol)
	}
	return nil
}

func (p *Portfolio) positionSnapshot(ts time.Time) Positions {
	q := make(map[string]int64, len(p.positions))
	for k, v := range p.positions {
		q[k] = v
	}
	return Positions{Timestamp: ts, Quantity: q}
}

// marketPrice returns the latest adjusted close. A flat position with no
// bar yet is valued at zero.
func (p *Portfolio) marketPrice(symbol string) (decimal.Decimal, bool, error) {
	price, err := p.bars.LatestValue(symbol, types.FieldAdjClose)
	if errors.Is(err, types.ErrNoMarketData) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return price, true, nil
}

// revalue marks every position to market and recomputes total.
func (p *Portfolio) revalue() error {
	mv, total, err := p.value(p.positions, p.current.Cash)
	if err != nil {
		return err
	}
	p.current.MarketValue = mv
	p.current.Total = total
	return nil
}

// value marks positions to market without touching the ledger.
func (p *Portfolio) value(positions map[string]int64, cash decimal.Decimal) (map[string]decimal.Decimal, decimal.Decimal, error) {
	mv := make(map[string]decimal.Decimal, len(positions))
	total := cash
	for sym, qty := range positions {
		price, ok, err := p.marketPrice(sym)
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("price %s: %w", sym, err)
		}
		if !ok && qty != 0 {
			return nil, decimal.Zero, fmt.Errorf("%w: %s holds %d", types.ErrNoMarketData, sym, qty)
		}
		mv[sym] = price.Mul(decimal.NewFromInt(qty))
		total = total.Add(mv[sym])
	}
	return mv, total, nil
}

// UpdateTimeIndex appends a dated snapshot of positions and holdings for a
// market event. A second call for the same timestamp replaces the previous
// snapshot; an earlier timestamp is rejected.
func (p *Portfolio) UpdateTimeIndex(ev types.MarketEvent) error {
	if !p.lastMarket.IsZero() && ev.Timestamp.Before(p.lastMarket) {
		return fmt.Errorf("%w: market event %s before %s", types.ErrOutOfOrder,
			ev.Timestamp.Format(time.RFC3339), p.lastMarket.Format(time.RFC3339))
	}
	if err := p.revalue(); err != nil {
		return err
	}

	p.current.Timestamp = ev.Timestamp
	pos := p.positionSnapshot(ev.Timestamp)
	hold := p.current.clone()

	if !p.lastMarket.IsZero() && ev.Timestamp.Equal(p.lastMarket) {
		p.allPositions[len(p.allPositions)-1] = pos
		p.allHoldings[len(p.allHoldings)-1] = hold
	} else {
		p.allPositions = append(p.allPositions, pos)
		p.allHoldings = append(p.allHoldings, hold)
	}
	p.lastMarket = ev.Timestamp
	return nil
}

// UpdateSignal sizes a signal into at most one order. It returns nil when
// the signal does not change the target position, such as Long while
// already long or while an entry order is still working.
func (p *Portfolio) UpdateSignal(sig types.SignalEvent) (*types.OrderEvent, error) {
	if err := p.known(sig.Symbol); err != nil {
		return nil, err
	}
	if err := sig.Validate(); err != nil {
		return nil, err
	}

	effective := p.positions[sig.Symbol] + p.working[sig.Symbol]
	side, qty, ok, err := p.cfg.Sizing.Order(sig.Direction, effective, sig.Strength)
	if err != nil {
		return nil, fmt.Errorf("size %s signal for %s: %w", sig.Direction, sig.Symbol, err)
	}
	if !ok {
		p.logger.Debug("signal ignored",
			"symbol", sig.Symbol,
			"direction", sig.Direction.String(),
			"position", effective,
		)
		return nil, nil
	}

	order, err := types.NewOrderEvent(uuid.New().String(), sig.Symbol, types.OrderKindMarket, qty, side, decimal.Zero)
	if err != nil {
		return nil, err
	}
	order.SignalID = sig.ID
	p.working[sig.Symbol] += side.Sign() * qty
	return &order, nil
}

// UpdateFill applies a fill to positions and cash. Commission always
// reduces cash. A fill that cannot be valued leaves the ledger untouched.
func (p *Portfolio) UpdateFill(f types.FillEvent) error {
	if err := p.known(f.Symbol); err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return err
	}

	price, err := p.fillPrice(f)
	if err != nil {
		return err
	}

	delta := f.Side.Sign() * f.Quantity
	positions := maps.Clone(p.positions)
	positions[f.Symbol] += delta
	cash := p.current.Cash.Sub(price.Mul(decimal.NewFromInt(delta))).Sub(f.Commission)

	mv, total, err := p.value(positions, cash)
	if err != nil {
		return fmt.Errorf("value fill for %s: %w", f.Symbol, err)
	}

	p.positions = positions
	p.settleWorking(f.Symbol, delta)
	p.current.Cash = cash
	p.current.Commission = p.current.Commission.Add(f.Commission)
	p.current.MarketValue = mv
	p.current.Total = total
	p.fills = append(p.fills, f)
	p.book.apply(f, price)

	p.logger.Debug("fill applied",
		"symbol", f.Symbol,
		"side", f.Side.String(),
		"qty", f.Quantity,
		"price", price.String(),
		"commission", f.Commission.String(),
		"cash", p.current.Cash.String(),
	)
	return nil
}

func (p *Portfolio) fillPrice(f types.FillEvent) (decimal.Decimal, error) {
	if p.cfg.FillPricing == PriceAsReported && f.FillCost.Valid {
		return f.FillCost.Decimal, nil
	}
	price, ok, err := p.marketPrice(f.Symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price %s: %w", f.Symbol, err)
	}
	if !ok {
		if f.FillCost.Valid {
			return f.FillCost.Decimal, nil
		}
		return decimal.Zero, fmt.Errorf("%w: cannot value fill for %s", types.ErrNoMarketData, f.Symbol)
	}
	return price, nil
}

// settleWorking moves the working quantity toward zero by a filled delta.
func (p *Portfolio) settleWorking(symbol string, delta int64) {
	w := p.working[symbol]
	switch {
	case w > 0 && delta > 0:
		w -= min(w, delta)
	case w < 0 && delta < 0:
		w -= max(w, delta)
	}
	p.working[symbol] = w
}

// CheckInvariant verifies total == cash + sum(position * latest price).
func (p *Portfolio) CheckInvariant() error {
	want := p.current.Cash
	for sym, qty := range p.positions {
		price, _, err := p.marketPrice(sym)
		if err != nil {
			return err
		}
		want = want.Add(price.Mul(decimal.NewFromInt(qty)))
	}
	if !want.Equal(p.current.Total) {
		return fmt.Errorf("ledger total %s != cash plus market value %s", p.current.Total, want)
	}
	return nil
}

// Position returns the signed quantity held in symbol.
func (p *Portfolio) Position(symbol string) (int64, error) {
	if err := p.known(symbol); err != nil {
		return 0, err
	}
	return p.positions[symbol], nil
}

// CurrentPositions returns a copy of the live position ledger.
func (p *Portfolio) CurrentPositions() map[string]int64 {
	return p.positionSnapshot(p.current.Timestamp).Quantity
}

// CurrentHoldings returns a copy of the live holdings.
func (p *Portfolio) CurrentHoldings() Holdings {
	return p.current.clone()
}

// Cash returns the current cash balance.
func (p *Portfolio) Cash() decimal.Decimal {
	return p.current.Cash
}

// Total returns cash plus market value as of the last update.
func (p *Portfolio) Total() decimal.Decimal {
	return p.current.Total
}

// AllPositions returns the position history, one entry per market event
// plus the seed.
func (p *Portfolio) AllPositions() []Positions {
	out := make([]Positions, len(p.allPositions))
	for i, pos := range p.allPositions {
		q := make(map[string]int64, len(pos.Quantity))
		for k, v := range pos.Quantity {
			q[k] = v
		}
		out[i] = Positions{Timestamp: pos.Timestamp, Quantity: q}
	}
	return out
}

// AllHoldings returns the holdings history, one entry per market event
// plus the seed.
func (p *Portfolio) AllHoldings() []Holdings {
	out := make([]Holdings, len(p.allHoldings))
	for i, h := range p.allHoldings {
		out[i] = h.clone()
	}
	return out
}

// Fills returns every fill applied so far.
func (p *Portfolio) Fills() []types.FillEvent {
	out := make([]types.FillEvent, len(p.fills))
	copy(out, p.fills)
	return out
}

// Trades returns the round trips closed so far, valued at the prices the
// ledger applied.
func (p *Portfolio) Trades() []Trade {
	return p.book.trades()
}

// Instruments returns the tracked instruments in configured order.
func (p *Portfolio) Instruments() []string {
	return append([]string(nil), p.cfg.Instruments...)
}
