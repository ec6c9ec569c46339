// Package portfolio is the per-trader ledger of cash, positions and
// realized P&L. A Portfolio has exactly one writer, its owning trader;
// everyone else sees read-only snapshots. The single-writer rule is
// kept by message passing, not by locks.
package portfolio

import (
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// ErrInvariant marks a corrupted-ledger condition: a bug in the order
// pipeline, not an expected outcome. The simulation halts on it.
var ErrInvariant = errors.New("portfolio invariant violation")

// Portfolio tracks cash, positions and P&L for one trader.
type Portfolio struct {
	ownerID     string
	initialCash decimal.Decimal
	cash        decimal.Decimal
	positions   map[string]schema.Position
	realizedPnL decimal.Decimal
	commissions decimal.Decimal
	tradeCount  int
}

// New creates a portfolio with the given starting cash.
func New(ownerID string, initialCash decimal.Decimal) (*Portfolio, error) {
	if ownerID == "" {
		return nil, errors.New("empty owner id")
	}
	if initialCash.IsNegative() {
		return nil, errors.New("negative initial cash")
	}
	return &Portfolio{
		ownerID:     ownerID,
		initialCash: initialCash,
		cash:        initialCash,
		positions:   make(map[string]schema.Position),
	}, nil
}

// Apply updates the ledger with an executed trade. Buys recompute the
// weighted average cost basis; sells realize P&L as
// (price - avg cost) x qty - commission. Any result that would corrupt
// the ledger (negative cash, selling more than held) returns
// ErrInvariant.
func (p *Portfolio) Apply(trade schema.Trade) error {
	switch trade.Side {
	case schema.OrderSideBuy:
		return p.applyBuy(trade)
	case schema.OrderSideSell:
		return p.applySell(trade)
	default:
		return errors.Wrap(ErrInvariant, "owner "+p.ownerID+": unknown trade side")
	}
}

func (p *Portfolio) applyBuy(trade schema.Trade) error {
	cost := trade.Notional().Add(trade.Commission)
	next := p.cash.Sub(cost)
	if next.IsNegative() {
		return errors.Wrap(ErrInvariant,
			"owner "+p.ownerID+": buy "+trade.Symbol+" would leave negative cash "+next.StringFixed(2))
	}

	pos := p.positions[trade.Symbol]
	qty := decimal.NewFromInt(trade.Quantity)
	held := decimal.NewFromInt(pos.Quantity)
	basis := pos.AvgCost.Mul(held).Add(trade.Price.Mul(qty))
	pos.Symbol = trade.Symbol
	pos.Quantity += trade.Quantity
	pos.AvgCost = basis.Div(decimal.NewFromInt(pos.Quantity))
	p.positions[trade.Symbol] = pos

	p.cash = next
	p.commissions = p.commissions.Add(trade.Commission)
	p.tradeCount++
	return nil
}

func (p *Portfolio) applySell(trade schema.Trade) error {
	pos, ok := p.positions[trade.Symbol]
	if !ok || trade.Quantity > pos.Quantity {
		return errors.Wrap(ErrInvariant,
			"owner "+p.ownerID+": sell "+trade.Symbol+" exceeds held quantity")
	}

	proceeds := trade.Notional().Sub(trade.Commission)
	next := p.cash.Add(proceeds)
	if next.IsNegative() {
		return errors.Wrap(ErrInvariant,
			"owner "+p.ownerID+": sell "+trade.Symbol+" would leave negative cash")
	}

	qty := decimal.NewFromInt(trade.Quantity)
	pnl := trade.Price.Sub(pos.AvgCost).Mul(qty).Sub(trade.Commission)
	p.realizedPnL = p.realizedPnL.Add(pnl)

	pos.Quantity -= trade.Quantity
	if pos.Quantity == 0 {
		delete(p.positions, trade.Symbol)
	} else {
		p.positions[trade.Symbol] = pos
	}

	p.cash = next
	p.commissions = p.commissions.Add(trade.Commission)
	p.tradeCount++
	return nil
}

// OwnerID returns the owning trader's id.
func (p *Portfolio) OwnerID() string {
	return p.ownerID
}

// Cash returns the current cash balance.
func (p *Portfolio) Cash() decimal.Decimal {
	return p.cash
}

// Position returns the held position for a symbol.
func (p *Portfolio) Position(symbol string) (schema.Position, bool) {
	pos, ok := p.positions[symbol]
	return pos, ok
}

// RealizedPnL returns the accumulated realized P&L.
func (p *Portfolio) RealizedPnL() decimal.Decimal {
	return p.realizedPnL
}

// CommissionPaid returns the total commission paid.
func (p *Portfolio) CommissionPaid() decimal.Decimal {
	return p.commissions
}

// UnrealizedPnL sums (price - avg cost) x qty over held positions.
// Symbols without a quote contribute nothing.
func (p *Portfolio) UnrealizedPnL(prices map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for symbol, pos := range p.positions {
		price, ok := prices[symbol]
		if !ok {
			continue
		}
		total = total.Add(pos.UnrealizedPnL(price))
	}
	return total
}

// TotalValue is cash plus the market value of held positions.
func (p *Portfolio) TotalValue(prices map[string]decimal.Decimal) decimal.Decimal {
	total := p.cash
	for symbol, pos := range p.positions {
		price, ok := prices[symbol]
		if !ok {
			// No quote for the day: value at cost basis.
			price = pos.AvgCost
		}
		total = total.Add(pos.MarketValue(price))
	}
	return total
}
