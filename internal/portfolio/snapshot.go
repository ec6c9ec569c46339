package portfolio

import (
	"sort"

	"github.com/shopspring/decimal"

	"main/internal/schema"
)

// Snapshot is a read-only copy of a portfolio handed to risk managers
// and the reporter. Mutating it never touches the ledger.
type Snapshot struct {
	OwnerID        string            `json:"ownerId"`
	Cash           decimal.Decimal   `json:"cash"`
	Positions      []schema.Position `json:"positions"`
	RealizedPnL    decimal.Decimal   `json:"realizedPnl"`
	CommissionPaid decimal.Decimal   `json:"commissionPaid"`
	TradeCount     int               `json:"tradeCount"`
}

// Snapshot builds a point-in-time copy with positions sorted by symbol.
func (p *Portfolio) Snapshot() Snapshot {
	positions := make([]schema.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Symbol < positions[j].Symbol
	})
	return Snapshot{
		OwnerID:        p.ownerID,
		Cash:           p.cash,
		Positions:      positions,
		RealizedPnL:    p.realizedPnL,
		CommissionPaid: p.commissions,
		TradeCount:     p.tradeCount,
	}
}

// Position returns the snapshot's position for a symbol.
func (s Snapshot) Position(symbol string) (schema.Position, bool) {
	for _, pos := range s.Positions {
		if pos.Symbol == symbol {
			return pos, true
		}
	}
	return schema.Position{}, false
}

// TotalValue is snapshot cash plus position market value at the given
// prices; positions without a quote are valued at cost basis.
func (s Snapshot) TotalValue(prices map[string]decimal.Decimal) decimal.Decimal {
	total := s.Cash
	for _, pos := range s.Positions {
		price, ok := prices[pos.Symbol]
		if !ok {
			price = pos.AvgCost
		}
		total = total.Add(pos.MarketValue(price))
	}
	return total
}
