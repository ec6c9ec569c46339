package risk

import (
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/portfolio"
	"main/internal/schema"
)

// Breach is a stop-loss threshold crossing found by a scan. The
// manager turns it into a forced liquidation and an alert.
type Breach struct {
	TraderID string
	Position schema.Position
	Price    decimal.Decimal
	LossPct  decimal.Decimal
}

// Monitor watches held positions for stop-loss breaches. Liquidation
// is idempotent by construction: zero-quantity positions never scan,
// and a symbol fires at most once per trader per day, so two redundant
// managers racing on the same breach cannot double-liquidate.
type Monitor struct {
	threshold decimal.Decimal
	triggered map[string]schema.Day
}

// NewMonitor creates a monitor with the configured stop-loss
// threshold, a loss fraction in (0,1).
func NewMonitor(threshold decimal.Decimal) (*Monitor, error) {
	if !threshold.IsPositive() || threshold.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, errors.Wrap(ErrBadConfig, "stop-loss threshold out of (0,1)")
	}
	return &Monitor{
		threshold: threshold,
		triggered: make(map[string]schema.Day),
	}, nil
}

// Scan checks every held position of a portfolio snapshot against the
// day's prices and returns the breaches. A breach fires iff
// (avg cost - price) / avg cost >= threshold.
func (m *Monitor) Scan(day schema.Day, prices map[string]decimal.Decimal, snap portfolio.Snapshot) []Breach {
	var breaches []Breach
	for _, pos := range snap.Positions {
		if pos.Quantity <= 0 {
			continue
		}
		price, ok := prices[pos.Symbol]
		if !ok || !price.IsPositive() {
			continue
		}
		loss := pos.LossFraction(price)
		if loss.LessThan(m.threshold) {
			continue
		}
		key := snap.OwnerID + "/" + pos.Symbol
		if m.triggered[key] == day {
			// Already liquidating this position today.
			continue
		}
		m.triggered[key] = day
		breaches = append(breaches, Breach{
			TraderID: snap.OwnerID,
			Position: pos,
			Price:    price,
			LossPct:  loss,
		})
	}
	return breaches
}
