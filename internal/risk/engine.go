// Package risk evaluates orders before they trade and watches live
// positions for stop-loss breaches afterwards. Both run inside each
// risk manager agent so the whole component can be deployed
// redundantly.
package risk

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/obs"
	"main/internal/portfolio"
	"main/internal/schema"
)

var ErrBadConfig = errors.New("invalid risk config")

// Config defines the pre-trade limits.
type Config struct {
	// ConcentrationLimit is the maximum fraction of total portfolio
	// value allowed in a single symbol.
	ConcentrationLimit decimal.Decimal `json:"concentrationLimit"`
}

// View is the read-only state a validation runs against: the trader's
// portfolio snapshot and the current close prices.
type View struct {
	Snapshot portfolio.Snapshot
	Prices   map[string]decimal.Decimal
}

// Decision is the outcome of a pre-trade validation.
type Decision struct {
	OrderID  string
	Approved bool
	Reason   schema.RejectReason
}

// Engine applies the pre-trade checks in a fixed order: data
// availability, then capital/shares, then concentration. The first
// failing check determines the rejection reason.
type Engine struct {
	cfg     Config
	metrics *obs.Metrics
}

// NewEngine creates a validation engine.
func NewEngine(cfg Config, metrics *obs.Metrics) (*Engine, error) {
	if cfg.ConcentrationLimit.IsNegative() || cfg.ConcentrationLimit.GreaterThan(decimal.NewFromInt(1)) {
		return nil, errors.Wrap(ErrBadConfig, "concentration limit out of [0,1]")
	}
	return &Engine{cfg: cfg, metrics: metrics}, nil
}

// Validate evaluates a submitted order against the view.
func (e *Engine) Validate(order schema.Order, view View) Decision {
	start := time.Now()
	defer func() { e.metrics.ObserveRiskEval(time.Since(start)) }()

	decision := e.validate(order, view)
	if !decision.Approved {
		e.metrics.IncReject(decision.Reason)
	}
	return decision
}

func (e *Engine) validate(order schema.Order, view View) Decision {
	price, ok := view.Prices[order.Symbol]
	if !ok || !price.IsPositive() {
		return reject(order, schema.RejectReasonDataUnavailable)
	}
	notional := price.Mul(decimal.NewFromInt(order.Quantity))

	switch order.Side {
	case schema.OrderSideBuy:
		if notional.GreaterThan(view.Snapshot.Cash) {
			return reject(order, schema.RejectReasonInsufficientCash)
		}
	case schema.OrderSideSell:
		pos, held := view.Snapshot.Position(order.Symbol)
		if !held || order.Quantity > pos.Quantity {
			return reject(order, schema.RejectReasonInsufficientShares)
		}
	default:
		return reject(order, schema.RejectReasonDataUnavailable)
	}

	if order.Side == schema.OrderSideBuy {
		pos, _ := view.Snapshot.Position(order.Symbol)
		resulting := price.Mul(decimal.NewFromInt(pos.Quantity + order.Quantity))
		limit := view.Snapshot.TotalValue(view.Prices).Mul(e.cfg.ConcentrationLimit)
		// Landing exactly on the boundary is allowed.
		if resulting.GreaterThan(limit) {
			return reject(order, schema.RejectReasonConcentration)
		}
	}

	return Decision{OrderID: order.ID, Approved: true, Reason: schema.RejectReasonNone}
}

func reject(order schema.Order, reason schema.RejectReason) Decision {
	return Decision{OrderID: order.ID, Approved: false, Reason: reason}
}
