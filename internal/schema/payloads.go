package schema

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

var (
	ErrInvalidBar       = errors.New("invalid price bar")
	ErrInvalidSignal    = errors.New("invalid signal")
	ErrInvalidOrder     = errors.New("invalid order")
	ErrInvalidTrade     = errors.New("invalid trade")
	ErrInvalidThreshold = errors.New("invalid threshold")
)

// PriceBar is one day of OHLCV history for a symbol. Bars are
// immutable, append-only history; the loader enforces strictly
// increasing dates per symbol.
type PriceBar struct {
	Symbol string          `json:"symbol"`
	Day    Day             `json:"day"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// NewPriceBar validates and builds a bar.
func NewPriceBar(symbol string, day Day, open, high, low, close decimal.Decimal, volume int64) (PriceBar, error) {
	if symbol == "" {
		return PriceBar{}, errors.Wrap(ErrInvalidBar, "empty symbol")
	}
	if day == "" {
		return PriceBar{}, errors.Wrap(ErrInvalidBar, "empty day")
	}
	if !close.IsPositive() {
		return PriceBar{}, errors.Wrap(ErrInvalidBar, "close must be > 0: "+close.String())
	}
	if open.IsNegative() || high.IsNegative() || low.IsNegative() {
		return PriceBar{}, errors.Wrap(ErrInvalidBar, "negative price")
	}
	if volume < 0 {
		return PriceBar{}, errors.Wrap(ErrInvalidBar, "negative volume")
	}
	return PriceBar{
		Symbol: symbol,
		Day:    day,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close,
		Volume: volume,
	}, nil
}

// Signal is an analyst recommendation with bounded confidence.
type Signal struct {
	ID         string     `json:"id"`
	AgentID    string     `json:"agentId"`
	Symbol     string     `json:"symbol"`
	Kind       SignalKind `json:"kind"`
	Confidence float64    `json:"confidence"`
	Reason     string     `json:"reason"`
	Day        Day        `json:"day"`
}

// NewSignal validates and builds a signal.
func NewSignal(agentID, symbol string, kind SignalKind, confidence float64, reason string, day Day) (Signal, error) {
	if agentID == "" || symbol == "" {
		return Signal{}, errors.Wrap(ErrInvalidSignal, "empty agent or symbol")
	}
	if !kind.IsAvailable() {
		return Signal{}, errors.Wrap(ErrInvalidSignal, "unknown kind")
	}
	if confidence < 0 || confidence > 1 {
		return Signal{}, errors.Wrap(ErrInvalidSignal, "confidence out of [0,1]")
	}
	return Signal{
		ID:         uuid.NewString(),
		AgentID:    agentID,
		Symbol:     symbol,
		Kind:       kind,
		Confidence: confidence,
		Reason:     reason,
		Day:        day,
	}, nil
}

// Order is a trader (or forced-liquidation) request to buy or sell.
// Immutable once created except Status/Reason, which only the order
// state machine advances.
type Order struct {
	ID       string          `json:"id"`
	TraderID string          `json:"traderId"`
	Symbol   string          `json:"symbol"`
	Side     OrderSide       `json:"side"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Status   OrderStatus     `json:"status"`
	Reason   RejectReason    `json:"reason"`
	SignalID string          `json:"signalId,omitempty"`
	Forced   bool            `json:"forced,omitempty"`
	Day      Day             `json:"day"`
}

// NewOrder validates and builds an order in Created state.
func NewOrder(traderID, symbol string, side OrderSide, quantity int64, price decimal.Decimal, signalID string, day Day) (Order, error) {
	if traderID == "" || symbol == "" {
		return Order{}, errors.Wrap(ErrInvalidOrder, "empty trader or symbol")
	}
	if !side.IsAvailable() {
		return Order{}, errors.Wrap(ErrInvalidOrder, "unknown side")
	}
	if quantity <= 0 {
		return Order{}, errors.Wrap(ErrInvalidOrder, "quantity must be > 0")
	}
	if price.IsNegative() {
		return Order{}, errors.Wrap(ErrInvalidOrder, "negative price")
	}
	return Order{
		ID:       uuid.NewString(),
		TraderID: traderID,
		Symbol:   symbol,
		Side:     side,
		Quantity: quantity,
		Price:    price,
		Status:   OrderStatusCreated,
		SignalID: signalID,
		Day:      day,
	}, nil
}

// Notional is quantity x requested price.
func (o Order) Notional() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(o.Quantity))
}

// Trade is an executed fill. Immutable.
type Trade struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"orderId"`
	TraderID   string          `json:"traderId"`
	Symbol     string          `json:"symbol"`
	Side       OrderSide       `json:"side"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Commission decimal.Decimal `json:"commission"`
	Day        Day             `json:"day"`
}

// NewTrade validates and builds a trade for an approved order. The
// trade quantity always equals the approved order quantity.
func NewTrade(order Order, price, commission decimal.Decimal, day Day) (Trade, error) {
	if !price.IsPositive() {
		return Trade{}, errors.Wrap(ErrInvalidTrade, "execution price must be > 0")
	}
	if commission.IsNegative() {
		return Trade{}, errors.Wrap(ErrInvalidTrade, "negative commission")
	}
	return Trade{
		ID:         uuid.NewString(),
		OrderID:    order.ID,
		TraderID:   order.TraderID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   order.Quantity,
		Price:      price,
		Commission: commission,
		Day:        day,
	}, nil
}

// Notional is quantity x execution price.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

// Position is a held quantity with its weighted average cost basis.
type Position struct {
	Symbol   string          `json:"symbol"`
	Quantity int64           `json:"quantity"`
	AvgCost  decimal.Decimal `json:"avgCost"`
}

// MarketValue is quantity x the given price.
func (p Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(p.Quantity))
}

// UnrealizedPnL is (price - avg cost) x quantity.
func (p Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	return price.Sub(p.AvgCost).Mul(decimal.NewFromInt(p.Quantity))
}

// LossFraction is (avg cost - price) / avg cost; positive when the
// position is under water.
func (p Position) LossFraction(price decimal.Decimal) decimal.Decimal {
	if !p.AvgCost.IsPositive() {
		return decimal.Zero
	}
	return p.AvgCost.Sub(price).Div(p.AvgCost)
}

// Rejection pairs a rejected order with its reason.
type Rejection struct {
	Order  Order        `json:"order"`
	Reason RejectReason `json:"reason"`
}

// StopLossAlert is published when a position breaches the stop-loss
// threshold and a forced liquidation is synthesized.
type StopLossAlert struct {
	ManagerID string          `json:"managerId"`
	TraderID  string          `json:"traderId"`
	Position  Position        `json:"position"`
	Price     decimal.Decimal `json:"price"`
	LossPct   decimal.Decimal `json:"lossPct"`
	Day       Day             `json:"day"`
}

// PortfolioUpdate is a periodic total-value snapshot used for
// drawdown tracking.
type PortfolioUpdate struct {
	TraderID      string          `json:"traderId"`
	Day           Day             `json:"day"`
	Cash          decimal.Decimal `json:"cash"`
	TotalValue    decimal.Decimal `json:"totalValue"`
	RealizedPnL   decimal.Decimal `json:"realizedPnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl"`
}
