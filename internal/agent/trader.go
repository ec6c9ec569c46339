package agent

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/market"
	"main/internal/obs"
	"main/internal/og"
	"main/internal/portfolio"
	"main/internal/schema"
)

// TraderConfig sizes a trader's book.
type TraderConfig struct {
	InitialCash decimal.Decimal `json:"initialCash"`
	// MaxPositionValue caps the market value of a single position at
	// order-sizing time. Zero means uncapped.
	MaxPositionValue decimal.Decimal `json:"maxPositionValue"`
	// MinConfidence is the signal confidence below which the trader
	// does not act.
	MinConfidence float64 `json:"minConfidence"`
	// Commission mirrors the market's schedule so buys are sized to
	// leave room for fees.
	Commission market.CommissionSchedule `json:"commission"`
	Symbols    []string                  `json:"symbols"`
}

// Trader converts signals for its symbols into orders, and is the only
// writer of its portfolio: approvals, rejections and forced
// liquidations all mutate state inside its single consume loop. The
// order state machine doubles as the duplicate-decision guard when two
// redundant risk managers answer the same request.
type Trader struct {
	loop
	id      string
	cfg     TraderConfig
	symbols map[string]struct{}
	market  *market.Market
	metrics *obs.Metrics
	fatal   func(error)

	pf     *portfolio.Portfolio
	orders *og.StateMachine
}

// NewTrader creates a trader with its starting cash.
func NewTrader(id string, b *bus.Bus, mkt *market.Market, cfg TraderConfig, metrics *obs.Metrics, fatal func(error)) (*Trader, error) {
	if len(cfg.Symbols) == 0 {
		return nil, errors.Wrap(ErrBadAgentConfig, id+": no symbols assigned")
	}
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 1 {
		return nil, errors.Wrap(ErrBadAgentConfig, id+": min confidence out of [0,1]")
	}
	pf, err := portfolio.New(id, cfg.InitialCash)
	if err != nil {
		return nil, errors.Wrap(ErrBadAgentConfig, id+": "+err.Error())
	}
	if fatal == nil {
		fatal = func(err error) { logs.Errorf("%s: %v", id, err) }
	}

	owned := make(map[string]struct{}, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		owned[symbol] = struct{}{}
	}
	return &Trader{
		loop:    loop{bus: b},
		id:      id,
		cfg:     cfg,
		symbols: owned,
		market:  mkt,
		metrics: metrics,
		fatal:   fatal,
		pf:      pf,
		orders:  og.NewStateMachine(),
	}, nil
}

func (t *Trader) ID() string { return t.id }

// Start subscribes to everything that moves the trader's book.
func (t *Trader) Start(ctx context.Context) {
	t.sub = t.bus.Subscribe(t.id,
		schema.TopicAnalystSignals,
		schema.TopicApprovedOrders,
		schema.TopicRejectedOrders,
		schema.TopicStopLossAlerts,
	)
	t.run(ctx, func(m bus.Message) { t.handle(ctx, m) })
	logs.Debugf("%s started, cash=%s symbols=%d", t.id, t.cfg.InitialCash, len(t.symbols))
}

func (t *Trader) handle(ctx context.Context, m bus.Message) {
	switch m.Topic {
	case schema.TopicAnalystSignals:
		if sig, ok := bus.Payload[schema.Signal](m); ok {
			t.onSignal(ctx, sig)
			return
		}
	case schema.TopicApprovedOrders:
		if order, ok := bus.Payload[schema.Order](m); ok {
			t.onApproved(ctx, order)
			return
		}
	case schema.TopicRejectedOrders:
		if rej, ok := bus.Payload[schema.Rejection](m); ok {
			t.onRejected(rej)
			return
		}
	case schema.TopicStopLossAlerts:
		if alert, ok := bus.Payload[schema.StopLossAlert](m); ok {
			t.onStopLoss(ctx, alert)
			return
		}
	default:
		return
	}
	logs.Warnf("%s: malformed payload on %s", t.id, m.Topic)
}

func (t *Trader) onSignal(ctx context.Context, sig schema.Signal) {
	if _, owned := t.symbols[sig.Symbol]; !owned {
		return
	}
	if sig.Kind == schema.SignalKindHold || sig.Confidence < t.cfg.MinConfidence {
		return
	}
	price, ok := t.market.Price(sig.Symbol)
	if !ok {
		logs.Debugf("%s: no price for %s, signal ignored", t.id, sig.Symbol)
		return
	}

	var side schema.OrderSide
	var qty int64
	switch sig.Kind {
	case schema.SignalKindBuy:
		side, qty = schema.OrderSideBuy, t.buyQuantity(sig.Symbol, price)
	case schema.SignalKindSell:
		side, qty = schema.OrderSideSell, t.sellQuantity(sig.Symbol)
	default:
		return
	}
	if qty <= 0 {
		return
	}

	order, err := schema.NewOrder(t.id, sig.Symbol, side, qty, price, sig.ID, sig.Day)
	if err != nil {
		logs.Errorf("%s: build order: %v", t.id, err)
		return
	}
	submitted, err := t.orders.Submit(order)
	if err != nil {
		logs.Errorf("%s: submit %s: %v", t.id, order.ID, err)
		return
	}
	if err := t.bus.Publish(ctx, t.id, schema.TopicOrderRequests, submitted); err != nil {
		logs.Warnf("%s: publish order request: %v", t.id, err)
	}
}

// buyQuantity spends free cash up to the per-symbol cap. The cash leg
// reserves room for commission, qty <= (cash-flat)/(price*(1+rate)),
// so a fill can never drive the ledger negative; the cap leg is plain
// notional.
func (t *Trader) buyQuantity(symbol string, price decimal.Decimal) int64 {
	spendable := t.pf.Cash().Sub(t.cfg.Commission.Flat)
	if !spendable.IsPositive() {
		return 0
	}
	perShare := price.Mul(decimal.NewFromInt(1).Add(t.cfg.Commission.Rate))
	qty := spendable.Div(perShare).IntPart()

	if t.cfg.MaxPositionValue.IsPositive() {
		held := decimal.Zero
		if pos, ok := t.pf.Position(symbol); ok {
			held = pos.MarketValue(price)
		}
		room := t.cfg.MaxPositionValue.Sub(held)
		if !room.IsPositive() {
			return 0
		}
		if capped := room.Div(price).IntPart(); capped < qty {
			qty = capped
		}
	}
	return qty
}

// sellQuantity unwinds half the position, at least one share.
func (t *Trader) sellQuantity(symbol string) int64 {
	pos, ok := t.pf.Position(symbol)
	if !ok || pos.Quantity <= 0 {
		return 0
	}
	if qty := pos.Quantity / 2; qty > 0 {
		return qty
	}
	return pos.Quantity
}

func (t *Trader) onApproved(ctx context.Context, order schema.Order) {
	if order.TraderID != t.id {
		return
	}
	approved, err := t.orders.Approve(order.ID)
	if err != nil {
		// The second redundant manager echoing the same decision.
		logs.Debugf("%s: approve %s: %v", t.id, order.ID, err)
		return
	}
	t.execute(ctx, approved)
}

func (t *Trader) onRejected(rej schema.Rejection) {
	if rej.Order.TraderID != t.id {
		return
	}
	if _, err := t.orders.Reject(rej.Order.ID, rej.Reason); err != nil {
		logs.Debugf("%s: reject %s: %v", t.id, rej.Order.ID, err)
		return
	}
	logs.Infof("%s: order %s rejected: %s", t.id, rej.Order.ID, rej.Reason)
}

// onStopLoss liquidates the full current position. Duplicate alerts
// from redundant managers are no-ops because the position is already
// flat when the second one arrives.
func (t *Trader) onStopLoss(ctx context.Context, alert schema.StopLossAlert) {
	if alert.TraderID != t.id {
		return
	}
	pos, ok := t.pf.Position(alert.Position.Symbol)
	if !ok || pos.Quantity <= 0 {
		return
	}
	price, ok := t.market.Price(pos.Symbol)
	if !ok {
		logs.Warnf("%s: stop-loss on %s without a price, skipped", t.id, pos.Symbol)
		return
	}

	order, err := schema.NewOrder(t.id, pos.Symbol, schema.OrderSideSell, pos.Quantity, price, "", alert.Day)
	if err != nil {
		logs.Errorf("%s: build liquidation order: %v", t.id, err)
		return
	}
	order.Forced = true
	if _, err := t.orders.Submit(order); err != nil {
		logs.Errorf("%s: submit liquidation %s: %v", t.id, order.ID, err)
		return
	}
	// Forced liquidations skip pre-trade validation.
	approved, err := t.orders.Approve(order.ID)
	if err != nil {
		logs.Errorf("%s: approve liquidation %s: %v", t.id, order.ID, err)
		return
	}
	t.metrics.IncStopLoss()
	logs.Warnf("%s: stop-loss liquidating %d %s at %s (loss %s%%)",
		t.id, pos.Quantity, pos.Symbol, price, alert.LossPct.Mul(decimal.NewFromInt(100)).StringFixed(2))
	t.execute(ctx, approved)
}

// execute fills an approved order at the market and applies the trade
// to the book. A ledger invariant violation aborts the run.
func (t *Trader) execute(ctx context.Context, order schema.Order) {
	start := time.Now()
	trade, err := t.market.Fill(order)
	if err != nil {
		logs.Errorf("%s: fill %s: %v", t.id, order.ID, err)
		return
	}
	if err := t.pf.Apply(trade); err != nil {
		t.fatal(errors.Wrap(err, t.id+": apply trade "+trade.ID))
		return
	}
	if _, err := t.orders.Fill(order.ID); err != nil {
		logs.Errorf("%s: mark filled %s: %v", t.id, order.ID, err)
	}
	t.metrics.ObserveFill(time.Since(start))

	if err := t.bus.Publish(ctx, t.id, schema.TopicTradeExecutions, trade); err != nil {
		logs.Warnf("%s: publish trade: %v", t.id, err)
	}
	t.publishUpdate(ctx, trade.Day)
}

func (t *Trader) publishUpdate(ctx context.Context, day schema.Day) {
	prices := t.market.Prices()
	update := schema.PortfolioUpdate{
		TraderID:      t.id,
		Day:           day,
		Cash:          t.pf.Cash(),
		TotalValue:    t.pf.TotalValue(prices),
		RealizedPnL:   t.pf.RealizedPnL(),
		UnrealizedPnL: t.pf.UnrealizedPnL(prices),
	}
	if err := t.bus.Publish(ctx, t.id, schema.TopicPortfolioUpdates, update); err != nil {
		logs.Warnf("%s: publish portfolio update: %v", t.id, err)
	}
}

// PublishSnapshot emits a portfolio update outside the fill path. The
// simulation loop calls it at day boundaries, after the bus barrier,
// so it never races the consume loop.
func (t *Trader) PublishSnapshot(ctx context.Context, day schema.Day) {
	t.publishUpdate(ctx, day)
}

// Snapshot returns the book. Only safe at a quiescent bus.
func (t *Trader) Snapshot() portfolio.Snapshot {
	return t.pf.Snapshot()
}

// OpenOrders returns orders awaiting a risk decision or a fill.
func (t *Trader) OpenOrders() []schema.Order {
	return t.orders.Open()
}
