package agent

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/market"
	"main/internal/obs"
	"main/internal/portfolio"
	"main/internal/risk"
	"main/internal/schema"
)

// ManagerConfig configures one risk manager instance.
type ManagerConfig struct {
	Risk risk.Config `json:"risk"`
	// StopLossThreshold is the loss fraction that forces liquidation.
	StopLossThreshold decimal.Decimal `json:"stopLossThreshold"`
	// InitialCash seeds the per-trader mirror ledgers; it must match
	// what each trader actually starts with.
	InitialCash map[string]decimal.Decimal `json:"initialCash"`
}

// Manager validates order requests and watches for stop-loss breaches.
// It never touches a trader's book: it maintains its own mirror ledger
// per trader, rebuilt purely from the trade stream, and publishes
// decisions and alerts for the owning trader to act on. Two managers
// run redundantly; consumers de-duplicate their decisions.
type Manager struct {
	loop
	id      string
	cfg     ManagerConfig
	market  *market.Market
	engine  *risk.Engine
	monitor *risk.Monitor
	metrics *obs.Metrics
	fatal   func(error)

	mirrors map[string]*portfolio.Portfolio
}

// NewManager creates a risk manager.
func NewManager(id string, b *bus.Bus, mkt *market.Market, cfg ManagerConfig, metrics *obs.Metrics, fatal func(error)) (*Manager, error) {
	engine, err := risk.NewEngine(cfg.Risk, metrics)
	if err != nil {
		return nil, errors.Wrap(err, id)
	}
	monitor, err := risk.NewMonitor(cfg.StopLossThreshold)
	if err != nil {
		return nil, errors.Wrap(err, id)
	}
	if fatal == nil {
		fatal = func(err error) { logs.Errorf("%s: %v", id, err) }
	}
	return &Manager{
		loop:    loop{bus: b},
		id:      id,
		cfg:     cfg,
		market:  mkt,
		engine:  engine,
		monitor: monitor,
		metrics: metrics,
		fatal:   fatal,
		mirrors: make(map[string]*portfolio.Portfolio),
	}, nil
}

func (m *Manager) ID() string { return m.id }

// Start subscribes to order requests, executed trades and price
// updates.
func (m *Manager) Start(ctx context.Context) {
	m.sub = m.bus.Subscribe(m.id,
		schema.TopicOrderRequests,
		schema.TopicTradeExecutions,
		schema.TopicPriceUpdates,
	)
	m.run(ctx, func(msg bus.Message) { m.handle(ctx, msg) })
	logs.Debugf("%s started, stop-loss=%s concentration=%s",
		m.id, m.cfg.StopLossThreshold, m.cfg.Risk.ConcentrationLimit)
}

func (m *Manager) handle(ctx context.Context, msg bus.Message) {
	switch msg.Topic {
	case schema.TopicOrderRequests:
		if order, ok := bus.Payload[schema.Order](msg); ok {
			m.onOrder(ctx, order)
			return
		}
	case schema.TopicTradeExecutions:
		if trade, ok := bus.Payload[schema.Trade](msg); ok {
			m.onTrade(trade)
			return
		}
	case schema.TopicPriceUpdates:
		if bar, ok := bus.Payload[schema.PriceBar](msg); ok {
			m.onBar(ctx, bar)
			return
		}
	default:
		return
	}
	logs.Warnf("%s: malformed payload on %s", m.id, msg.Topic)
}

// mirror returns the ledger tracked for a trader, seeding it from the
// configured starting cash on first sight.
func (m *Manager) mirror(traderID string) *portfolio.Portfolio {
	if mir, ok := m.mirrors[traderID]; ok {
		return mir
	}
	cash, ok := m.cfg.InitialCash[traderID]
	if !ok {
		logs.Warnf("%s: no initial cash configured for %s, mirroring from zero", m.id, traderID)
		cash = decimal.Zero
	}
	mir, err := portfolio.New(traderID, cash)
	if err != nil {
		logs.Errorf("%s: mirror for %s: %v", m.id, traderID, err)
		mir, _ = portfolio.New(traderID, decimal.Zero)
	}
	m.mirrors[traderID] = mir
	return mir
}

// onOrder validates against the mirror priced at the order's day.
// Day-anchored prices keep both redundant managers deciding
// identically regardless of how their queues interleave.
func (m *Manager) onOrder(ctx context.Context, order schema.Order) {
	mir := m.mirror(order.TraderID)
	view := risk.View{
		Snapshot: mir.Snapshot(),
		Prices:   m.pricesOn(order.Day, mir, order.Symbol),
	}

	decision := m.engine.Validate(order, view)
	if decision.Approved {
		logs.Debugf("%s: approved %s %s %d %s", m.id, order.TraderID, order.Side, order.Quantity, order.Symbol)
		if err := m.bus.Publish(ctx, m.id, schema.TopicApprovedOrders, order); err != nil {
			logs.Warnf("%s: publish approval: %v", m.id, err)
		}
		return
	}

	logs.Infof("%s: rejected %s %s %d %s: %s",
		m.id, order.TraderID, order.Side, order.Quantity, order.Symbol, decision.Reason)
	rej := schema.Rejection{Order: order, Reason: decision.Reason}
	if err := m.bus.Publish(ctx, m.id, schema.TopicRejectedOrders, rej); err != nil {
		logs.Warnf("%s: publish rejection: %v", m.id, err)
	}
}

// pricesOn collects the day's closes for the trader's held symbols
// plus the order symbol. Symbols with no bar that day stay absent and
// are valued at cost by the snapshot.
func (m *Manager) pricesOn(day schema.Day, mir *portfolio.Portfolio, symbol string) map[string]decimal.Decimal {
	snap := mir.Snapshot()
	prices := make(map[string]decimal.Decimal, len(snap.Positions)+1)
	if price, ok := m.market.PriceOn(symbol, day); ok {
		prices[symbol] = price
	}
	for _, pos := range snap.Positions {
		if price, ok := m.market.PriceOn(pos.Symbol, day); ok {
			prices[pos.Symbol] = price
		}
	}
	return prices
}

// onTrade replays an executed trade into the trader's mirror. The
// trade stream is authoritative, so a mirror that cannot apply it
// means the pipeline itself is corrupted.
func (m *Manager) onTrade(trade schema.Trade) {
	if err := m.mirror(trade.TraderID).Apply(trade); err != nil {
		m.fatal(errors.Wrap(err, m.id+": mirror apply trade "+trade.ID))
	}
}

// onBar scans every mirrored book against the moved symbol only; the
// monitor's per-day trigger guard keeps repeated bars quiet.
func (m *Manager) onBar(ctx context.Context, bar schema.PriceBar) {
	prices := map[string]decimal.Decimal{bar.Symbol: bar.Close}
	for _, mir := range m.mirrors {
		for _, breach := range m.monitor.Scan(bar.Day, prices, mir.Snapshot()) {
			alert := schema.StopLossAlert{
				ManagerID: m.id,
				TraderID:  breach.TraderID,
				Position:  breach.Position,
				Price:     breach.Price,
				LossPct:   breach.LossPct,
				Day:       bar.Day,
			}
			logs.Warnf("%s: stop-loss breach %s %s loss=%s%%",
				m.id, breach.TraderID, breach.Position.Symbol,
				breach.LossPct.Mul(decimal.NewFromInt(100)).StringFixed(2))
			if err := m.bus.Publish(ctx, m.id, schema.TopicStopLossAlerts, alert); err != nil {
				logs.Warnf("%s: publish alert: %v", m.id, err)
			}
		}
	}
}
