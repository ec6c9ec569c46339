package agent

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/schema"
)

// ReportVersion tags the report contract so downstream consumers can
// detect shape changes.
const ReportVersion uint16 = 1

// Report is the aggregated outcome of a run. Decimal fields are exact;
// drawdown is a fraction of the peak.
type Report struct {
	Version uint16     `json:"version"`
	Day     schema.Day `json:"day"`

	TradeCount    int `json:"tradeCount"`
	BuyCount      int `json:"buyCount"`
	SellCount     int `json:"sellCount"`
	ApprovedCount int `json:"approvedCount"`
	RejectedCount int `json:"rejectedCount"`
	StopLossCount int `json:"stopLossCount"`

	RejectedByReason map[string]int `json:"rejectedByReason"`

	TotalValue    decimal.Decimal `json:"totalValue"`
	RealizedPnL   decimal.Decimal `json:"realizedPnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl"`
	Commission    decimal.Decimal `json:"commission"`
	MaxDrawdown   decimal.Decimal `json:"maxDrawdown"`

	Trades     []schema.Trade         `json:"trades"`
	Rejections []schema.Rejection     `json:"rejections"`
	Alerts     []schema.StopLossAlert `json:"alerts"`
}

// Reporter passively aggregates run statistics. Decisions arrive once
// per redundant manager, so approvals and rejections de-duplicate by
// order ID and alerts by trader, symbol and day. It holds no authority
// over any state it observes.
type Reporter struct {
	loop
	id string

	mu         sync.Mutex
	lastDay    schema.Day
	trades     []schema.Trade
	rejections []schema.Rejection
	alerts     []schema.StopLossAlert
	approved   map[string]struct{}
	rejected   map[string]struct{}
	alertSeen  map[string]struct{}
	byReason   map[schema.RejectReason]int

	latest      map[string]schema.PortfolioUpdate
	peak        decimal.Decimal
	maxDrawdown decimal.Decimal
}

// NewReporter creates a reporter.
func NewReporter(id string, b *bus.Bus) *Reporter {
	return &Reporter{
		loop:      loop{bus: b},
		id:        id,
		approved:  make(map[string]struct{}),
		rejected:  make(map[string]struct{}),
		alertSeen: make(map[string]struct{}),
		byReason:  make(map[schema.RejectReason]int),
		latest:    make(map[string]schema.PortfolioUpdate),
	}
}

func (r *Reporter) ID() string { return r.id }

// Start subscribes to every outcome topic.
func (r *Reporter) Start(ctx context.Context) {
	r.sub = r.bus.Subscribe(r.id,
		schema.TopicTradeExecutions,
		schema.TopicApprovedOrders,
		schema.TopicRejectedOrders,
		schema.TopicStopLossAlerts,
		schema.TopicPortfolioUpdates,
	)
	r.run(ctx, r.handle)
	logs.Debugf("%s started", r.id)
}

func (r *Reporter) handle(m bus.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch m.Topic {
	case schema.TopicTradeExecutions:
		if trade, ok := bus.Payload[schema.Trade](m); ok {
			r.trades = append(r.trades, trade)
			r.bump(trade.Day)
			return
		}
	case schema.TopicApprovedOrders:
		if order, ok := bus.Payload[schema.Order](m); ok {
			r.approved[order.ID] = struct{}{}
			return
		}
	case schema.TopicRejectedOrders:
		if rej, ok := bus.Payload[schema.Rejection](m); ok {
			if _, seen := r.rejected[rej.Order.ID]; !seen {
				r.rejected[rej.Order.ID] = struct{}{}
				r.rejections = append(r.rejections, rej)
				r.byReason[rej.Reason]++
			}
			return
		}
	case schema.TopicStopLossAlerts:
		if alert, ok := bus.Payload[schema.StopLossAlert](m); ok {
			key := alert.TraderID + "/" + alert.Position.Symbol + "/" + string(alert.Day)
			if _, seen := r.alertSeen[key]; !seen {
				r.alertSeen[key] = struct{}{}
				r.alerts = append(r.alerts, alert)
			}
			return
		}
	case schema.TopicPortfolioUpdates:
		if update, ok := bus.Payload[schema.PortfolioUpdate](m); ok {
			r.observeValue(update)
			return
		}
	default:
		return
	}
	logs.Warnf("%s: malformed payload on %s", r.id, m.Topic)
}

func (r *Reporter) bump(day schema.Day) {
	if r.lastDay.Before(day) {
		r.lastDay = day
	}
}

// observeValue feeds the drawdown tracker with the combined value of
// all books, using the latest update per trader.
func (r *Reporter) observeValue(update schema.PortfolioUpdate) {
	r.latest[update.TraderID] = update
	r.bump(update.Day)

	total := decimal.Zero
	for _, u := range r.latest {
		total = total.Add(u.TotalValue)
	}
	if total.GreaterThan(r.peak) {
		r.peak = total
		return
	}
	if !r.peak.IsPositive() {
		return
	}
	if dd := r.peak.Sub(total).Div(r.peak); dd.GreaterThan(r.maxDrawdown) {
		r.maxDrawdown = dd
	}
}

// Snapshot assembles the report from everything seen so far.
func (r *Reporter) Snapshot() Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := Report{
		Version:          ReportVersion,
		Day:              r.lastDay,
		TradeCount:       len(r.trades),
		ApprovedCount:    len(r.approved),
		RejectedCount:    len(r.rejections),
		StopLossCount:    len(r.alerts),
		RejectedByReason: make(map[string]int, len(r.byReason)),
		MaxDrawdown:      r.maxDrawdown,
		Trades:           append([]schema.Trade(nil), r.trades...),
		Rejections:       append([]schema.Rejection(nil), r.rejections...),
		Alerts:           append([]schema.StopLossAlert(nil), r.alerts...),
	}
	for reason, n := range r.byReason {
		report.RejectedByReason[reason.String()] = n
	}
	for _, trade := range r.trades {
		switch trade.Side {
		case schema.OrderSideBuy:
			report.BuyCount++
		case schema.OrderSideSell:
			report.SellCount++
		}
		report.Commission = report.Commission.Add(trade.Commission)
	}
	for _, u := range r.latest {
		report.TotalValue = report.TotalValue.Add(u.TotalValue)
		report.RealizedPnL = report.RealizedPnL.Add(u.RealizedPnL)
		report.UnrealizedPnL = report.UnrealizedPnL.Add(u.UnrealizedPnL)
	}
	return report
}
