package schema

// Topic names every channel on the bus. All inter-agent traffic uses
// one of these.
type Topic string

const (
	TopicPriceUpdates     Topic = "price_updates"
	TopicAnalystSignals   Topic = "analyst_signals"
	TopicOrderRequests    Topic = "order_requests"
	TopicApprovedOrders   Topic = "approved_orders"
	TopicRejectedOrders   Topic = "rejected_orders"
	TopicStopLossAlerts   Topic = "stop_loss_alerts"
	TopicTradeExecutions  Topic = "trade_executions"
	TopicPortfolioUpdates Topic = "portfolio_updates"
)

func (t Topic) IsAvailable() bool {
	switch t {
	case TopicPriceUpdates, TopicAnalystSignals, TopicOrderRequests,
		TopicApprovedOrders, TopicRejectedOrders, TopicStopLossAlerts,
		TopicTradeExecutions, TopicPortfolioUpdates:
		return true
	default:
		return false
	}
}
