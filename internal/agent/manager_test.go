package agent

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/bus"
	"main/internal/market"
	"main/internal/risk"
	"main/internal/schema"
)

func managerFixture(t *testing.T) (context.Context, *bus.Bus, *market.Market, *Manager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	b := bus.New(bus.PolicyBlock, 32, nil)
	t.Cleanup(b.Close)

	mkt := mkMarket(t, b, market.CommissionSchedule{}, map[string][]schema.PriceBar{
		"AAPL": {
			mkBar(t, "AAPL", "2024-01-02", 100, 1000),
			mkBar(t, "AAPL", "2024-01-03", 90, 1000),
		},
	})

	mgr, err := NewManager("risk_1", b, mkt, ManagerConfig{
		Risk:              risk.Config{ConcentrationLimit: decimal.NewFromInt(1)},
		StopLossThreshold: decimal.NewFromFloat(0.08),
		InitialCash: map[string]decimal.Decimal{
			"trader_1": decimal.NewFromInt(10000),
		},
	}, nil, nil)
	require.NoError(t, err)
	mgr.Start(ctx)
	t.Cleanup(mgr.Stop)

	return ctx, b, mkt, mgr
}

func mkOrder(t *testing.T, side schema.OrderSide, qty int64, price float64, day schema.Day) schema.Order {
	t.Helper()
	order, err := schema.NewOrder("trader_1", "AAPL", side, qty, decimal.NewFromFloat(price), "", day)
	require.NoError(t, err)
	order.Status = schema.OrderStatusSubmitted
	return order
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	b := bus.New(bus.PolicyBlock, 16, nil)
	mkt := mkMarket(t, b, market.CommissionSchedule{}, map[string][]schema.PriceBar{
		"AAPL": {mkBar(t, "AAPL", "2024-01-02", 100, 1000)},
	})

	_, err := NewManager("risk_1", b, mkt, ManagerConfig{
		Risk:              risk.Config{ConcentrationLimit: decimal.NewFromInt(2)},
		StopLossThreshold: decimal.NewFromFloat(0.08),
	}, nil, nil)
	assert.Error(t, err)

	_, err = NewManager("risk_1", b, mkt, ManagerConfig{
		Risk:              risk.Config{ConcentrationLimit: decimal.NewFromInt(1)},
		StopLossThreshold: decimal.NewFromInt(1),
	}, nil, nil)
	assert.Error(t, err)
}

func TestManagerApprovesAffordableBuy(t *testing.T) {
	ctx, b, mkt, _ := managerFixture(t)
	approved := collect(ctx, b, "probe", schema.TopicApprovedOrders)

	day := advance(ctx, t, mkt)
	require.NoError(t, b.Publish(ctx, "trader_1", schema.TopicOrderRequests,
		mkOrder(t, schema.OrderSideBuy, 50, 100, day)))
	drain(ctx, t, b)

	got := payloads[schema.Order](approved)
	require.Len(t, got, 1)
	assert.EqualValues(t, 50, got[0].Quantity)
}

func TestManagerRejectsOversizedBuy(t *testing.T) {
	ctx, b, mkt, _ := managerFixture(t)
	rejected := collect(ctx, b, "probe", schema.TopicRejectedOrders)

	day := advance(ctx, t, mkt)
	require.NoError(t, b.Publish(ctx, "trader_1", schema.TopicOrderRequests,
		mkOrder(t, schema.OrderSideBuy, 200, 100, day)))
	drain(ctx, t, b)

	got := payloads[schema.Rejection](rejected)
	require.Len(t, got, 1)
	assert.Equal(t, schema.RejectReasonInsufficientCash, got[0].Reason)
}

func TestManagerRejectsOrderOnGapDay(t *testing.T) {
	ctx, b, mkt, _ := managerFixture(t)
	rejected := collect(ctx, b, "probe", schema.TopicRejectedOrders)

	advance(ctx, t, mkt)
	// No AAPL bar on this day.
	require.NoError(t, b.Publish(ctx, "trader_1", schema.TopicOrderRequests,
		mkOrder(t, schema.OrderSideBuy, 10, 100, "2024-01-06")))
	drain(ctx, t, b)

	got := payloads[schema.Rejection](rejected)
	require.Len(t, got, 1)
	assert.Equal(t, schema.RejectReasonDataUnavailable, got[0].Reason)
}

func TestManagerMirrorTracksTrades(t *testing.T) {
	ctx, b, mkt, _ := managerFixture(t)
	approved := collect(ctx, b, "probe", schema.TopicApprovedOrders)
	rejected := collect(ctx, b, "probe2", schema.TopicRejectedOrders)

	day := advance(ctx, t, mkt)

	// Fill 50 shares into the mirror through the trade stream.
	buy := mkOrder(t, schema.OrderSideBuy, 50, 100, day)
	buy.Status = schema.OrderStatusApproved
	trade, err := schema.NewTrade(buy, decimal.NewFromInt(100), decimal.Zero, day)
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, "trader_1", schema.TopicTradeExecutions, trade))
	drain(ctx, t, b)

	// Selling more than mirrored fails, selling what is held passes.
	require.NoError(t, b.Publish(ctx, "trader_1", schema.TopicOrderRequests,
		mkOrder(t, schema.OrderSideSell, 60, 100, day)))
	require.NoError(t, b.Publish(ctx, "trader_1", schema.TopicOrderRequests,
		mkOrder(t, schema.OrderSideSell, 50, 100, day)))
	drain(ctx, t, b)

	rejs := payloads[schema.Rejection](rejected)
	require.Len(t, rejs, 1)
	assert.Equal(t, schema.RejectReasonInsufficientShares, rejs[0].Reason)
	assert.EqualValues(t, 60, rejs[0].Order.Quantity)

	oks := payloads[schema.Order](approved)
	require.Len(t, oks, 1)
	assert.EqualValues(t, 50, oks[0].Quantity)
}

func TestManagerAlertsOnStopLossBreachOncePerDay(t *testing.T) {
	ctx, b, mkt, _ := managerFixture(t)
	alerts := collect(ctx, b, "probe", schema.TopicStopLossAlerts)

	day := advance(ctx, t, mkt)
	buy := mkOrder(t, schema.OrderSideBuy, 50, 100, day)
	buy.Status = schema.OrderStatusApproved
	trade, err := schema.NewTrade(buy, decimal.NewFromInt(100), decimal.Zero, day)
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, "trader_1", schema.TopicTradeExecutions, trade))
	drain(ctx, t, b)

	// Close drops to 90: a 10% loss against the 8% threshold.
	day2 := advance(ctx, t, mkt)

	got := payloads[schema.StopLossAlert](alerts)
	require.Len(t, got, 1)
	assert.Equal(t, "trader_1", got[0].TraderID)
	assert.Equal(t, "AAPL", got[0].Position.Symbol)
	assert.Equal(t, day2, got[0].Day)
	assert.True(t, got[0].LossPct.Equal(decimal.NewFromFloat(0.1)), "loss %s", got[0].LossPct)

	// A replayed bar for the same day stays quiet.
	require.NoError(t, b.Publish(ctx, "market", schema.TopicPriceUpdates,
		mkBar(t, "AAPL", day2, 90, 1000)))
	drain(ctx, t, b)
	assert.Len(t, payloads[schema.StopLossAlert](alerts), 1)
}

func TestManagerSmallDipDoesNotAlert(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := bus.New(bus.PolicyBlock, 32, nil)
	defer b.Close()

	mkt := mkMarket(t, b, market.CommissionSchedule{}, map[string][]schema.PriceBar{
		"AAPL": {
			mkBar(t, "AAPL", "2024-01-02", 100, 1000),
			mkBar(t, "AAPL", "2024-01-03", 95, 1000),
		},
	})
	mgr, err := NewManager("risk_1", b, mkt, ManagerConfig{
		Risk:              risk.Config{ConcentrationLimit: decimal.NewFromInt(1)},
		StopLossThreshold: decimal.NewFromFloat(0.08),
		InitialCash:       map[string]decimal.Decimal{"trader_1": decimal.NewFromInt(10000)},
	}, nil, nil)
	require.NoError(t, err)
	mgr.Start(ctx)
	defer mgr.Stop()
	alerts := collect(ctx, b, "probe", schema.TopicStopLossAlerts)

	day := advance(ctx, t, mkt)
	buy := mkOrder(t, schema.OrderSideBuy, 50, 100, day)
	buy.Status = schema.OrderStatusApproved
	trade, err := schema.NewTrade(buy, decimal.NewFromInt(100), decimal.Zero, day)
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, "trader_1", schema.TopicTradeExecutions, trade))
	drain(ctx, t, b)

	advance(ctx, t, mkt) // 5% dip, under the threshold

	assert.Empty(t, payloads[schema.StopLossAlert](alerts))
}
