package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"main/internal/portfolio"
	"main/internal/schema"
)

func engine(t *testing.T, concentration string) *Engine {
	t.Helper()
	e, err := NewEngine(Config{ConcentrationLimit: decimal.RequireFromString(concentration)}, nil)
	require.NoError(t, err)
	return e
}

func view(t *testing.T, cash string, positions ...schema.Position) View {
	t.Helper()
	p, err := portfolio.New("trader_1", decimal.RequireFromString(cash))
	require.NoError(t, err)
	for _, pos := range positions {
		order, err := schema.NewOrder("trader_1", pos.Symbol, schema.OrderSideBuy,
			pos.Quantity, pos.AvgCost, "", "2023-01-03")
		require.NoError(t, err)
		order.Status = schema.OrderStatusApproved
		trade, err := schema.NewTrade(order, pos.AvgCost, decimal.Zero, "2023-01-03")
		require.NoError(t, err)
		require.NoError(t, p.Apply(trade))
	}
	return View{Snapshot: p.Snapshot(), Prices: map[string]decimal.Decimal{}}
}

func order(t *testing.T, side schema.OrderSide, qty int64, price string) schema.Order {
	t.Helper()
	o, err := schema.NewOrder("trader_1", "SYM", side, qty,
		decimal.RequireFromString(price), "", "2023-01-03")
	require.NoError(t, err)
	return o
}

func TestNewEngineRejectsBadConcentration(t *testing.T) {
	_, err := NewEngine(Config{ConcentrationLimit: decimal.RequireFromString("1.5")}, nil)
	require.True(t, errors.Is(err, ErrBadConfig))
	_, err = NewEngine(Config{ConcentrationLimit: decimal.RequireFromString("-0.1")}, nil)
	require.True(t, errors.Is(err, ErrBadConfig))
}

func TestValidateDataUnavailableFirst(t *testing.T) {
	e := engine(t, "0.5")
	v := view(t, "250000")
	// No price for SYM at all; even an affordable order is rejected
	// with DATA_UNAVAILABLE.
	d := e.Validate(order(t, schema.OrderSideBuy, 1, "100"), v)
	assert.False(t, d.Approved)
	assert.Equal(t, schema.RejectReasonDataUnavailable, d.Reason)
}

func TestValidateBuyChecksCashBeforeConcentration(t *testing.T) {
	e := engine(t, "0.5")
	v := view(t, "10000")
	v.Prices["SYM"] = decimal.NewFromInt(100)

	// 200 x $100 = $20,000 against $10,000 cash: both the capital and
	// the concentration check would fail; capital wins.
	d := e.Validate(order(t, schema.OrderSideBuy, 200, "100"), v)
	assert.False(t, d.Approved)
	assert.Equal(t, schema.RejectReasonInsufficientCash, d.Reason)
}

func TestValidateApprovesAffordableBuy(t *testing.T) {
	e := engine(t, "0.5")
	v := view(t, "250000")
	v.Prices["SYM"] = decimal.NewFromInt(100)

	// $20,000 notional is 8% of the $250,000 portfolio.
	d := e.Validate(order(t, schema.OrderSideBuy, 200, "100"), v)
	assert.True(t, d.Approved)
	assert.Equal(t, schema.RejectReasonNone, d.Reason)
}

func TestValidateConcentrationBoundary(t *testing.T) {
	e := engine(t, "0.5")
	v := view(t, "100000")
	v.Prices["SYM"] = decimal.NewFromInt(100)

	// Exactly 50% of total value is allowed.
	d := e.Validate(order(t, schema.OrderSideBuy, 500, "100"), v)
	assert.True(t, d.Approved)

	// One share above the boundary is not.
	d = e.Validate(order(t, schema.OrderSideBuy, 501, "100"), v)
	assert.False(t, d.Approved)
	assert.Equal(t, schema.RejectReasonConcentration, d.Reason)
}

func TestValidateConcentrationCountsExistingPosition(t *testing.T) {
	e := engine(t, "0.5")
	v := view(t, "100000", schema.Position{Symbol: "SYM", Quantity: 400, AvgCost: decimal.NewFromInt(100)})
	v.Prices["SYM"] = decimal.NewFromInt(100)

	// Portfolio: $60,000 cash + $40,000 position. Adding 200 more
	// shares would hold $60,000 of SYM against a $50,000 cap.
	d := e.Validate(order(t, schema.OrderSideBuy, 200, "100"), v)
	assert.False(t, d.Approved)
	assert.Equal(t, schema.RejectReasonConcentration, d.Reason)

	// 100 more shares lands exactly on the 50% cap.
	d = e.Validate(order(t, schema.OrderSideBuy, 100, "100"), v)
	assert.True(t, d.Approved)
}

func TestValidateSellSharesBoundary(t *testing.T) {
	e := engine(t, "0.5")
	v := view(t, "100000", schema.Position{Symbol: "SYM", Quantity: 100, AvgCost: decimal.NewFromInt(100)})
	v.Prices["SYM"] = decimal.NewFromInt(100)

	d := e.Validate(order(t, schema.OrderSideSell, 101, "100"), v)
	assert.False(t, d.Approved)
	assert.Equal(t, schema.RejectReasonInsufficientShares, d.Reason)

	// Selling exactly the held quantity succeeds.
	d = e.Validate(order(t, schema.OrderSideSell, 100, "100"), v)
	assert.True(t, d.Approved)
}

func TestValidateSellWithoutPosition(t *testing.T) {
	e := engine(t, "0.5")
	v := view(t, "100000")
	v.Prices["SYM"] = decimal.NewFromInt(100)

	d := e.Validate(order(t, schema.OrderSideSell, 1, "100"), v)
	assert.False(t, d.Approved)
	assert.Equal(t, schema.RejectReasonInsufficientShares, d.Reason)
}
