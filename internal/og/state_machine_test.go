package og

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

func newOrder(t *testing.T) schema.Order {
	t.Helper()
	order, err := schema.NewOrder("trader_1", "SYM", schema.OrderSideBuy, 200,
		decimal.NewFromInt(100), "", "2023-01-03")
	require.NoError(t, err)
	return order
}

func TestHappyPathToFilled(t *testing.T) {
	m := NewStateMachine()
	order := newOrder(t)

	submitted, err := m.Submit(order)
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStatusSubmitted, submitted.Status)

	approved, err := m.Approve(order.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStatusApproved, approved.Status)

	filled, err := m.Fill(order.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStatusFilled, filled.Status)
	assert.Empty(t, m.Open())
}

func TestRejectPreservesReason(t *testing.T) {
	m := NewStateMachine()
	order := newOrder(t)
	_, err := m.Submit(order)
	require.NoError(t, err)

	rejected, err := m.Reject(order.ID, schema.RejectReasonInsufficientCash)
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStatusRejected, rejected.Status)
	assert.Equal(t, schema.RejectReasonInsufficientCash, rejected.Reason)
}

func TestTerminalStatesAreFinal(t *testing.T) {
	m := NewStateMachine()
	order := newOrder(t)
	_, err := m.Submit(order)
	require.NoError(t, err)
	_, err = m.Reject(order.ID, schema.RejectReasonConcentration)
	require.NoError(t, err)

	_, err = m.Approve(order.ID)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	_, err = m.Fill(order.ID)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestNoSkippingSubmitted(t *testing.T) {
	m := NewStateMachine()
	order := newOrder(t)
	_, err := m.Submit(order)
	require.NoError(t, err)

	// Fill before approval is illegal.
	_, err = m.Fill(order.ID)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestDuplicateAndUnknownOrders(t *testing.T) {
	m := NewStateMachine()
	order := newOrder(t)
	_, err := m.Submit(order)
	require.NoError(t, err)

	_, err = m.Submit(order)
	assert.True(t, errors.Is(err, ErrDuplicateOrder))

	_, err = m.Approve("missing")
	assert.True(t, errors.Is(err, ErrUnknownOrder))
}

func TestSubmitRequiresCreatedStatus(t *testing.T) {
	m := NewStateMachine()
	order := newOrder(t)
	order.Status = schema.OrderStatusApproved

	_, err := m.Submit(order)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}
