// Package og tracks the order lifecycle. Transitions only move
// forward: Created -> Submitted -> Approved|Rejected -> Filled, with
// Rejected and Filled terminal. No state is ever revisited.
package og

import (
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

var (
	ErrDuplicateOrder    = errors.New("order already exists")
	ErrUnknownOrder      = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order state transition")
)

// StateMachine advances orders through their lifecycle. It is owned by
// a single trader goroutine and needs no locking.
type StateMachine struct {
	orders map[string]schema.Order
}

// NewStateMachine creates an empty state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{orders: make(map[string]schema.Order)}
}

// Order returns the current view of an order.
func (m *StateMachine) Order(id string) (schema.Order, bool) {
	o, ok := m.orders[id]
	return o, ok
}

// Submit registers a Created order and moves it to Submitted.
func (m *StateMachine) Submit(order schema.Order) (schema.Order, error) {
	if order.ID == "" {
		return schema.Order{}, ErrUnknownOrder
	}
	if _, ok := m.orders[order.ID]; ok {
		return schema.Order{}, errors.Wrap(ErrDuplicateOrder, order.ID)
	}
	switch order.Status {
	case schema.OrderStatusCreated:
	case schema.OrderStatusSubmitted, schema.OrderStatusApproved,
		schema.OrderStatusRejected, schema.OrderStatusFilled:
		return schema.Order{}, errors.Wrap(ErrInvalidTransition,
			order.ID+": submit from "+order.Status.String())
	default:
		return schema.Order{}, errors.Wrap(ErrInvalidTransition, order.ID+": unknown status")
	}
	order.Status = schema.OrderStatusSubmitted
	m.orders[order.ID] = order
	return order, nil
}

// Approve moves a Submitted order to Approved.
func (m *StateMachine) Approve(id string) (schema.Order, error) {
	return m.advance(id, schema.OrderStatusApproved, schema.RejectReasonNone)
}

// Reject moves a Submitted order to Rejected, preserving the reason
// for reporting.
func (m *StateMachine) Reject(id string, reason schema.RejectReason) (schema.Order, error) {
	return m.advance(id, schema.OrderStatusRejected, reason)
}

// Fill moves an Approved order to Filled.
func (m *StateMachine) Fill(id string) (schema.Order, error) {
	return m.advance(id, schema.OrderStatusFilled, schema.RejectReasonNone)
}

func (m *StateMachine) advance(id string, next schema.OrderStatus, reason schema.RejectReason) (schema.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return schema.Order{}, errors.Wrap(ErrUnknownOrder, id)
	}
	if !allowed(o.Status, next) {
		return o, errors.Wrap(ErrInvalidTransition,
			id+": "+o.Status.String()+" -> "+next.String())
	}
	o.Status = next
	o.Reason = reason
	m.orders[id] = o
	return o, nil
}

func allowed(from, to schema.OrderStatus) bool {
	switch from {
	case schema.OrderStatusSubmitted:
		return to == schema.OrderStatusApproved || to == schema.OrderStatusRejected
	case schema.OrderStatusApproved:
		return to == schema.OrderStatusFilled
	case schema.OrderStatusCreated, schema.OrderStatusRejected, schema.OrderStatusFilled:
		return false
	default:
		return false
	}
}

// Open returns orders not yet in a terminal state.
func (m *StateMachine) Open() []schema.Order {
	out := make([]schema.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if !o.Status.IsTerminal() {
			out = append(out, o)
		}
	}
	return out
}
