package schema

import (
	"time"

	"github.com/yanun0323/errors"
)

// SchemaVersion is the current bus payload schema version. The report
// snapshot shape is tied to it; bump on any breaking change.
const SchemaVersion uint16 = 1

// Day is a trading day in ISO format (2006-01-02). ISO days sort
// chronologically as plain strings.
type Day string

const dayLayout = "2006-01-02"

// ParseDay validates and normalizes a trading day string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return "", errors.Wrap(err, "parse day")
	}
	return Day(t.Format(dayLayout)), nil
}

// DayOf truncates a timestamp to its trading day.
func DayOf(t time.Time) Day {
	return Day(t.UTC().Format(dayLayout))
}

// Time returns the day as a UTC midnight timestamp.
func (d Day) Time() time.Time {
	t, _ := time.Parse(dayLayout, string(d))
	return t
}

// Before reports whether d is chronologically before other.
func (d Day) Before(other Day) bool {
	return d < other
}

// SignalKind is an analyst's directional recommendation.
type SignalKind uint8

const (
	_signal_kind_beg SignalKind = iota
	SignalKindBuy
	SignalKindSell
	SignalKindHold
	_signal_kind_end
)

func (k SignalKind) IsAvailable() bool {
	return k > _signal_kind_beg && k < _signal_kind_end
}

func (k SignalKind) String() string {
	switch k {
	case SignalKindBuy:
		return "BUY"
	case SignalKindSell:
		return "SELL"
	case SignalKindHold:
		return "HOLD"
	default:
		return "UNKNOWN"
	}
}

// OrderSide is the order direction.
type OrderSide uint8

const (
	_order_side_beg OrderSide = iota
	OrderSideBuy
	OrderSideSell
	_order_side_end
)

func (s OrderSide) IsAvailable() bool {
	return s > _order_side_beg && s < _order_side_end
}

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "BUY"
	case OrderSideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// OrderStatus is the lifecycle state of an order. Transitions only
// move forward: Created -> Submitted -> Approved|Rejected -> Filled
// (Approved only). Rejected and Filled are terminal.
type OrderStatus uint8

const (
	_order_status_beg OrderStatus = iota
	OrderStatusCreated
	OrderStatusSubmitted
	OrderStatusApproved
	OrderStatusRejected
	OrderStatusFilled
	_order_status_end
)

func (s OrderStatus) IsAvailable() bool {
	return s > _order_status_beg && s < _order_status_end
}

func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusRejected, OrderStatusFilled:
		return true
	default:
		return false
	}
}

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusCreated:
		return "CREATED"
	case OrderStatusSubmitted:
		return "SUBMITTED"
	case OrderStatusApproved:
		return "APPROVED"
	case OrderStatusRejected:
		return "REJECTED"
	case OrderStatusFilled:
		return "FILLED"
	default:
		return "UNKNOWN"
	}
}

// RejectReason explains a pre-trade validation failure. Reasons are
// expected outcomes, never errors.
type RejectReason uint8

const (
	RejectReasonNone RejectReason = iota
	RejectReasonInsufficientCash
	RejectReasonInsufficientShares
	RejectReasonConcentration
	RejectReasonDataUnavailable
	_reject_reason_end
)

func (r RejectReason) String() string {
	switch r {
	case RejectReasonNone:
		return "NONE"
	case RejectReasonInsufficientCash:
		return "INSUFFICIENT_CASH"
	case RejectReasonInsufficientShares:
		return "INSUFFICIENT_SHARES"
	case RejectReasonConcentration:
		return "CONCENTRATION_LIMIT"
	case RejectReasonDataUnavailable:
		return "DATA_UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}
