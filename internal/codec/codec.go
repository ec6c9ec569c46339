// Package codec converts bus messages to and from their JSON wire
// form for external transports. Decoding validates shape and domain
// bounds; a failed decode is dropped at the boundary, never forwarded.
package codec

import (
	"encoding/json"

	"github.com/yanun0323/errors"

	"main/internal/bus"
	"main/internal/schema"
)

var (
	ErrUnknownTopic   = errors.New("unknown topic")
	ErrMalformedWire  = errors.New("malformed wire message")
	ErrPayloadInvalid = errors.New("payload failed validation")
)

// Envelope is the wire form of a bus message.
type Envelope struct {
	Topic     schema.Topic    `json:"topic"`
	Version   uint16          `json:"version"`
	Seq       uint64          `json:"seq"`
	Publisher string          `json:"publisher"`
	TsPublish int64           `json:"tsPublish"`
	Payload   json.RawMessage `json:"payload"`
}

// Encode serializes a bus message into its wire form.
func Encode(m bus.Message) ([]byte, error) {
	if !m.Topic.IsAvailable() {
		return nil, errors.Wrap(ErrUnknownTopic, string(m.Topic))
	}
	payload, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal payload")
	}
	return json.Marshal(Envelope{
		Topic:     m.Topic,
		Version:   schema.SchemaVersion,
		Seq:       m.Seq,
		Publisher: m.Publisher,
		TsPublish: m.TsPublish,
		Payload:   payload,
	})
}

// Decode parses and validates a wire message back into a bus message.
func Decode(data []byte) (bus.Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return bus.Message{}, errors.Wrap(ErrMalformedWire, err.Error())
	}
	payload, err := decodePayload(env.Topic, env.Payload)
	if err != nil {
		return bus.Message{}, err
	}
	return bus.Message{
		Topic:     env.Topic,
		Seq:       env.Seq,
		Publisher: env.Publisher,
		TsPublish: env.TsPublish,
		Payload:   payload,
	}, nil
}

func decodePayload(topic schema.Topic, raw json.RawMessage) (any, error) {
	switch topic {
	case schema.TopicPriceUpdates:
		var bar schema.PriceBar
		if err := unmarshal(raw, &bar); err != nil {
			return nil, err
		}
		if bar.Symbol == "" || !bar.Close.IsPositive() {
			return nil, errors.Wrap(ErrPayloadInvalid, "price bar")
		}
		return bar, nil

	case schema.TopicAnalystSignals:
		var sig schema.Signal
		if err := unmarshal(raw, &sig); err != nil {
			return nil, err
		}
		if !sig.Kind.IsAvailable() || sig.Confidence < 0 || sig.Confidence > 1 {
			return nil, errors.Wrap(ErrPayloadInvalid, "signal")
		}
		return sig, nil

	case schema.TopicOrderRequests, schema.TopicApprovedOrders:
		var order schema.Order
		if err := unmarshal(raw, &order); err != nil {
			return nil, err
		}
		if !order.Side.IsAvailable() || order.Quantity <= 0 {
			return nil, errors.Wrap(ErrPayloadInvalid, "order")
		}
		return order, nil

	case schema.TopicRejectedOrders:
		var rej schema.Rejection
		if err := unmarshal(raw, &rej); err != nil {
			return nil, err
		}
		if rej.Reason == schema.RejectReasonNone {
			return nil, errors.Wrap(ErrPayloadInvalid, "rejection without reason")
		}
		return rej, nil

	case schema.TopicStopLossAlerts:
		var alert schema.StopLossAlert
		if err := unmarshal(raw, &alert); err != nil {
			return nil, err
		}
		if alert.Position.Symbol == "" {
			return nil, errors.Wrap(ErrPayloadInvalid, "stop-loss alert")
		}
		return alert, nil

	case schema.TopicTradeExecutions:
		var trade schema.Trade
		if err := unmarshal(raw, &trade); err != nil {
			return nil, err
		}
		if trade.Quantity <= 0 || !trade.Price.IsPositive() || trade.Commission.IsNegative() {
			return nil, errors.Wrap(ErrPayloadInvalid, "trade")
		}
		return trade, nil

	case schema.TopicPortfolioUpdates:
		var update schema.PortfolioUpdate
		if err := unmarshal(raw, &update); err != nil {
			return nil, err
		}
		if update.TraderID == "" {
			return nil, errors.Wrap(ErrPayloadInvalid, "portfolio update")
		}
		return update, nil

	default:
		return nil, errors.Wrap(ErrUnknownTopic, string(topic))
	}
}

func unmarshal(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Wrap(ErrMalformedWire, err.Error())
	}
	return nil
}
