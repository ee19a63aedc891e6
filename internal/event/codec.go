package event

import (
	"encoding/json"
	"fmt"
)

// wireEnvelope is the on-wire discriminated-union shape every event type
// round-trips through: a type tag plus its own JSON body. Needed because
// OrderEvent/AccountEvent are interfaces — encoding/json cannot marshal or
// unmarshal an interface value without a type tag telling it which
// concrete struct to target. The concrete structs themselves marshal
// without any further help: encoding/json flattens an anonymous embedded
// field's exported fields into the parent object even when the embedded
// type itself is unexported, which is exactly how base/posBase are shaped.
type wireEnvelope struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// EncodeOrderEvent serializes any OrderEvent variant to its tagged wire
// form (§8: "encode(decode(b)) == b").
func EncodeOrderEvent(ev OrderEvent) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEnvelope{Type: orderEventType(ev), Body: body})
}

// DecodeOrderEvent reconstructs an OrderEvent from its tagged wire form.
func DecodeOrderEvent(data []byte) (OrderEvent, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	switch w.Type {
	case "OrderDenied":
		var e OrderDenied
		return e, json.Unmarshal(w.Body, &e)
	case "OrderSubmitted":
		var e OrderSubmitted
		return e, json.Unmarshal(w.Body, &e)
	case "OrderRejected":
		var e OrderRejected
		return e, json.Unmarshal(w.Body, &e)
	case "OrderAccepted":
		var e OrderAccepted
		return e, json.Unmarshal(w.Body, &e)
	case "OrderTriggered":
		var e OrderTriggered
		return e, json.Unmarshal(w.Body, &e)
	case "OrderPendingUpdate":
		var e OrderPendingUpdate
		return e, json.Unmarshal(w.Body, &e)
	case "OrderUpdated":
		var e OrderUpdated
		return e, json.Unmarshal(w.Body, &e)
	case "OrderPendingCancel":
		var e OrderPendingCancel
		return e, json.Unmarshal(w.Body, &e)
	case "OrderCanceled":
		var e OrderCanceled
		return e, json.Unmarshal(w.Body, &e)
	case "OrderFilled":
		var e OrderFilled
		return e, json.Unmarshal(w.Body, &e)
	case "OrderExpired":
		var e OrderExpired
		return e, json.Unmarshal(w.Body, &e)
	default:
		return nil, fmt.Errorf("event: unknown order event type %q", w.Type)
	}
}

func orderEventType(ev OrderEvent) string {
	switch ev.(type) {
	case OrderDenied:
		return "OrderDenied"
	case OrderSubmitted:
		return "OrderSubmitted"
	case OrderRejected:
		return "OrderRejected"
	case OrderAccepted:
		return "OrderAccepted"
	case OrderTriggered:
		return "OrderTriggered"
	case OrderPendingUpdate:
		return "OrderPendingUpdate"
	case OrderUpdated:
		return "OrderUpdated"
	case OrderPendingCancel:
		return "OrderPendingCancel"
	case OrderCanceled:
		return "OrderCanceled"
	case OrderFilled:
		return "OrderFilled"
	case OrderExpired:
		return "OrderExpired"
	default:
		return "Unknown"
	}
}

// EncodeAccountEvent serializes an AccountEvent (currently always
// AccountState) to its tagged wire form.
func EncodeAccountEvent(ev AccountEvent) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEnvelope{Type: "AccountState", Body: body})
}

// DecodeAccountEvent reconstructs an AccountEvent from its tagged wire form.
func DecodeAccountEvent(data []byte) (AccountEvent, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	if w.Type != "AccountState" {
		return nil, fmt.Errorf("event: unknown account event type %q", w.Type)
	}
	var e AccountState
	return e, json.Unmarshal(w.Body, &e)
}
