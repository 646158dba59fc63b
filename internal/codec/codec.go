package codec

import (
	"encoding/json"
	"fmt"
)

// Codec translates between raw frames and Events. The zero value is
// a lenient codec: unrecognized Dispatch event names decode into an
// unknown-event Event instead of failing.
type Codec struct {
	// Strict makes unrecognized Dispatch event names a decode error
	// instead of an unknown-event Event.
	Strict bool
}

// Decode parses a raw frame into an Event.
//
// A frame without a recognizable opcode fails with ErrMalformedFrame.
// A Dispatch frame with an unrecognized event name either decodes to
// an Event with Unknown set (lenient) or fails with
// *UnknownEventError (strict); either way the frame's sequence number
// is preserved so callers never lose sequence tracking.
func (c Codec) Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Op == nil {
		return Event{}, fmt.Errorf("%w: missing opcode", ErrMalformedFrame)
	}

	op := Opcode(*env.Op)
	if !op.Valid() {
		return Event{}, fmt.Errorf("%w: opcode %d", ErrMalformedFrame, *env.Op)
	}

	ev := Event{
		Op:      op,
		Payload: env.Data,
	}
	if env.Seq != nil {
		ev.Seq = *env.Seq
		ev.HasSeq = true
	}

	if op == OpDispatch {
		ev.Name = env.Type
		if !KnownEvent(env.Type) {
			ev.Unknown = true
			if c.Strict {
				// The populated Event rides along with the error so
				// callers can still observe its sequence number.
				return ev, &UnknownEventError{Name: env.Type}
			}
		}
	}

	return ev, nil
}

// Encode marshals an outgoing frame. A nil payload encodes as a JSON
// null data field, which is how a pre-session heartbeat is sent.
func (c Codec) Encode(op Opcode, payload any) ([]byte, error) {
	opv := int(op)
	env := envelope{Op: &opv}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", op, err)
		}
		env.Data = data
	} else {
		env.Data = json.RawMessage("null")
	}

	return json.Marshal(env)
}

// UnmarshalPayload decodes an event's payload into v.
func UnmarshalPayload(ev Event, v any) error {
	if len(ev.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", ev.Op)
	}
	return json.Unmarshal(ev.Payload, v)
}

// EncodeHeartbeat builds a heartbeat frame carrying the last-seen
// sequence number, or null when no Dispatch has been seen yet.
func (c Codec) EncodeHeartbeat(seq int64, hasSeq bool) ([]byte, error) {
	if !hasSeq {
		return c.Encode(OpHeartbeat, nil)
	}
	return c.Encode(OpHeartbeat, seq)
}
