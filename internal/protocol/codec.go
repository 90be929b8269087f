package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// envelope is the raw wire shape shared by all five kinds. Timestamps travel
// as RFC 3339 strings because the transport carries only plain JSON data;
// Decode reconstructs them into time.Time. Reconstruction is positional: only
// fields declared as time.Time in the payload structs are parsed, so an
// ISO-8601-looking string inside free text (e.g. a description) is left alone.
type envelope struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	SenderID  string          `json:"senderId"`
	Payload   json.RawMessage `json:"payload"`
}

// Encode serializes a message into its wire frame.
func Encode(m *Message) ([]byte, error) {
	var payload any
	switch m.Kind {
	case KindHello:
		payload = m.Hello
	case KindSyncRequest:
		payload = m.SyncRequest
	case KindSyncData:
		payload = m.SyncData
	case KindAck:
		payload = m.Ack
	case KindError:
		payload = m.Error
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, m.Kind)
	}
	if payload == nil || isNilPayload(m) {
		return nil, fmt.Errorf("%w: %s", ErrMissingPayload, m.Kind)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", m.Kind, err)
	}
	return json.Marshal(envelope{
		Type:      string(m.Kind),
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
		SenderID:  m.SenderID,
		Payload:   raw,
	})
}

func isNilPayload(m *Message) bool {
	switch m.Kind {
	case KindHello:
		return m.Hello == nil
	case KindSyncRequest:
		return m.SyncRequest == nil
	case KindSyncData:
		return m.SyncData == nil
	case KindAck:
		return m.Ack == nil
	case KindError:
		return m.Error == nil
	}
	return true
}

// Decode parses and validates a wire frame. Any frame it rejects must not be
// dispatched; the caller answers with an INVALID_MESSAGE error instead.
func Decode(frame []byte) (*Message, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	if env.Type == "" || env.Timestamp == "" || env.SenderID == "" {
		return nil, ErrMissingField
	}

	ts, err := time.Parse(time.RFC3339Nano, env.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadTimestamp, env.Timestamp)
	}

	m := &Message{
		Kind:      Kind(env.Type),
		Timestamp: ts.UTC(),
		SenderID:  env.SenderID,
	}
	if len(env.Payload) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingPayload, m.Kind)
	}

	switch m.Kind {
	case KindHello:
		m.Hello = &Hello{}
		err = json.Unmarshal(env.Payload, m.Hello)
	case KindSyncRequest:
		m.SyncRequest = &SyncRequest{}
		err = json.Unmarshal(env.Payload, m.SyncRequest)
	case KindSyncData:
		m.SyncData = &SyncData{}
		err = json.Unmarshal(env.Payload, m.SyncData)
		if err == nil && m.SyncData.Data == nil {
			return nil, fmt.Errorf("%w: SYNC_DATA without data", ErrMissingField)
		}
	case KindAck:
		m.Ack = &Ack{}
		err = json.Unmarshal(env.Payload, m.Ack)
	case KindError:
		m.Error = &ErrorInfo{}
		err = json.Unmarshal(env.Payload, m.Error)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrBadPayload, m.Kind, err)
	}
	return m, nil
}
