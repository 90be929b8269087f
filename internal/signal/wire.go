package signal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Op identifies a relay control message.
type Op string

const (
	// OpRegister is sent by a peer right after dialing: it names the room,
	// the peer's role, and its derived peer identifier.
	OpRegister Op = "register"
	// OpRegistered acknowledges a successful registration.
	OpRegistered Op = "registered"
	// OpPaired tells a peer its counterpart is connected; data may flow.
	OpPaired Op = "paired"
	// OpFrame carries one opaque application frame.
	OpFrame Op = "frame"
	// OpBye announces the counterpart went away.
	OpBye Op = "bye"
	// OpError refuses a registration or reports a relay failure.
	OpError Op = "error"
)

// Relay-level error codes carried in OpError messages.
const (
	RelayRoomUnavailable = "ROOM_UNAVAILABLE"
	RelayHostBusy        = "HOST_BUSY"
	RelayBadRegister     = "BAD_REGISTER"
)

// RelayMessage is one newline-delimited JSON message on the relay wire.
// Data is base64 on the wire (encoding/json's []byte handling).
type RelayMessage struct {
	Op      Op     `json:"op"`
	Room    string `json:"room,omitempty"`
	Role    string `json:"role,omitempty"`
	PeerID  string `json:"peerId,omitempty"`
	Data    []byte `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// WriteRelayMessage writes one relay message followed by a newline.
func WriteRelayMessage(w io.Writer, m *RelayMessage) error {
	buf, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode relay message: %w", err)
	}
	buf = append(buf, '\n')
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write relay message: %w", err)
	}
	return nil
}

// ReadRelayMessage reads one newline-delimited relay message.
func ReadRelayMessage(r *bufio.Reader) (*RelayMessage, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	m := &RelayMessage{}
	if err := json.Unmarshal(line, m); err != nil {
		return nil, fmt.Errorf("failed to decode relay message: %w", err)
	}
	return m, nil
}
