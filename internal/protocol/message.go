// Package protocol implements the wire codec for the peer-to-peer sync
// protocol: five JSON message kinds sharing a common envelope.
//
// Decoding validates the envelope and payload shape before anything is
// dispatched; a frame that fails Decode must be answered with an
// INVALID_MESSAGE error and never interpreted further.
package protocol

import (
	"time"

	"github.com/centimo/centimo/internal/models"
)

// Version is the protocol version carried in HELLO for a future
// compatibility check.
const Version = 1

// Kind discriminates the five message kinds.
type Kind string

const (
	KindHello       Kind = "HELLO"
	KindSyncRequest Kind = "SYNC_REQUEST"
	KindSyncData    Kind = "SYNC_DATA"
	KindAck         Kind = "ACK"
	KindError       Kind = "ERROR"
)

// Error codes carried in ERROR payloads.
const (
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeMergeFailed    = "MERGE_FAILED"
)

// Message is the decoded form of a wire frame: the envelope fields plus
// exactly one non-nil payload matching Kind. Constructors and Decode are the
// only ways a Message is built, so the invariant holds throughout.
type Message struct {
	Kind      Kind
	Timestamp time.Time
	SenderID  string

	Hello       *Hello
	SyncRequest *SyncRequest
	SyncData    *SyncData
	Ack         *Ack
	Error       *ErrorInfo
}

// Hello is the handshake payload.
type Hello struct {
	Version int `json:"version"`
}

// SyncRequest asks the peer for everything it changed after Since.
// A zero Since requests the full history.
type SyncRequest struct {
	Since time.Time `json:"since"`
}

// SyncData carries the changed records. IsFullSync is set when the data
// answers an epoch-zero request.
type SyncData struct {
	Data       *models.ChangeSet `json:"data"`
	IsFullSync bool              `json:"isFullSync"`
}

// Ack confirms a SYNC_DATA was merged. Only after receiving it does the
// data sender consider its half of the cycle delivered.
type Ack struct {
	ReceivedCount int `json:"receivedCount"`
}

// ErrorInfo reports a local failure to the peer.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewHello builds a HELLO message.
func NewHello(senderID string) *Message {
	return &Message{
		Kind:      KindHello,
		Timestamp: time.Now().UTC(),
		SenderID:  senderID,
		Hello:     &Hello{Version: Version},
	}
}

// NewSyncRequest builds a SYNC_REQUEST for changes after since.
func NewSyncRequest(senderID string, since time.Time) *Message {
	return &Message{
		Kind:        KindSyncRequest,
		Timestamp:   time.Now().UTC(),
		SenderID:    senderID,
		SyncRequest: &SyncRequest{Since: since},
	}
}

// NewSyncData builds a SYNC_DATA carrying the given change set.
func NewSyncData(senderID string, data *models.ChangeSet, isFullSync bool) *Message {
	return &Message{
		Kind:      KindSyncData,
		Timestamp: time.Now().UTC(),
		SenderID:  senderID,
		SyncData:  &SyncData{Data: data, IsFullSync: isFullSync},
	}
}

// NewAck builds an ACK for a merged SYNC_DATA.
func NewAck(senderID string, receivedCount int) *Message {
	return &Message{
		Kind:      KindAck,
		Timestamp: time.Now().UTC(),
		SenderID:  senderID,
		Ack:       &Ack{ReceivedCount: receivedCount},
	}
}

// NewError builds an ERROR message with the given code and human-readable text.
func NewError(senderID, code, message string) *Message {
	return &Message{
		Kind:      KindError,
		Timestamp: time.Now().UTC(),
		SenderID:  senderID,
		Error:     &ErrorInfo{Code: code, Message: message},
	}
}
