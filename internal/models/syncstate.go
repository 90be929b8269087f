package models

import "time"

// SyncState is the device's local sync bookkeeping. It is stored alongside
// the synchronized entities but is never itself sent to a peer.
type SyncState struct {
	// DeviceID identifies this device (UUID format, generated on first run).
	DeviceID string `json:"deviceId"`

	// LastSyncTimestamp is the watermark of the last successful merge; the
	// next SYNC_REQUEST asks for changes after this instant. It only advances
	// after a merge completes, so a failed merge is retried from the same point.
	LastSyncTimestamp time.Time `json:"lastSyncTimestamp"`

	// RoomCode is the rendezvous code of the current or most recent session.
	RoomCode string `json:"roomCode,omitempty"`
}

// SyncStatePatch is a partial SyncState update; nil fields are left unchanged.
type SyncStatePatch struct {
	LastSyncTimestamp *time.Time
	RoomCode          *string
}
