package signal

import "errors"

var (
	ErrRoomTaken   = errors.New("signal: room already claimed")
	ErrRoomUnknown = errors.New("signal: unknown room")
	ErrRoomUsed    = errors.New("signal: room invalidated")
	ErrHostBusy    = errors.New("signal: host already paired")
	ErrNoHost      = errors.New("signal: no host registered for room")
)
