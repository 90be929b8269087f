// Package transport abstracts the peer-to-peer data channel. The connection
// manager only ever sees these interfaces; the concrete implementations are a
// relay-backed channel (production) and an in-process pair (tests).
package transport

import (
	"context"
	"errors"
)

var (
	// ErrRoomUnavailable is the rendezvous-layer failure: the room code is
	// unknown, already paired, or invalidated. Join attempts with a stale
	// code fail with this before any application message flows.
	ErrRoomUnavailable = errors.New("transport: room unavailable")

	// ErrRoomTaken is returned when hosting a code that is already claimed.
	ErrRoomTaken = errors.New("transport: room already claimed")

	// ErrClosed is returned by Send on a torn-down connection.
	ErrClosed = errors.New("transport: connection closed")

	// ErrBusy is returned when a frame cannot be queued because the peer has
	// stopped draining its inbox.
	ErrBusy = errors.New("transport: peer not draining frames")
)

// Conn is one end of an open, reliable, ordered data channel.
type Conn interface {
	// Send queues one opaque frame for the peer.
	Send(frame []byte) error

	// Recv returns the inbound frame channel. It is never closed; callers
	// multiplex it with Done.
	Recv() <-chan []byte

	// Done is closed when the channel is torn down, by either side.
	Done() <-chan struct{}

	// Close tears the channel down. Idempotent.
	Close() error
}

// Pending is a host-side claim on a room, waiting for its single peer.
type Pending interface {
	// Accept blocks until exactly one peer joins the room, then returns the
	// open channel. Close unblocks it with an error.
	Accept(ctx context.Context) (Conn, error)

	// Close abandons the claim.
	Close() error
}

// Transport establishes data channels between the two peers of a room.
type Transport interface {
	// Host claims the host identifier derived from code and listens for one
	// inbound connection.
	Host(ctx context.Context, code string) (Pending, error)

	// Join derives a client identifier from code and connects to the host.
	Join(ctx context.Context, code string) (Conn, error)

	// Invalidate makes the code single-use at the rendezvous layer. The host
	// calls it exactly once, right after its first inbound connection is
	// accepted; later Join attempts fail with ErrRoomUnavailable.
	Invalidate(ctx context.Context, code string) error
}
