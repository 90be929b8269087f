// Package signal implements the rendezvous service: a small HTTP API for
// claiming and invalidating room codes, and a TCP relay that pairs the two
// peers of a room and pipes their frames.
//
// The relay is where the single-use room invariant is enforced: a join
// attempt against an unknown, paired, or invalidated room is refused before
// any application message flows.
package signal

import (
	"sync"
	"time"
)

// RoomStatus is the public view of a claimed room.
type RoomStatus struct {
	Code      string    `json:"code"`
	ClaimedAt time.Time `json:"claimedAt"`
	Used      bool      `json:"used"`
}

// Registry tracks claimed rooms and their single-use state.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*RoomStatus
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*RoomStatus)}
}

// Claim registers a room code. It fails if the code is already claimed and
// not yet released.
func (r *Registry) Claim(code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[code]; ok {
		return ErrRoomTaken
	}
	r.rooms[code] = &RoomStatus{Code: code, ClaimedAt: time.Now().UTC()}
	return nil
}

// Invalidate marks a room single-use; joins against it are refused from now
// on. Called by the host right after its first inbound connection.
func (r *Registry) Invalidate(code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, ok := r.rooms[code]
	if !ok {
		return ErrRoomUnknown
	}
	status.Used = true
	return nil
}

// Lookup returns the room's status, or nil if the code was never claimed.
func (r *Registry) Lookup(code string) *RoomStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, ok := r.rooms[code]
	if !ok {
		return nil
	}
	copied := *status
	return &copied
}

// Release removes a claim entirely, freeing the code for reuse. Called when
// a host abandons a room it never paired.
func (r *Registry) Release(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, code)
}

// Joinable reports whether a client may still join the room.
func (r *Registry) Joinable(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, ok := r.rooms[code]
	return ok && !status.Used
}
