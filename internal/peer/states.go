package peer

// State is the connection lifecycle state observable by the caller.
type State int

const (
	// StateDisconnected is the initial and terminal state; no transport
	// object is alive.
	StateDisconnected State = iota
	// StateConnecting means the transport is being set up and a rendezvous
	// identifier claimed.
	StateConnecting
	// StateWaiting is host-only: the room is claimed and the host is
	// listening for exactly one inbound connection.
	StateWaiting
	// StateConnected means a data channel is open to exactly one peer.
	StateConnected
	// StateSyncing means a protocol exchange is in progress, from handshake
	// through data exchange.
	StateSyncing
	// StateError means a transport- or merge-level failure was surfaced; the
	// failed connection is torn down but the manager accepts a reconnect.
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateWaiting:
		return "waiting"
	case StateConnected:
		return "connected"
	case StateSyncing:
		return "syncing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Phase names the stage reported in progress notifications.
type Phase string

const (
	PhaseSending   Phase = "sending"
	PhaseReceiving Phase = "receiving"
	PhaseMerging   Phase = "merging"
)

// Progress is one progress tick during an active data exchange.
type Progress struct {
	Current int
	Total   int
	Phase   Phase
}

// Callbacks is the caller-facing event surface. Nil entries are skipped.
// Callbacks run on the manager's receive goroutine, in event order; they must
// not block.
type Callbacks struct {
	OnStateChange      func(State)
	OnProgress         func(Progress)
	OnError            func(message string)
	OnPeerConnected    func()
	OnPeerDisconnected func()
}

func (cb Callbacks) stateChange(s State) {
	if cb.OnStateChange != nil {
		cb.OnStateChange(s)
	}
}

func (cb Callbacks) progress(p Progress) {
	if cb.OnProgress != nil {
		cb.OnProgress(p)
	}
}

func (cb Callbacks) errorf(message string) {
	if cb.OnError != nil {
		cb.OnError(message)
	}
}

func (cb Callbacks) peerConnected() {
	if cb.OnPeerConnected != nil {
		cb.OnPeerConnected()
	}
}

func (cb Callbacks) peerDisconnected() {
	if cb.OnPeerDisconnected != nil {
		cb.OnPeerDisconnected()
	}
}
