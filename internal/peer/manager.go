// Package peer implements the connection manager: the state machine that
// drives a device through rendezvous, handshake and a full bidirectional data
// exchange with exactly one other device.
package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/centimo/centimo/internal/merge"
	"github.com/centimo/centimo/internal/models"
	"github.com/centimo/centimo/internal/observability"
	"github.com/centimo/centimo/internal/protocol"
	"github.com/centimo/centimo/internal/room"
	"github.com/centimo/centimo/internal/storage"
	"github.com/centimo/centimo/internal/transport"
)

var (
	// ErrBusy is returned when an operation requires the disconnected state
	// but a connection attempt or session is already active.
	ErrBusy = errors.New("peer: connection already active")
	// ErrNotConnected is returned by Sync when there is no connected peer.
	ErrNotConnected = errors.New("peer: not connected")
	// ErrSyncInProgress is returned by Sync while an exchange is running.
	ErrSyncInProgress = errors.New("peer: sync already in progress")
)

type role int

const (
	roleHost role = iota
	roleClient
)

func (r role) String() string {
	if r == roleHost {
		return "host"
	}
	return "client"
}

// exchange tracks the progress flags of a single sync pass. A fresh value is
// installed whenever a new exchange starts.
type exchange struct {
	helloSent bool // we sent a HELLO this session
	helloSeen bool // peer's HELLO arrived
	requested bool // we sent a SYNC_REQUEST and expect SYNC_DATA
	merged    bool // peer's SYNC_DATA was merged and acknowledged
	dataSent  bool // we sent SYNC_DATA and expect an ACK
	acked     bool // peer acknowledged our SYNC_DATA
}

func (e *exchange) done() bool {
	return e.merged && e.acked
}

// Manager owns the peer connection lifecycle for one device. All exported
// methods are safe for concurrent use; protocol frames are handled on a
// single receive goroutine per connection.
type Manager struct {
	store  storage.Store
	engine *merge.Engine
	tr     transport.Transport
	cb     Callbacks

	mu       sync.Mutex
	state    State
	session  uint64 // bumped on every connect/disconnect to fence stale work
	roomCode string
	role     role
	deviceID string
	conn     transport.Conn
	pending  transport.Pending
	cancel   context.CancelFunc
	exch     exchange

	now func() time.Time
}

// NewManager wires a manager over the given store, merge engine and
// transport. Callbacks may be the zero value.
func NewManager(store storage.Store, engine *merge.Engine, tr transport.Transport, cb Callbacks) *Manager {
	observability.RegisterMetrics()
	return &Manager{
		store:  store,
		engine: engine,
		tr:     tr,
		cb:     cb,
		state:  StateDisconnected,
		now:    time.Now,
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RoomCode returns the code of the active room, or "" when disconnected.
func (m *Manager) RoomCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomCode
}

// CreateRoom claims a fresh room code and waits for one peer to join. It
// returns the code immediately; the join is accepted in the background.
func (m *Manager) CreateRoom(ctx context.Context) (string, error) {
	deviceID, err := m.loadDeviceID(ctx)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	if m.state != StateDisconnected && m.state != StateError {
		m.mu.Unlock()
		return "", ErrBusy
	}
	m.setStateLocked(StateConnecting)
	m.session++
	session := m.session
	m.deviceID = deviceID
	m.role = roleHost
	m.mu.Unlock()
	m.cb.stateChange(StateConnecting)

	code, err := room.NewCode()
	if err != nil {
		m.fail(session, fmt.Sprintf("failed to generate room code: %v", err))
		return "", fmt.Errorf("failed to generate room code: %w", err)
	}

	pending, err := m.tr.Host(ctx, code)
	if err != nil {
		m.fail(session, fmt.Sprintf("failed to claim room: %v", err))
		return "", fmt.Errorf("failed to claim room: %w", err)
	}

	connCtx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if m.session != session {
		m.mu.Unlock()
		cancel()
		pending.Close()
		return "", ErrBusy
	}
	m.roomCode = code
	m.pending = pending
	m.cancel = cancel
	m.setStateLocked(StateWaiting)
	m.mu.Unlock()
	m.cb.stateChange(StateWaiting)
	observability.RecordSession("host")

	go m.accept(connCtx, session, pending)

	slog.Info("Room created", "code", code)
	return code, nil
}

// JoinRoom connects to the host waiting on the given room code and starts
// the initial sync exchange.
func (m *Manager) JoinRoom(ctx context.Context, code string) error {
	code = room.Normalize(code)
	if !room.Valid(code) {
		return fmt.Errorf("invalid room code %q", code)
	}

	deviceID, err := m.loadDeviceID(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.state != StateDisconnected && m.state != StateError {
		m.mu.Unlock()
		return ErrBusy
	}
	m.setStateLocked(StateConnecting)
	m.session++
	session := m.session
	m.deviceID = deviceID
	m.role = roleClient
	m.roomCode = code
	m.mu.Unlock()
	m.cb.stateChange(StateConnecting)

	conn, err := m.tr.Join(ctx, code)
	if err != nil {
		m.fail(session, fmt.Sprintf("failed to join room %s: %v", code, err))
		return fmt.Errorf("failed to join room %s: %w", code, err)
	}

	connCtx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if m.session != session {
		m.mu.Unlock()
		cancel()
		conn.Close()
		return ErrBusy
	}
	m.conn = conn
	m.cancel = cancel
	m.setStateLocked(StateConnected)
	m.mu.Unlock()
	m.cb.stateChange(StateConnected)
	m.cb.peerConnected()
	observability.RecordSession("client")

	go m.readLoop(connCtx, session, conn)

	// The joining side opens the exchange.
	m.beginExchange(session)
	return nil
}

// Sync starts a fresh exchange on an already connected pair. The manager
// runs one automatically after connecting; this is for manual re-syncs, so
// the request asks for the peer's full history rather than the incremental
// watermark. That re-fetches anything a skewed clock stamped at or before
// the watermark; the merge is idempotent, so the extra records are free.
func (m *Manager) Sync(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateSyncing:
		m.mu.Unlock()
		return ErrSyncInProgress
	case StateConnected:
	default:
		m.mu.Unlock()
		return ErrNotConnected
	}
	session := m.session
	m.exch = exchange{helloSent: true, helloSeen: true}
	m.setStateLocked(StateSyncing)
	conn := m.conn
	m.mu.Unlock()
	m.cb.stateChange(StateSyncing)

	m.mu.Lock()
	m.exch.requested = true
	m.mu.Unlock()
	if err := m.send(conn, protocol.NewSyncRequest(m.deviceID, time.Time{})); err != nil {
		m.fail(session, fmt.Sprintf("failed to send sync request: %v", err))
		return err
	}
	return nil
}

// Disconnect tears down the active connection, if any. It is idempotent and
// never returns the manager to an unusable state.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.session++
	conn := m.conn
	pending := m.pending
	cancel := m.cancel
	m.conn = nil
	m.pending = nil
	m.cancel = nil
	m.roomCode = ""
	m.exch = exchange{}
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if pending != nil {
		pending.Close()
	}
	m.cb.stateChange(StateDisconnected)
	slog.Info("Disconnected")
}

// accept waits for the single peer allowed to join a hosted room.
func (m *Manager) accept(ctx context.Context, session uint64, pending transport.Pending) {
	conn, err := pending.Accept(ctx)
	if err != nil {
		m.mu.Lock()
		stale := m.session != session
		m.mu.Unlock()
		if stale || errors.Is(err, context.Canceled) {
			return
		}
		m.fail(session, fmt.Sprintf("failed to accept peer: %v", err))
		return
	}

	m.mu.Lock()
	if m.session != session {
		m.mu.Unlock()
		conn.Close()
		return
	}
	code := m.roomCode
	m.conn = conn
	m.pending = nil
	m.setStateLocked(StateConnected)
	m.mu.Unlock()
	m.cb.stateChange(StateConnected)
	m.cb.peerConnected()

	// Rooms are single use: once paired the code must not admit anyone else.
	if err := m.tr.Invalidate(ctx, code); err != nil {
		slog.Warn("Failed to invalidate room", "code", code, "error", err)
	}

	m.readLoop(ctx, session, conn)
}

// beginExchange sends the opening HELLO and moves to the syncing state.
func (m *Manager) beginExchange(session uint64) {
	m.mu.Lock()
	if m.session != session || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.exch = exchange{helloSent: true}
	m.setStateLocked(StateSyncing)
	conn := m.conn
	m.mu.Unlock()
	m.cb.stateChange(StateSyncing)

	if err := m.send(conn, protocol.NewHello(m.deviceID)); err != nil {
		m.fail(session, fmt.Sprintf("failed to send hello: %v", err))
	}
}

// readLoop decodes and dispatches frames until the connection closes or the
// session is superseded.
func (m *Manager) readLoop(ctx context.Context, session uint64, conn transport.Conn) {
	for {
		select {
		case frame := <-conn.Recv():
			m.handleFrame(ctx, session, conn, frame)
		case <-conn.Done():
			// Drain anything that raced with the close.
			for {
				select {
				case frame := <-conn.Recv():
					m.handleFrame(ctx, session, conn, frame)
					continue
				default:
				}
				break
			}
			m.peerGone(session)
			return
		case <-ctx.Done():
			return
		}
	}
}

// peerGone handles the far side going away, cleanly or otherwise.
func (m *Manager) peerGone(session uint64) {
	m.mu.Lock()
	if m.session != session {
		m.mu.Unlock()
		return
	}
	interrupted := m.state == StateSyncing
	peerRole := m.role
	m.session++
	conn := m.conn
	cancel := m.cancel
	m.conn = nil
	m.cancel = nil
	m.roomCode = ""
	m.exch = exchange{}
	next := StateDisconnected
	if interrupted {
		next = StateError
	}
	m.setStateLocked(next)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if interrupted {
		observability.RecordExchange("aborted")
		m.cb.errorf("connection lost during sync")
	}
	m.cb.peerDisconnected()
	m.cb.stateChange(next)
	slog.Info("Peer disconnected", "role", peerRole.String(), "during_sync", interrupted)
}

func (m *Manager) handleFrame(ctx context.Context, session uint64, conn transport.Conn, frame []byte) {
	msg, err := protocol.Decode(frame)
	if err != nil {
		// Malformed frames are reported to the sender but never change
		// connection state.
		observability.RecordProtocolRejection()
		slog.Warn("Rejected frame", "error", err)
		reply := protocol.NewError(m.deviceID, protocol.CodeInvalidMessage, err.Error())
		if serr := m.send(conn, reply); serr != nil {
			slog.Warn("Failed to send error reply", "error", serr)
		}
		return
	}

	switch msg.Kind {
	case protocol.KindHello:
		m.handleHello(ctx, session, conn, msg)
	case protocol.KindSyncRequest:
		m.handleSyncRequest(ctx, session, conn, msg)
	case protocol.KindSyncData:
		m.handleSyncData(ctx, session, conn, msg)
	case protocol.KindAck:
		m.handleAck(ctx, session, conn, msg)
	case protocol.KindError:
		m.handleError(session, msg)
	}
}

func (m *Manager) handleHello(ctx context.Context, session uint64, conn transport.Conn, msg *protocol.Message) {
	m.mu.Lock()
	if m.session != session {
		m.mu.Unlock()
		return
	}
	if m.state == StateSyncing && m.exch.helloSeen {
		// Duplicate HELLO inside one exchange; the first already advanced
		// the handshake.
		m.mu.Unlock()
		slog.Debug("Duplicate hello ignored", "peer", msg.SenderID)
		return
	}
	announce := false
	if m.state == StateConnected {
		m.exch = exchange{}
		m.setStateLocked(StateSyncing)
		announce = true
	}
	m.exch.helloSeen = true
	replyHello := !m.exch.helloSent
	if replyHello {
		m.exch.helloSent = true
	}
	// When HELLOs cross on the wire both sides would otherwise request at
	// once; the host wins the tie-break and the client stays quiet.
	request := m.role == roleHost || replyHello
	if request {
		m.exch.requested = true
	}
	m.mu.Unlock()
	if announce {
		m.cb.stateChange(StateSyncing)
	}

	slog.Debug("Hello received", "peer", msg.SenderID)

	if replyHello {
		if err := m.send(conn, protocol.NewHello(m.deviceID)); err != nil {
			m.fail(session, fmt.Sprintf("failed to send hello: %v", err))
			return
		}
	}
	if request {
		since, err := m.lastSync(ctx)
		if err != nil {
			m.fail(session, fmt.Sprintf("failed to read sync state: %v", err))
			return
		}
		if err := m.send(conn, protocol.NewSyncRequest(m.deviceID, since)); err != nil {
			m.fail(session, fmt.Sprintf("failed to send sync request: %v", err))
		}
	}
}

func (m *Manager) handleSyncRequest(ctx context.Context, session uint64, conn transport.Conn, msg *protocol.Message) {
	m.mu.Lock()
	if m.session != session {
		m.mu.Unlock()
		return
	}
	announce := false
	if m.state == StateConnected {
		// Peer-initiated manual sync: a request can open a new exchange.
		m.exch = exchange{helloSent: true, helloSeen: true}
		m.setStateLocked(StateSyncing)
		announce = true
	}
	m.exch.dataSent = true
	m.mu.Unlock()
	if announce {
		m.cb.stateChange(StateSyncing)
	}

	since := msg.SyncRequest.Since
	changes, err := m.store.ChangedSince(ctx, since)
	if err != nil {
		m.fail(session, fmt.Sprintf("failed to collect changes: %v", err))
		return
	}
	count := changes.Count()
	m.cb.progress(Progress{Current: 0, Total: count, Phase: PhaseSending})
	slog.Debug("Sending changes", "since", since, "records", count)

	data := protocol.NewSyncData(m.deviceID, changes, since.IsZero())
	if err := m.send(conn, data); err != nil {
		m.fail(session, fmt.Sprintf("failed to send sync data: %v", err))
		return
	}
	m.cb.progress(Progress{Current: count, Total: count, Phase: PhaseSending})
}

func (m *Manager) handleSyncData(ctx context.Context, session uint64, conn transport.Conn, msg *protocol.Message) {
	m.mu.Lock()
	if m.session != session {
		m.mu.Unlock()
		return
	}
	if !m.exch.requested || m.exch.merged {
		m.mu.Unlock()
		observability.RecordProtocolRejection()
		slog.Warn("Unexpected sync data ignored", "peer", msg.SenderID)
		return
	}
	m.mu.Unlock()

	changes := msg.SyncData.Data
	count := changes.Count()
	m.cb.progress(Progress{Current: 0, Total: count, Phase: PhaseReceiving})
	m.cb.progress(Progress{Current: 0, Total: count, Phase: PhaseMerging})

	result, err := m.engine.MergeChanges(ctx, changes)

	m.mu.Lock()
	if m.session != session {
		// Disconnected while merging; the merge result stands but the
		// exchange is over.
		m.mu.Unlock()
		return
	}
	if err != nil {
		m.mu.Unlock()
		observability.RecordExchange("failed")
		slog.Error("Merge failed", "error", err)
		// Report the failure to the peer before the teardown closes the
		// connection. The watermark stays put, so the same range is
		// requested again next session.
		reply := protocol.NewError(m.deviceID, protocol.CodeMergeFailed, err.Error())
		if serr := m.send(conn, reply); serr != nil {
			slog.Warn("Failed to send error reply", "error", serr)
		}
		if m.teardown(session, StateError) {
			m.cb.errorf(fmt.Sprintf("merge failed: %v", err))
			m.cb.stateChange(StateError)
		}
		return
	}
	m.exch.merged = true
	finished := m.exch.done()
	if finished {
		m.setStateLocked(StateConnected)
	}
	m.mu.Unlock()

	m.cb.progress(Progress{Current: count, Total: count, Phase: PhaseMerging})
	slog.Info("Merge complete",
		"applied", result.Applied,
		"skipped", result.Skipped,
		"duplicates", result.Duplicates,
		"cleared_refs", result.ClearedRefs,
	)

	// The watermark records when this device last ingested peer data; the
	// next incremental request asks for everything after it.
	ts := m.now()
	if err := m.store.UpdateSyncState(ctx, models.SyncStatePatch{LastSyncTimestamp: &ts}); err != nil {
		slog.Warn("Failed to advance sync watermark", "error", err)
	}

	if err := m.send(conn, protocol.NewAck(m.deviceID, count)); err != nil {
		m.fail(session, fmt.Sprintf("failed to send ack: %v", err))
		return
	}
	if finished {
		observability.RecordExchange("success")
		m.cb.stateChange(StateConnected)
	}
}

func (m *Manager) handleAck(ctx context.Context, session uint64, conn transport.Conn, msg *protocol.Message) {
	m.mu.Lock()
	if m.session != session {
		m.mu.Unlock()
		return
	}
	if !m.exch.dataSent {
		m.mu.Unlock()
		observability.RecordProtocolRejection()
		slog.Warn("Unexpected ack ignored", "peer", msg.SenderID)
		return
	}
	m.exch.acked = true
	reverse := !m.exch.requested
	if reverse {
		m.exch.requested = true
	}
	finished := m.exch.done()
	if finished {
		m.setStateLocked(StateConnected)
	}
	m.mu.Unlock()

	slog.Debug("Ack received", "peer", msg.SenderID, "records", msg.Ack.ReceivedCount)

	if reverse {
		// Our data landed; now pull the peer's side of the exchange.
		since, err := m.lastSync(ctx)
		if err != nil {
			m.fail(session, fmt.Sprintf("failed to read sync state: %v", err))
			return
		}
		if err := m.send(conn, protocol.NewSyncRequest(m.deviceID, since)); err != nil {
			m.fail(session, fmt.Sprintf("failed to send sync request: %v", err))
		}
		return
	}
	if finished {
		observability.RecordExchange("success")
		m.cb.stateChange(StateConnected)
	}
}

func (m *Manager) handleError(session uint64, msg *protocol.Message) {
	if !m.teardown(session, StateError) {
		return
	}
	observability.RecordExchange("failed")
	slog.Error("Peer reported error", "code", msg.Error.Code, "message", msg.Error.Message)
	m.cb.errorf(fmt.Sprintf("peer error %s: %s", msg.Error.Code, msg.Error.Message))
	m.cb.stateChange(StateError)
}

// teardown closes the resources owned by session and moves to next. It
// reports whether the session was still current; a superseded session owns
// nothing and must not touch the manager.
func (m *Manager) teardown(session uint64, next State) bool {
	m.mu.Lock()
	if m.session != session {
		m.mu.Unlock()
		return false
	}
	m.session++
	conn := m.conn
	pending := m.pending
	cancel := m.cancel
	m.conn = nil
	m.pending = nil
	m.cancel = nil
	m.roomCode = ""
	m.exch = exchange{}
	m.setStateLocked(next)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if pending != nil {
		pending.Close()
	}
	return true
}

// fail tears the session down into the error state unless it was already
// superseded.
func (m *Manager) fail(session uint64, message string) {
	if !m.teardown(session, StateError) {
		return
	}
	slog.Error("Connection failed", "error", message)
	m.cb.errorf(message)
	m.cb.stateChange(StateError)
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
}

func (m *Manager) send(conn transport.Conn, msg *protocol.Message) error {
	if conn == nil {
		return ErrNotConnected
	}
	frame, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", msg.Kind, err)
	}
	return conn.Send(frame)
}

// loadDeviceID reads (and lazily creates) this device's stable identifier.
func (m *Manager) loadDeviceID(ctx context.Context) (string, error) {
	st, err := m.store.SyncState(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load sync state: %w", err)
	}
	return st.DeviceID, nil
}

// lastSync returns the incremental watermark for outgoing requests.
func (m *Manager) lastSync(ctx context.Context) (time.Time, error) {
	st, err := m.store.SyncState(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load sync state: %w", err)
	}
	return st.LastSyncTimestamp, nil
}
