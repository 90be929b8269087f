package signal

import (
	"bufio"
	"log/slog"
	"net"
	"sync"
)

// Relay is the TCP half of the rendezvous service. Each peer dials in, sends
// one register message, and once a room has both its host and a client the
// relay pipes opaque frames between them. Exactly one client pairs per room;
// everyone else is refused at this layer.
type Relay struct {
	registry *Registry

	mu       sync.Mutex
	sessions map[string]*relaySession
}

type relaySession struct {
	room     string
	hostID   string
	hostConn net.Conn
	client   chan net.Conn
}

// NewRelay creates a relay backed by the given room registry.
func NewRelay(registry *Registry) *Relay {
	return &Relay{
		registry: registry,
		sessions: make(map[string]*relaySession),
	}
}

// Serve accepts relay connections until the listener is closed.
func (r *Relay) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go r.handle(conn)
	}
}

func (r *Relay) handle(conn net.Conn) {
	br := bufio.NewReader(conn)
	reg, err := ReadRelayMessage(br)
	if err != nil || reg.Op != OpRegister || reg.Room == "" || reg.PeerID == "" {
		refuse(conn, RelayBadRegister, "expected a register message")
		return
	}

	switch reg.Role {
	case "host":
		r.handleHost(conn, br, reg)
	case "client":
		r.handleClient(conn, br, reg)
	default:
		refuse(conn, RelayBadRegister, "unknown role "+reg.Role)
	}
}

func (r *Relay) handleHost(conn net.Conn, br *bufio.Reader, reg *RelayMessage) {
	if !r.registry.Joinable(reg.Room) {
		refuse(conn, RelayRoomUnavailable, "room not claimed or already used")
		return
	}

	r.mu.Lock()
	if _, ok := r.sessions[reg.Room]; ok {
		r.mu.Unlock()
		refuse(conn, RelayHostBusy, "room already has a host")
		return
	}
	session := &relaySession{
		room:     reg.Room,
		hostID:   reg.PeerID,
		hostConn: conn,
		client:   make(chan net.Conn, 1),
	}
	r.sessions[reg.Room] = session
	r.mu.Unlock()

	if err := WriteRelayMessage(conn, &RelayMessage{Op: OpRegistered}); err != nil {
		r.dropSession(reg.Room)
		conn.Close()
		return
	}
	slog.Info("Relay host registered", "room", reg.Room, "peer_id", reg.PeerID)

	// The host stays silent until paired; block until a client arrives.
	clientConn, ok := <-session.client
	if !ok || clientConn == nil {
		conn.Close()
		return
	}

	r.pipe(reg.Room, conn, br, clientConn)
}

func (r *Relay) handleClient(conn net.Conn, br *bufio.Reader, reg *RelayMessage) {
	if !r.registry.Joinable(reg.Room) {
		refuse(conn, RelayRoomUnavailable, "room not claimed or already used")
		return
	}

	r.mu.Lock()
	session, ok := r.sessions[reg.Room]
	if ok {
		// One client per room: claim the session before unlocking.
		delete(r.sessions, reg.Room)
	}
	r.mu.Unlock()
	if !ok {
		refuse(conn, RelayRoomUnavailable, "no host listening on room")
		return
	}

	if err := WriteRelayMessage(conn, &RelayMessage{Op: OpRegistered}); err != nil {
		conn.Close()
		session.client <- nil
		close(session.client)
		return
	}
	if err := WriteRelayMessage(conn, &RelayMessage{Op: OpPaired, PeerID: session.hostID}); err != nil {
		conn.Close()
		close(session.client)
		return
	}
	if err := WriteRelayMessage(session.hostConn, &RelayMessage{Op: OpPaired, PeerID: reg.PeerID}); err != nil {
		conn.Close()
		session.hostConn.Close()
		close(session.client)
		return
	}
	slog.Info("Relay paired", "room", reg.Room, "host_id", session.hostID, "client_id", reg.PeerID)

	// Hand the client conn to the host goroutine for host->client piping,
	// then pipe client->host here. Reuse br: it may already hold buffered
	// frames sent right after registration.
	session.client <- conn

	forward(conn, br, session.hostConn)
}

// pipe forwards host frames to the client until either side goes away.
func (r *Relay) pipe(roomCode string, hostConn net.Conn, hostReader *bufio.Reader, clientConn net.Conn) {
	forward(hostConn, hostReader, clientConn)
	slog.Info("Relay session ended", "room", roomCode)
}

// forward copies frame and bye messages from src to dst. On any read error it
// tells dst the counterpart is gone and closes both ends.
func forward(src net.Conn, srcReader *bufio.Reader, dst net.Conn) {
	for {
		msg, err := ReadRelayMessage(srcReader)
		if err != nil {
			WriteRelayMessage(dst, &RelayMessage{Op: OpBye})
			src.Close()
			dst.Close()
			return
		}
		switch msg.Op {
		case OpFrame, OpBye:
			if err := WriteRelayMessage(dst, msg); err != nil {
				src.Close()
				dst.Close()
				return
			}
			if msg.Op == OpBye {
				src.Close()
				dst.Close()
				return
			}
		default:
			// Control messages are not forwarded.
		}
	}
}

func (r *Relay) dropSession(roomCode string) {
	r.mu.Lock()
	delete(r.sessions, roomCode)
	r.mu.Unlock()
}

func refuse(conn net.Conn, code, message string) {
	WriteRelayMessage(conn, &RelayMessage{Op: OpError, Code: code, Message: message})
	conn.Close()
}
