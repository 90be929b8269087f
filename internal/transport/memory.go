package transport

import (
	"context"
	"sync"

	"github.com/centimo/centimo/internal/room"
)

// connBuffer bounds the per-direction frame queue. A sync session exchanges
// a handful of messages, so hitting this means the peer stopped reading.
const connBuffer = 64

// Memory is an in-process Transport for tests and same-device simulations.
// It keeps the same room semantics as the relay: one host per code, one
// paired client, single-use after invalidation.
type Memory struct {
	mu    sync.Mutex
	rooms map[string]*memRoom
}

type memRoom struct {
	hostID string
	joins  chan Conn
	paired bool
	used   bool
}

// NewMemory creates an empty in-process transport.
func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]*memRoom)}
}

// Host claims the room code and returns a Pending that accepts one join.
func (m *Memory) Host(ctx context.Context, code string) (Pending, error) {
	code = room.Normalize(code)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[code]; ok {
		return nil, ErrRoomTaken
	}
	r := &memRoom{
		hostID: room.HostID(code),
		joins:  make(chan Conn, 1),
	}
	m.rooms[code] = r
	return &memPending{tp: m, code: code, joins: r.joins, closed: make(chan struct{})}, nil
}

// Join connects to the room's host, failing at the rendezvous layer if the
// code is unknown, already paired, or invalidated.
func (m *Memory) Join(ctx context.Context, code string) (Conn, error) {
	code = room.Normalize(code)
	m.mu.Lock()
	r, ok := m.rooms[code]
	if !ok || r.used || r.paired {
		m.mu.Unlock()
		return nil, ErrRoomUnavailable
	}
	r.paired = true
	joins := r.joins
	m.mu.Unlock()

	hostSide, clientSide := newPair()
	select {
	case joins <- hostSide:
		return clientSide, nil
	case <-ctx.Done():
		hostSide.Close()
		return nil, ctx.Err()
	}
}

// Invalidate marks the code single-use; later joins fail.
func (m *Memory) Invalidate(ctx context.Context, code string) error {
	code = room.Normalize(code)
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[code]; ok {
		r.used = true
	}
	return nil
}

type memPending struct {
	tp     *Memory
	code   string
	joins  chan Conn
	closed chan struct{}
	once   sync.Once
}

func (p *memPending) Accept(ctx context.Context) (Conn, error) {
	select {
	case conn := <-p.joins:
		return conn, nil
	case <-p.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *memPending) Close() error {
	p.once.Do(func() {
		close(p.closed)
		p.tp.mu.Lock()
		delete(p.tp.rooms, p.code)
		p.tp.mu.Unlock()
	})
	return nil
}

// memConn is one end of an in-process pair. The done channel and its once
// are shared by both ends, so either side's Close tears down both.
type memConn struct {
	in   chan []byte
	peer *memConn
	done chan struct{}
	once *sync.Once
}

func newPair() (*memConn, *memConn) {
	done := make(chan struct{})
	once := &sync.Once{}
	a := &memConn{in: make(chan []byte, connBuffer), done: done, once: once}
	b := &memConn{in: make(chan []byte, connBuffer), done: done, once: once}
	a.peer, b.peer = b, a
	return a, b
}

func (c *memConn) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.peer.in <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrBusy
	}
}

func (c *memConn) Recv() <-chan []byte { return c.in }

func (c *memConn) Done() <-chan struct{} { return c.done }

func (c *memConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}
