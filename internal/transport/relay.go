package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/centimo/centimo/internal/room"
	"github.com/centimo/centimo/internal/signal"
)

// Relay is the production Transport: rooms are claimed and invalidated over
// the signaling HTTP API, and the data channel is a frame stream piped
// through the signaling service's TCP relay. NAT traversal is the relay's
// problem, not ours; both peers only ever dial out.
type Relay struct {
	apiURL    string
	relayAddr string
	client    *http.Client
}

// NewRelay creates a relay transport against the given signaling service.
// apiURL is the HTTP base (e.g. "http://sync.example.net:8080"), relayAddr
// the TCP relay address ("sync.example.net:8081").
func NewRelay(apiURL, relayAddr string) *Relay {
	return &Relay{
		apiURL:    apiURL,
		relayAddr: relayAddr,
		client:    &http.Client{},
	}
}

// Host claims the room over HTTP, registers as its host on the relay, and
// returns a Pending waiting for the single client.
func (r *Relay) Host(ctx context.Context, code string) (Pending, error) {
	code = room.Normalize(code)
	if err := r.claim(ctx, code); err != nil {
		return nil, err
	}

	conn, reader, err := r.register(ctx, code, "host", room.HostID(code))
	if err != nil {
		r.Invalidate(context.WithoutCancel(ctx), code)
		return nil, err
	}
	return &relayPending{tp: r, code: code, conn: conn, reader: reader}, nil
}

// Join registers as a client on the relay; the relay pairs it with the host
// or refuses at the rendezvous layer.
func (r *Relay) Join(ctx context.Context, code string) (Conn, error) {
	code = room.Normalize(code)
	conn, reader, err := r.register(ctx, code, "client", room.ClientID(code))
	if err != nil {
		return nil, err
	}

	// The relay pairs a client immediately or not at all.
	msg, err := readWithContext(ctx, conn, reader)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to pair with host: %w", err)
	}
	if msg.Op != signal.OpPaired {
		conn.Close()
		return nil, ErrRoomUnavailable
	}
	return newRelayConn(conn, reader), nil
}

// Invalidate marks the room single-use at the signaling service.
func (r *Relay) Invalidate(ctx context.Context, code string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		r.apiURL+"/api/v1/rooms/"+room.Normalize(code), nil)
	if err != nil {
		return fmt.Errorf("failed to build invalidate request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to invalidate room: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("failed to invalidate room: status %d", resp.StatusCode)
	}
	return nil
}

func (r *Relay) claim(ctx context.Context, code string) error {
	body, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return fmt.Errorf("failed to encode claim request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.apiURL+"/api/v1/rooms", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build claim request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to claim room: %w", err)
	}
	resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusCreated:
		return nil
	case http.StatusConflict:
		return ErrRoomTaken
	default:
		return fmt.Errorf("failed to claim room: status %d", resp.StatusCode)
	}
}

// register dials the relay and performs the register exchange for one role.
func (r *Relay) register(ctx context.Context, code, role, peerID string) (net.Conn, *bufio.Reader, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", r.relayAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial relay: %w", err)
	}
	msg := &signal.RelayMessage{Op: signal.OpRegister, Room: code, Role: role, PeerID: peerID}
	if err := signal.WriteRelayMessage(conn, msg); err != nil {
		conn.Close()
		return nil, nil, err
	}

	reader := bufio.NewReader(conn)
	reply, err := readWithContext(ctx, conn, reader)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to register with relay: %w", err)
	}
	switch reply.Op {
	case signal.OpRegistered:
		return conn, reader, nil
	case signal.OpError:
		conn.Close()
		if reply.Code == signal.RelayRoomUnavailable || reply.Code == signal.RelayHostBusy {
			return nil, nil, ErrRoomUnavailable
		}
		return nil, nil, fmt.Errorf("relay refused registration: %s", reply.Message)
	default:
		conn.Close()
		return nil, nil, fmt.Errorf("unexpected relay reply %q", reply.Op)
	}
}

// readWithContext reads one relay message, closing the conn to unblock the
// read if ctx expires first.
func readWithContext(ctx context.Context, conn net.Conn, reader *bufio.Reader) (*signal.RelayMessage, error) {
	type result struct {
		msg *signal.RelayMessage
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := signal.ReadRelayMessage(reader)
		ch <- result{msg, err}
	}()
	select {
	case res := <-ch:
		return res.msg, res.err
	case <-ctx.Done():
		conn.Close()
		return nil, ctx.Err()
	}
}

type relayPending struct {
	tp     *Relay
	code   string
	conn   net.Conn
	reader *bufio.Reader
	once   sync.Once
}

// Accept blocks until the relay pairs a client into the room.
func (p *relayPending) Accept(ctx context.Context) (Conn, error) {
	msg, err := readWithContext(ctx, p.conn, p.reader)
	if err != nil {
		return nil, err
	}
	if msg.Op != signal.OpPaired {
		p.conn.Close()
		return nil, fmt.Errorf("unexpected relay reply %q while waiting for peer", msg.Op)
	}
	return newRelayConn(p.conn, p.reader), nil
}

// Close abandons the claim and burns the code.
func (p *relayPending) Close() error {
	p.once.Do(func() {
		p.conn.Close()
		p.tp.Invalidate(context.Background(), p.code)
	})
	return nil
}

// relayConn adapts the relay frame stream to the Conn interface.
type relayConn struct {
	conn net.Conn
	in   chan []byte
	done chan struct{}
	once sync.Once

	writeMu sync.Mutex
}

func newRelayConn(conn net.Conn, reader *bufio.Reader) *relayConn {
	c := &relayConn{
		conn: conn,
		in:   make(chan []byte, connBuffer),
		done: make(chan struct{}),
	}
	go c.readLoop(reader)
	return c
}

func (c *relayConn) readLoop(reader *bufio.Reader) {
	for {
		msg, err := signal.ReadRelayMessage(reader)
		if err != nil {
			c.Close()
			return
		}
		switch msg.Op {
		case signal.OpFrame:
			select {
			case c.in <- msg.Data:
			case <-c.done:
				return
			}
		case signal.OpBye, signal.OpError:
			c.Close()
			return
		}
	}
}

func (c *relayConn) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	err := signal.WriteRelayMessage(c.conn, &signal.RelayMessage{Op: signal.OpFrame, Data: frame})
	if err != nil {
		c.Close()
		return ErrClosed
	}
	return nil
}

func (c *relayConn) Recv() <-chan []byte { return c.in }

func (c *relayConn) Done() <-chan struct{} { return c.done }

func (c *relayConn) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
	return nil
}
