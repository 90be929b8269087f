package transport

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/centimo/centimo/internal/signal"
)

// startRendezvous runs a real signaling API and relay on the loopback
// interface and returns a transport pointed at them.
func startRendezvous(t *testing.T) *Relay {
	t.Helper()
	registry := signal.NewRegistry()

	api := httptest.NewServer(signal.NewServer(registry).Routes())
	t.Cleanup(api.Close)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go signal.NewRelay(registry).Serve(ln)

	return NewRelay(api.URL, ln.Addr().String())
}

func TestRelayTransportEndToEnd(t *testing.T) {
	ctx := context.Background()
	tr := startRendezvous(t)

	pending, err := tr.Host(ctx, "ABC234")
	if err != nil {
		t.Fatalf("Host failed: %v", err)
	}

	accepted := make(chan Conn, 1)
	go func() {
		conn, err := pending.Accept(ctx)
		if err != nil {
			t.Errorf("Accept failed: %v", err)
			accepted <- nil
			return
		}
		accepted <- conn
	}()

	clientConn, err := tr.Join(ctx, "ABC234")
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	defer clientConn.Close()

	var hostConn Conn
	select {
	case hostConn = <-accepted:
		if hostConn == nil {
			t.FailNow()
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Accept did not return after Join")
	}
	defer hostConn.Close()

	// Frames survive the round trip through the relay in both directions.
	if err := clientConn.Send([]byte(`{"hello":1}`)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case frame := <-hostConn.Recv():
		if string(frame) != `{"hello":1}` {
			t.Errorf("Frame mismatch: %q", frame)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Frame never arrived")
	}

	if err := hostConn.Send([]byte("reply")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case frame := <-clientConn.Recv():
		if string(frame) != "reply" {
			t.Errorf("Frame mismatch: %q", frame)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Frame never arrived")
	}

	// Closing one end propagates to the other through the relay's bye.
	clientConn.Close()
	select {
	case <-hostConn.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Peer close did not propagate")
	}
}

func TestRelayTransportRoomSemantics(t *testing.T) {
	ctx := context.Background()
	tr := startRendezvous(t)

	t.Run("joining an unclaimed room fails", func(t *testing.T) {
		if _, err := tr.Join(ctx, "ZZZZZZ"); !errors.Is(err, ErrRoomUnavailable) {
			t.Errorf("Expected ErrRoomUnavailable, got %v", err)
		}
	})

	t.Run("hosting a claimed room fails", func(t *testing.T) {
		pending, err := tr.Host(ctx, "DEF567")
		if err != nil {
			t.Fatalf("Host failed: %v", err)
		}
		defer pending.Close()
		if _, err := tr.Host(ctx, "DEF567"); !errors.Is(err, ErrRoomTaken) {
			t.Errorf("Expected ErrRoomTaken, got %v", err)
		}
	})

	t.Run("join after invalidation fails", func(t *testing.T) {
		if _, err := tr.Host(ctx, "GHJ234"); err != nil {
			t.Fatalf("Host failed: %v", err)
		}
		if err := tr.Invalidate(ctx, "GHJ234"); err != nil {
			t.Fatalf("Invalidate failed: %v", err)
		}
		if _, err := tr.Join(ctx, "GHJ234"); !errors.Is(err, ErrRoomUnavailable) {
			t.Errorf("Expected ErrRoomUnavailable, got %v", err)
		}
	})
}
