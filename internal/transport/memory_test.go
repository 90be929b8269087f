package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

func hostAndJoin(t *testing.T, m *Memory, code string) (Conn, Conn) {
	t.Helper()
	ctx := context.Background()

	pending, err := m.Host(ctx, code)
	if err != nil {
		t.Fatalf("Host failed: %v", err)
	}

	accepted := make(chan Conn, 1)
	go func() {
		conn, err := pending.Accept(ctx)
		if err != nil {
			t.Errorf("Accept failed: %v", err)
		}
		accepted <- conn
	}()

	clientConn, err := m.Join(ctx, code)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	select {
	case hostConn := <-accepted:
		return hostConn, clientConn
	case <-time.After(time.Second):
		t.Fatal("Accept did not return after Join")
		return nil, nil
	}
}

func TestMemoryPairAndExchange(t *testing.T) {
	m := NewMemory()
	hostConn, clientConn := hostAndJoin(t, m, "ABC234")
	defer hostConn.Close()

	if err := clientConn.Send([]byte("ping")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case frame := <-hostConn.Recv():
		if string(frame) != "ping" {
			t.Errorf("Frame mismatch: %q", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("Frame never arrived")
	}

	if err := hostConn.Send([]byte("pong")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case frame := <-clientConn.Recv():
		if string(frame) != "pong" {
			t.Errorf("Frame mismatch: %q", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("Frame never arrived")
	}
}

func TestMemoryRoomSemantics(t *testing.T) {
	ctx := context.Background()

	t.Run("joining an unknown room fails", func(t *testing.T) {
		m := NewMemory()
		if _, err := m.Join(ctx, "ABC234"); !errors.Is(err, ErrRoomUnavailable) {
			t.Errorf("Expected ErrRoomUnavailable, got %v", err)
		}
	})

	t.Run("hosting a claimed room fails", func(t *testing.T) {
		m := NewMemory()
		if _, err := m.Host(ctx, "ABC234"); err != nil {
			t.Fatalf("Host failed: %v", err)
		}
		if _, err := m.Host(ctx, "ABC234"); !errors.Is(err, ErrRoomTaken) {
			t.Errorf("Expected ErrRoomTaken, got %v", err)
		}
	})

	t.Run("second join is refused", func(t *testing.T) {
		m := NewMemory()
		hostConn, _ := hostAndJoin(t, m, "ABC234")
		defer hostConn.Close()
		if _, err := m.Join(ctx, "ABC234"); !errors.Is(err, ErrRoomUnavailable) {
			t.Errorf("Expected ErrRoomUnavailable, got %v", err)
		}
	})

	t.Run("join after invalidation is refused", func(t *testing.T) {
		m := NewMemory()
		if _, err := m.Host(ctx, "ABC234"); err != nil {
			t.Fatalf("Host failed: %v", err)
		}
		if err := m.Invalidate(ctx, "ABC234"); err != nil {
			t.Fatalf("Invalidate failed: %v", err)
		}
		if _, err := m.Join(ctx, "ABC234"); !errors.Is(err, ErrRoomUnavailable) {
			t.Errorf("Expected ErrRoomUnavailable, got %v", err)
		}
	})

	t.Run("closing the pending claim releases the room", func(t *testing.T) {
		m := NewMemory()
		pending, err := m.Host(ctx, "ABC234")
		if err != nil {
			t.Fatalf("Host failed: %v", err)
		}
		if err := pending.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if _, err := pending.Accept(ctx); !errors.Is(err, ErrClosed) {
			t.Errorf("Expected ErrClosed from Accept, got %v", err)
		}
		// The code can be claimed again.
		if _, err := m.Host(ctx, "ABC234"); err != nil {
			t.Errorf("Expected rehost to succeed, got %v", err)
		}
	})
}

func TestMemoryConnClose(t *testing.T) {
	m := NewMemory()
	hostConn, clientConn := hostAndJoin(t, m, "ABC234")

	if err := clientConn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	select {
	case <-hostConn.Done():
	case <-time.After(time.Second):
		t.Fatal("Peer close did not propagate")
	}
	if err := hostConn.Send([]byte("too late")); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	// Close is idempotent, from either side.
	if err := clientConn.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
	if err := hostConn.Close(); err != nil {
		t.Errorf("Close on the other end failed: %v", err)
	}
}
