package signal

import (
	"errors"
	"testing"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	t.Run("claim and lookup", func(t *testing.T) {
		if err := r.Claim("ABC234"); err != nil {
			t.Fatalf("Claim failed: %v", err)
		}
		status := r.Lookup("ABC234")
		if status == nil {
			t.Fatal("Expected status, got nil")
		}
		if status.Code != "ABC234" || status.Used {
			t.Errorf("Status mismatch: %+v", status)
		}
		if status.ClaimedAt.IsZero() {
			t.Error("Expected claim time to be set")
		}
	})

	t.Run("double claim is refused", func(t *testing.T) {
		if err := r.Claim("ABC234"); !errors.Is(err, ErrRoomTaken) {
			t.Errorf("Expected ErrRoomTaken, got %v", err)
		}
	})

	t.Run("invalidate makes the room unjoinable", func(t *testing.T) {
		if !r.Joinable("ABC234") {
			t.Fatal("Expected fresh room to be joinable")
		}
		if err := r.Invalidate("ABC234"); err != nil {
			t.Fatalf("Invalidate failed: %v", err)
		}
		if r.Joinable("ABC234") {
			t.Error("Expected invalidated room to be unjoinable")
		}
		if !r.Lookup("ABC234").Used {
			t.Error("Expected Used flag after invalidation")
		}
	})

	t.Run("invalidating an unknown room fails", func(t *testing.T) {
		if err := r.Invalidate("NOPE23"); !errors.Is(err, ErrRoomUnknown) {
			t.Errorf("Expected ErrRoomUnknown, got %v", err)
		}
	})

	t.Run("release frees the code for reuse", func(t *testing.T) {
		r.Release("ABC234")
		if r.Lookup("ABC234") != nil {
			t.Error("Expected lookup miss after release")
		}
		if err := r.Claim("ABC234"); err != nil {
			t.Errorf("Reclaim failed: %v", err)
		}
	})

	t.Run("unknown rooms are not joinable", func(t *testing.T) {
		if r.Joinable("ZZZZZZ") {
			t.Error("Expected unknown room to be unjoinable")
		}
	})
}

func TestLookupReturnsCopy(t *testing.T) {
	r := NewRegistry()
	if err := r.Claim("ABC234"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	status := r.Lookup("ABC234")
	status.Used = true
	if r.Lookup("ABC234").Used {
		t.Error("Mutating the returned status leaked into the registry")
	}
}
