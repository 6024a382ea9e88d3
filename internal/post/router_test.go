package post

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/venuelink/venuelink/internal/connection"
)

func TestRouter_RoundTrip(t *testing.T) {
	r := NewRouter(10, nil)
	ctx := context.Background()

	rx, err := r.Register(ctx, 42)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	go r.Complete(Response{ID: 42, Type: "info", Payload: []byte(`{"ok":true}`)})

	resp, err := r.AwaitWithTimeout(ctx, 42, rx, time.Second)
	if err != nil {
		t.Fatalf("AwaitWithTimeout failed: %v", err)
	}
	if resp.ID != 42 {
		t.Errorf("response id = %d, want 42", resp.ID)
	}
	if got := r.Pending(); got != 0 {
		t.Errorf("pending after completion = %d, want 0", got)
	}
}

func TestRouter_InflightCap(t *testing.T) {
	r := NewRouter(3, nil)
	ctx := context.Background()

	for id := uint64(1); id <= 3; id++ {
		if _, err := r.Register(ctx, id); err != nil {
			t.Fatalf("Register(%d) failed: %v", id, err)
		}
	}

	registered := make(chan error, 1)
	go func() {
		_, err := r.Register(ctx, 4)
		registered <- err
	}()

	select {
	case err := <-registered:
		t.Fatalf("Register(4) returned early with %v, want it to block at capacity", err)
	case <-time.After(100 * time.Millisecond):
	}

	r.Cancel(1)

	select {
	case err := <-registered:
		if err != nil {
			t.Fatalf("Register(4) after Cancel(1) failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Register(4) still blocked after a permit was released")
	}
}

func TestRouter_DuplicateID(t *testing.T) {
	r := NewRouter(10, nil)
	ctx := context.Background()

	if _, err := r.Register(ctx, 7); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := r.Register(ctx, 7); err == nil {
		t.Fatal("expected error registering a pending id")
	}
	if got := r.Pending(); got != 1 {
		t.Errorf("pending = %d, want 1", got)
	}
}

func TestRouter_TimeoutReleasesID(t *testing.T) {
	r := NewRouter(10, nil)
	ctx := context.Background()

	rx, err := r.Register(ctx, 7)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	_, err = r.AwaitWithTimeout(ctx, 7, rx, 25*time.Millisecond)
	if !errors.Is(err, connection.ErrTimeout) {
		t.Fatalf("AwaitWithTimeout = %v, want ErrTimeout", err)
	}

	// The id is reusable after the timeout cancelled the waiter.
	if _, err := r.Register(ctx, 7); err != nil {
		t.Fatalf("re-Register after timeout failed: %v", err)
	}
}

func TestRouter_CompleteUnknownID(t *testing.T) {
	r := NewRouter(10, nil)

	// Late or duplicate responses are logged and dropped.
	r.Complete(Response{ID: 999})

	if got := r.Pending(); got != 0 {
		t.Errorf("pending = %d, want 0", got)
	}
}

func TestRouter_RegisterContextCancelled(t *testing.T) {
	r := NewRouter(1, nil)
	ctx := context.Background()

	if _, err := r.Register(ctx, 1); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := r.Register(ctx, 2); err == nil {
		t.Fatal("expected error when context expires while at capacity")
	}
}

func TestIDs_Monotonic(t *testing.T) {
	ids := NewIDs(5)
	for want := uint64(5); want < 10; want++ {
		if got := ids.Next(); got != want {
			t.Fatalf("Next = %d, want %d", got, want)
		}
	}
}
