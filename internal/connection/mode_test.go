package connection

import (
	"sync"
	"testing"
)

func TestState_Transitions(t *testing.T) {
	s := NewState(ModeConnecting)

	if got := s.Load(); got != ModeConnecting {
		t.Fatalf("initial mode = %v, want %v", got, ModeConnecting)
	}

	s.Store(ModeActive)
	if !s.IsActive() {
		t.Error("expected IsActive after Store(ModeActive)")
	}

	if !s.CompareAndSwap(ModeActive, ModeReconnect) {
		t.Error("CompareAndSwap(Active, Reconnect) should succeed")
	}
	if !s.IsReconnect() {
		t.Error("expected IsReconnect after swap")
	}

	if s.CompareAndSwap(ModeActive, ModeDisconnect) {
		t.Error("CompareAndSwap with stale old value should fail")
	}
}

func TestState_ClosedIsTerminal(t *testing.T) {
	s := NewState(ModeActive)
	s.Store(ModeClosed)

	s.Store(ModeActive)
	if got := s.Load(); got != ModeClosed {
		t.Errorf("Store left closed state, mode = %v", got)
	}

	if s.CompareAndSwap(ModeClosed, ModeActive) {
		t.Error("CompareAndSwap left closed state")
	}
	if !s.IsClosed() {
		t.Error("expected IsClosed")
	}
}

func TestState_ConcurrentCloseWins(t *testing.T) {
	s := NewState(ModeActive)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Store(ModeClosed)
		}()
		go func() {
			defer wg.Done()
			s.Store(ModeReconnect)
		}()
	}
	wg.Wait()

	// Once any goroutine stored Closed, later stores must not undo it. A
	// final explicit close makes the expectation deterministic.
	s.Store(ModeClosed)
	s.Store(ModeActive)
	if got := s.Load(); got != ModeClosed {
		t.Errorf("mode = %v, want %v", got, ModeClosed)
	}
}

func TestMode_String(t *testing.T) {
	cases := map[Mode]string{
		ModeConnecting: "connecting",
		ModeActive:     "active",
		ModeReconnect:  "reconnect",
		ModeDisconnect: "disconnect",
		ModeClosed:     "closed",
		Mode(99):       "unknown",
	}
	for m, want := range cases {
		if got := m.String(); got != want {
			t.Errorf("Mode(%d).String() = %q, want %q", m, got, want)
		}
	}
}
