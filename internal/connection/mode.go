package connection

import "sync/atomic"

// Mode is the lifecycle state of a connection.
type Mode int32

const (
	// ModeConnecting is the initial state before the first dial completes.
	ModeConnecting Mode = iota

	// ModeActive means the connection is established and usable.
	ModeActive

	// ModeReconnect means the connection was lost and the controller is
	// re-establishing it.
	ModeReconnect

	// ModeDisconnect means the user requested shutdown; the controller is
	// tearing the connection down.
	ModeDisconnect

	// ModeClosed is terminal. A closed client cannot be reused.
	ModeClosed
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeConnecting:
		return "connecting"
	case ModeActive:
		return "active"
	case ModeReconnect:
		return "reconnect"
	case ModeDisconnect:
		return "disconnect"
	case ModeClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// State is a Mode shared between goroutines. Reads and writes are atomic;
// ModeClosed is terminal and cannot be left once stored.
type State struct {
	v atomic.Int32
}

// NewState returns a State holding the given initial mode.
func NewState(m Mode) *State {
	s := &State{}
	s.v.Store(int32(m))
	return s
}

// Load returns the current mode.
func (s *State) Load() Mode {
	return Mode(s.v.Load())
}

// Store sets the mode. Transitions out of ModeClosed are ignored.
func (s *State) Store(m Mode) {
	for {
		cur := s.v.Load()
		if Mode(cur) == ModeClosed {
			return
		}
		if s.v.CompareAndSwap(cur, int32(m)) {
			return
		}
	}
}

// CompareAndSwap atomically replaces old with new and reports whether the
// swap happened. ModeClosed cannot be swapped away from.
func (s *State) CompareAndSwap(old, new Mode) bool {
	if old == ModeClosed && new != ModeClosed {
		return false
	}
	return s.v.CompareAndSwap(int32(old), int32(new))
}

// IsActive reports whether the mode is ModeActive.
func (s *State) IsActive() bool { return s.Load() == ModeActive }

// IsReconnect reports whether the mode is ModeReconnect.
func (s *State) IsReconnect() bool { return s.Load() == ModeReconnect }

// IsDisconnect reports whether the mode is ModeDisconnect.
func (s *State) IsDisconnect() bool { return s.Load() == ModeDisconnect }

// IsClosed reports whether the mode is ModeClosed.
func (s *State) IsClosed() bool { return s.Load() == ModeClosed }
