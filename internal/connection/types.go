package connection

import (
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
	ErrTimeout       = errors.New("operation timeout")
	ErrBadConfig     = errors.New("invalid configuration")
	ErrRateLimited   = errors.New("rate limited")
)

// TransportError wraps a socket or TLS error. Retryable errors cause the
// controller to back off and reconnect; non-retryable errors close the
// client.
type TransportError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HeartbeatConfig enables periodic outbound traffic to keep intermediaries
// and the remote from closing an idle connection. For the WebSocket client
// an empty Payload means a protocol-level ping frame.
type HeartbeatConfig struct {
	Interval time.Duration
	Payload  []byte
}

// Hooks are optional callbacks fired on lifecycle events. They are opaque
// to the clients; the adapter supplies them.
type Hooks struct {
	PostConnect    func()
	PostReconnect  func()
	PostDisconnect func()
}

// ReconnectConfig holds the knobs shared by both reconnecting clients.
type ReconnectConfig struct {
	// Timeout caps a single reconnect attempt. Exceeding it yields an I/O
	// timeout error and another attempt after backoff.
	Timeout time.Duration

	// DelayInitial, DelayMax, BackoffFactor and Jitter parameterize the
	// exponential backoff between failed attempts.
	DelayInitial  time.Duration
	DelayMax      time.Duration
	BackoffFactor float64
	Jitter        time.Duration

	// MaxTries caps reconnection attempts; zero means unlimited. Reaching
	// the cap closes the client.
	MaxTries int
}

// Defaults mirrored from the venue adapters' production settings.
const (
	DefaultReconnectTimeout    = 10 * time.Second
	DefaultReconnectInitial    = 2 * time.Second
	DefaultReconnectMax        = 30 * time.Second
	DefaultReconnectFactor     = 1.5
	DefaultReconnectJitter     = 100 * time.Millisecond
	DefaultWriteTimeout        = 5 * time.Second
	DefaultActiveWaitOnSend    = 2 * time.Second
	DefaultControllerInterval  = 10 * time.Millisecond
	DefaultCloseTimeout        = 5 * time.Second
	DefaultStreamBufferSize    = 100000
	DefaultHandshakeTimeout    = 10 * time.Second
	DefaultReadPollInterval    = 100 * time.Millisecond
	DefaultActivePollInterval  = 10 * time.Millisecond
)

func (c *ReconnectConfig) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultReconnectTimeout
	}
	if c.DelayInitial == 0 {
		c.DelayInitial = DefaultReconnectInitial
	}
	if c.DelayMax == 0 {
		c.DelayMax = DefaultReconnectMax
	}
	if c.BackoffFactor == 0 {
		c.BackoffFactor = DefaultReconnectFactor
	}
	if c.Jitter == 0 {
		c.Jitter = DefaultReconnectJitter
	}
}

func (c *ReconnectConfig) newBackoff() *ExponentialBackoff {
	return NewExponentialBackoff(c.DelayInitial, c.DelayMax, c.BackoffFactor, c.Jitter, true)
}
