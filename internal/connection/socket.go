package connection

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/venuelink/venuelink/internal/metrics"
)

// SocketHandler is invoked synchronously for every inbound frame, without
// the suffix. A handler error breaks the read loop; the controller then
// reconnects.
type SocketHandler func(data []byte) error

// SocketConfig configures a line-framed TCP client.
type SocketConfig struct {
	// URL is the host:port to connect to.
	URL string

	// CertsDir enables TLS using a directory of PEM certificates. Empty
	// means plain TCP.
	CertsDir string

	// TLS enables TLS with the system root pool when CertsDir is empty.
	TLS bool

	// Suffix is the frame delimiter, typically CRLF. It is appended to all
	// sends and heartbeats and used to split the inbound byte stream.
	Suffix []byte

	// Heartbeat, when set, sends Payload+Suffix every Interval while active.
	Heartbeat *HeartbeatConfig

	// Reconnect holds the reconnection parameters.
	Reconnect ReconnectConfig

	// WriteTimeout is the per-write deadline.
	WriteTimeout time.Duration
}

func (c *SocketConfig) applyDefaults() {
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	c.Reconnect.applyDefaults()
}

func (c *SocketConfig) validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: url is required", ErrBadConfig)
	}
	if len(c.Suffix) == 0 {
		return fmt.Errorf("%w: suffix is required", ErrBadConfig)
	}
	if c.Heartbeat != nil && c.Heartbeat.Interval <= 0 {
		return fmt.Errorf("%w: heartbeat interval must be positive", ErrBadConfig)
	}
	return nil
}

// SocketClient is a persistent line-framed TCP connection with optional
// TLS, heartbeats and automatic reconnection. A read goroutine splits the
// inbound stream on the configured suffix and invokes the handler per
// frame; a controller goroutine drives reconnection and shutdown.
type SocketClient struct {
	cfg     SocketConfig
	handler SocketHandler
	hooks   Hooks
	logger  *slog.Logger

	tlsConfig *tls.Config
	mode      *State
	backoff   *ExponentialBackoff

	// writeMu serializes writes and guards conn. The read loop holds its
	// own reference to the conn it was spawned with.
	writeMu sync.Mutex
	conn    net.Conn

	// readDone is closed when the current read goroutine exits. Only the
	// controller replaces it.
	readDone       chan struct{}
	controllerDone chan struct{}
}

// NewSocketClient validates the configuration and returns an unconnected
// client.
func NewSocketClient(cfg SocketConfig, handler SocketHandler, hooks Hooks, logger *slog.Logger) (*SocketClient, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	var tlsConfig *tls.Config
	if cfg.CertsDir != "" {
		var err error
		tlsConfig, err = TLSConfigFromCertsDir(cfg.CertsDir)
		if err != nil {
			return nil, err
		}
	} else if cfg.TLS {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return &SocketClient{
		cfg:            cfg,
		handler:        handler,
		hooks:          hooks,
		logger:         logger.With("transport", "tcp", "url", cfg.URL),
		tlsConfig:      tlsConfig,
		mode:           NewState(ModeConnecting),
		backoff:        cfg.Reconnect.newBackoff(),
		controllerDone: make(chan struct{}),
	}, nil
}

// Connect establishes the first connection and starts the read, heartbeat
// and controller goroutines. Setup errors are returned synchronously;
// steady-state errors are handled by reconnection.
func (c *SocketClient) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()

	c.mode.Store(ModeActive)

	c.readDone = make(chan struct{})
	go c.readLoop(conn, c.readDone)
	if c.cfg.Heartbeat != nil {
		go c.heartbeatLoop()
	}
	go c.controllerLoop()

	c.logger.Debug("socket connected")
	if c.hooks.PostConnect != nil {
		c.hooks.PostConnect()
	}

	return nil
}

// SendBytes writes data followed by the frame suffix. It refuses when the
// client is closed and waits up to two seconds for the client to become
// active while reconnecting. Writes are serialized; frames never
// interleave.
func (c *SocketClient) SendBytes(data []byte) error {
	if c.mode.IsClosed() {
		return ErrNotConnected
	}
	if !c.mode.IsActive() {
		if err := c.waitActive(DefaultActiveWaitOnSend); err != nil {
			return err
		}
	}
	return c.writeFrame(data)
}

// Close requests an orderly shutdown and waits for the controller to
// finish. Close is idempotent.
func (c *SocketClient) Close() error {
	for {
		m := c.mode.Load()
		if m == ModeDisconnect || m == ModeClosed {
			break
		}
		if c.mode.CompareAndSwap(m, ModeDisconnect) {
			break
		}
	}

	select {
	case <-c.controllerDone:
	case <-time.After(DefaultCloseTimeout):
		c.logger.Error("timeout waiting for controller to finish")
	}
	return nil
}

// IsActive reports whether the connection is established and usable.
func (c *SocketClient) IsActive() bool { return c.mode.IsActive() }

// IsReconnecting reports whether the client lost the connection and is
// re-establishing it.
func (c *SocketClient) IsReconnecting() bool { return c.mode.IsReconnect() }

// IsClosed reports whether the client reached its terminal state.
func (c *SocketClient) IsClosed() bool { return c.mode.IsClosed() }

func (c *SocketClient) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: c.cfg.Reconnect.Timeout}

	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.URL)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err, Retryable: true}
	}

	if c.tlsConfig != nil {
		host, _, splitErr := net.SplitHostPort(c.cfg.URL)
		if splitErr != nil {
			host = c.cfg.URL
		}
		cfg := c.tlsConfig.Clone()
		cfg.ServerName = host
		tlsConn := tls.Client(conn, cfg)
		tlsConn.SetDeadline(time.Now().Add(c.cfg.Reconnect.Timeout))
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, &TransportError{Op: "tls handshake", Err: err, Retryable: true}
		}
		tlsConn.SetDeadline(time.Time{})
		return tlsConn, nil
	}

	return conn, nil
}

// readLoop reads bytes into a growing buffer and invokes the handler for
// each suffix-delimited frame. It exits on EOF, I/O error, handler error,
// or when the mode leaves Active.
func (c *SocketClient) readLoop(conn net.Conn, done chan struct{}) {
	defer close(done)
	c.logger.Debug("read loop started")

	var buf []byte
	chunk := make([]byte, 4096)

	for {
		if !c.mode.IsActive() {
			c.logger.Debug("read loop exiting, mode left active")
			return
		}

		// Short deadline so mode changes are observed promptly.
		conn.SetReadDeadline(time.Now().Add(DefaultReadPollInterval))
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for {
				i := bytes.Index(buf, c.cfg.Suffix)
				if i < 0 {
					break
				}
				frame := make([]byte, i)
				copy(frame, buf[:i])
				buf = buf[i+len(c.cfg.Suffix):]

				metrics.FramesReceived.WithLabelValues("tcp").Inc()
				if c.handler != nil {
					if herr := c.handler(frame); herr != nil {
						c.logger.Error("handler failed", "error", herr)
						return
					}
				}
			}
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, io.EOF) {
				c.logger.Debug("connection closed by server")
			} else {
				c.logger.Debug("connection ended", "error", err)
			}
			return
		}
	}
}

// heartbeatLoop periodically sends the configured payload while active,
// skips sends while reconnecting, and exits on disconnect or close.
func (c *SocketClient) heartbeatLoop() {
	c.logger.Debug("heartbeat loop started")
	ticker := time.NewTicker(c.cfg.Heartbeat.Interval)
	defer ticker.Stop()

	for range ticker.C {
		switch c.mode.Load() {
		case ModeActive:
			if err := c.writeFrame(c.cfg.Heartbeat.Payload); err != nil {
				c.logger.Error("failed to send heartbeat", "error", err)
				continue
			}
			metrics.HeartbeatsSent.WithLabelValues("tcp").Inc()
		case ModeReconnect:
			continue
		case ModeDisconnect, ModeClosed:
			c.logger.Debug("heartbeat loop exiting")
			return
		}
	}
}

// controllerLoop drives reconnection and shutdown. It polls the mode,
// reconnects when the read loop finished while active or the mode is
// Reconnect, and performs the orderly shutdown on Disconnect.
func (c *SocketClient) controllerLoop() {
	c.logger.Debug("controller started")
	defer close(c.controllerDone)

	tries := 0
	for {
		time.Sleep(DefaultControllerInterval)
		mode := c.mode.Load()

		if mode == ModeDisconnect {
			c.shutdown()
			if c.hooks.PostDisconnect != nil {
				c.hooks.PostDisconnect()
			}
			c.mode.Store(ModeClosed)
			c.logger.Debug("controller finished")
			return
		}

		if mode == ModeReconnect || (mode == ModeActive && c.readFinished()) {
			c.mode.CompareAndSwap(ModeActive, ModeReconnect)

			if err := c.reconnect(); err != nil {
				tries++
				metrics.ReconnectFailures.WithLabelValues("tcp").Inc()
				c.logger.Warn("reconnect attempt failed", "error", err, "tries", tries)

				if max := c.cfg.Reconnect.MaxTries; max > 0 && tries >= max {
					c.logger.Error("max reconnection tries reached, closing", "tries", tries)
					c.mode.Store(ModeDisconnect)
					continue
				}

				delay := c.backoff.NextDuration()
				if delay > 0 {
					c.logger.Warn("backing off", "delay", delay)
					time.Sleep(delay)
				}
				continue
			}

			tries = 0
			c.backoff.Reset()
			metrics.Reconnects.WithLabelValues("tcp").Inc()
			c.logger.Info("reconnected")
			if c.hooks.PostReconnect != nil {
				c.hooks.PostReconnect()
			}
		}
	}
}

// reconnect establishes a fresh connection under the reconnect timeout,
// swaps the writer, restarts the read loop and flips the mode back to
// Active.
func (c *SocketClient) reconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Reconnect.Timeout)
	defer cancel()

	conn, err := c.dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("reconnection timed out after %s: %w", c.cfg.Reconnect.Timeout, ErrTimeout)
		}
		return err
	}

	c.writeMu.Lock()
	old := c.conn
	c.conn = conn
	c.writeMu.Unlock()

	if old != nil {
		old.Close()
	}

	// The previous read loop exits once its conn is closed or it observes
	// the mode change.
	select {
	case <-c.readDone:
	case <-ctx.Done():
		conn.Close()
		return fmt.Errorf("reconnection timed out joining read loop: %w", ErrTimeout)
	}

	c.readDone = make(chan struct{})

	// Flip back before starting the read loop; it exits immediately when
	// the mode is not Active. Close may have won the race meanwhile.
	if !c.mode.CompareAndSwap(ModeReconnect, ModeActive) {
		conn.Close()
		return ErrNotConnected
	}
	go c.readLoop(conn, c.readDone)

	return nil
}

// shutdown closes the socket and joins the read loop.
func (c *SocketClient) shutdown() {
	c.logger.Debug("disconnecting")

	c.writeMu.Lock()
	conn := c.conn
	c.conn = nil
	c.writeMu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if c.readDone != nil {
		select {
		case <-c.readDone:
		case <-time.After(DefaultCloseTimeout):
			c.logger.Error("timeout joining read loop on shutdown")
		}
	}
}

func (c *SocketClient) readFinished() bool {
	select {
	case <-c.readDone:
		return true
	default:
		return false
	}
}

func (c *SocketClient) waitActive(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for !c.mode.IsActive() {
		switch c.mode.Load() {
		case ModeDisconnect, ModeClosed:
			return ErrNotConnected
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("waiting for client to become active: %w", ErrTimeout)
		}
		time.Sleep(DefaultActivePollInterval)
	}
	return nil
}

// writeFrame writes data plus suffix in a single serialized write. A write
// error triggers reconnection.
func (c *SocketClient) writeFrame(data []byte) error {
	frame := make([]byte, 0, len(data)+len(c.cfg.Suffix))
	frame = append(frame, data...)
	frame = append(frame, c.cfg.Suffix...)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if _, err := c.conn.Write(frame); err != nil {
		c.logger.Error("failed to send message", "error", err)
		c.mode.CompareAndSwap(ModeActive, ModeReconnect)
		return &TransportError{Op: "write", Err: err, Retryable: true}
	}
	return nil
}
