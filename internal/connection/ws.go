package connection

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/venuelink/venuelink/internal/metrics"
)

// WSHandler is invoked for every inbound text or binary frame, as raw
// bytes.
type WSHandler func(data []byte)

// PingHandler, when configured, receives inbound ping payloads instead of
// the automatic pong reply.
type PingHandler func(data []byte)

// ResubscribeFunc returns the serialized subscription frames to replay
// after a reconnect. The client sends them before flipping back to Active,
// so replay always precedes user sends.
type ResubscribeFunc func() [][]byte

// Header is one handshake header pair.
type Header struct {
	Name  string
	Value string
}

// Message is one inbound WebSocket message on a raw stream. A message
// with Reconnected set carries no data; it marks a completed reconnect.
type Message struct {
	Data        []byte
	ReceivedAt  time.Time
	Reconnected bool
}

// WSConfig configures a WebSocket client.
type WSConfig struct {
	// URL is the ws:// or wss:// endpoint.
	URL string

	// Headers are sent with the handshake. Invalid header values fail
	// construction.
	Headers []Header

	// CertsDir enables a custom TLS root pool from PEM certificates;
	// empty uses platform defaults for wss.
	CertsDir string

	// Heartbeat sends Payload as a text message every Interval; an empty
	// Payload sends a protocol-level ping frame instead.
	Heartbeat *HeartbeatConfig

	// PongTimeout marks the connection stale when no pong (or ping) has
	// been seen for this long; checked on each heartbeat tick. Zero
	// disables the check.
	PongTimeout time.Duration

	// Reconnect holds the reconnection parameters.
	Reconnect ReconnectConfig

	// PingHandler receives inbound pings instead of the automatic pong.
	PingHandler PingHandler

	// Resubscribe supplies the subscription frames replayed on reconnect.
	Resubscribe ResubscribeFunc

	// WriteTimeout is the per-write deadline.
	WriteTimeout time.Duration

	// BufferSize is the raw stream channel capacity.
	BufferSize int

	// DefaultQuota and KeyedQuotas configure the keyed send rate limiter.
	// A nil DefaultQuota leaves unnamed sends unlimited.
	DefaultQuota *Quota
	KeyedQuotas  map[string]Quota
}

func (c *WSConfig) applyDefaults() {
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.BufferSize == 0 {
		c.BufferSize = DefaultStreamBufferSize
	}
	c.Reconnect.applyDefaults()
}

func (c *WSConfig) validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: url is required", ErrBadConfig)
	}
	for _, h := range c.Headers {
		if h.Name == "" || strings.ContainsAny(h.Name, " :\r\n") {
			return fmt.Errorf("%w: invalid header name %q", ErrBadConfig, h.Name)
		}
		if strings.ContainsAny(h.Value, "\r\n") {
			return fmt.Errorf("%w: invalid header value for %q", ErrBadConfig, h.Name)
		}
	}
	if c.Heartbeat != nil && c.Heartbeat.Interval <= 0 {
		return fmt.Errorf("%w: heartbeat interval must be positive", ErrBadConfig)
	}
	return nil
}

// WSClient is a persistent WebSocket connection with heartbeats, keyed
// rate limiting on sends, subscription replay and automatic reconnection.
// Inbound messages go either to a handler or to the raw stream returned by
// ConnectStream.
type WSClient struct {
	cfg     WSConfig
	handler WSHandler
	hooks   Hooks
	logger  *slog.Logger

	tlsConfig *tls.Config
	mode      *State
	backoff   *ExponentialBackoff
	limiter   *KeyedRateLimiter

	writeMu sync.Mutex
	conn    *websocket.Conn

	stream   chan Message
	lastPong atomic.Int64

	// readDone is closed when the current read goroutine exits. Only the
	// controller replaces it.
	readDone       chan struct{}
	controllerDone chan struct{}
}

// NewWSClient validates the configuration and returns an unconnected
// client. Pass a nil handler to use ConnectStream instead of Connect.
func NewWSClient(cfg WSConfig, handler WSHandler, hooks Hooks, logger *slog.Logger) (*WSClient, error) {
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
	}

	return &WSClient{
		cfg:            cfg,
		handler:        handler,
		hooks:          hooks,
		logger:         logger.With("transport", "ws", "url", cfg.URL),
		tlsConfig:      tlsConfig,
		mode:           NewState(ModeConnecting),
		backoff:        cfg.Reconnect.newBackoff(),
		limiter:        NewKeyedRateLimiter(cfg.DefaultQuota, cfg.KeyedQuotas),
		controllerDone: make(chan struct{}),
	}, nil
}

// Connect performs the handshake and starts the read, heartbeat and
// controller goroutines, dispatching inbound frames to the handler.
func (c *WSClient) Connect(ctx context.Context) error {
	return c.connect(ctx)
}

// ConnectStream connects like Connect but returns the raw inbound message
// stream instead of dispatching to a handler. The stream also carries
// reconnected markers.
func (c *WSClient) ConnectStream(ctx context.Context) (<-chan Message, error) {
	c.stream = make(chan Message, c.cfg.BufferSize)
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c.stream, nil
}

func (c *WSClient) connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()

	c.lastPong.Store(time.Now().UnixNano())
	c.mode.Store(ModeActive)

	c.readDone = make(chan struct{})
	go c.readLoop(conn, c.readDone)
	if c.cfg.Heartbeat != nil {
		go c.heartbeatLoop()
	}
	go c.controllerLoop()

	c.logger.Debug("websocket connected")
	if c.hooks.PostConnect != nil {
		c.hooks.PostConnect()
	}

	return nil
}

// SendText sends a text frame, awaiting capacity on every named
// rate-limit key first. No keys charges the default quota.
func (c *WSClient) SendText(ctx context.Context, data []byte, keys ...string) error {
	return c.send(ctx, websocket.TextMessage, data, keys)
}

// SendBytes sends a binary frame, awaiting capacity on every named
// rate-limit key first.
func (c *WSClient) SendBytes(ctx context.Context, data []byte, keys ...string) error {
	return c.send(ctx, websocket.BinaryMessage, data, keys)
}

// SendCloseMessage writes a normal-closure close frame.
func (c *WSClient) SendCloseMessage() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
}

// Disconnect requests an orderly shutdown and waits for the controller to
// finish. Disconnect is idempotent.
func (c *WSClient) Disconnect() error {
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
func (c *WSClient) IsActive() bool { return c.mode.IsActive() }

// IsReconnecting reports whether the client lost the connection and is
// re-establishing it.
func (c *WSClient) IsReconnecting() bool { return c.mode.IsReconnect() }

// IsDisconnected reports whether the client is disconnecting or closed.
func (c *WSClient) IsDisconnected() bool {
	m := c.mode.Load()
	return m == ModeDisconnect || m == ModeClosed
}

// IsClosed reports whether the client reached its terminal state.
func (c *WSClient) IsClosed() bool { return c.mode.IsClosed() }

// WaitActive blocks until the client is active, the client dies, or ctx
// is done. Adapters use it as the bounded activation wait after connect.
func (c *WSClient) WaitActive(ctx context.Context) error {
	for !c.mode.IsActive() {
		switch c.mode.Load() {
		case ModeDisconnect, ModeClosed:
			return ErrNotConnected
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for websocket to become active: %w", ErrTimeout)
		case <-time.After(DefaultActivePollInterval):
		}
	}
	return nil
}

func (c *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	for _, h := range c.cfg.Headers {
		header.Add(h.Name, h.Value)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: DefaultHandshakeTimeout,
		TLSClientConfig:  c.tlsConfig,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err, Retryable: true}
	}

	c.installControlHandlers(conn)
	return conn, nil
}

func (c *WSClient) installControlHandlers(conn *websocket.Conn) {
	conn.SetPingHandler(func(data string) error {
		c.lastPong.Store(time.Now().UnixNano())
		if c.cfg.PingHandler != nil {
			c.cfg.PingHandler([]byte(data))
			return nil
		}
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	conn.SetPongHandler(func(string) error {
		c.lastPong.Store(time.Now().UnixNano())
		return nil
	})
}

// readLoop delivers text and binary frames until the connection ends or
// the mode leaves Active. Close frames end the loop through the read
// error path.
func (c *WSClient) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	c.logger.Debug("read loop started")

	for {
		msgType, data, err := conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			if c.mode.IsActive() {
				c.logger.Debug("connection ended", "error", err)
			}
			return
		}
		if !c.mode.IsActive() {
			return
		}

		switch msgType {
		case websocket.TextMessage, websocket.BinaryMessage:
			c.deliver(data, receivedAt)
		}
	}
}

func (c *WSClient) deliver(data []byte, receivedAt time.Time) {
	metrics.FramesReceived.WithLabelValues("ws").Inc()

	if c.handler != nil {
		c.handler(data)
		return
	}
	if c.stream == nil {
		return
	}

	select {
	case c.stream <- Message{Data: data, ReceivedAt: receivedAt}:
	default:
		metrics.FramesDropped.WithLabelValues("ws").Inc()
		c.logger.Warn("stream buffer full, dropping message")
	}
}

// heartbeatLoop sends the configured heartbeat while active and watches
// pong liveness.
func (c *WSClient) heartbeatLoop() {
	c.logger.Debug("heartbeat loop started")
	ticker := time.NewTicker(c.cfg.Heartbeat.Interval)
	defer ticker.Stop()

	for range ticker.C {
		switch c.mode.Load() {
		case ModeActive:
			if err := c.sendHeartbeat(); err != nil {
				c.logger.Error("failed to send heartbeat", "error", err)
				continue
			}
			metrics.HeartbeatsSent.WithLabelValues("ws").Inc()
			c.checkStale()
		case ModeReconnect:
			continue
		case ModeDisconnect, ModeClosed:
			c.logger.Debug("heartbeat loop exiting")
			return
		}
	}
}

func (c *WSClient) sendHeartbeat() error {
	if len(c.cfg.Heartbeat.Payload) == 0 {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		if c.conn == nil {
			return ErrNotConnected
		}
		return c.conn.WriteControl(
			websocket.PingMessage,
			nil,
			time.Now().Add(c.cfg.WriteTimeout),
		)
	}
	return c.writeMessage(websocket.TextMessage, c.cfg.Heartbeat.Payload)
}

func (c *WSClient) checkStale() {
	if c.cfg.PongTimeout <= 0 {
		return
	}
	last := time.Unix(0, c.lastPong.Load())
	if time.Since(last) > c.cfg.PongTimeout {
		c.logger.Warn("no pong received, connection stale", "last_pong", last)
		c.mode.CompareAndSwap(ModeActive, ModeReconnect)
	}
}

// controllerLoop drives reconnection and shutdown.
func (c *WSClient) controllerLoop() {
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
				metrics.ReconnectFailures.WithLabelValues("ws").Inc()
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
			metrics.Reconnects.WithLabelValues("ws").Inc()
			c.logger.Info("reconnected")
			if c.hooks.PostReconnect != nil {
				c.hooks.PostReconnect()
			}
		}
	}
}

// reconnect re-dials under the reconnect timeout, swaps the connection,
// replays the adapter's subscriptions and flips the mode back to Active.
// Replay happens before the flip, so queued user sends cannot overtake it.
func (c *WSClient) reconnect() error {
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

	select {
	case <-c.readDone:
	case <-ctx.Done():
		conn.Close()
		return fmt.Errorf("reconnection timed out joining read loop: %w", ErrTimeout)
	}

	if c.cfg.Resubscribe != nil {
		for _, frame := range c.cfg.Resubscribe() {
			if err := c.writeMessage(websocket.TextMessage, frame); err != nil {
				conn.Close()
				return fmt.Errorf("replay subscription: %w", err)
			}
		}
	}

	c.lastPong.Store(time.Now().UnixNano())
	c.readDone = make(chan struct{})

	if !c.mode.CompareAndSwap(ModeReconnect, ModeActive) {
		conn.Close()
		return ErrNotConnected
	}

	// Enqueue the marker before the read loop starts so it precedes any
	// post-reconnect data on the stream.
	if c.stream != nil {
		select {
		case c.stream <- Message{Reconnected: true, ReceivedAt: time.Now()}:
		default:
		}
	}
	go c.readLoop(conn, c.readDone)

	return nil
}

func (c *WSClient) shutdown() {
	c.logger.Debug("disconnecting")

	c.writeMu.Lock()
	conn := c.conn
	c.conn = nil
	c.writeMu.Unlock()

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
	}
	if c.readDone != nil {
		select {
		case <-c.readDone:
		case <-time.After(DefaultCloseTimeout):
			c.logger.Error("timeout joining read loop on shutdown")
		}
	}
	if c.stream != nil {
		close(c.stream)
	}
}

func (c *WSClient) readFinished() bool {
	select {
	case <-c.readDone:
		return true
	default:
		return false
	}
}

func (c *WSClient) send(ctx context.Context, msgType int, data []byte, keys []string) error {
	if c.mode.IsClosed() {
		return ErrNotConnected
	}
	if err := c.limiter.AwaitKeysReady(ctx, keys...); err != nil {
		return err
	}
	if !c.mode.IsActive() {
		if err := c.waitActive(DefaultActiveWaitOnSend); err != nil {
			return err
		}
	}
	return c.writeMessage(msgType, data)
}

func (c *WSClient) waitActive(timeout time.Duration) error {
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

func (c *WSClient) writeMessage(msgType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteMessage(msgType, data); err != nil {
		c.logger.Error("failed to send message", "error", err)
		c.mode.CompareAndSwap(ModeActive, ModeReconnect)
		return &TransportError{Op: "write", Err: err, Retryable: true}
	}
	return nil
}
