package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/venuelink/venuelink/internal/api"
	"github.com/venuelink/venuelink/internal/auth"
	"github.com/venuelink/venuelink/internal/connection"
	"github.com/venuelink/venuelink/internal/model"
)

// DefaultActivationWait bounds how long Connect waits for the WebSocket
// handshake to complete.
const DefaultActivationWait = 10 * time.Second

// Config configures a venue data client.
type Config struct {
	ClientID string
	Venue    model.Venue

	HTTPBaseURL string
	WSURL       string
	Credentials *auth.Credentials

	// ActiveOnly restricts instrument fetches to listed instruments.
	ActiveOnly bool

	// UpdateInstrumentsInterval enables the periodic instrument refresh
	// task; zero disables it.
	UpdateInstrumentsInterval time.Duration

	HTTPTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	Heartbeat    *connection.HeartbeatConfig
	Reconnect    connection.ReconnectConfig
	DefaultQuota *connection.Quota
	KeyedQuotas  map[string]connection.Quota
	BufferSize   int
}

// Client is the venue data client: it bootstraps instruments over HTTP,
// maintains the market data WebSocket with subscription replay, and
// answers point-in-time requests on the data queue.
type Client struct {
	cfg    Config
	http   *api.Client
	out    chan<- Message
	logger *slog.Logger
	now    func() time.Time

	mu            sync.Mutex
	ws            *connection.WSClient
	subscriptions map[string]struct{}
	bookChannels  map[model.InstrumentID]string
	instruments   []model.Instrument
	started       bool
	connected     bool
	ctx           context.Context
	cancel        context.CancelFunc

	wg sync.WaitGroup
}

// NewClient builds the HTTP client eagerly and leaves the WebSocket
// un-created until Connect. Messages and request responses are emitted on
// out.
func NewClient(cfg Config, out chan<- Message, logger *slog.Logger) (*Client, error) {
	if cfg.HTTPBaseURL == "" || cfg.WSURL == "" {
		return nil, fmt.Errorf("%w: http and ws urls are required", connection.ErrBadConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("client_id", cfg.ClientID, "venue", cfg.Venue)

	opts := []api.ClientOption{api.WithLogger(logger)}
	if cfg.Credentials != nil {
		opts = append(opts, api.WithCredentials(cfg.Credentials))
	}
	if cfg.HTTPTimeout > 0 {
		opts = append(opts, api.WithTimeout(cfg.HTTPTimeout))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, api.WithRetries(cfg.MaxRetries, cfg.RetryBackoff))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:           cfg,
		http:          api.NewClient(cfg.HTTPBaseURL, cfg.Venue, opts...),
		out:           out,
		logger:        logger,
		now:           time.Now,
		subscriptions: make(map[string]struct{}),
		bookChannels:  make(map[model.InstrumentID]string),
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Start marks the client started. Idempotent.
func (c *Client) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.logger.Info("data client started")
}

// Stop cancels the client's task token. Idempotent.
func (c *Client) Stop() {
	c.cancel()
	c.logger.Info("data client stopped")
}

// Reset stops the client, clears subscription bookkeeping and reseeds the
// task token so the client can be started again.
func (c *Client) Reset() {
	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions = make(map[string]struct{})
	c.bookChannels = make(map[model.InstrumentID]string)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.started = false
	c.connected = false
	c.logger.Info("data client reset")
}

// Dispose stops the client.
func (c *Client) Dispose() {
	c.Stop()
}

// IsConnected reports whether Connect completed and Disconnect has not.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Instruments returns a copy of the bootstrapped instrument definitions.
func (c *Client) Instruments() []model.Instrument {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Instrument, len(c.instruments))
	copy(out, c.instruments)
	return out
}

// Connect bootstraps instruments over HTTP, opens the market data
// WebSocket, waits for it to become active, and spawns the stream
// forwarder and the optional instrument refresh task.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	taskCtx := c.ctx
	c.mu.Unlock()

	ws, err := connection.NewWSClient(connection.WSConfig{
		URL:          c.cfg.WSURL,
		Heartbeat:    c.cfg.Heartbeat,
		Reconnect:    c.cfg.Reconnect,
		DefaultQuota: c.cfg.DefaultQuota,
		KeyedQuotas:  c.cfg.KeyedQuotas,
		BufferSize:   c.cfg.BufferSize,
		Resubscribe:  c.resubscribeFrames,
	}, nil, connection.Hooks{}, c.logger)
	if err != nil {
		return fmt.Errorf("create websocket client: %w", err)
	}

	instruments, err := c.http.GetInstruments(ctx, c.cfg.ActiveOnly)
	if err != nil {
		return fmt.Errorf("bootstrap instruments: %w", err)
	}
	c.mu.Lock()
	c.instruments = instruments
	c.mu.Unlock()
	c.logger.Info("bootstrapped instruments", "count", len(instruments))

	stream, err := ws.ConnectStream(ctx)
	if err != nil {
		return fmt.Errorf("connect websocket: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, DefaultActivationWait)
	defer cancel()
	if err := ws.WaitActive(waitCtx); err != nil {
		ws.Disconnect()
		return fmt.Errorf("websocket activation: %w", err)
	}

	c.mu.Lock()
	c.ws = ws
	c.connected = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.runForwarder(taskCtx, stream)

	if c.cfg.UpdateInstrumentsInterval > 0 {
		c.wg.Add(1)
		go c.runInstrumentRefresh(taskCtx)
	}

	c.logger.Info("data client connected")
	return nil
}

// Disconnect cancels the task token, closes the WebSocket, joins every
// spawned task, reseeds the token and clears subscription bookkeeping.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	ws := c.ws
	c.mu.Unlock()

	c.cancel()
	if err := ws.Disconnect(); err != nil {
		c.logger.Error("websocket close failed", "error", err)
	}
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.subscriptions = make(map[string]struct{})
	c.bookChannels = make(map[model.InstrumentID]string)
	c.ws = nil
	c.connected = false
	c.logger.Info("data client disconnected")
}

// -----------------------------------------------------------------------------
// Subscriptions
// -----------------------------------------------------------------------------

// SubscribeTrades subscribes to the instrument's trade stream.
func (c *Client) SubscribeTrades(cmd SubscribeTrades) error {
	return c.subscribeTopic("trade:" + cmd.InstrumentID.Symbol)
}

// UnsubscribeTrades removes the trade subscription.
func (c *Client) UnsubscribeTrades(cmd UnsubscribeTrades) error {
	return c.unsubscribeTopic("trade:" + cmd.InstrumentID.Symbol)
}

// SubscribeQuotes subscribes to the instrument's quote stream.
func (c *Client) SubscribeQuotes(cmd SubscribeQuotes) error {
	return c.subscribeTopic("quote:" + cmd.InstrumentID.Symbol)
}

// UnsubscribeQuotes removes the quote subscription.
func (c *Client) UnsubscribeQuotes(cmd UnsubscribeQuotes) error {
	return c.unsubscribeTopic("quote:" + cmd.InstrumentID.Symbol)
}

// SubscribeBook subscribes to order book updates, recording the selected
// topic so the matching unsubscribe picks the same one. Unsupported book
// types and depths fail synchronously.
func (c *Client) SubscribeBook(cmd SubscribeBook) error {
	channel, err := bookChannelFor(cmd.BookType, cmd.Depth)
	if err != nil {
		return err
	}
	if err := c.subscribeTopic(channel + ":" + cmd.InstrumentID.Symbol); err != nil {
		return err
	}

	c.mu.Lock()
	c.bookChannels[cmd.InstrumentID] = channel
	c.mu.Unlock()
	return nil
}

// UnsubscribeBook removes the book subscription recorded at subscribe
// time.
func (c *Client) UnsubscribeBook(cmd UnsubscribeBook) error {
	c.mu.Lock()
	channel, ok := c.bookChannels[cmd.InstrumentID]
	delete(c.bookChannels, cmd.InstrumentID)
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("no book subscription recorded", "instrument", cmd.InstrumentID)
		return nil
	}
	return c.unsubscribeTopic(channel + ":" + cmd.InstrumentID.Symbol)
}

// SubscribeBars subscribes to aggregated bars; only the venue's native
// bin sizes are supported.
func (c *Client) SubscribeBars(cmd SubscribeBars) error {
	channel, err := barChannelFor(cmd.BarType)
	if err != nil {
		return err
	}
	return c.subscribeTopic(channel + ":" + cmd.BarType.InstrumentID.Symbol)
}

// UnsubscribeBars removes the bar subscription.
func (c *Client) UnsubscribeBars(cmd UnsubscribeBars) error {
	channel, err := barChannelFor(cmd.BarType)
	if err != nil {
		return err
	}
	return c.unsubscribeTopic(channel + ":" + cmd.BarType.InstrumentID.Symbol)
}

// subscribeTopic records the intent before the frame is sent so a
// reconnect replays it even if it races the send. Errors synchronously
// when the WebSocket has not been connected.
func (c *Client) subscribeTopic(topic string) error {
	c.mu.Lock()
	ws := c.ws
	if ws == nil {
		c.mu.Unlock()
		return connection.ErrNotConnected
	}
	c.subscriptions[topic] = struct{}{}
	c.mu.Unlock()

	c.spawn(func(ctx context.Context) {
		if err := ws.SendText(ctx, subscribeFrame(topic)); err != nil {
			c.logger.Error("subscribe failed", "topic", topic, "error", err)
		}
	})
	return nil
}

func (c *Client) unsubscribeTopic(topic string) error {
	c.mu.Lock()
	ws := c.ws
	if ws == nil {
		c.mu.Unlock()
		return connection.ErrNotConnected
	}
	delete(c.subscriptions, topic)
	c.mu.Unlock()

	c.spawn(func(ctx context.Context) {
		if err := ws.SendText(ctx, unsubscribeFrame(topic)); err != nil {
			c.logger.Error("unsubscribe failed", "topic", topic, "error", err)
		}
	})
	return nil
}

// resubscribeFrames returns the current subscription intents as wire
// frames, sorted for deterministic replay.
func (c *Client) resubscribeFrames() [][]byte {
	c.mu.Lock()
	topics := make([]string, 0, len(c.subscriptions))
	for topic := range c.subscriptions {
		topics = append(topics, topic)
	}
	c.mu.Unlock()

	sort.Strings(topics)
	frames := make([][]byte, 0, len(topics))
	for _, topic := range topics {
		frames = append(frames, subscribeFrame(topic))
	}
	return frames
}

// -----------------------------------------------------------------------------
// Point-in-time requests
// -----------------------------------------------------------------------------

// RequestInstruments refreshes the instrument definitions and answers
// with the full list.
func (c *Client) RequestInstruments(cmd RequestInstruments) {
	c.spawn(func(ctx context.Context) {
		instruments, err := c.http.GetInstruments(ctx, c.cfg.ActiveOnly)
		if err != nil {
			c.logger.Error("instrument request failed", "error", err)
			return
		}
		c.mu.Lock()
		c.instruments = instruments
		c.mu.Unlock()

		c.respond(ctx, cmd.ClientID, cmd.RequestID, instruments)
	})
}

// RequestTrades answers with historical trades for the instrument.
func (c *Client) RequestTrades(cmd RequestTrades) {
	c.spawn(func(ctx context.Context) {
		trades, err := c.http.GetTrades(ctx, cmd.InstrumentID.Symbol, cmd.Limit, cmd.Start, cmd.End)
		if err != nil {
			c.logger.Error("trade request failed", "instrument", cmd.InstrumentID, "error", err)
			return
		}
		c.respond(ctx, cmd.ClientID, cmd.RequestID, trades)
	})
}

// RequestBars answers with historical bars for the bar type.
func (c *Client) RequestBars(cmd RequestBars) {
	c.spawn(func(ctx context.Context) {
		bars, err := c.http.GetBars(ctx, cmd.BarType, cmd.Limit, cmd.Start, cmd.End)
		if err != nil {
			c.logger.Error("bar request failed", "bar_type", cmd.BarType, "error", err)
			return
		}
		c.respond(ctx, cmd.ClientID, cmd.RequestID, bars)
	})
}

func (c *Client) respond(ctx context.Context, clientID string, requestID uuid.UUID, data any) {
	c.emit(ctx, Message{Response: &DataResponse{
		ClientID:  clientID,
		RequestID: requestID,
		Venue:     c.cfg.Venue,
		Data:      data,
		TsServer:  c.now().UnixNano(),
	}})
}

// -----------------------------------------------------------------------------
// Background tasks
// -----------------------------------------------------------------------------

func (c *Client) spawn(fn func(context.Context)) {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(ctx)
	}()
}

// runForwarder drains the WebSocket stream onto the data queue until the
// stream closes or the task token fires.
func (c *Client) runForwarder(ctx context.Context, stream <-chan connection.Message) {
	defer c.wg.Done()
	c.logger.Debug("stream forwarder started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("stream forwarder cancelled")
			return
		case msg, ok := <-stream:
			if !ok {
				c.logger.Debug("stream closed, forwarder exiting")
				return
			}
			if msg.Reconnected {
				c.logger.Info("websocket reconnected, subscriptions replayed")
				continue
			}
			c.handleMessage(ctx, msg.Data, msg.ReceivedAt)
		}
	}
}

// runInstrumentRefresh periodically re-fetches instrument definitions.
func (c *Client) runInstrumentRefresh(ctx context.Context) {
	defer c.wg.Done()
	c.logger.Debug("instrument refresh started", "interval", c.cfg.UpdateInstrumentsInterval)

	ticker := time.NewTicker(c.cfg.UpdateInstrumentsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			instruments, err := c.http.GetInstruments(ctx, c.cfg.ActiveOnly)
			if err != nil {
				// Leave the cache unchanged on failure.
				c.logger.Error("instrument refresh failed", "error", err)
				continue
			}
			c.mu.Lock()
			c.instruments = instruments
			c.mu.Unlock()
			c.logger.Debug("instruments refreshed", "count", len(instruments))
		}
	}
}

// handleMessage parses one push message and fans domain items out to the
// data queue in venue delivery order.
func (c *Client) handleMessage(ctx context.Context, data []byte, receivedAt time.Time) {
	var env wsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Debug("unparseable message", "error", err)
		return
	}
	if env.Table == "" {
		// Welcome and subscription acks.
		return
	}

	now := receivedAt.UnixNano()
	switch env.Table {
	case "trade":
		var trades []wsTrade
		if err := json.Unmarshal(env.Data, &trades); err != nil {
			c.logger.Error("bad trade payload", "error", err)
			return
		}
		for _, t := range trades {
			trade := t.toModel(c.cfg.Venue, now)
			c.emit(ctx, Message{Trade: &trade})
		}

	case "quote":
		var quotes []wsQuote
		if err := json.Unmarshal(env.Data, &quotes); err != nil {
			c.logger.Error("bad quote payload", "error", err)
			return
		}
		for _, q := range quotes {
			quote := q.toModel(c.cfg.Venue, now)
			c.emit(ctx, Message{Quote: &quote})
		}

	case channelBookL2, channelBookL2_25:
		c.handleBookLevels(ctx, env, now)

	case channelBook10:
		c.handleBookSnapshots(ctx, env, now)

	case "tradeBin1m", "tradeBin5m", "tradeBin1h", "tradeBin1d":
		c.handleBars(ctx, env, now)

	case "funding":
		// Dropped by policy.
		c.logger.Debug("funding update dropped")

	case "execution", "order":
		c.logger.Debug("trading message ignored on data client", "table", env.Table)

	default:
		c.logger.Debug("unhandled table", "table", env.Table)
	}
}

// handleBookLevels groups level rows by symbol, preserving delivery
// order, and emits one update per instrument.
func (c *Client) handleBookLevels(ctx context.Context, env wsEnvelope, now int64) {
	var rows []wsBookLevel
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		c.logger.Error("bad book payload", "error", err)
		return
	}

	action := bookActionFor(env.Action)
	grouped := make(map[string][]model.BookLevel)
	var order []string
	for _, row := range rows {
		if _, ok := grouped[row.Symbol]; !ok {
			order = append(order, row.Symbol)
		}
		grouped[row.Symbol] = append(grouped[row.Symbol], model.BookLevel{
			Price: formatDecimal(row.Price),
			Size:  formatDecimal(float64(row.Size)),
			IsBid: row.Side == "Buy",
		})
	}

	for _, symbol := range order {
		update := model.BookUpdate{
			InstrumentID: model.InstrumentID{Symbol: symbol, Venue: c.cfg.Venue},
			Action:       action,
			Levels:       grouped[symbol],
			TsInit:       now,
			TsEvent:      now,
		}
		c.emit(ctx, Message{Book: &update})
	}
}

func (c *Client) handleBookSnapshots(ctx context.Context, env wsEnvelope, now int64) {
	var rows []wsBook10
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		c.logger.Error("bad book snapshot payload", "error", err)
		return
	}

	for _, row := range rows {
		levels := make([]model.BookLevel, 0, len(row.Bids)+len(row.Asks))
		for _, bid := range row.Bids {
			levels = append(levels, model.BookLevel{
				Price: formatDecimal(bid[0]), Size: formatDecimal(bid[1]), IsBid: true,
			})
		}
		for _, ask := range row.Asks {
			levels = append(levels, model.BookLevel{
				Price: formatDecimal(ask[0]), Size: formatDecimal(ask[1]),
			})
		}
		update := model.BookUpdate{
			InstrumentID: model.InstrumentID{Symbol: row.Symbol, Venue: c.cfg.Venue},
			Action:       model.BookActionSnapshot,
			Levels:       levels,
			TsEvent:      row.Timestamp.UnixNano(),
			TsInit:       now,
		}
		c.emit(ctx, Message{Book: &update})
	}
}

func (c *Client) handleBars(ctx context.Context, env wsEnvelope, now int64) {
	var rows []wsBar
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		c.logger.Error("bad bar payload", "error", err)
		return
	}

	for _, row := range rows {
		id := model.InstrumentID{Symbol: row.Symbol, Venue: c.cfg.Venue}
		bt, ok := barTypeForChannel(env.Table, id)
		if !ok {
			continue
		}
		bar := model.Bar{
			BarType: bt,
			Open:    formatDecimal(row.Open),
			High:    formatDecimal(row.High),
			Low:     formatDecimal(row.Low),
			Close:   formatDecimal(row.Close),
			Volume:  formatDecimal(float64(row.Volume)),
			TsEvent: row.Timestamp.UnixNano(),
			TsInit:  now,
		}
		c.emit(ctx, Message{Bar: &bar})
	}
}

func (c *Client) emit(ctx context.Context, msg Message) {
	select {
	case c.out <- msg:
	case <-ctx.Done():
	}
}
