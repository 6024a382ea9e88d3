package post

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/venuelink/venuelink/internal/connection"
)

// Lane selects which batching queue a post rides.
type Lane int

const (
	// LaneNormal carries everything that is not post-only: IOC/GTC
	// orders, cancels, info queries.
	LaneNormal Lane = iota

	// LaneAlo carries post-only order batches on a slower, low-jitter
	// tick.
	LaneAlo
)

// String returns the lane name.
func (l Lane) String() string {
	switch l {
	case LaneAlo:
		return "alo"
	case LaneNormal:
		return "normal"
	default:
		return "unknown"
	}
}

// LaneFor classifies an action: Alo iff it is an order action with a
// non-empty order list where every order is a limit order with ALO time
// in force. Everything else, including empty order lists, is Normal.
func LaneFor(action Action) Lane {
	if action.Type != ActionOrder || len(action.Orders) == 0 {
		return LaneNormal
	}
	for _, o := range action.Orders {
		if o.Type.Limit == nil || o.Type.Limit.Tif != TifAlo {
			return LaneNormal
		}
	}
	return LaneAlo
}

// ScheduledPost is one queued post with its pre-computed lane.
type ScheduledPost struct {
	ID      uint64
	Request Request
	Lane    Lane
}

// SendFunc writes one post envelope to the wire.
type SendFunc func(WsRequest) error

// BatcherConfig holds the per-lane tick periods and queue bounds.
type BatcherConfig struct {
	AloTick      time.Duration `yaml:"alo_tick"`
	NormalTick   time.Duration `yaml:"normal_tick"`
	AloBuffer    int           `yaml:"alo_buffer"`
	NormalBuffer int           `yaml:"normal_buffer"`
}

func (c *BatcherConfig) applyDefaults() {
	if c.AloTick == 0 {
		c.AloTick = 100 * time.Millisecond
	}
	if c.NormalTick == 0 {
		c.NormalTick = 50 * time.Millisecond
	}
	if c.AloBuffer == 0 {
		c.AloBuffer = 1024
	}
	if c.NormalBuffer == 0 {
		c.NormalBuffer = 4096
	}
}

// Batcher smooths post submission onto the single write side of a
// WebSocket. Each lane accumulates items between ticks and drains the
// accumulator in submission order through the send function.
type Batcher struct {
	alo    chan ScheduledPost
	normal chan ScheduledPost

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewBatcher starts both lane goroutines. Close stops them.
func NewBatcher(cfg BatcherConfig, sendFn SendFunc, logger *slog.Logger) *Batcher {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	b := &Batcher{
		alo:    make(chan ScheduledPost, cfg.AloBuffer),
		normal: make(chan ScheduledPost, cfg.NormalBuffer),
		done:   make(chan struct{}),
		logger: logger.With("component", "post-batcher"),
	}

	b.wg.Add(2)
	go b.runLane(LaneAlo, b.alo, cfg.AloTick, sendFn)
	go b.runLane(LaneNormal, b.normal, cfg.NormalTick, sendFn)

	return b
}

// Enqueue routes the item to its lane, blocking while the lane queue is
// full. It fails when the batcher is closed or ctx is done.
func (b *Batcher) Enqueue(ctx context.Context, item ScheduledPost) error {
	ch := b.normal
	if item.Lane == LaneAlo {
		ch = b.alo
	}

	select {
	case <-b.done:
		return b.laneClosed(item.Lane)
	default:
	}

	select {
	case ch <- item:
		return nil
	case <-b.done:
		return b.laneClosed(item.Lane)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close terminates both lanes and waits for them to exit. Items still
// queued are discarded. Close is idempotent.
func (b *Batcher) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
	b.wg.Wait()
}

func (b *Batcher) laneClosed(lane Lane) error {
	return &connection.TransportError{
		Op:  "enqueue",
		Err: fmt.Errorf("%s lane closed", lane),
	}
}

// runLane accumulates pending items between ticks and drains them in
// submission order on each tick.
func (b *Batcher) runLane(lane Lane, rx <-chan ScheduledPost, tick time.Duration, send SendFunc) {
	defer b.wg.Done()

	pend := make([]ScheduledPost, 0, 128)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case item := <-rx:
			pend = append(pend, item)
		case <-ticker.C:
			if len(pend) == 0 {
				continue
			}
			batch := pend
			pend = make([]ScheduledPost, 0, 128)
			for _, item := range batch {
				req := WsRequest{Method: "post", ID: item.ID, Request: item.Request}
				if err := send(req); err != nil {
					b.logger.Error("failed to send post",
						"lane", lane.String(), "id", item.ID, "error", err)
				}
			}
		case <-b.done:
			b.logger.Info("post lane terminated", "lane", lane.String())
			return
		}
	}
}
