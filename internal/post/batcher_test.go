package post

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/venuelink/venuelink/internal/connection"
)

func aloOrder() OrderRequest {
	return OrderRequest{
		Asset: 1, IsBuy: true, Price: "100.5", Size: "2",
		Type: OrderType{Limit: &LimitType{Tif: TifAlo}},
	}
}

func gtcOrder() OrderRequest {
	return OrderRequest{
		Asset: 1, IsBuy: false, Price: "101", Size: "1",
		Type: OrderType{Limit: &LimitType{Tif: TifGtc}},
	}
}

func TestLaneFor(t *testing.T) {
	cases := []struct {
		name   string
		action Action
		want   Lane
	}{
		{
			name:   "all alo limit orders",
			action: Action{Type: ActionOrder, Orders: []OrderRequest{aloOrder(), aloOrder()}},
			want:   LaneAlo,
		},
		{
			name:   "mixed tif",
			action: Action{Type: ActionOrder, Orders: []OrderRequest{aloOrder(), gtcOrder()}},
			want:   LaneNormal,
		},
		{
			name:   "empty order list",
			action: Action{Type: ActionOrder},
			want:   LaneNormal,
		},
		{
			name: "trigger order",
			action: Action{Type: ActionOrder, Orders: []OrderRequest{{
				Type: OrderType{Trigger: &TriggerType{IsMarket: true, TriggerPx: "99", TpSl: "sl"}},
			}}},
			want: LaneNormal,
		},
		{
			name:   "cancel action",
			action: Action{Type: ActionCancel, Cancels: []CancelRequest{{Asset: 1, OrderID: 9}}},
			want:   LaneNormal,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := LaneFor(tc.action); got != tc.want {
				t.Errorf("LaneFor = %v, want %v", got, tc.want)
			}
		})
	}
}

// captureSender records sent envelopes in order.
type captureSender struct {
	mu   sync.Mutex
	sent []WsRequest
}

func (c *captureSender) send(req WsRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, req)
	return nil
}

func (c *captureSender) ids() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]uint64, len(c.sent))
	for i, req := range c.sent {
		ids[i] = req.ID
	}
	return ids
}

func TestBatcher_DrainsInSubmissionOrder(t *testing.T) {
	capture := &captureSender{}
	b := NewBatcher(BatcherConfig{NormalTick: 20 * time.Millisecond}, capture.send, nil)
	defer b.Close()

	ctx := context.Background()
	for id := uint64(1); id <= 5; id++ {
		if err := b.Enqueue(ctx, ScheduledPost{ID: id, Lane: LaneNormal}); err != nil {
			t.Fatalf("Enqueue(%d) failed: %v", id, err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(capture.ids()) == 5 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	got := capture.ids()
	want := []uint64{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("sent %d posts, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sent ids = %v, want %v", got, want)
		}
	}

	if method := capture.sent[0].Method; method != "post" {
		t.Errorf("envelope method = %q, want %q", method, "post")
	}
}

func TestBatcher_LanesAreIndependent(t *testing.T) {
	capture := &captureSender{}
	b := NewBatcher(BatcherConfig{
		AloTick:    20 * time.Millisecond,
		NormalTick: 20 * time.Millisecond,
	}, capture.send, nil)
	defer b.Close()

	ctx := context.Background()
	if err := b.Enqueue(ctx, ScheduledPost{ID: 1, Lane: LaneAlo}); err != nil {
		t.Fatalf("Enqueue alo failed: %v", err)
	}
	if err := b.Enqueue(ctx, ScheduledPost{ID: 2, Lane: LaneNormal}); err != nil {
		t.Fatalf("Enqueue normal failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(capture.ids()) == 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("sent ids = %v, want both lanes drained", capture.ids())
}

func TestBatcher_EnqueueAfterClose(t *testing.T) {
	b := NewBatcher(BatcherConfig{}, func(WsRequest) error { return nil }, nil)
	b.Close()
	b.Close()

	err := b.Enqueue(context.Background(), ScheduledPost{ID: 1, Lane: LaneNormal})
	var terr *connection.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Enqueue after Close = %v, want TransportError", err)
	}
}
