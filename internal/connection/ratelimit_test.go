package connection

import (
	"context"
	"testing"
	"time"
)

func TestKeyedRateLimiter_DefaultQuota(t *testing.T) {
	l := NewKeyedRateLimiter(&Quota{Rate: 2, Burst: 2}, nil)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 2; i++ {
		if err := l.AwaitKeysReady(ctx); err != nil {
			t.Fatalf("AwaitKeysReady #%d failed: %v", i+1, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("burst sends took %v, expected near-immediate", elapsed)
	}

	// Third token arrives roughly half a second after the burst drained.
	if err := l.AwaitKeysReady(ctx); err != nil {
		t.Fatalf("AwaitKeysReady #3 failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Errorf("third send completed after %v, expected rate limiting delay", elapsed)
	}
}

func TestKeyedRateLimiter_KeyedQuotaIndependent(t *testing.T) {
	l := NewKeyedRateLimiter(nil, map[string]Quota{
		"orders": {Rate: 1, Burst: 1},
	})

	if !l.AllowKeys("orders") {
		t.Fatal("first send on orders should be allowed")
	}
	if l.AllowKeys("orders") {
		t.Error("second immediate send on orders should be limited")
	}

	// Keys without a quota and without a default are unlimited.
	for i := 0; i < 100; i++ {
		if !l.AllowKeys("quotes") {
			t.Fatal("unquoted key should never be limited")
		}
	}
}

func TestKeyedRateLimiter_AllowKeysAllOrNothing(t *testing.T) {
	l := NewKeyedRateLimiter(nil, map[string]Quota{
		"a": {Rate: 1, Burst: 1},
		"b": {Rate: 1, Burst: 1},
	})

	if !l.AllowKeys("a") {
		t.Fatal("first send on a should be allowed")
	}

	// a is drained, so a+b must fail together and must not charge b.
	if l.AllowKeys("a", "b") {
		t.Error("send naming a drained key should be refused")
	}
	if !l.AllowKeys("b") {
		t.Error("b should still have its token after the refused send")
	}
}

func TestKeyedRateLimiter_ContextCancel(t *testing.T) {
	l := NewKeyedRateLimiter(&Quota{Rate: 0.1, Burst: 1}, nil)
	ctx := context.Background()

	if err := l.AwaitKeysReady(ctx); err != nil {
		t.Fatalf("first AwaitKeysReady failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := l.AwaitKeysReady(ctx); err == nil {
		t.Error("expected error when context expires before capacity")
	}
}
