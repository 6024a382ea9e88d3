package connection

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// defaultKey is charged when a send names no keys at all.
const defaultKey = "default"

// Quota describes a token bucket: a sustained rate in tokens per second and
// a burst capacity.
type Quota struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

func (q Quota) limiter() *rate.Limiter {
	burst := q.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(q.Rate), burst)
}

// KeyedRateLimiter gates outbound sends with one token bucket per key.
// Keys without an explicit quota fall back to the default quota; a nil
// default leaves unknown keys unlimited. The limiter is local to one
// client instance.
type KeyedRateLimiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	quotas       map[string]Quota
	defaultQuota *Quota
}

// NewKeyedRateLimiter builds a limiter from per-key quotas and an optional
// default quota for unmatched keys.
func NewKeyedRateLimiter(defaultQuota *Quota, keyed map[string]Quota) *KeyedRateLimiter {
	quotas := make(map[string]Quota, len(keyed))
	for k, q := range keyed {
		quotas[k] = q
	}
	return &KeyedRateLimiter{
		limiters:     make(map[string]*rate.Limiter),
		quotas:       quotas,
		defaultQuota: defaultQuota,
	}
}

// AwaitKeysReady blocks until every named key has capacity, consuming one
// token from each. Passing no keys charges the default bucket. Unused keys
// do not consume tokens.
func (l *KeyedRateLimiter) AwaitKeysReady(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		keys = []string{defaultKey}
	}
	for _, key := range keys {
		lim := l.limiterFor(key)
		if lim == nil {
			continue
		}
		if err := lim.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// AllowKeys is the non-blocking variant: it consumes one token from every
// named key only if all of them have capacity, and reports whether it did.
func (l *KeyedRateLimiter) AllowKeys(keys ...string) bool {
	if len(keys) == 0 {
		keys = []string{defaultKey}
	}

	reservations := make([]*rate.Reservation, 0, len(keys))
	ok := true
	for _, key := range keys {
		lim := l.limiterFor(key)
		if lim == nil {
			continue
		}
		r := lim.Reserve()
		reservations = append(reservations, r)
		if !r.OK() || r.Delay() > 0 {
			ok = false
		}
	}
	if !ok {
		for _, r := range reservations {
			r.Cancel()
		}
	}
	return ok
}

func (l *KeyedRateLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limiters[key]; ok {
		return lim
	}

	var lim *rate.Limiter
	if q, ok := l.quotas[key]; ok {
		lim = q.limiter()
	} else if l.defaultQuota != nil {
		lim = l.defaultQuota.limiter()
	} else {
		return nil
	}

	l.limiters[key] = lim
	return lim
}
