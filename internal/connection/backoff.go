package connection

import (
	"math/rand"
	"time"
)

// ExponentialBackoff produces the delay before each reconnect attempt.
//
// The first call after construction or Reset returns zero when
// immediateFirst is set, otherwise the initial delay. Subsequent calls
// multiply the cursor by factor, cap it at max, and add uniform jitter in
// [0, jitterMax]. The cap is applied before jitter.
//
// Not safe for concurrent use; each reconnecting client owns one.
type ExponentialBackoff struct {
	initial        time.Duration
	max            time.Duration
	factor         float64
	jitterMax      time.Duration
	immediateFirst bool

	current       time.Duration
	firstCallUsed bool
}

// NewExponentialBackoff returns a backoff starting at initial, capped at
// max, growing by factor per attempt with up to jitterMax of added jitter.
func NewExponentialBackoff(initial, max time.Duration, factor float64, jitterMax time.Duration, immediateFirst bool) *ExponentialBackoff {
	return &ExponentialBackoff{
		initial:        initial,
		max:            max,
		factor:         factor,
		jitterMax:      jitterMax,
		immediateFirst: immediateFirst,
		current:        initial,
	}
}

// NextDuration returns the delay to sleep before the next attempt.
func (b *ExponentialBackoff) NextDuration() time.Duration {
	if !b.firstCallUsed {
		b.firstCallUsed = true
		if b.immediateFirst {
			return 0
		}
		return b.initial
	}

	next := time.Duration(float64(b.current) * b.factor)
	if next > b.max {
		next = b.max
	}
	b.current = next

	return next + b.jitter()
}

// Reset restores the initial cursor and first-call behavior.
func (b *ExponentialBackoff) Reset() {
	b.current = b.initial
	b.firstCallUsed = false
}

// Current returns the cursor without advancing it.
func (b *ExponentialBackoff) Current() time.Duration {
	return b.current
}

func (b *ExponentialBackoff) jitter() time.Duration {
	if b.jitterMax <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(b.jitterMax) + 1))
}
