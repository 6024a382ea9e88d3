package post

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/venuelink/venuelink/internal/connection"
	"github.com/venuelink/venuelink/internal/metrics"
)

// DefaultInflightMax is the venue-dictated cap on concurrent posts.
const DefaultInflightMax = 100

// Router correlates post requests with their responses by id, bounding the
// number of in-flight requests with a semaphore. The permit acquired by
// Register stays with the waiter and is released by exactly one of
// Complete, Cancel or a timeout.
type Router struct {
	mu      sync.Mutex
	waiters map[uint64]chan Response

	sem    *semaphore.Weighted
	logger *slog.Logger
}

// NewRouter returns a router capped at inflightMax concurrent posts;
// zero or negative uses DefaultInflightMax.
func NewRouter(inflightMax int64, logger *slog.Logger) *Router {
	if inflightMax <= 0 {
		inflightMax = DefaultInflightMax
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		waiters: make(map[uint64]chan Response),
		sem:     semaphore.NewWeighted(inflightMax),
		logger:  logger.With("component", "post-router"),
	}
}

// Register acquires a permit, blocking while the router is at capacity,
// and returns the one-shot receiver for the response. Registering an id
// that is already pending is an error.
func (r *Router) Register(ctx context.Context, id uint64) (<-chan Response, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire post permit: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.waiters[id]; ok {
		r.sem.Release(1)
		return nil, fmt.Errorf("post id %d already registered", id)
	}

	rx := make(chan Response, 1)
	r.waiters[id] = rx
	metrics.PostsInflight.Inc()
	return rx, nil
}

// Complete delivers a response to its waiter and releases the permit.
// Unknown ids are logged as late or duplicate.
func (r *Router) Complete(resp Response) {
	rx := r.remove(resp.ID)
	if rx == nil {
		r.logger.Warn("post response with unknown id", "id", resp.ID)
		return
	}
	rx <- resp
	close(rx)
}

// Cancel removes any waiter under id, releasing its permit. Cancelling an
// absent id is a no-op.
func (r *Router) Cancel(id uint64) {
	r.remove(id)
}

// AwaitWithTimeout waits for the response on rx. On timeout or context
// cancellation the id is cancelled and becomes reusable.
func (r *Router) AwaitWithTimeout(ctx context.Context, id uint64, rx <-chan Response, timeout time.Duration) (Response, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-rx:
		if !ok {
			r.Cancel(id)
			return Response{}, &connection.TransportError{
				Op:  "post",
				Err: errors.New("response channel closed"),
			}
		}
		return resp, nil
	case <-timer.C:
		r.Cancel(id)
		metrics.PostTimeouts.Inc()
		return Response{}, fmt.Errorf("post %d: %w", id, connection.ErrTimeout)
	case <-ctx.Done():
		r.Cancel(id)
		return Response{}, ctx.Err()
	}
}

// Pending returns the number of waiters.
func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}

// remove is the single permit-release path shared by Complete, Cancel and
// timeouts.
func (r *Router) remove(id uint64) chan Response {
	r.mu.Lock()
	defer r.mu.Unlock()

	rx, ok := r.waiters[id]
	if !ok {
		return nil
	}
	delete(r.waiters, id)
	r.sem.Release(1)
	metrics.PostsInflight.Dec()
	return rx
}
