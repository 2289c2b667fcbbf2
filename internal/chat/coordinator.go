package chat

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Coordinator tracks the single cancellable ask/generate request the
// client may have in flight. Issuing a new request aborts the previous one
// first, and every completion is checked against a per-request token:
// transport-level cancellation alone is not enough, since some
// environments still deliver callbacks for aborted requests.
type Coordinator struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	current string
}

// NewCoordinator creates a Coordinator with nothing in flight.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Begin aborts any in-flight request and registers a new one. The returned
// context governs the outbound call; the token identifies this request
// when it completes.
func (c *Coordinator) Begin(ctx context.Context) (context.Context, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.current = uuid.New().String()
	return ctx, c.current
}

// Finish marks a request complete. It returns false when the token no
// longer identifies the current request, meaning the response is stale and
// must be ignored even if it resolved successfully.
func (c *Coordinator) Finish(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.current {
		return false
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.current = ""
	return true
}

// Cancel aborts the in-flight request if present; it is a no-op otherwise.
// Returns whether a request was actually aborted.
func (c *Coordinator) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel()
	c.cancel = nil
	c.current = ""
	return true
}

// InFlight reports whether a request is currently outstanding.
func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}
