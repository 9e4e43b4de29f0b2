package search

import (
	"context"

	"afdata/core"
)

// Counter runs count-only searches for aggregate statistics
type Counter struct {
	poller   *Poller
	sessions SessionFactory
}

// NewCounter creates a counter
func NewCounter(poller *Poller, sessions SessionFactory) *Counter {
	return &Counter{poller: poller, sessions: sessions}
}

// Count returns the server total for q
func (c *Counter) Count(ctx context.Context, q core.Query) (int, error) {
	return c.poller.Count(ctx, c.sessions(q))
}
