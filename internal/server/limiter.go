package server

import (
	"context"
	"sync/atomic"
)

// limiter bounds concurrent filter runs across all endpoints.
type limiter struct {
	sem    chan struct{}
	active atomic.Int32
	queued atomic.Int32
}

func newLimiter(n int) *limiter {
	return &limiter{sem: make(chan struct{}, n)}
}

// acquire waits for a free slot. The returned release must be called once.
func (l *limiter) acquire(ctx context.Context) (release func(), err error) {
	l.queued.Add(1)
	select {
	case l.sem <- struct{}{}:
		l.queued.Add(-1)
	case <-ctx.Done():
		l.queued.Add(-1)
		return nil, ctx.Err()
	}

	l.active.Add(1)
	return func() {
		l.active.Add(-1)
		<-l.sem
	}, nil
}
