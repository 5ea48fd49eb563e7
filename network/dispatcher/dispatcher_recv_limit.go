package dispatcher

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// DispatcherRecvLimiter is a token bucket limiter applied to every dispatched record. The
// bucket allows short bursts above the steady rate. Reload swaps the bucket atomically.
type DispatcherRecvLimiter struct {
	limiter atomic.Pointer[rate.Limiter]
}

// NewTokenRecvLimiter creates a limiter allowing limit records per second with the given
// burst.
func NewTokenRecvLimiter(limit int, burst int) *DispatcherRecvLimiter {
	self := &DispatcherRecvLimiter{}
	self.limiter.Store(rate.NewLimiter(rate.Limit(limit), burst))
	return self
}

// Take blocks until a token is available.
func (l *DispatcherRecvLimiter) Take() error {
	return l.limiter.Load().Wait(context.Background())
}

// Reload replaces the rate and burst. Concurrent Take calls use either the old or the new
// bucket.
func (l *DispatcherRecvLimiter) Reload(limit int, burst int) {
	l.limiter.Store(rate.NewLimiter(rate.Limit(limit), burst))
}

// Limit returns the current steady rate.
func (l *DispatcherRecvLimiter) Limit() rate.Limit {
	return l.limiter.Load().Limit()
}

// recvLimiterFilter blocks the dispatching session until the limiter admits the record.
func (l *DispatcherRecvLimiter) recvLimiterFilter(d *DispatcherDelivery, f DispatcherFilterHandleFunc) error {
	if err := l.Take(); err != nil {
		return err
	}
	return f(d)
}
