package broadcast

import (
	"sync/atomic"

	"go.uber.org/ratelimit"
)

// pacer is a leaky bucket limiter. It spaces sends evenly instead of allowing bursts, and
// Reload swaps the bucket atomically.
type pacer struct {
	limiter atomic.Pointer[ratelimit.Limiter]
}

func newPacer(qps int) *pacer {
	p := &pacer{}
	p.Reload(qps)
	return p
}

// Take blocks until the next send is allowed.
func (p *pacer) Take() {
	(*p.limiter.Load()).Take()
}

// Reload replaces the rate. Zero means unlimited.
func (p *pacer) Reload(qps int) {
	var l ratelimit.Limiter
	if qps > 0 {
		l = ratelimit.New(qps, ratelimit.WithoutSlack)
	} else {
		l = ratelimit.NewUnlimited()
	}
	p.limiter.Store(&l)
}
