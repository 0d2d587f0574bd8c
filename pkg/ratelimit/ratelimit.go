// Package ratelimit provides per-source token-bucket rate limiting shared
// by concurrent callers of a single adapter (§5 "Rate limiting is
// per-source: each source adapter sleeps 1/rps between consecutive
// requests ... concurrent callers share this limit via a per-source
// semaphore or token bucket").
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter wraps golang.org/x/time/rate.Limiter with the construction shape
// this repo's adapters use: requests-per-second plus a burst of 1, which
// reproduces "sleep 1/rps between consecutive requests" under concurrent
// callers without admitting bursts the upstream API would reject.
type Limiter struct {
	rl *rate.Limiter
}

// New creates a Limiter allowing rps requests per second. rps <= 0 means
// unlimited (adapters with no documented rate limit construct one this
// way so the Wait call is always safe to make unconditionally).
func New(rps float64) *Limiter {
	if rps <= 0 {
		return &Limiter{rl: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(rps), 1)}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.rl.Wait(ctx)
}

// Registry holds one Limiter per named source, constructed lazily so
// callers needn't pre-declare every source up front.
type Registry struct {
	defaults map[string]float64
	limiters map[string]*Limiter
}

// NewRegistry builds a Registry from a map of source name -> requests per
// second (§6's per-provider list: Google Custom Search, Brave, Majestic).
func NewRegistry(defaults map[string]float64) *Registry {
	return &Registry{
		defaults: defaults,
		limiters: make(map[string]*Limiter),
	}
}

// For returns the Limiter for a named source, constructing it on first use
// from the configured default rps (0 if the source has no configured
// limit, i.e. unlimited).
func (r *Registry) For(source string) *Limiter {
	if l, ok := r.limiters[source]; ok {
		return l
	}
	l := New(r.defaults[source])
	r.limiters[source] = l
	return l
}
