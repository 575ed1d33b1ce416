package ratelimit

import (
	"sync"
	"time"

	"campus-market/internal/clock"
	"campus-market/internal/domain"

	"golang.org/x/time/rate"
)

// pruneEvery bounds how often idle keys are swept.
const pruneEvery = time.Minute

type bucket struct {
	lim  *rate.Limiter
	last time.Time
	// refill is how long the bucket needs to be full again.
	refill time.Duration
}

// Limiter enforces per-key cooldowns and burst caps in process memory.
// Each key owns a token bucket driven by the injected clock; buckets that
// have refilled completely are dropped. Safe for concurrent use.
type Limiter struct {
	mu        sync.Mutex
	clock     clock.Clock
	cooldowns map[string]*bucket
	bursts    map[string]*bucket
	lastPrune time.Time
}

func New(c clock.Clock) *Limiter {
	return &Limiter{
		clock:     c,
		cooldowns: make(map[string]*bucket),
		bursts:    make(map[string]*bucket),
		lastPrune: c.Now(),
	}
}

// AssertRateLimit rejects a second call for key within interval.
// An empty key or a non-positive interval is never limited.
func (l *Limiter) AssertRateLimit(key string, interval time.Duration) error {
	if key == "" || interval <= 0 {
		return nil
	}
	if !l.allow(l.cooldowns, key, rate.Every(interval), 1, interval) {
		return domain.NewError(domain.CodeRateLimit, "too many requests, try again later")
	}
	return nil
}

// AssertBurstLimit rejects the call once key spent max tokens; tokens
// come back at max per window.
func (l *Limiter) AssertBurstLimit(key string, window time.Duration, max int) error {
	if key == "" || window <= 0 || max <= 0 {
		return nil
	}
	if !l.allow(l.bursts, key, rate.Every(window/time.Duration(max)), max, window) {
		return domain.NewError(domain.CodeRateLimit, "too many operations in a short time")
	}
	return nil
}

// Len reports how many keys are tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.cooldowns) + len(l.bursts)
}

func (l *Limiter) allow(set map[string]*bucket, key string, limit rate.Limit, burst int, refill time.Duration) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(now)

	b, ok := set[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(limit, burst)}
		set[key] = b
	} else if b.lim.Limit() != limit || b.lim.Burst() != burst {
		b.lim.SetLimitAt(now, limit)
		b.lim.SetBurstAt(now, burst)
	}
	b.last = now
	b.refill = refill
	return b.lim.AllowN(now, 1)
}

// prune drops buckets idle long enough to be full. Caller holds l.mu.
func (l *Limiter) prune(now time.Time) {
	if now.Sub(l.lastPrune) < pruneEvery {
		return
	}
	l.lastPrune = now
	for _, set := range []map[string]*bucket{l.cooldowns, l.bursts} {
		for key, b := range set {
			if now.Sub(b.last) >= b.refill {
				delete(set, key)
			}
		}
	}
}
