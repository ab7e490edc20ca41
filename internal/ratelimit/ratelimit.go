// Package ratelimit keeps one token bucket per key, used to throttle comment creation per
// user.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyedLimiter manages per-key rate limiting. Buckets idle for longer than the configured
// TTL are dropped on the next access sweep.
type KeyedLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*entry
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	clock     func() time.Time
	lastSweep time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PerMinute builds a limiter that allows perMinute events per key with an equal burst.
// A non-positive perMinute disables limiting.
func PerMinute(perMinute int) *KeyedLimiter {
	if perMinute <= 0 {
		return New(rate.Inf, 0, 0, nil)
	}
	return New(rate.Every(time.Minute/time.Duration(perMinute)), perMinute, 10*time.Minute, nil)
}

// New creates a keyed limiter. clock defaults to time.Now.
func New(limit rate.Limit, burst int, idleTTL time.Duration, clock func() time.Time) *KeyedLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &KeyedLimiter{
		limiters: make(map[string]*entry),
		limit:    limit,
		burst:    burst,
		idleTTL:  idleTTL,
		clock:    clock,
	}
}

// Allow reports whether an event for key may happen now and consumes a token if so.
func (l *KeyedLimiter) Allow(key string) bool {
	now := l.clock()
	return l.limiterFor(key, now).AllowN(now, 1)
}

func (l *KeyedLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.idleTTL > 0 && now.Sub(l.lastSweep) > l.idleTTL {
		for candidate, tracked := range l.limiters {
			if now.Sub(tracked.lastSeen) > l.idleTTL {
				delete(l.limiters, candidate)
			}
		}
		l.lastSweep = now
	}

	tracked, ok := l.limiters[key]
	if !ok {
		tracked = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = tracked
	}
	tracked.lastSeen = now
	return tracked.limiter
}

// Len returns the number of tracked keys.
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
