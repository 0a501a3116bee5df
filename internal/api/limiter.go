package api

import (
	"sync"
	"time"

	"thumbsup/internal/config"

	"golang.org/x/time/rate"
)

const defaultBurst = 5

// rateLimiter keeps one token bucket per client key. Buckets idle for longer
// than idleTTL are dropped by sweep.
type rateLimiter struct {
	limiters sync.Map
	cfg      config.APIRateLimitConfig
	idleTTL  time.Duration
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
	mu       sync.Mutex
}

func newRateLimiter(cfg config.APIRateLimitConfig) *rateLimiter {
	return &rateLimiter{cfg: cfg, idleTTL: 10 * time.Minute}
}

func (l *rateLimiter) enabled() bool {
	return l != nil && l.cfg.RPS > 0
}

// Allow reports whether the client identified by key may proceed.
func (l *rateLimiter) Allow(key string) bool {
	if !l.enabled() {
		return true
	}
	e := l.getEntry(key)
	e.mu.Lock()
	e.lastSeen = time.Now()
	e.mu.Unlock()
	return e.lim.Allow()
}

func (l *rateLimiter) getEntry(key string) *limiterEntry {
	if v, ok := l.limiters.Load(key); ok {
		if e, ok := v.(*limiterEntry); ok {
			return e
		}
	}

	burst := l.cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}

	e := &limiterEntry{lim: rate.NewLimiter(rate.Limit(l.cfg.RPS), burst), lastSeen: time.Now()}
	actual, loaded := l.limiters.LoadOrStore(key, e)
	if loaded {
		if actualEntry, ok := actual.(*limiterEntry); ok {
			return actualEntry
		}
	}
	return e
}

// sweep removes buckets not used since before now-idleTTL.
func (l *rateLimiter) sweep(now time.Time) int {
	removed := 0
	l.limiters.Range(func(k, v any) bool {
		e, ok := v.(*limiterEntry)
		if !ok {
			l.limiters.Delete(k)
			return true
		}
		e.mu.Lock()
		idle := now.Sub(e.lastSeen) > l.idleTTL
		e.mu.Unlock()
		if idle {
			l.limiters.Delete(k)
			removed++
		}
		return true
	})
	return removed
}
