package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket is a per-process limiter. Each key refills at
// Requests/Window tokens per second up to a burst of Requests.
type TokenBucket struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	rate      float64
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

type bucket struct {
	tokens   float64
	lastTime time.Time
}

const staleAfter = 10 * time.Minute

func NewTokenBucket(cfg Config) *TokenBucket {
	cfg = cfg.sanitize()
	return &TokenBucket{
		buckets: make(map[string]*bucket),
		rate:    float64(cfg.Requests) / cfg.Window.Seconds(),
		burst:   cfg.Requests,
		now:     time.Now,
	}
}

func (tb *TokenBucket) Check(_ context.Context, key string) (Decision, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	tb.sweep(now)

	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(tb.burst), lastTime: now}
		tb.buckets[key] = b
	}

	b.tokens += now.Sub(b.lastTime).Seconds() * tb.rate
	if b.tokens > float64(tb.burst) {
		b.tokens = float64(tb.burst)
	}
	b.lastTime = now

	d := Decision{Limit: tb.burst}
	if b.tokens < 1 {
		wait := time.Duration((1 - b.tokens) / tb.rate * float64(time.Second))
		d.ResetAt = now.Add(wait)
		d.Count = tb.burst + 1
		return d, nil
	}
	b.tokens--
	d.Allowed = true
	d.Count = tb.burst - int(b.tokens)
	return d, nil
}

// sweep drops idle buckets at most once per staleAfter.
func (tb *TokenBucket) sweep(now time.Time) {
	if now.Sub(tb.lastSweep) < staleAfter {
		return
	}
	tb.lastSweep = now
	cutoff := now.Add(-staleAfter)
	for key, b := range tb.buckets {
		if b.lastTime.Before(cutoff) {
			delete(tb.buckets, key)
		}
	}
}
