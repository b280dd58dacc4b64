// Package ratelimit caps how many chat turns a visitor can trigger per window.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Check.
type Decision struct {
	Allowed bool
	Count   int
	Limit   int
	ResetAt time.Time
}

// RetryAfter is how long the caller should wait before trying again.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || d.ResetAt.IsZero() || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Limiter counts one request against key. Implementations return an error
// only when the backing store is unreachable; callers decide whether to fail
// open.
type Limiter interface {
	Check(ctx context.Context, key string) (Decision, error)
}

// Config sets the allowed request count per window.
type Config struct {
	Requests int
	Window   time.Duration
}

// DefaultConfig allows 20 requests a minute.
func DefaultConfig() Config {
	return Config{Requests: 20, Window: time.Minute}
}

func (c Config) sanitize() Config {
	d := DefaultConfig()
	if c.Requests <= 0 {
		c.Requests = d.Requests
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	return c
}
