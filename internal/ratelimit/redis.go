package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("botdesk.internal.ratelimit")

// RedisLimiter is a fixed-window counter shared by every API instance.
type RedisLimiter struct {
	redis  *redis.Client
	config Config
	prefix string
	now    func() time.Time
}

// RedisOption customizes a RedisLimiter.
type RedisOption func(*RedisLimiter)

// WithKeyPrefix separates counters of different limiters on one Redis.
func WithKeyPrefix(prefix string) RedisOption {
	return func(l *RedisLimiter) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

func NewRedisLimiter(client *redis.Client, cfg Config, opts ...RedisOption) *RedisLimiter {
	if client == nil {
		panic("ratelimit: redis client cannot be nil")
	}
	l := &RedisLimiter{
		redis:  client,
		config: cfg.sanitize(),
		prefix: "ratelimit:chat",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLimiter) Check(ctx context.Context, key string) (Decision, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.check")
	defer span.End()

	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	count64, err := l.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		span.RecordError(err)
		return Decision{Allowed: true}, fmt.Errorf("ratelimit: redis check failed: %w", err)
	}
	count := int(count64)
	if count == 1 {
		if err := l.redis.Expire(ctx, redisKey, l.config.Window).Err(); err != nil {
			span.RecordError(err)
		}
	}

	remaining, err := l.redis.TTL(ctx, redisKey).Result()
	if err != nil || remaining <= 0 {
		remaining = l.config.Window
	}
	d := Decision{
		Allowed: count <= l.config.Requests,
		Count:   count,
		Limit:   l.config.Requests,
		ResetAt: l.now().Add(remaining),
	}
	span.SetAttributes(
		attribute.Int("ratelimit.count", count),
		attribute.Bool("ratelimit.exceeded", !d.Allowed),
	)
	return d, nil
}
