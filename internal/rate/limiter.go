package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "rl:"

// Config holds the budget of one limiter.
type Config struct {
	// Limit is the number of requests allowed per window.
	Limit int
	// Window is the fixed window length.
	Window time.Duration
}

func (c Config) validate() error {
	if c.Limit <= 0 || c.Window <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Remaining int
	// RetryAfter is the time left in the current window when rejected.
	RetryAfter time.Duration
}

// Limiter counts requests per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

func decide(cfg Config, count int64, ttl time.Duration) Result {
	remaining := cfg.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:   count <= int64(cfg.Limit),
		Remaining: remaining,
	}
	if !res.Allowed {
		res.RetryAfter = ttl
	}
	return res
}

/*
====================================
REDIS BACKEND
====================================
*/

// RedisLimiter is a fixed-window limiter shared across processes.
type RedisLimiter struct {
	redis  redis.UniversalClient
	config Config
}

// NewRedis creates a [RedisLimiter] on the given client.
func NewRedis(client redis.UniversalClient, cfg Config) (*RedisLimiter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &RedisLimiter{redis: client, config: cfg}, nil
}

// Allow increments the counter of key and reports whether it is still
// within the budget.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	count, ttl, err := l.incrementWithTTL(ctx, keyPrefix+key, l.config.Window)
	if err != nil {
		return Result{}, err
	}
	return decide(l.config, count, ttl), nil
}

// Reset drops the counter of key.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// incrementWithTTL runs INCR and PTTL in one MULTI. A key without an expiry
// is either new or lost its PEXPIRE to an earlier failure; both get the
// full window, so no counter outlives it.
func (l *RedisLimiter) incrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	count, ttl := incr.Val(), pttl.Val()
	if ttl < 0 {
		if err := l.redis.PExpire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		ttl = window
	}
	return count, ttl, nil
}
