package rate

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLimiter is a per-process fixed-window limiter on go-cache.
type MemoryLimiter struct {
	cache  *gocache.Cache
	config Config
}

// NewMemory creates a [MemoryLimiter]. Expired windows are swept every
// minute.
func NewMemory(cfg Config) (*MemoryLimiter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &MemoryLimiter{
		cache:  gocache.New(cfg.Window, time.Minute),
		config: cfg,
	}, nil
}

// Allow increments the counter of key and reports whether it is still
// within the budget.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	count := l.increment(key)

	var ttl time.Duration
	if count > int64(l.config.Limit) {
		if _, exp, ok := l.cache.GetWithExpiration(key); ok && !exp.IsZero() {
			ttl = time.Until(exp)
		}
		if ttl <= 0 {
			ttl = l.config.Window
		}
	}
	return decide(l.config, count, ttl), nil
}

// Reset drops the counter of key.
func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.cache.Delete(key)
	return nil
}

// increment opens a window on the first hit; Add fails when one is already
// open, and the increment then lands in it. A window that expires between
// the two calls is reopened.
func (l *MemoryLimiter) increment(key string) int64 {
	for {
		if err := l.cache.Add(key, int64(1), l.config.Window); err == nil {
			return 1
		}
		if n, err := l.cache.IncrementInt64(key, 1); err == nil {
			return n
		}
	}
}
