package rate

import "errors"

var (
	// ErrRedisUnavailable wraps any Redis failure of the shared backend.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrInvalidConfig is returned by constructors for a zero limit or window.
	ErrInvalidConfig = errors.New("rate: limit and window must be > 0")
)
