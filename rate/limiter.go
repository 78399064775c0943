package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned when Redis cannot be reached. The caller
// decides whether to fail open or closed.
var ErrUnavailable = errors.New("rate limiter backend unavailable")

// DeniedError reports that a request exceeded its budget. RetryAfter is the
// remaining window, suitable for a Retry-After header.
type DeniedError struct {
	RetryAfter time.Duration
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Rule is one route's budget: at most Max requests per fixed Window.
type Rule struct {
	Max    int
	Window time.Duration
}

// Limiter is a fixed-window request counter on Redis, keyed by route and
// client identity. Counters expire with the window, so the limiter carries
// no state across restarts.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &Limiter{redis: redisClient, prefix: prefix}
}

// Admit counts one request against the route+key budget. Returns nil while
// within budget, a *DeniedError once exceeded, or ErrUnavailable on backend
// failure.
func (l *Limiter) Admit(ctx context.Context, route, key string, rule Rule) error {
	k := l.key(route, key)

	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// Fixed-window semantics: the TTL is set once, by the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, k, rule.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if count > int64(rule.Max) {
		retry := rule.Window
		if ttl, err := l.redis.TTL(ctx, k).Result(); err == nil && ttl > 0 {
			retry = ttl
		}
		return &DeniedError{RetryAfter: retry}
	}
	return nil
}

// Reset clears the counters for the given route+key pairs. Called after a
// successful login so earlier failures stop counting against the user.
func (l *Limiter) Reset(ctx context.Context, route string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = l.key(route, k)
	}
	if err := l.redis.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (l *Limiter) key(route, key string) string {
	return l.prefix + ":" + route + ":" + key
}
