// Package ratelimit provides the per-session request limiter.
//
// Each session gets a fixed 60-second window counted in Redis. The limiter
// fails open: when Redis is unreachable the turn is admitted and a warning is
// logged, so a store outage degrades enforcement rather than locking out all
// traffic.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces rate buckets in Redis.
const keyPrefix = "ratelimit:"

// window is the counting interval. Window boundaries are per session and are
// not synchronised across sessions.
const window = 60 * time.Second

// Decision is the outcome of an admission check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// RetryAfter is the suggested wait before retrying, in whole seconds.
	// Set only when Allowed is false; always within [1, 60].
	RetryAfter int
}

// Limiter abstracts the admission check.
type Limiter interface {
	// Admit counts one request against the session's window and decides
	// whether it may proceed.
	Admit(ctx context.Context, sessionID string) Decision
}

// RedisLimiter implements Limiter with an INCR+EXPIRE fixed window.
type RedisLimiter struct {
	client redis.UniversalClient
	limit  int
	logger *slog.Logger
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a limiter admitting up to limit requests per session
// per 60-second window. logger may be nil, in which case slog.Default() is used.
func NewRedisLimiter(client redis.UniversalClient, limit int, logger *slog.Logger) *RedisLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLimiter{client: client, limit: limit, logger: logger}
}

// Admit implements Limiter.
//
// The first increment of a window sets the expiry, which resets the bucket
// atomically when the window elapses. Any Redis error admits the request.
func (l *RedisLimiter) Admit(ctx context.Context, sessionID string) Decision {
	key := keyPrefix + sessionID

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn("rate limiter unavailable, failing open",
			"session_id", sessionID, "err", err)
		return Decision{Allowed: true}
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, window).Err(); err != nil {
			l.logger.Warn("rate bucket expiry not set", "session_id", sessionID, "err", err)
		}
	}

	if count <= int64(l.limit) {
		return Decision{Allowed: true}
	}

	retry := int(window / time.Second)
	if ttl, err := l.client.TTL(ctx, key).Result(); err == nil && ttl > 0 {
		retry = int(ttl.Round(time.Second) / time.Second)
	}
	if retry < 1 {
		retry = 1
	}
	if retry > 60 {
		retry = 60
	}
	return Decision{Allowed: false, RetryAfter: retry}
}
