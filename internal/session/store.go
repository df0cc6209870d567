package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces session documents in Redis.
const keyPrefix = "sessions:"

// Store abstracts the session persistence backend.
//
// All operations are fail-soft: implementations log transport errors and
// degrade (Load returns nil, Save and Touch become no-ops) instead of
// returning them, so a store outage never fails a turn.
type Store interface {
	// Load returns the stored session, or nil when the session does not exist
	// or the backend is unreachable. A successful load refreshes the TTL.
	Load(ctx context.Context, id string) *Session

	// Save upserts the session and (re)sets its TTL.
	Save(ctx context.Context, id string, s *Session)

	// Touch refreshes the TTL of an existing session without mutating it.
	Touch(ctx context.Context, id string)
}

// RedisStore implements Store on a Redis client.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a session store with the given sliding TTL.
// logger may be nil, in which case slog.Default() is used.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: client, ttl: ttl, logger: logger}
}

// Load implements Store. The TTL is refreshed on a hit (sliding window).
func (r *RedisStore) Load(ctx context.Context, id string) *Session {
	key := keyPrefix + id

	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		r.logger.Warn("session load failed, degrading to empty session",
			"session_id", id, "err", err)
		return nil
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		r.logger.Warn("session document is corrupt, discarding",
			"session_id", id, "err", err)
		return nil
	}

	if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
		r.logger.Warn("session TTL refresh failed", "session_id", id, "err", err)
	}
	return &s
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, id string, s *Session) {
	data, err := json.Marshal(s)
	if err != nil {
		r.logger.Warn("session marshal failed", "session_id", id, "err", err)
		return
	}
	if err := r.client.Set(ctx, keyPrefix+id, data, r.ttl).Err(); err != nil {
		r.logger.Warn("session save failed", "session_id", id, "err", err)
	}
}

// Touch implements Store.
func (r *RedisStore) Touch(ctx context.Context, id string) {
	if err := r.client.Expire(ctx, keyPrefix+id, r.ttl).Err(); err != nil {
		r.logger.Warn("session touch failed", "session_id", id, "err", err)
	}
}

// HealthCheck reports whether the backing Redis is reachable. Used by the
// readiness probe; the hot path never depends on it.
func (r *RedisStore) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
