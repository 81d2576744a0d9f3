package grants

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps grants in Redis so any instance can consume them. Expiry
// is Redis TTL and single-use is GETDEL, both atomic server-side.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed grant store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "promotion",
	}
}

func (s *RedisStore) key(sessionID, userID string) string {
	return s.prefix + ":" + sessionID + ":" + userID
}

// Grant replaces any existing grant for (sessionID, userID) with a fresh one
func (s *RedisStore) Grant(ctx context.Context, sessionID, userID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return s.client.Set(ctx, s.key(sessionID, userID), "1", ttl).Err()
}

// Consume removes the grant for (sessionID, userID) and reports whether an
// unexpired one existed
func (s *RedisStore) Consume(ctx context.Context, sessionID, userID string) (bool, error) {
	_, err := s.client.GetDel(ctx, s.key(sessionID, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
