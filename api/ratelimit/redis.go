package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// allowScript runs the lazy token-bucket step atomically on the Redis side.
// KEYS[1] bucket hash, ARGV: burst, refill interval ms, now ms, ttl ms.
// Returns 1 when a token was taken.
var allowScript = redis.NewScript(`
local bucket = redis.call('HMGET', KEYS[1], 'tokens', 'updatedAt')
local burst = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local tokens = tonumber(bucket[1])
local updatedAt = tonumber(bucket[2])
if tokens == nil then
  tokens = burst
else
  local refilled = math.floor((now - updatedAt) / interval)
  tokens = math.min(burst, tokens + refilled)
end
local allowed = 0
if tokens > 0 then
  tokens = tokens - 1
  allowed = 1
end
redis.call('HSET', KEYS[1], 'tokens', tokens, 'updatedAt', now)
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return allowed
`)

// RedisLimiter is a token bucket shared across instances. The bucket step is
// a single Lua script, so the count stays exact under concurrent callers.
type RedisLimiter struct {
	client *redis.Client
	rule   Rule
	prefix string
}

// NewRedisLimiter creates a Redis-backed limiter for the given rule. The
// prefix namespaces bucket keys so differently-tuned limiters never collide.
func NewRedisLimiter(client *redis.Client, prefix string, rule Rule) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		rule:   rule,
		prefix: prefix,
	}
}

// Allow takes one token from the key's shared bucket if any are available
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	// keep idle buckets around long enough to fully refill, then let Redis drop them
	ttl := l.rule.refillInterval() * time.Duration(l.rule.burst()) * 2
	if ttl < l.rule.Per {
		ttl = l.rule.Per
	}

	res, err := allowScript.Run(ctx, l.client,
		[]string{l.prefix + ":" + key},
		l.rule.burst(),
		l.rule.refillInterval().Milliseconds(),
		time.Now().UnixMilli(),
		ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}
