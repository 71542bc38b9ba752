package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter implements a fixed-window counter in Redis so limits are
// shared across instances
type RedisLimiter struct {
	redis  *redis.Client
	limit  RateLimit
	prefix string
}

// NewRedisLimiter creates a new Redis-backed limiter
func NewRedisLimiter(redisClient *redis.Client, limit RateLimit, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "tenantd:ratelimit"
	}
	return &RedisLimiter{
		redis:  redisClient,
		limit:  limit,
		prefix: prefix,
	}
}

func (rl *RedisLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", rl.prefix, key)
}

// Allow implements Limiter. The window starts with the first request of a
// key; later requests in the window do not extend it.
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (LimitResult, error) {
	redisKey := rl.key(key)

	pipe := rl.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttlCmd := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return LimitResult{}, fmt.Errorf("redis error: %w", err)
	}

	ttl := ttlCmd.Val()
	if ttl < 0 {
		// new key, or one left without expiry by an interrupted call
		if err := rl.redis.PExpire(ctx, redisKey, rl.limit.Window).Err(); err != nil {
			return LimitResult{}, fmt.Errorf("redis error: %w", err)
		}
		ttl = rl.limit.Window
	}

	count := int(incr.Val())
	res := LimitResult{
		Allowed:   count <= rl.limit.Requests,
		Limit:     rl.limit.Requests,
		Remaining: rl.limit.Requests - count,
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		res.RetryAfter = ttl
	}
	return res, nil
}

// Reset clears the counter for a key
func (rl *RedisLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.key(key)).Err()
}

// TTL returns the time until the window of key resets
func (rl *RedisLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return rl.redis.PTTL(ctx, rl.key(key)).Result()
}
