package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KEYS[1] sorted set of admissions scored by unix millis.
// ARGV: cutoff ms, now ms, limit, member, ttl ms.
var slidingWindowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[3]) then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// RedisLimiter shares one rolling window across every replica.
type RedisLimiter struct {
	client redis.Scripter
	prefix string
	limit  int
	window time.Duration
}

// NewRedisLimiter builds a limiter whose keys live under prefix.
func NewRedisLimiter(client redis.Scripter, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

var _ Limiter = (*RedisLimiter)(nil)

func (l *RedisLimiter) Allow(ctx context.Context, key string, now time.Time) (bool, error) {
	nowMs := now.UnixMilli()
	cutoff := nowMs - l.window.Milliseconds()
	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{l.prefix + key},
		cutoff, nowMs, l.limit, uuid.NewString(), l.window.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}
	return res == 1, nil
}
