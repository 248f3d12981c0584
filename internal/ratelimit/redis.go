package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// admitScript checks and increments in one server-side step so concurrent instances can
// never both take the last slot. Returns {allowed, count, pttl}.
var admitScript = redis.NewScript(`
local max = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= max then
  local ttl = redis.call('PTTL', KEYS[1])
  if ttl < 0 then
    redis.call('PEXPIRE', KEYS[1], window)
    ttl = window
  end
  return {0, current, ttl}
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], window)
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], window)
  ttl = window
end
return {1, current, ttl}
`)

// RedisLimiter shares fixed windows across service instances.
type RedisLimiter struct {
	client redis.Scripter
	now    func() time.Time
}

// NewRedisLimiter builds a Redis-backed limiter.
func NewRedisLimiter(client redis.Scripter, now func() time.Time) *RedisLimiter {
	if now == nil {
		now = time.Now
	}
	return &RedisLimiter{client: client, now: now}
}

func (l *RedisLimiter) Admit(ctx context.Context, key string, policy Policy) (Decision, error) {
	if policy.Max <= 0 || policy.Window <= 0 {
		return Decision{}, errors.New("invalid rate limit policy")
	}
	if l.client == nil {
		return Decision{}, errors.New("redis client not configured")
	}

	res, err := admitScript.Run(ctx, l.client, []string{redisKeyPrefix + key},
		policy.Max, policy.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("rate limit script returned %d values", len(res))
	}

	ttl := time.Duration(res[2]) * time.Millisecond
	decision := Decision{
		Allowed: res[0] == 1,
		ResetAt: l.now().Add(ttl),
	}
	if decision.Allowed {
		decision.Remaining = policy.Max - int(res[1])
	} else {
		decision.RetryAfter = ttl
	}
	return decision, nil
}
