package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relay-api/internal/shared"

	"github.com/redis/go-redis/v9"
)

// Counts only admitted attempts, same as MemoryLimiter. Returns
// {allowed, count, pttl}. A key left without a ttl gets one on either branch
// so a caller is never denied forever.
const fixedWindowSource = `
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= limit then
	local ttl = redis.call('PTTL', KEYS[1])
	if ttl == -1 then
		redis.call('PEXPIRE', KEYS[1], window)
		ttl = window
	end
	return {0, current, ttl}
end
current = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], window)
	ttl = window
end
return {1, current, ttl}
`

var fixedWindowScript = redis.NewScript(fixedWindowSource)

// RedisLimiter shares fixed window counters across every process instance
type RedisLimiter struct {
	client  redis.Scripter
	timeout time.Duration
	now     func() time.Time
}

func NewRedisLimiter(client redis.Scripter) *RedisLimiter {
	return &RedisLimiter{
		client:  client,
		timeout: shared.RateLimitRedisTimeout,
		now:     time.Now,
	}
}

func (r *RedisLimiter) Admit(ctx context.Context, identity, scope string, limit int, window time.Duration) (Decision, error) {
	limit, window = normalize(limit, window)
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := fixedWindowScript.Run(ctx, r.client, []string{Key(scope, identity)}, limit, window.Milliseconds()).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("fixed window script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("fixed window script returned %d values", len(res))
	}
	allowed, okA := res[0].(int64)
	count, okC := res[1].(int64)
	ttl, okT := res[2].(int64)
	if !okA || !okC || !okT {
		return Decision{}, errors.New("fixed window script returned non integer values")
	}
	if ttl < 0 {
		ttl = window.Milliseconds()
	}

	resetAt := r.now().Add(time.Duration(ttl) * time.Millisecond)
	if allowed == 0 {
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}
	return Decision{
		Allowed:   true,
		Remaining: max(0, limit-int(count)),
		ResetAt:   resetAt,
	}, nil
}
