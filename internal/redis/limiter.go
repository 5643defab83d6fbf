package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript returns {allowed, remaining, resetAt}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local windowStart = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)

local count = redis.call('ZCARD', key)

if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = 0
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    else
        resetAt = now + window
    end
    return {0, 0, resetAt}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('EXPIRE', key, window + 10)

local remaining = limit - count - 1
local resetAt = now + window

return {1, remaining, resetAt}
`)

// LimitResult describes one sliding window check.
type LimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimiter is a sliding window limiter shared by all server instances.
type RateLimiter struct {
	client *redis.Client
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

func (rl *RateLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (LimitResult, error) {
	now := time.Now().Unix()

	result, err := slidingWindowScript.Run(
		ctx,
		rl.client,
		[]string{key},
		now,
		int64(window.Seconds()),
		limit,
	).Int64Slice()
	if err != nil {
		return LimitResult{}, fmt.Errorf("run rate limit script: %w", err)
	}
	if len(result) != 3 {
		return LimitResult{}, fmt.Errorf("unexpected rate limit result length %d", len(result))
	}

	return LimitResult{
		Allowed:   result[0] == 1,
		Remaining: int(result[1]),
		ResetAt:   time.Unix(result[2], 0),
	}, nil
}
