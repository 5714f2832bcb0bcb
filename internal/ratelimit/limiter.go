// Package ratelimit enforces per-key request limits with a Redis sliding
// window. Without Redis, or when Redis fails, requests are allowed.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// LimitResult is the outcome of a rate limit check.
type LimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter performs sliding-window rate limiting backed by Redis sorted sets.
type Limiter struct {
	rdb    *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewLimiter returns a limiter. A nil rdb allows every request.
func NewLimiter(rdb *redis.Client, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{rdb: rdb, logger: logger, now: time.Now}
}

// slidingWindowScript trims entries older than the window, then admits the
// hit if the remaining count is under the limit.
// KEYS[1] sorted set, ARGV: window start, now (unix micro), limit, ttl seconds.
// Returns {count, allowed}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local window_start = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, now .. ':' .. math.random(1000000))
    redis.call('EXPIRE', key, ttl)
    return {count + 1, 1}
end

redis.call('EXPIRE', key, ttl)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
return {count, 0, tonumber(oldest[2])}
`)

// Check records one hit against key and reports whether it fits in limit
// hits per window.
func (l *Limiter) Check(ctx context.Context, key string, limit int64, window time.Duration) LimitResult {
	now := l.now()
	open := LimitResult{Allowed: true, Remaining: max(limit-1, 0), ResetAt: now.Add(window)}
	if l.rdb == nil {
		return open
	}

	res, err := slidingWindowScript.Run(ctx, l.rdb, []string{"chat:rl:" + key},
		now.Add(-window).UnixMicro(), now.UnixMicro(), limit, int64(window.Seconds())+1,
	).Int64Slice()
	if err != nil || len(res) < 2 {
		l.logger.Warn("rate limit check failed, allowing request", "key", key, "error", err)
		return open
	}

	count, allowed := res[0], res[1] == 1
	result := LimitResult{
		Allowed:   allowed,
		Remaining: max(limit-count, 0),
		ResetAt:   now.Add(window),
	}
	if !allowed {
		// The window frees a slot when its oldest entry ages out.
		result.RetryAfter = window
		if len(res) > 2 {
			oldest := time.UnixMicro(res[2])
			result.ResetAt = oldest.Add(window)
			result.RetryAfter = max(result.ResetAt.Sub(now), time.Second)
		}
	}
	return result
}
