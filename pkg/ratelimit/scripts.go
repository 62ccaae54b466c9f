package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lunahub/hub/internal/cacheadapter"
	"github.com/lunahub/hub/pkg/catalog"
)

// fixedWindowScript increments the counter for the current window bucket and
// reports whether the caller stayed within the limit (fixed
// window).
var fixedWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('EXPIRE', KEYS[1], ARGV[1])
end
if count <= tonumber(ARGV[2]) then
	return 1
end
return 0
`)

// slidingWindowScript maintains a sorted set of request timestamps keyed by
// (scope, hash), evicting entries outside the window before counting
// (sliding window).
var slidingWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window_ns = tonumber(ARGV[2])
local ttl_sec = tonumber(ARGV[3])
local limit = tonumber(ARGV[4])
local nonce = ARGV[5]

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window_ns)
local count = redis.call('ZCARD', KEYS[1])
local allowed = 0
if count < limit then
	redis.call('ZADD', KEYS[1], now, now .. ':' .. nonce)
	allowed = 1
end
redis.call('EXPIRE', KEYS[1], ttl_sec)
return allowed
`)

// tokenBucketScript refills and consumes from a stored (tokens, last_refill)
// pair (token bucket).
var tokenBucketScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens'))
local last = tonumber(redis.call('HGET', KEYS[1], 'last_refill'))
if tokens == nil then
	tokens = burst
	last = now
end

local elapsed = now - last
if elapsed > 0 then
	tokens = math.min(burst, tokens + elapsed * rate)
	last = now
end

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'last_refill', last)
redis.call('EXPIRE', KEYS[1], ttl)
return allowed
`)

func evalFixedWindow(ctx context.Context, cache cacheadapter.Adapter, rule catalog.RateLimitRule, scope, hash string) (bool, error) {
	bucket := time.Now().Unix() / int64(max1(rule.WindowSeconds))
	key := fmt.Sprintf("ratelimit:fixed:%s:%s:%d", scope, hash, bucket)

	res, err := cache.RunScript(ctx, fixedWindowScript, []string{key}, rule.WindowSeconds, rule.RequestsPerWindow)
	if err != nil {
		return false, err
	}
	return toInt(res) == 1, nil
}

func evalSlidingWindow(ctx context.Context, cache cacheadapter.Adapter, rule catalog.RateLimitRule, scope, hash string) (bool, error) {
	key := fmt.Sprintf("ratelimit:sliding:%s:%s", scope, hash)
	now := time.Now().UnixNano()
	nonce := fmt.Sprintf("%d", now)

	res, err := cache.RunScript(ctx, slidingWindowScript, []string{key}, now, int64(rule.WindowSeconds)*1e9, rule.WindowSeconds, rule.RequestsPerWindow, nonce)
	if err != nil {
		return false, err
	}
	return toInt(res) == 1, nil
}

func evalTokenBucket(ctx context.Context, cache cacheadapter.Adapter, rule catalog.RateLimitRule, scope, hash string) (bool, error) {
	key := fmt.Sprintf("ratelimit:bucket:%s:%s", scope, hash)
	burst := rule.BurstSize
	if burst <= 0 {
		burst = rule.RequestsPerWindow
	}
	rate := float64(rule.RequestsPerWindow) / float64(max1(rule.WindowSeconds))
	ttl := rule.WindowSeconds * 2

	res, err := cache.RunScript(ctx, tokenBucketScript, []string{key}, time.Now().Unix(), rate, burst, ttl)
	if err != nil {
		return false, err
	}
	return toInt(res) == 1, nil
}

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

func toInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
