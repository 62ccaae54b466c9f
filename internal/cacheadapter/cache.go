// Package cacheadapter provides the atomic cache primitives shared by the
// Energy Ledger, Rate Limiter, and Narrative Analyzer: get/set/delete with
// TTL, prefix invalidation, and a server-evaluated script primitive used for
// atomic check-and-update operations on a single key.
package cacheadapter

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned when the backing cache cannot be reached.
// Callers that must not fail closed (the Rate Limiter) catch this
// and fail open instead.
var ErrUnavailable = errors.New("cacheadapter: cache unavailable")

// Adapter is the cache interface every component depends on. Two
// implementations exist: Redis (the hot path) and an in-process fallback
// used when Redis cannot be reached.
type Adapter interface {
	// Get returns the cached value for key, and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// SetTTL stores value under key with the given expiry.
	SetTTL(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key.
	Delete(ctx context.Context, key string) error
	// InvalidatePrefix removes every key starting with prefix.
	InvalidatePrefix(ctx context.Context, prefix string) error
	// GetOrLoad returns the cached value for key, calling loader and caching
	// its result on a miss.
	GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (string, error)) (string, error)
	// RunScript atomically evaluates a Lua script against the given keys and
	// arguments. Used by the Rate Limiter for sliding-window and
	// token-bucket strategies, which require an atomic read-modify-write
	// per (scope, identifier_hash).
	RunScript(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error)
	// Degraded reports whether this adapter is the in-process fallback
	// rather than the distributed cache.
	Degraded() bool
}
