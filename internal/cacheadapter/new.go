package cacheadapter

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// New returns a Redis-backed Adapter, or — if Redis cannot be reached — an
// in-process LocalAdapter with a logged warning. This is the only place
// degraded mode is entered; everything downstream depends on the Adapter
// interface and is agnostic to which implementation it received.
func New(ctx context.Context, client *redis.Client, logger *slog.Logger) Adapter {
	if client == nil {
		logger.Warn("cache adapter: no redis client configured, using in-process fallback")
		return NewLocalAdapter()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("cache adapter: redis unreachable at startup, using in-process fallback", "error", err)
		return NewLocalAdapter()
	}
	return NewRedisAdapter(client)
}
