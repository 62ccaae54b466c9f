package cacheadapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAdapter is the distributed cache-backed Adapter implementation.
type RedisAdapter struct {
	client *redis.Client
}

// NewRedisAdapter wraps an existing Redis client.
func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (a *RedisAdapter) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := a.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v, true, nil
}

func (a *RedisAdapter) SetTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := a.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (a *RedisAdapter) Delete(ctx context.Context, key string) error {
	if err := a.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// InvalidatePrefix scans for keys under prefix and deletes them in batches.
// SCAN is used instead of KEYS to avoid blocking the Redis event loop.
func (a *RedisAdapter) InvalidatePrefix(ctx context.Context, prefix string) error {
	iter := a.client.Scan(ctx, 0, prefix+"*", 256).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 256 {
			if err := a.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(batch) > 0 {
		if err := a.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}

func (a *RedisAdapter) GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (string, error)) (string, error) {
	if v, ok, err := a.Get(ctx, key); err != nil {
		return "", err
	} else if ok {
		return v, nil
	}

	v, err := loader(ctx)
	if err != nil {
		return "", err
	}
	if err := a.SetTTL(ctx, key, v, ttl); err != nil {
		return v, err
	}
	return v, nil
}

func (a *RedisAdapter) RunScript(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error) {
	res, err := script.Run(ctx, a.client, keys, args...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res, nil
}

func (a *RedisAdapter) Degraded() bool { return false }
