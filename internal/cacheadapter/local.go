package cacheadapter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrScriptUnsupported is returned by LocalAdapter.RunScript: the in-process
// fallback has no Lua interpreter, so callers that need atomic
// check-and-update semantics (the Rate Limiter) must fall back to a
// per-key mutex instead — see ratelimit.localStrategyStore.
var ErrScriptUnsupported = errors.New("cacheadapter: scripted operations unsupported in local fallback mode")

type localEntry struct {
	value   string
	expires time.Time
}

// LocalAdapter is an in-process map-with-TTL fallback used when the
// distributed cache is unreachable. It provides the same Adapter interface
// but only per-process correctness: rate-limit atomicity degrades to
// per-instance in this mode, a known limitation.
type LocalAdapter struct {
	mu      sync.Mutex
	entries map[string]localEntry
}

// NewLocalAdapter creates an empty in-process fallback cache.
func NewLocalAdapter() *LocalAdapter {
	return &LocalAdapter{entries: make(map[string]localEntry)}
}

func (a *LocalAdapter) Get(_ context.Context, key string) (string, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[key]
	if !ok {
		return "", false, nil
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(a.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (a *LocalAdapter) SetTTL(_ context.Context, key, value string, ttl time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	a.entries[key] = localEntry{value: value, expires: expires}
	return nil
}

func (a *LocalAdapter) Delete(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entries, key)
	return nil
}

func (a *LocalAdapter) InvalidatePrefix(_ context.Context, prefix string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k := range a.entries {
		if strings.HasPrefix(k, prefix) {
			delete(a.entries, k)
		}
	}
	return nil
}

func (a *LocalAdapter) GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (string, error)) (string, error) {
	if v, ok, err := a.Get(ctx, key); err != nil {
		return "", err
	} else if ok {
		return v, nil
	}

	v, err := loader(ctx)
	if err != nil {
		return "", err
	}
	_ = a.SetTTL(ctx, key, v, ttl)
	return v, nil
}

func (a *LocalAdapter) RunScript(context.Context, *redis.Script, []string, ...any) (any, error) {
	return nil, ErrScriptUnsupported
}

func (a *LocalAdapter) Degraded() bool { return true }

// Reap removes expired entries. Nothing in this module calls it, including
// the worker mode's maintenance loop; otherwise an expired entry is dropped
// only when Get reads it.
func (a *LocalAdapter) Reap() {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now()
	for k, e := range a.entries {
		if !e.expires.IsZero() && now.After(e.expires) {
			delete(a.entries, k)
		}
	}
}
