// Package ratelimit implements the multi-strategy pre-authorization gate:
// fixed-window, sliding-window, and token-bucket strategies, each
// evaluated atomically per (scope, identifier), with a durable short-lived
// block record and a fail-open fallback when the hot-path cache is down.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lunahub/hub/internal/cacheadapter"
	"github.com/lunahub/hub/internal/telemetry"
	"github.com/lunahub/hub/pkg/catalog"
	"github.com/lunahub/hub/pkg/eventstore"

	"github.com/google/uuid"
)

// Decision is the outcome of a rate limit check.
type Decision string

const (
	Allowed Decision = "allowed"
	Limited Decision = "limited"
	Blocked Decision = "blocked"
)

// Result carries the decision and, for Limited/Blocked, when the block
// expires.
type Result struct {
	Decision     Decision
	BlockedUntil time.Time
	Scope        string
	Identifier   string
}

// Limiter evaluates rate limit decisions per (identifier, scope) using the
// static rule catalog, the cache adapter's atomic scripts, and a durable
// block store.
type Limiter struct {
	rules   *catalog.RuleCatalog
	cache   cacheadapter.Adapter
	blocks  *BlockStore
	events  *eventstore.Store
	logger  *slog.Logger
	mutexes *keyMutexPool
	local   *localStrategyStore
}

// New creates a Limiter.
func New(rules *catalog.RuleCatalog, cache cacheadapter.Adapter, blocks *BlockStore, events *eventstore.Store, logger *slog.Logger) *Limiter {
	return &Limiter{
		rules:   rules,
		cache:   cache,
		blocks:  blocks,
		events:  events,
		logger:  logger,
		mutexes: newKeyMutexPool(256),
		local:   newLocalStrategyStore(),
	}
}

// identifierHash implements SHA-256(scope || ":" || identifier)[:16].
func identifierHash(scope, identifier string) string {
	sum := sha256.Sum256([]byte(scope + ":" + identifier))
	return hex.EncodeToString(sum[:])[:16]
}

// Check decides whether a request identified by (identifier, scope) is
// allowed, limited, or blocked, and records the decision.
func (l *Limiter) Check(ctx context.Context, userID uuid.UUID, identifier, scope string) (Result, error) {
	rule, ok := l.rules.Lookup(scope)
	if !ok {
		// An unconfigured scope has no limit; allow by default rather than
		// blocking traffic to endpoints the operator forgot to configure.
		return Result{Decision: Allowed, Scope: scope, Identifier: identifier}, nil
	}

	hash := identifierHash(scope, identifier)

	if blockedUntil, blocked, err := l.blocks.Get(ctx, scope, hash); err != nil {
		l.logger.Warn("rate limit block lookup failed", "scope", scope, "error", err)
	} else if blocked && blockedUntil.After(time.Now()) {
		telemetry.RateLimitDecisionsTotal.WithLabelValues(scope, "blocked").Inc()
		return Result{Decision: Blocked, BlockedUntil: blockedUntil, Scope: scope, Identifier: identifier}, nil
	}

	allow, err := l.evaluate(ctx, rule, scope, hash)
	if err != nil {
		// Complete unavailability: fail open.
		l.logger.Error("rate limit strategy evaluation failed, failing open", "scope", scope, "error", err)
		telemetry.RateLimitFallbackTotal.WithLabelValues("fail_open").Inc()
		return Result{Decision: Allowed, Scope: scope, Identifier: identifier}, nil
	}

	if allow {
		telemetry.RateLimitDecisionsTotal.WithLabelValues(scope, "allowed").Inc()
		return Result{Decision: Allowed, Scope: scope, Identifier: identifier}, nil
	}

	blockedUntil := time.Now().Add(time.Duration(rule.BlockDurationSeconds) * time.Second)
	if err := l.blocks.Upsert(ctx, scope, hash, blockedUntil); err != nil {
		l.logger.Error("failed to persist rate limit block", "scope", scope, "error", err)
	}
	if l.events != nil {
		_, _ = l.events.Append(ctx, userID, eventstore.TypeRateLimited, "ratelimit", map[string]any{
			"scope":         scope,
			"identifier":    maskIdentifier(identifier),
			"blocked_until": blockedUntil.Format(time.RFC3339),
		}, nil)
	}

	telemetry.RateLimitDecisionsTotal.WithLabelValues(scope, "limited").Inc()
	return Result{Decision: Limited, BlockedUntil: blockedUntil, Scope: scope, Identifier: identifier}, nil
}

// Reset clears both the cache state and the block record for (identifier,
// scope).
func (l *Limiter) Reset(ctx context.Context, identifier, scope string) error {
	hash := identifierHash(scope, identifier)
	if err := l.cache.Delete(ctx, strategyKey(scope, hash)); err != nil && !errors.Is(err, cacheadapter.ErrUnavailable) {
		return fmt.Errorf("clearing cache state: %w", err)
	}
	return l.blocks.Delete(ctx, scope, hash)
}

// evaluate dispatches to the strategy named by rule.Strategy, preferring the
// cache adapter's atomic script and falling back to a local per-key mutex
// when the adapter is degraded, a known degradation.
func (l *Limiter) evaluate(ctx context.Context, rule catalog.RateLimitRule, scope, hash string) (bool, error) {
	if l.cache.Degraded() {
		telemetry.RateLimitFallbackTotal.WithLabelValues("local_mutex").Inc()
		return l.evaluateLocally(rule, scope, hash)
	}

	switch rule.Strategy {
	case "fixed_window":
		return evalFixedWindow(ctx, l.cache, rule, scope, hash)
	case "sliding_window":
		return evalSlidingWindow(ctx, l.cache, rule, scope, hash)
	case "token_bucket":
		return evalTokenBucket(ctx, l.cache, rule, scope, hash)
	default:
		return false, fmt.Errorf("unknown rate limit strategy %q", rule.Strategy)
	}
}

// evaluateLocally serializes the same decision procedure behind a per-key
// mutex, used when RunScript is unavailable (LocalAdapter).
func (l *Limiter) evaluateLocally(rule catalog.RateLimitRule, scope, hash string) (bool, error) {
	mu := l.mutexes.get(scope + ":" + hash)
	mu.Lock()
	defer mu.Unlock()
	return l.local.evaluate(rule, scope, hash), nil
}

func strategyKey(scope, hash string) string {
	return fmt.Sprintf("ratelimit:%s:%s", scope, hash)
}

func maskIdentifier(identifier string) string {
	if len(identifier) <= 4 {
		return "***"
	}
	return identifier[:2] + "***" + identifier[len(identifier)-2:]
}
