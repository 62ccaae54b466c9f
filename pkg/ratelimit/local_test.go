package ratelimit

import (
	"testing"
	"time"

	"github.com/lunahub/hub/pkg/catalog"
)

func TestLocalStrategyStoreFixedWindow(t *testing.T) {
	s := newLocalStrategyStore()
	rule := catalog.RateLimitRule{Strategy: "fixed_window", RequestsPerWindow: 3, WindowSeconds: 3600}

	for i := 0; i < 3; i++ {
		if !s.evaluate(rule, "scope", "hash") {
			t.Fatalf("request %d expected allowed", i)
		}
	}
	if s.evaluate(rule, "scope", "hash") {
		t.Fatalf("4th request expected denied")
	}
}

func TestLocalStrategyStoreSlidingWindow(t *testing.T) {
	s := newLocalStrategyStore()
	rule := catalog.RateLimitRule{Strategy: "sliding_window", RequestsPerWindow: 2, WindowSeconds: 1}

	if !s.evaluate(rule, "scope", "hash") {
		t.Fatalf("1st request expected allowed")
	}
	if !s.evaluate(rule, "scope", "hash") {
		t.Fatalf("2nd request expected allowed")
	}
	if s.evaluate(rule, "scope", "hash") {
		t.Fatalf("3rd request within window expected denied")
	}

	time.Sleep(1100 * time.Millisecond)
	if !s.evaluate(rule, "scope", "hash") {
		t.Fatalf("request after window elapsed expected allowed")
	}
}

func TestLocalStrategyStoreTokenBucket(t *testing.T) {
	s := newLocalStrategyStore()
	rule := catalog.RateLimitRule{Strategy: "token_bucket", RequestsPerWindow: 60, WindowSeconds: 60, BurstSize: 2}

	if !s.evaluate(rule, "scope", "hash") {
		t.Fatalf("1st request expected allowed")
	}
	if !s.evaluate(rule, "scope", "hash") {
		t.Fatalf("2nd request within burst expected allowed")
	}
	if s.evaluate(rule, "scope", "hash") {
		t.Fatalf("3rd request expected denied (burst exhausted)")
	}
}

func TestKeyMutexPoolStableForSameKey(t *testing.T) {
	pool := newKeyMutexPool(16)
	a := pool.get("scope:hash")
	b := pool.get("scope:hash")
	if a != b {
		t.Fatalf("expected same mutex instance for identical key")
	}
}
