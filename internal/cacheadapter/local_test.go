package cacheadapter

import (
	"context"
	"testing"
	"time"
)

func TestLocalAdapterGetSetDelete(t *testing.T) {
	ctx := context.Background()
	a := NewLocalAdapter()

	if _, ok, _ := a.Get(ctx, "k"); ok {
		t.Fatalf("expected miss on empty cache")
	}

	if err := a.SetTTL(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("SetTTL: %v", err)
	}
	v, ok, err := a.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("expected hit v=v, got v=%q ok=%v err=%v", v, ok, err)
	}

	if err := a.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := a.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestLocalAdapterExpiry(t *testing.T) {
	ctx := context.Background()
	a := NewLocalAdapter()

	if err := a.SetTTL(ctx, "k", "v", time.Millisecond); err != nil {
		t.Fatalf("SetTTL: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, ok, _ := a.Get(ctx, "k"); ok {
		t.Fatalf("expected expired entry to be a miss")
	}
}

func TestLocalAdapterInvalidatePrefix(t *testing.T) {
	ctx := context.Background()
	a := NewLocalAdapter()

	_ = a.SetTTL(ctx, "user:1:a", "1", time.Minute)
	_ = a.SetTTL(ctx, "user:1:b", "2", time.Minute)
	_ = a.SetTTL(ctx, "user:2:a", "3", time.Minute)

	if err := a.InvalidatePrefix(ctx, "user:1:"); err != nil {
		t.Fatalf("InvalidatePrefix: %v", err)
	}
	if _, ok, _ := a.Get(ctx, "user:1:a"); ok {
		t.Fatalf("expected user:1:a invalidated")
	}
	if _, ok, _ := a.Get(ctx, "user:2:a"); !ok {
		t.Fatalf("expected user:2:a to remain")
	}
}

func TestLocalAdapterGetOrLoad(t *testing.T) {
	ctx := context.Background()
	a := NewLocalAdapter()

	calls := 0
	loader := func(context.Context) (string, error) {
		calls++
		return "loaded", nil
	}

	v, err := a.GetOrLoad(ctx, "k", time.Minute, loader)
	if err != nil || v != "loaded" {
		t.Fatalf("unexpected result v=%q err=%v", v, err)
	}
	v, err = a.GetOrLoad(ctx, "k", time.Minute, loader)
	if err != nil || v != "loaded" {
		t.Fatalf("unexpected result on second call v=%q err=%v", v, err)
	}
	if calls != 1 {
		t.Fatalf("expected loader called once, got %d", calls)
	}
}
