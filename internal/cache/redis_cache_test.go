package cache

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	cache, err := NewRedisCache("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis cache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache, s
}

func TestNewRedisCache(t *testing.T) {
	cache, _ := setupTestCache(t)
	if err := cache.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisCacheBadURL(t *testing.T) {
	if _, err := NewRedisCache("not a url"); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestDescendantsRoundTrip(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	if _, ok, err := cache.Descendants(ctx, "tag_db", false); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	want := []string{"tag_sql", "tag_nosql"}
	if err := cache.StoreDescendants(ctx, "tag_db", false, want); err != nil {
		t.Fatalf("StoreDescendants failed: %v", err)
	}
	got, ok, err := cache.Descendants(ctx, "tag_db", false)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	if _, ok, _ := cache.Descendants(ctx, "tag_db", true); ok {
		t.Error("inclusive and strict sets must be cached separately")
	}
}

func TestEmptyDescendantsAreCached(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	if err := cache.StoreDescendants(ctx, "tag_leaf", false, nil); err != nil {
		t.Fatalf("StoreDescendants failed: %v", err)
	}
	got, ok, err := cache.Descendants(ctx, "tag_leaf", false)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty set, got %v", got)
	}
}

func TestInvalidateOrphansEntries(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	if err := cache.StoreDescendants(ctx, "tag_db", true, []string{"tag_db"}); err != nil {
		t.Fatalf("StoreDescendants failed: %v", err)
	}
	if err := cache.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, ok, err := cache.Descendants(ctx, "tag_db", true); err != nil || ok {
		t.Fatalf("expected miss after invalidate, got ok=%v err=%v", ok, err)
	}
}

func TestEntriesExpire(t *testing.T) {
	cache, s := setupTestCache(t)
	ctx := context.Background()

	if err := cache.StoreDescendants(ctx, "tag_db", false, []string{"tag_sql"}); err != nil {
		t.Fatalf("StoreDescendants failed: %v", err)
	}
	s.FastForward(defaultTTL + time.Second)
	if _, ok, _ := cache.Descendants(ctx, "tag_db", false); ok {
		t.Error("expected entry to expire")
	}
}
