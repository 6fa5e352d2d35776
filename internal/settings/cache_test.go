package settings

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("openai", "sk-one")
	if a != Fingerprint("openai", "sk-one") {
		t.Error("fingerprint must be deterministic")
	}
	if a == Fingerprint("groq", "sk-one") {
		t.Error("fingerprint must depend on the provider")
	}
	if a == Fingerprint("openai", "sk-two") {
		t.Error("fingerprint must depend on the secret")
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha256, got %d chars", len(a))
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	if _, ok := cache.Get(ctx, "fp"); ok {
		t.Error("empty cache should miss")
	}

	cache.Set(ctx, "fp", CachedValidation{Valid: true, Message: "ok"})
	got, ok := cache.Get(ctx, "fp")
	if !ok || !got.Valid || got.Message != "ok" {
		t.Errorf("Get() = %+v, %v", got, ok)
	}

	now = now.Add(time.Minute)
	if _, ok := cache.Get(ctx, "fp"); ok {
		t.Error("entry should expire after the TTL")
	}
	if cache.Len() != 0 {
		t.Error("expired entry should be evicted")
	}
	if cache.Backend() != "memory" {
		t.Errorf("Backend() = %s", cache.Backend())
	}
}

func TestRedisCache_RoundTrip(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewRedisCacheWithClient(client, 5*time.Minute)
	ctx := context.Background()

	if _, ok := cache.Get(ctx, "fp"); ok {
		t.Error("empty cache should miss")
	}

	checked := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	cache.Set(ctx, "fp", CachedValidation{Valid: false, Message: "rejected", CheckedAt: checked})

	got, ok := cache.Get(ctx, "fp")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.Valid || got.Message != "rejected" || !got.CheckedAt.Equal(checked) {
		t.Errorf("Get() = %+v", got)
	}

	if ttl := mr.TTL(redisKeyPrefix + "fp"); ttl != 5*time.Minute {
		t.Errorf("TTL = %v, want 5m", ttl)
	}

	mr.FastForward(6 * time.Minute)
	if _, ok := cache.Get(ctx, "fp"); ok {
		t.Error("entry should expire in redis")
	}
}

func TestRedisCache_CorruptEntryIsMiss(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewRedisCacheWithClient(client, time.Minute)

	mr.Set(redisKeyPrefix+"fp", "{not json")
	if _, ok := cache.Get(context.Background(), "fp"); ok {
		t.Error("corrupt entry should be treated as a miss")
	}
}

func TestRedisCache_ServerDownIsMiss(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewRedisCacheWithClient(client, time.Minute)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cache.Set(ctx, "fp", CachedValidation{Valid: true})
	if _, ok := cache.Get(ctx, "fp"); ok {
		t.Error("unavailable redis should behave as a miss")
	}
}

func TestNewRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cache, err := NewRedisCache(ctx, "redis://"+mr.Addr()+"/0", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisCache() error = %v", err)
	}
	defer cache.Close()

	if cache.Backend() != "redis" {
		t.Errorf("Backend() = %s", cache.Backend())
	}

	if _, err := NewRedisCache(ctx, "not a url", time.Minute); err == nil {
		t.Error("expected error for invalid url")
	}
}
