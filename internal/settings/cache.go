package settings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"voicedesk/observability"

	"github.com/redis/go-redis/v9"
)

// CachedValidation is a definitive validation outcome remembered for a credential
type CachedValidation struct {
	Valid     bool      `json:"valid"`
	Message   string    `json:"message"`
	CheckedAt time.Time `json:"checkedAt"`
}

// ValidationCache remembers validation outcomes by credential fingerprint.
// Implementations treat backend failures as misses.
type ValidationCache interface {
	Get(ctx context.Context, fingerprint string) (*CachedValidation, bool)
	Set(ctx context.Context, fingerprint string, entry CachedValidation)
	Backend() string
}

// Fingerprint identifies a provider credential without retaining the secret
func Fingerprint(provider, secret string) string {
	sum := sha256.Sum256([]byte(provider + "\x00" + secret))
	return hex.EncodeToString(sum[:])
}

// MemoryCache is a process-local ValidationCache with a fixed TTL
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     CachedValidation
	expiresAt time.Time
}

// NewMemoryCache creates an in-memory cache
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, fingerprint string) (*CachedValidation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, fingerprint)
		return nil, false
	}
	value := entry.value
	return &value, true
}

func (c *MemoryCache) Set(ctx context.Context, fingerprint string, entry CachedValidation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	// Opportunistic sweep keeps the map bounded by live entries
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[fingerprint] = memoryEntry{value: entry, expiresAt: now.Add(c.ttl)}
}

func (c *MemoryCache) Backend() string { return "memory" }

// Len returns the number of live entries
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

const redisKeyPrefix = "voicedesk:validation:"

// RedisCache shares validation outcomes between instances through Redis
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to the Redis server at redisURL (redis://host:port/db)
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: invalid redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	observability.Info("validation cache connected to redis", "addr", opts.Addr)
	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient wraps an existing client
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, fingerprint string) (*CachedValidation, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		observability.Warn("validation cache read failed", "error", err)
		return nil, false
	}

	var entry CachedValidation
	if err := json.Unmarshal(raw, &entry); err != nil {
		observability.Warn("validation cache entry corrupt", "error", err)
		return nil, false
	}
	return &entry, true
}

func (c *RedisCache) Set(ctx context.Context, fingerprint string, entry CachedValidation) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+fingerprint, raw, c.ttl).Err(); err != nil {
		observability.Warn("validation cache write failed", "error", err)
	}
}

func (c *RedisCache) Backend() string { return "redis" }

// Close releases the Redis connection pool
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var (
	_ ValidationCache = (*MemoryCache)(nil)
	_ ValidationCache = (*RedisCache)(nil)
)
