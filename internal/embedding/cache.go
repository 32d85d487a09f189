package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NopCache never stores anything
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]float32, bool) { return nil, false }
func (NopCache) Set(context.Context, string, []float32)        {}

// MemoryCache is an in-process TTL cache with an item bound. The bound is
// approximate under concurrent writers.
type MemoryCache struct {
	items    *gocache.Cache
	maxItems int
}

func NewMemoryCache(ttl, cleanupInterval time.Duration, maxItems int) *MemoryCache {
	return &MemoryCache{
		items:    gocache.New(ttl, cleanupInterval),
		maxItems: maxItems,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]float32, bool) {
	v, ok := c.items.Get(key)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	return vec, ok
}

func (c *MemoryCache) Set(_ context.Context, key string, vector []float32) {
	if c.maxItems > 0 && c.items.ItemCount() >= c.maxItems {
		c.items.DeleteExpired()
		if c.items.ItemCount() >= c.maxItems {
			return
		}
	}
	c.items.SetDefault(key, vector)
}

func (c *MemoryCache) Len() int {
	return c.items.ItemCount()
}

// RedisCache shares vectors between replicas. Redis failures degrade to
// cache misses.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *RedisCache) key(k string) string {
	sum := sha256.Sum256([]byte(k))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		ctxzap.Warn(ctx, "embedding cache read failed", zap.Error(err))
		return nil, false
	}

	vec, err := decodeVector(raw)
	if err != nil {
		ctxzap.Warn(ctx, "embedding cache entry corrupt", zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *RedisCache) Set(ctx context.Context, key string, vector []float32) {
	if err := c.client.Set(ctx, c.key(key), encodeVector(vector), c.ttl).Err(); err != nil {
		ctxzap.Warn(ctx, "embedding cache write failed", zap.Error(err))
	}
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid vector encoding of %d bytes", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
