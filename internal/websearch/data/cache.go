package data

import (
	"context"
	"strings"
	"time"

	"github.com/lk2023060901/ai-search-backend/internal/pkg/redis"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/cache"
)

// CacheKeyPrefix namespaces search cache entries in Redis.
const CacheKeyPrefix = "websearch:cache:"

const scanBatch = 200

// RedisCacheBackend stores encoded cache records in Redis.
type RedisCacheBackend struct {
	client *redis.Client
	prefix string
}

var _ cache.Backend = (*RedisCacheBackend)(nil)

func NewRedisCacheBackend(client *redis.Client) *RedisCacheBackend {
	return &RedisCacheBackend{client: client, prefix: CacheKeyPrefix}
}

func (b *RedisCacheBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := b.client.GetBytes(ctx, b.prefix+key)
	if err != nil {
		if redis.IsNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return val, true, nil
}

func (b *RedisCacheBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, b.prefix+key, value, ttl)
}

func (b *RedisCacheBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = b.prefix + k
	}
	_, err := b.client.Del(ctx, full...)
	return err
}

// Keys returns cache keys with the namespace prefix stripped.
func (b *RedisCacheBackend) Keys(ctx context.Context) ([]string, error) {
	raw, err := b.client.ScanAll(ctx, b.prefix+"*", scanBatch)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, strings.TrimPrefix(k, b.prefix))
	}
	return keys, nil
}

func (b *RedisCacheBackend) Clear(ctx context.Context) error {
	keys, err := b.Keys(ctx)
	if err != nil {
		return err
	}
	return b.Delete(ctx, keys...)
}
