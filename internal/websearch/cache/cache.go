// Package cache stores provider result lists keyed by the normalized
// (query, max results, provider) triple. Entries live in an in-process map
// and, when a Backend is configured, in a shared external store as well.
// Backend failures are logged and treated as misses.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/ai-search-backend/internal/pkg/logger"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/types"
)

const (
	DefaultTTL     = time.Hour
	DefaultMaxSize = 1000
)

// Backend is an external key/value tier. Keys are the hex digests produced by Key.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Keys(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
}

// Config holds cache settings
type Config struct {
	Enabled    bool          `mapstructure:"enabled"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	MaxSize    int           `mapstructure:"max_size"`
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		DefaultTTL: DefaultTTL,
		MaxSize:    DefaultMaxSize,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.DefaultTTL < 0 {
		return fmt.Errorf("cache default_ttl must not be negative")
	}
	if c.MaxSize < 0 {
		return fmt.Errorf("cache max_size must not be negative")
	}
	return nil
}

// Stats is a point-in-time view of the cache
type Stats struct {
	Enabled          bool  `json:"enabled"`
	BackendEnabled   bool  `json:"backend_enabled"`
	MemoryCacheSize  int   `json:"memory_cache_size"`
	BackendCacheSize int   `json:"backend_cache_size"`
	MaxCacheSize     int   `json:"max_cache_size"`
	DefaultTTL       int64 `json:"default_ttl"` // seconds
	Hits             int64 `json:"hits"`
	Misses           int64 `json:"misses"`
}

// record is the serialized form shared by both tiers
type record struct {
	Descriptor string                `json:"descriptor"`
	Results    []*types.SearchResult `json:"results"`
	CreatedAt  time.Time             `json:"created_at"`
	ExpiresAt  time.Time             `json:"expires_at"`
}

type entry struct {
	payload    []byte
	descriptor string
	createdAt  time.Time
	expiresAt  time.Time
}

// Option configures a Cache
type Option func(*Cache)

// WithBackend enables the external tier
func WithBackend(b Backend) Option {
	return func(c *Cache) { c.backend = b }
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Cache is safe for concurrent use
type Cache struct {
	config  Config
	backend Backend
	logger  *logger.Logger
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
	hits    int64
	misses  int64
}

// New creates a cache
func New(cfg Config, opts ...Option) *Cache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}

	c := &Cache{
		config:  cfg,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.L()
	}
	c.logger = c.logger.Named("cache")
	return c
}

// Descriptor is the normalized, unhashed form of a cache key
func Descriptor(query string, maxResults int, provider string) string {
	return fmt.Sprintf("%s|%d|%s", strings.ToLower(strings.TrimSpace(query)), maxResults, provider)
}

// Key derives the fixed-length cache key
func Key(query string, maxResults int, provider string) string {
	sum := sha256.Sum256([]byte(Descriptor(query, maxResults, provider)))
	return hex.EncodeToString(sum[:])
}

// Get returns a copy of the cached results, reading the backend first
func (c *Cache) Get(ctx context.Context, query string, maxResults int, provider string) ([]*types.SearchResult, bool) {
	if !c.config.Enabled {
		return nil, false
	}
	key := Key(query, maxResults, provider)
	now := c.now()

	if c.backend != nil {
		data, found, err := c.backend.Get(ctx, key)
		switch {
		case err != nil:
			c.logger.WithContext(ctx).Warn("cache backend get failed", zap.String("key", key), zap.Error(err))
		case found:
			if rec, err := decode(data); err != nil {
				c.logger.WithContext(ctx).Warn("cache backend entry is corrupt", zap.String("key", key), zap.Error(err))
			} else if now.Before(rec.ExpiresAt) {
				c.countHit(true)
				return rec.Results, true
			}
		}
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && now.Before(e.expiresAt) {
		if rec, err := decode(e.payload); err == nil {
			c.countHit(true)
			return rec.Results, true
		}
	}

	c.countHit(false)
	return nil, false
}

// Set stores results in both tiers. ttl <= 0 selects the default TTL.
func (c *Cache) Set(ctx context.Context, query string, maxResults int, provider string, results []*types.SearchResult, ttl time.Duration) {
	if !c.config.Enabled || len(results) == 0 {
		return
	}
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	now := c.now()
	rec := record{
		Descriptor: Descriptor(query, maxResults, provider),
		Results:    results,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		c.logger.WithContext(ctx).Warn("cache entry serialization failed", zap.Error(err))
		return
	}
	key := Key(query, maxResults, provider)

	if c.backend != nil {
		if err := c.backend.Set(ctx, key, payload, ttl); err != nil {
			c.logger.WithContext(ctx).Warn("cache backend set failed", zap.String("key", key), zap.Error(err))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{
		payload:    payload,
		descriptor: rec.Descriptor,
		createdAt:  rec.CreatedAt,
		expiresAt:  rec.ExpiresAt,
	}
	c.evictLocked(now)
}

// evictLocked drops expired entries, then the oldest by creation time until within MaxSize
func (c *Cache) evictLocked(now time.Time) {
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
		}
	}

	overflow := len(c.entries) - c.config.MaxSize
	if overflow <= 0 {
		return
	}

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].createdAt.Before(c.entries[keys[j]].createdAt)
	})
	for _, key := range keys[:overflow] {
		delete(c.entries, key)
	}
}

// Clear drops every entry in both tiers
func (c *Cache) Clear(ctx context.Context) {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()

	if c.backend != nil {
		if err := c.backend.Clear(ctx); err != nil {
			c.logger.WithContext(ctx).Warn("cache backend clear failed", zap.Error(err))
		}
	}
}

// InvalidatePattern removes entries whose key or descriptor contains pattern,
// case-insensitively. It returns the number of distinct keys removed.
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) int {
	pattern = strings.ToLower(pattern)
	matches := func(key, descriptor string) bool {
		return strings.Contains(key, pattern) || strings.Contains(strings.ToLower(descriptor), pattern)
	}

	removed := make(map[string]struct{})

	c.mu.Lock()
	for key, e := range c.entries {
		if matches(key, e.descriptor) {
			delete(c.entries, key)
			removed[key] = struct{}{}
		}
	}
	c.mu.Unlock()

	if c.backend != nil {
		c.invalidateBackend(ctx, matches, removed)
	}

	return len(removed)
}

func (c *Cache) invalidateBackend(ctx context.Context, matches func(key, descriptor string) bool, removed map[string]struct{}) {
	log := c.logger.WithContext(ctx)

	keys, err := c.backend.Keys(ctx)
	if err != nil {
		log.Warn("cache backend key listing failed", zap.Error(err))
		return
	}

	var victims []string
	for _, key := range keys {
		if matches(key, "") {
			victims = append(victims, key)
			continue
		}
		data, found, err := c.backend.Get(ctx, key)
		if err != nil || !found {
			continue
		}
		if rec, err := decode(data); err == nil && matches(key, rec.Descriptor) {
			victims = append(victims, key)
		}
	}
	if len(victims) == 0 {
		return
	}

	if err := c.backend.Delete(ctx, victims...); err != nil {
		log.Warn("cache backend delete failed", zap.Int("keys", len(victims)), zap.Error(err))
		return
	}
	for _, key := range victims {
		removed[key] = struct{}{}
	}
}

// Stats returns cache statistics
func (c *Cache) Stats(ctx context.Context) Stats {
	c.mu.RLock()
	stats := Stats{
		Enabled:         c.config.Enabled,
		BackendEnabled:  c.backend != nil,
		MemoryCacheSize: len(c.entries),
		MaxCacheSize:    c.config.MaxSize,
		DefaultTTL:      int64(c.config.DefaultTTL / time.Second),
		Hits:            c.hits,
		Misses:          c.misses,
	}
	c.mu.RUnlock()

	if c.backend != nil {
		keys, err := c.backend.Keys(ctx)
		if err != nil {
			c.logger.WithContext(ctx).Warn("cache backend key listing failed", zap.Error(err))
		} else {
			stats.BackendCacheSize = len(keys)
		}
	}
	return stats
}

func (c *Cache) countHit(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

func decode(data []byte) (*record, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
