//go:build integration
// +build integration

package data

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/ai-search-backend/internal/pkg/database"
	"github.com/lk2023060901/ai-search-backend/internal/pkg/logger"
	"github.com/lk2023060901/ai-search-backend/internal/pkg/redis"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/analytics"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/cache"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/types"
)

func setupRedis(t *testing.T) *redis.Client {
	cfg := redis.DefaultConfig()
	cfg.DB = 15
	client, err := redis.New(cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func setupDB(t *testing.T) *database.DB {
	db, err := database.New(database.DefaultConfig(), logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&SearchMetricPO{}))
	t.Cleanup(func() {
		db.Exec("DELETE FROM search_metrics")
		db.Close()
	})
	return db
}

func TestRedisCacheBackend(t *testing.T) {
	backend := NewRedisCacheBackend(setupRedis(t))
	ctx := context.Background()
	require.NoError(t, backend.Clear(ctx))

	require.NoError(t, backend.Set(ctx, "k1", []byte("v1"), time.Minute))
	require.NoError(t, backend.Set(ctx, "k2", []byte("v2"), time.Minute))

	val, ok, err := backend.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), val)

	_, ok, err = backend.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := backend.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"k1", "k2"}, keys)

	require.NoError(t, backend.Delete(ctx, "k1"))
	keys, err = backend.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"k2"}, keys)

	require.NoError(t, backend.Clear(ctx))
	keys, err = backend.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRedisCacheBackend_WithCache(t *testing.T) {
	backend := NewRedisCacheBackend(setupRedis(t))
	ctx := context.Background()
	require.NoError(t, backend.Clear(ctx))

	c := cache.New(cache.DefaultConfig(), cache.WithBackend(backend), cache.WithLogger(logger.NewNop()))
	results := []*types.SearchResult{{Title: "Go", URL: "https://go.dev", Snippet: "go", Source: "searxng"}}
	c.Set(ctx, "golang", 5, "searxng", results, 0)

	// a fresh cache sharing the backend sees the entry
	other := cache.New(cache.DefaultConfig(), cache.WithBackend(backend), cache.WithLogger(logger.NewNop()))
	got, ok := other.Get(ctx, "golang", 5, "searxng")
	require.True(t, ok)
	assert.Equal(t, "https://go.dev", got[0].URL)

	assert.Equal(t, 1, other.InvalidatePattern(ctx, "golang"))
	_, ok = other.Get(ctx, "golang", 5, "searxng")
	assert.False(t, ok)
}

func TestMetricRepo(t *testing.T) {
	repo := NewMetricRepo(setupDB(t).DB)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	for i, ts := range []time.Time{now.AddDate(0, 0, -40), now.Add(-time.Hour), now} {
		require.NoError(t, repo.Save(ctx, &analytics.Metric{
			ID:           uuid.NewString(),
			Query:        "q",
			Provider:     "searxng",
			Success:      i != 1,
			ResultCount:  i,
			ResponseTime: 0.5,
			Timestamp:    ts,
		}))
	}

	recent, err := repo.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].Timestamp.Before(recent[1].Timestamp))
	assert.Equal(t, 2, recent[1].ResultCount)

	pruned, err := repo.Prune(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	all, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
