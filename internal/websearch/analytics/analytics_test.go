package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/ai-search-backend/internal/pkg/logger"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/types"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fakeStore struct {
	mu      sync.Mutex
	saved   []*Metric
	pruneAt time.Time
	err     error
}

func (s *fakeStore) Save(_ context.Context, m *Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, m)
	return nil
}

func (s *fakeStore) Prune(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneAt = before
	return 0, s.err
}

type replayStore struct {
	fakeStore
	recent []*Metric
}

func (s *replayStore) Recent(_ context.Context, limit int) ([]*Metric, error) {
	if len(s.recent) > limit {
		return s.recent[len(s.recent)-limit:], nil
	}
	return s.recent, nil
}

var base = time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

func newTestAnalytics(cfg Config, opts ...Option) (*Analytics, *clock) {
	c := &clock{now: base}
	opts = append([]Option{WithLogger(logger.NewNop()), WithClock(c.Now)}, opts...)
	return New(cfg, opts...), c
}

func exec(query, provider string, success bool, errMsg string) *types.SearchExecution {
	e := &types.SearchExecution{Query: query, Provider: provider, Success: success, Error: errMsg}
	if success {
		e.Results = []*types.SearchResult{{Title: "r", URL: "https://r.example"}}
	}
	return e
}

func TestAnalytics_ProviderStats(t *testing.T) {
	a, _ := newTestAnalytics(DefaultConfig())
	ctx := context.Background()

	a.Record(ctx, exec("q1", "searxng", true, ""), 100*time.Millisecond, false, 0)
	a.Record(ctx, exec("q2", "searxng", true, ""), 200*time.Millisecond, true, 0)
	a.Record(ctx, exec("q3", "searxng", false, types.MsgNoResults), 300*time.Millisecond, false, 0)

	stats := a.ProviderStats()
	require.Contains(t, stats, "searxng")
	s := stats["searxng"]
	assert.Equal(t, 3, s.TotalSearches)
	assert.Equal(t, 2, s.SuccessfulSearches)
	assert.InDelta(t, 2.0/3.0, s.SuccessRate, 1e-9)
	assert.InDelta(t, 0.2, s.AvgResponseTime, 1e-9)
	assert.Equal(t, 1, s.ErrorCount)
	assert.Equal(t, 1, s.CacheHits)
	assert.InDelta(t, 1.0/3.0, s.CacheHitRate, 1e-9)
}

func TestAnalytics_TopQueriesAndErrors(t *testing.T) {
	a, _ := newTestAnalytics(DefaultConfig())
	ctx := context.Background()

	for _, q := range []string{"Go", "go ", "rust", "go", "rust", "zig"} {
		a.Record(ctx, exec(q, "searxng", true, ""), 0, false, 0)
	}
	a.Record(ctx, exec("x", "bing", false, "timeout"), 0, false, 0)
	a.Record(ctx, exec("y", "bing", false, "timeout"), 0, false, 0)
	a.Record(ctx, exec("z", "unknown", false, types.MsgNoProviders), 0, false, 0)

	top := a.TopQueries(2)
	assert.Equal(t, []QueryCount{{Query: "go", Frequency: 3}, {Query: "rust", Frequency: 2}}, top)

	errs := a.ErrorSummary(0)
	assert.Equal(t, []ErrorCount{{Error: "timeout", Count: 2}, {Error: types.MsgNoProviders, Count: 1}}, errs)
	assert.Len(t, a.ErrorSummary(1), 1)
}

func TestAnalytics_HourlyTrends(t *testing.T) {
	a, c := newTestAnalytics(DefaultConfig())
	ctx := context.Background()

	c.Set(base.Add(-30 * time.Hour))
	a.Record(ctx, exec("old", "searxng", true, ""), 0, false, 0)
	c.Set(base.Add(-2 * time.Hour))
	a.Record(ctx, exec("a", "searxng", true, ""), 0, false, 0)
	a.Record(ctx, exec("b", "searxng", false, "boom"), 0, false, 0)
	c.Set(base)
	a.Record(ctx, exec("c", "searxng", true, ""), 0, false, 0)

	trends := a.HourlyTrends(24)
	assert.Len(t, trends, 2)
	assert.Equal(t, HourBucket{Searches: 2, Successes: 1, Failures: 1}, trends["2026-03-10-12"])
	assert.Equal(t, HourBucket{Searches: 1, Successes: 1}, trends["2026-03-10-14"])

	assert.Len(t, a.HourlyTrends(1), 1)
	assert.Empty(t, a.HourlyTrends(0))
	assert.Len(t, a.HourlyTrends(48), 3)
}

func TestAnalytics_OverallStats(t *testing.T) {
	a, c := newTestAnalytics(DefaultConfig())
	ctx := context.Background()

	a.Record(ctx, exec("a", "searxng", true, ""), time.Second, true, 0)
	c.Set(base.Add(time.Hour))
	a.Record(ctx, exec("b", "bing", true, ""), 3*time.Second, false, 2)
	a.Record(ctx, exec("B", "bing", false, "x"), 2*time.Second, false, 0)

	o := a.OverallStats()
	assert.Equal(t, 3, o.TotalSearches)
	assert.Equal(t, 2, o.SuccessfulSearches)
	assert.InDelta(t, 2.0/3.0, o.SuccessRate, 1e-9)
	assert.InDelta(t, 2.0, o.AvgResponseTime, 1e-9)
	assert.Equal(t, 1, o.CacheHits)
	assert.Equal(t, 2, o.UniqueQueries)
	assert.Equal(t, "2026-03-10-15", o.MostActiveHour)
	assert.Equal(t, DefaultRetentionDays, o.RetentionDays)

	report := a.PerformanceReport()
	assert.Equal(t, o, report.OverallStats)
	assert.Len(t, report.ProviderStats, 2)
	assert.Equal(t, base.Add(time.Hour), report.Timestamp)
}

func TestAnalytics_HistoryBounded(t *testing.T) {
	a, _ := newTestAnalytics(Config{Enabled: true, MaxHistory: 3})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		a.Record(ctx, exec(fmt.Sprintf("q%d", i), "searxng", true, ""), 0, false, 0)
	}

	history := a.History()
	require.Len(t, history, 3)
	assert.Equal(t, "q2", history[0].Query)
	assert.Equal(t, "q4", history[2].Query)
	assert.Equal(t, 5, a.ProviderStats()["searxng"].TotalSearches)
}

func TestAnalytics_ExportHistory(t *testing.T) {
	a, _ := newTestAnalytics(DefaultConfig())
	ctx := context.Background()
	a.Record(ctx, exec("q", "searxng", true, ""), 250*time.Millisecond, false, 1)

	out, err := a.ExportHistory("JSON")
	require.NoError(t, err)

	var metrics []Metric
	require.NoError(t, json.Unmarshal([]byte(out), &metrics))
	require.Len(t, metrics, 1)
	assert.Equal(t, "q", metrics[0].Query)
	assert.Equal(t, 1, metrics[0].ResultCount)
	assert.Equal(t, 1, metrics[0].FilteredCount)
	assert.NotEmpty(t, metrics[0].ID)

	_, err = a.ExportHistory("csv")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestAnalytics_CleanupOldData(t *testing.T) {
	store := &fakeStore{}
	a, c := newTestAnalytics(Config{Enabled: true, RetentionDays: 7}, WithStore(store))
	ctx := context.Background()

	c.Set(base.AddDate(0, 0, -10))
	a.Record(ctx, exec("old", "searxng", true, ""), 0, false, 0)
	c.Set(base.AddDate(0, 0, -1))
	a.Record(ctx, exec("recent", "searxng", true, ""), 0, false, 0)
	c.Set(base)

	assert.Equal(t, 1, a.CleanupOldData(ctx))
	history := a.History()
	require.Len(t, history, 1)
	assert.Equal(t, "recent", history[0].Query)
	assert.Len(t, a.HourlyTrends(24*30), 1)
	assert.Equal(t, base.AddDate(0, 0, -7), store.pruneAt)
	assert.Len(t, store.saved, 2)
}

func TestAnalytics_Restore(t *testing.T) {
	store := &replayStore{recent: []*Metric{
		{ID: "1", Query: "Stale", Provider: "bing", Success: true, Timestamp: base.AddDate(0, 0, -40)},
		{ID: "2", Query: "golang", Provider: "searxng", Success: true, Timestamp: base.Add(-2 * time.Hour)},
		{ID: "3", Query: "Golang", Provider: "searxng", Success: false, ErrorMessage: "timeout", Timestamp: base.Add(-time.Hour)},
	}}
	a, _ := newTestAnalytics(Config{Enabled: true}, WithStore(store))

	n, err := a.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, a.History(), 2)
	assert.Equal(t, []QueryCount{{Query: "golang", Frequency: 2}}, a.TopQueries(10))
	assert.Equal(t, 2, a.ProviderStats()["searxng"].TotalSearches)
	assert.Empty(t, store.saved)

	plain, _ := newTestAnalytics(Config{Enabled: true}, WithStore(&fakeStore{}))
	n, err = plain.Restore(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAnalytics_Reset(t *testing.T) {
	a, _ := newTestAnalytics(DefaultConfig())
	ctx := context.Background()
	a.Record(ctx, exec("q", "searxng", false, "err"), 0, false, 0)

	a.Reset()
	assert.Empty(t, a.History())
	assert.Empty(t, a.ProviderStats())
	assert.Empty(t, a.TopQueries(10))
	assert.Empty(t, a.ErrorSummary(10))
	assert.Equal(t, 0, a.OverallStats().TotalSearches)
}

func TestAnalytics_Disabled(t *testing.T) {
	store := &fakeStore{}
	a, _ := newTestAnalytics(Config{Enabled: false}, WithStore(store))
	a.Record(context.Background(), exec("q", "searxng", true, ""), 0, false, 0)

	assert.Empty(t, a.History())
	assert.Empty(t, store.saved)
	assert.False(t, a.Enabled())
}

func TestAnalytics_StoreErrorIgnored(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	a, _ := newTestAnalytics(DefaultConfig(), WithStore(store))
	ctx := context.Background()

	assert.NotPanics(t, func() {
		a.Record(ctx, exec("q", "searxng", true, ""), 0, false, 0)
		a.CleanupOldData(ctx)
	})
	assert.Len(t, a.History(), 1)
}

func TestAnalytics_ConcurrentRecord(t *testing.T) {
	a, _ := newTestAnalytics(Config{Enabled: true, MaxHistory: 50})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				a.Record(ctx, exec(fmt.Sprintf("q%d", j), "searxng", j%2 == 0, ""), time.Millisecond, false, 0)
				_ = a.PerformanceReport()
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, a.History(), 50)
	assert.Equal(t, 200, a.OverallStats().TotalSearches)
}
