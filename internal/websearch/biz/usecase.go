package biz

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lk2023060901/ai-search-backend/internal/pkg/logger"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/analytics"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/cache"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/settings"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/types"
)

// Searcher is the execution engine wrapped by SearchUseCase
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int, providerOverride string) *types.SearchExecution
	Providers() []types.ProviderID
}

// SearchRequest is a caller-level search
type SearchRequest struct {
	Query      string `json:"query" binding:"required"`
	MaxResults int    `json:"max_results"`
	Provider   string `json:"provider"`
}

// SearchUseCase adds caching, result filtering and analytics around a Searcher
type SearchUseCase struct {
	settings  *settings.Settings
	searcher  Searcher
	cache     *cache.Cache
	analytics *analytics.Analytics
	filter    *ResultFilter
	logger    *logger.Logger
}

// NewSearchUseCase creates a search use case
func NewSearchUseCase(s *settings.Settings, searcher Searcher, c *cache.Cache, a *analytics.Analytics, log *logger.Logger) *SearchUseCase {
	if log == nil {
		log = logger.L()
	}
	return &SearchUseCase{
		settings:  s,
		searcher:  searcher,
		cache:     c,
		analytics: a,
		filter:    NewResultFilter(s.ResultFiltering),
		logger:    log.Named("search"),
	}
}

// Search answers from the cache when possible, otherwise runs the searcher.
// Only successful executions from the requested provider are cached; direct URL
// visits and fallback answers are not.
func (uc *SearchUseCase) Search(ctx context.Context, req *SearchRequest) *types.SearchExecution {
	start := time.Now()

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = uc.settings.TotalResults
	}
	label := uc.providerLabel(req.Provider)

	exec, cacheHit := uc.fromCache(ctx, req.Query, maxResults, label)
	if !cacheHit {
		exec = uc.searcher.Search(ctx, req.Query, maxResults, req.Provider)
		if exec.Success && exec.Provider == label {
			uc.cache.Set(ctx, req.Query, maxResults, label, exec.Results, uc.cacheTTL())
		}
	}

	exec, filtered := uc.applyFilter(exec)

	uc.analytics.Record(ctx, exec, time.Since(start), cacheHit, filtered)

	uc.logger.WithContext(ctx).Info("search completed",
		zap.String("execution_id", exec.ID),
		zap.String("provider", exec.Provider),
		zap.Bool("success", exec.Success),
		zap.Bool("cache_hit", cacheHit),
		zap.Int("results", len(exec.Results)),
		zap.Int("filtered", filtered),
		zap.Duration("took", time.Since(start)),
	)
	return exec
}

func (uc *SearchUseCase) fromCache(ctx context.Context, query string, maxResults int, label string) (*types.SearchExecution, bool) {
	if !uc.settings.Enabled || strings.TrimSpace(query) == "" {
		return nil, false
	}
	results, ok := uc.cache.Get(ctx, query, maxResults, label)
	if !ok {
		return nil, false
	}
	return &types.SearchExecution{
		ID:       uuid.NewString(),
		Query:    query,
		Provider: label,
		Success:  true,
		Results:  results,
		Prompt:   BuildPrompt(results),
		Sources:  BuildSources(results, types.SourceTypeURL),
	}, true
}

func (uc *SearchUseCase) applyFilter(exec *types.SearchExecution) (*types.SearchExecution, int) {
	if !exec.Success {
		return exec, 0
	}
	kept, removed := uc.filter.Apply(exec.Results)
	if removed == 0 {
		return exec, 0
	}

	sourceType := types.SourceTypeURL
	if exec.Provider == types.ProviderLabelDirectURL {
		sourceType = types.SourceTypeDirect
	}
	out := exec.WithResults(kept, BuildPrompt(kept), BuildSources(kept, sourceType))
	if len(kept) == 0 {
		out.Success = false
		out.Error = types.MsgNoResults
	}
	return out, removed
}

// providerLabel is the provider name used in the cache key: a registered override, else the default
func (uc *SearchUseCase) providerLabel(override string) string {
	if id, known := types.ParseProviderID(override); known {
		for _, registered := range uc.searcher.Providers() {
			if registered == id {
				return id.String()
			}
		}
	}
	return uc.settings.DefaultProvider.String()
}

func (uc *SearchUseCase) cacheTTL() time.Duration {
	if uc.settings.CacheTTL == nil {
		return 0
	}
	return *uc.settings.CacheTTL
}

// Providers lists the registered providers
func (uc *SearchUseCase) Providers() []types.ProviderID {
	return uc.searcher.Providers()
}

// CacheStats returns cache statistics
func (uc *SearchUseCase) CacheStats(ctx context.Context) cache.Stats {
	return uc.cache.Stats(ctx)
}

// ClearCache drops everything, or only entries matching pattern when it is non-empty
func (uc *SearchUseCase) ClearCache(ctx context.Context, pattern string) int {
	if pattern == "" {
		before := uc.cache.Stats(ctx).MemoryCacheSize
		uc.cache.Clear(ctx)
		return before
	}
	return uc.cache.InvalidatePattern(ctx, pattern)
}

// Analytics exposes the analytics collector for reporting
func (uc *SearchUseCase) Analytics() *analytics.Analytics {
	return uc.analytics
}

// StartMaintenance runs analytics retention cleanup every interval until ctx is done
func (uc *SearchUseCase) StartMaintenance(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			uc.analytics.CleanupOldData(ctx)
		}
	}
}
