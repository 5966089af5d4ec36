package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lk2023060901/ai-search-backend/internal/pkg/logger"
	"github.com/lk2023060901/ai-search-backend/internal/pkg/workerpool"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/loader"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/provider"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/settings"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/textutil"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/types"
)

const (
	// SnippetLength caps the snippet kept on enriched and direct-visit results
	SnippetLength = 300

	// sharedPageWorkers sizes the process-wide page loading pool. Each search is
	// further limited to settings.EnrichmentConcurrency loads at a time.
	sharedPageWorkers = 256
)

// Manager runs one search execution end to end: gating, direct URL visits,
// provider selection with a single DuckDuckGo fallback, enrichment, and
// prompt/sources assembly. It does not touch the cache or analytics.
type Manager struct {
	settings *settings.Settings
	registry *provider.Registry
	loader   loader.Loader
	pool     *workerpool.Pool
	logger   *logger.Logger
	newID    func() string
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithRegistry replaces the registry built from settings
func WithRegistry(r *provider.Registry) ManagerOption {
	return func(m *Manager) { m.registry = r }
}

// WithLoader replaces the HTTP content loader
func WithLoader(l loader.Loader) ManagerOption {
	return func(m *Manager) { m.loader = l }
}

// WithManagerLogger sets the logger
func WithManagerLogger(l *logger.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithIDGenerator overrides execution ID generation
func WithIDGenerator(fn func() string) ManagerOption {
	return func(m *Manager) { m.newID = fn }
}

// NewManager creates a manager. Collaborators not supplied through options are built from s.
func NewManager(s *settings.Settings, opts ...ManagerOption) (*Manager, error) {
	if s == nil {
		s = settings.Default()
	}

	m := &Manager{
		settings: s,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.L()
	}
	m.logger = m.logger.Named("search")

	if m.registry == nil {
		m.registry = provider.BuildRegistry(s, provider.DetectCapabilities(s), provider.NewFactory(), m.logger)
	}
	if m.loader == nil {
		m.loader = loader.NewHTTPLoader(loader.Config{
			UserAgent: s.UserAgent,
			Timeout:   s.RequestTimeout,
		}, m.logger)
	}
	workers := sharedPageWorkers
	if s.EnrichmentConcurrency > workers {
		workers = s.EnrichmentConcurrency
	}
	pool, err := workerpool.New(&workerpool.Config{Workers: workers, Nonblocking: true}, m.logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create enrichment pool: %w", err)
	}
	m.pool = pool
	m.logger.Debug("page loading pool ready",
		zap.Int("shared_workers", m.pool.Cap()),
		zap.Int("per_search_limit", s.EnrichmentConcurrency),
	)

	return m, nil
}

// Settings returns the settings the manager was built with
func (m *Manager) Settings() *settings.Settings {
	return m.settings
}

// Providers lists registered provider IDs in registration order
func (m *Manager) Providers() []types.ProviderID {
	return m.registry.IDs()
}

// Close releases the page loading pool
func (m *Manager) Close() {
	m.pool.Shutdown()
}

// Search executes a query. Failures are reported in the returned execution, never as a panic or error.
// maxResults <= 0 selects settings.TotalResults; providerOverride is ignored unless it names a registered provider.
func (m *Manager) Search(ctx context.Context, query string, maxResults int, providerOverride string) *types.SearchExecution {
	id := m.newID()
	ctx = logger.WithExecutionID(ctx, id)
	log := m.logger.WithContext(ctx)

	if !m.settings.Enabled {
		return types.Failed(id, query, types.ProviderLabelDisabled, types.MsgSearchDisabled)
	}

	if maxResults <= 0 {
		maxResults = m.settings.TotalResults
	}

	if m.settings.VisitSpecificWebsite {
		detection := textutil.DetectURLsInQuery(query)
		if len(detection.URLs) > 0 {
			return m.visitDirect(ctx, log, id, query, detection, maxResults)
		}
	}

	p, ok := m.selectProvider(providerOverride)
	if !ok {
		log.Warn("no search provider available", zap.String("override", providerOverride))
		return types.Failed(id, query, types.ProviderLabelUnknown, types.MsgNoProviders)
	}
	effective := p.GetID()

	results := m.safeSearch(ctx, log, p, query, maxResults)
	if len(results) == 0 && effective != types.ProviderDuckDuckGo {
		if fallback, ok := m.registry.Get(types.ProviderDuckDuckGo); ok {
			log.Info("falling back to duckduckgo", zap.String("provider", effective.String()))
			results = m.safeSearch(ctx, log, fallback, query, maxResults)
			effective = types.ProviderDuckDuckGo
		}
	}

	if len(results) > maxResults {
		results = results[:maxResults]
	}
	if len(results) == 0 {
		return types.Failed(id, query, effective.String(), types.MsgNoResults)
	}

	m.enrich(ctx, query, results)

	return &types.SearchExecution{
		ID:       id,
		Query:    query,
		Provider: effective.String(),
		Success:  true,
		Results:  results,
		Prompt:   BuildPrompt(results),
		Sources:  BuildSources(results, types.SourceTypeURL),
	}
}

// selectProvider applies override, default, searxng, duckduckgo in that order
func (m *Manager) selectProvider(override string) (provider.Provider, bool) {
	var candidates []types.ProviderID
	if strings.TrimSpace(override) != "" {
		if id, known := types.ParseProviderID(override); known {
			candidates = append(candidates, id)
		}
	}
	candidates = append(candidates, m.settings.DefaultProvider, types.ProviderSearXNG, types.ProviderDuckDuckGo)

	for _, id := range candidates {
		if p, ok := m.registry.Get(id); ok {
			return p, true
		}
	}
	return nil, false
}

// safeSearch converts provider errors and panics into an empty result list
func (m *Manager) safeSearch(ctx context.Context, log *logger.Logger, p provider.Provider, query string, maxResults int) (results []*types.SearchResult) {
	log = log.With(zap.String("provider", p.GetID().String()))

	defer func() {
		if r := recover(); r != nil {
			log.Error("search provider panicked", zap.Error(fmt.Errorf("%w: %v", types.ErrProviderPanic, r)))
			results = nil
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, m.settings.RequestTimeout)
	defer cancel()

	start := time.Now()
	resp, err := p.Search(ctx, &types.SearchRequest{Query: query, MaxResults: maxResults})
	if err != nil {
		log.Warn("search provider failed", zap.Error(err), zap.Duration("took", time.Since(start)))
		return nil
	}
	if resp == nil {
		return nil
	}

	results = types.CloneResults(resp.Results)
	log.Debug("search provider returned", zap.Int("results", len(results)), zap.Duration("took", time.Since(start)))
	return results
}

// enrich replaces snippets with query-relevant page excerpts, in place and in order
func (m *Manager) enrich(ctx context.Context, query string, results []*types.SearchResult) {
	if m.settings.SimpleMode {
		for _, r := range results {
			r.Content = r.Snippet
		}
		return
	}

	m.pool.Run(ctx, len(results), m.settings.EnrichmentConcurrency, func(ctx context.Context, i int) {
		r := results[i]
		if r.URL == "" {
			return
		}
		text, ok := m.load(ctx, r.URL)
		if !ok {
			return
		}
		excerpt := textutil.ChooseRelevantSnippet(text, query, textutil.DefaultSnippetLimit)
		if excerpt == "" {
			return
		}
		r.Snippet = textutil.Truncate(excerpt, SnippetLength)
		r.Content = excerpt
	})
}

// visitDirect loads the URLs named in the query instead of searching
func (m *Manager) visitDirect(ctx context.Context, log *logger.Logger, id, query string, detection textutil.URLDetection, maxResults int) *types.SearchExecution {
	urls := detection.URLs
	if len(urls) > maxResults {
		urls = urls[:maxResults]
	}
	focus := detection.CleanedQuery
	if strings.TrimSpace(focus) == "" {
		focus = query
	}

	loaded := make([]*types.SearchResult, len(urls))
	m.pool.Run(ctx, len(urls), m.settings.EnrichmentConcurrency, func(ctx context.Context, i int) {
		text, ok := m.load(ctx, urls[i])
		if !ok {
			return
		}
		excerpt := textutil.ChooseRelevantSnippet(text, focus, textutil.DefaultSnippetLimit)
		loaded[i] = &types.SearchResult{
			Title:   urls[i],
			URL:     urls[i],
			Snippet: textutil.Truncate(excerpt, SnippetLength),
			Source:  types.SourceTypeDirect,
			Content: excerpt,
		}
	})

	results := make([]*types.SearchResult, 0, len(loaded))
	for _, r := range loaded {
		if r != nil {
			results = append(results, r)
		}
	}
	log.Info("direct url visit", zap.Int("requested", len(urls)), zap.Int("loaded", len(results)))

	exec := &types.SearchExecution{
		ID:       id,
		Query:    query,
		Provider: types.ProviderLabelDirectURL,
		Success:  len(results) > 0,
		Results:  results,
		Prompt:   BuildPrompt(results),
		Sources:  BuildSources(results, types.SourceTypeDirect),
	}
	if !exec.Success {
		exec.Error = types.MsgDirectURLFailed
	}
	return exec
}

func (m *Manager) load(ctx context.Context, url string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, m.settings.RequestTimeout)
	defer cancel()
	return m.loader.Load(ctx, url)
}

// BuildPrompt renders results as newline-separated <result> fragments with 1-based ids
func BuildPrompt(results []*types.SearchResult) string {
	fragments := make([]string, 0, len(results))
	for i, r := range results {
		body := r.Content
		if body == "" {
			body = r.Snippet
		}
		fragments = append(fragments, fmt.Sprintf(`<result source="%s" id="%d">%s</result>`,
			textutil.EscapeForPrompt(r.URL), i+1, textutil.EscapeForPrompt(body)))
	}
	return strings.Join(fragments, "\n")
}

// BuildSources lists citation entries for results that carry a URL, in result order
func BuildSources(results []*types.SearchResult, sourceType string) []types.Source {
	sources := make([]types.Source, 0, len(results))
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		sources = append(sources, types.Source{
			URL:  r.URL,
			Name: textutil.HostnameFromURL(r.URL),
			Type: sourceType,
		})
	}
	return sources
}
