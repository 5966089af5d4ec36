package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/ai-search-backend/internal/pkg/logger"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/loader"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/provider"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/settings"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/types"
)

type stubProvider struct {
	id      types.ProviderID
	results []*types.SearchResult
	err     error
	panics  bool

	calls   atomic.Int32
	lastMax atomic.Int32
}

func (p *stubProvider) GetID() types.ProviderID { return p.id }
func (p *stubProvider) GetName() string         { return string(p.id) }

func (p *stubProvider) Search(_ context.Context, req *types.SearchRequest) (*types.SearchResponse, error) {
	p.calls.Add(1)
	p.lastMax.Store(int32(req.MaxResults))
	if p.panics {
		panic("provider exploded")
	}
	if p.err != nil {
		return nil, p.err
	}
	return &types.SearchResponse{Query: req.Query, Results: p.results, Provider: p.id}, nil
}

type stubLoader struct {
	mu     sync.Mutex
	pages  map[string]string
	delays map[string]time.Duration
	calls  []string
}

func (l *stubLoader) Load(_ context.Context, url string) (string, bool) {
	l.mu.Lock()
	l.calls = append(l.calls, url)
	text, ok := l.pages[url]
	delay := l.delays[url]
	l.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return text, ok
}

func (l *stubLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

func makeResults(n int) []*types.SearchResult {
	out := make([]*types.SearchResult, n)
	for i := range out {
		out[i] = &types.SearchResult{
			Title:   fmt.Sprintf("Result %d", i+1),
			URL:     fmt.Sprintf("https://site%d.example/page", i+1),
			Snippet: fmt.Sprintf("snippet %d", i+1),
			Source:  "stub",
		}
	}
	return out
}

func newTestManager(t *testing.T, raw map[string]interface{}, l *stubLoader, providers ...provider.Provider) *Manager {
	t.Helper()
	if l == nil {
		l = &stubLoader{}
	}
	m, err := NewManager(settings.FromConfig(raw),
		WithRegistry(provider.NewRegistry(providers...)),
		WithLoader(l),
		WithManagerLogger(logger.NewNop()),
	)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestManager_DisabledGate(t *testing.T) {
	searx := &stubProvider{id: types.ProviderSearXNG, results: makeResults(2)}
	l := &stubLoader{}
	m := newTestManager(t, map[string]interface{}{"enabled": false}, l, searx)

	for _, q := range []string{"golang", "", "visit example.com", "https://go.dev"} {
		exec := m.Search(context.Background(), q, 0, "")
		assert.False(t, exec.Success)
		assert.Equal(t, types.ProviderLabelDisabled, exec.Provider)
		assert.Equal(t, types.MsgSearchDisabled, exec.Error)
		assert.Empty(t, exec.Results)
		assert.NotEmpty(t, exec.ID)
	}
	assert.Equal(t, int32(0), searx.calls.Load())
	assert.Equal(t, 0, l.callCount())
}

func TestManager_FallbackToDuckDuckGo(t *testing.T) {
	searx := &stubProvider{id: types.ProviderSearXNG}
	r1 := &types.SearchResult{Title: "R1", URL: "https://r1.example", Snippet: "r1"}
	ddg := &stubProvider{id: types.ProviderDuckDuckGo, results: []*types.SearchResult{r1}}
	m := newTestManager(t, nil, nil, searx, ddg)

	exec := m.Search(context.Background(), "q", 0, "")
	require.True(t, exec.Success)
	assert.Equal(t, "duckduckgo", exec.Provider)
	require.Len(t, exec.Results, 1)
	assert.Equal(t, "R1", exec.Results[0].Title)
	assert.Equal(t, "https://r1.example", exec.Results[0].URL)
	assert.Equal(t, int32(1), searx.calls.Load())
	assert.Equal(t, int32(1), ddg.calls.Load())
}

func TestManager_NoDoubleFallback(t *testing.T) {
	searx := &stubProvider{id: types.ProviderSearXNG}
	ddg := &stubProvider{id: types.ProviderDuckDuckGo}
	m := newTestManager(t, nil, nil, searx, ddg)

	exec := m.Search(context.Background(), "q", 0, "")
	assert.False(t, exec.Success)
	assert.Equal(t, "duckduckgo", exec.Provider)
	assert.Equal(t, types.MsgNoResults, exec.Error)
	assert.Equal(t, int32(1), searx.calls.Load())
	assert.Equal(t, int32(1), ddg.calls.Load())
}

func TestManager_NoFallbackFromDuckDuckGo(t *testing.T) {
	ddg := &stubProvider{id: types.ProviderDuckDuckGo}
	m := newTestManager(t, map[string]interface{}{"default_provider": "duckduckgo"}, nil, ddg)

	exec := m.Search(context.Background(), "q", 0, "")
	assert.False(t, exec.Success)
	assert.Equal(t, "duckduckgo", exec.Provider)
	assert.Equal(t, int32(1), ddg.calls.Load())
}

func TestManager_NoFallbackWithoutDuckDuckGo(t *testing.T) {
	searx := &stubProvider{id: types.ProviderSearXNG}
	m := newTestManager(t, nil, nil, searx)

	exec := m.Search(context.Background(), "q", 0, "")
	assert.False(t, exec.Success)
	assert.Equal(t, "searxng", exec.Provider)
	assert.Equal(t, types.MsgNoResults, exec.Error)
}

func TestManager_ProviderErrorsAndPanicsBecomeEmpty(t *testing.T) {
	tests := []struct {
		name    string
		primary *stubProvider
	}{
		{"error", &stubProvider{id: types.ProviderSearXNG, err: errors.New("connection refused")}},
		{"panic", &stubProvider{id: types.ProviderSearXNG, panics: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ddg := &stubProvider{id: types.ProviderDuckDuckGo, results: makeResults(1)}
			m := newTestManager(t, map[string]interface{}{"simple_mode": true}, nil, tt.primary, ddg)

			var exec *types.SearchExecution
			require.NotPanics(t, func() {
				exec = m.Search(context.Background(), "q", 0, "")
			})
			assert.True(t, exec.Success)
			assert.Equal(t, "duckduckgo", exec.Provider)
		})
	}
}

func TestManager_NoProviders(t *testing.T) {
	m := newTestManager(t, nil, nil)

	exec := m.Search(context.Background(), "q", 0, "bing")
	assert.False(t, exec.Success)
	assert.Equal(t, types.ProviderLabelUnknown, exec.Provider)
	assert.Equal(t, types.MsgNoProviders, exec.Error)
	assert.NotNil(t, exec.Results)
	assert.NotNil(t, exec.Sources)
}

func TestManager_ProviderSelection(t *testing.T) {
	tests := []struct {
		name       string
		raw        map[string]interface{}
		registered []types.ProviderID
		override   string
		want       string
	}{
		{"override wins", nil, []types.ProviderID{types.ProviderSearXNG, types.ProviderBing}, "Bing", "bing"},
		{"unregistered override ignored", nil, []types.ProviderID{types.ProviderSearXNG}, "brave", "searxng"},
		{"unknown override ignored", nil, []types.ProviderID{types.ProviderSearXNG}, "yandex", "searxng"},
		{"default used", map[string]interface{}{"search_provider": "tavily"}, []types.ProviderID{types.ProviderSearXNG, types.ProviderTavily}, "", "tavily"},
		{"unregistered default falls to searxng", map[string]interface{}{"default_provider": "bing"}, []types.ProviderID{types.ProviderDuckDuckGo, types.ProviderSearXNG}, "", "searxng"},
		{"then duckduckgo", map[string]interface{}{"default_provider": "bing"}, []types.ProviderID{types.ProviderBrave, types.ProviderDuckDuckGo}, "", "duckduckgo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var providers []provider.Provider
			for _, id := range tt.registered {
				providers = append(providers, &stubProvider{id: id, results: makeResults(1)})
			}
			raw := map[string]interface{}{"simple_mode": true}
			for k, v := range tt.raw {
				raw[k] = v
			}
			m := newTestManager(t, raw, nil, providers...)

			exec := m.Search(context.Background(), "q", 0, tt.override)
			require.True(t, exec.Success)
			assert.Equal(t, tt.want, exec.Provider)
		})
	}
}

func TestManager_DirectURLVisit(t *testing.T) {
	l := &stubLoader{pages: map[string]string{
		"https://example.org": "Example Domain. This domain is for illustrative examples.",
	}}
	searx := &stubProvider{id: types.ProviderSearXNG, results: makeResults(1)}
	m := newTestManager(t, map[string]interface{}{"enabled": true, "visit_specific_website": true}, l, searx)

	exec := m.Search(context.Background(), "see https://example.org please", 0, "")
	require.True(t, exec.Success)
	assert.Equal(t, types.ProviderLabelDirectURL, exec.Provider)
	require.Len(t, exec.Results, 1)
	r := exec.Results[0]
	assert.Equal(t, "https://example.org", r.URL)
	assert.Equal(t, "https://example.org", r.Title)
	assert.Equal(t, types.SourceTypeDirect, r.Source)
	assert.Contains(t, r.Snippet, "Example Domain")
	assert.Equal(t, r.Snippet, r.Content)
	assert.Equal(t, []types.Source{{URL: "https://example.org", Name: "example.org", Type: types.SourceTypeDirect}}, exec.Sources)
	assert.Contains(t, exec.Prompt, `<result source="https://example.org" id="1">`)
	assert.Equal(t, int32(0), searx.calls.Load())
}

func TestManager_DirectURLVisitFailures(t *testing.T) {
	l := &stubLoader{pages: map[string]string{
		"https://b-site.com": "Page b content about widgets.",
	}}
	m := newTestManager(t, map[string]interface{}{"total_results": 2}, l)

	exec := m.Search(context.Background(), "compare a-site.com b-site.com c-site.com widgets", 0, "")
	require.True(t, exec.Success)
	require.Len(t, exec.Results, 1)
	assert.Equal(t, "https://b-site.com", exec.Results[0].URL)
	// only the first two urls are visited
	assert.Equal(t, 2, l.callCount())

	exec = m.Search(context.Background(), "open nothing-here.com", 0, "")
	assert.False(t, exec.Success)
	assert.Equal(t, types.ProviderLabelDirectURL, exec.Provider)
	assert.Empty(t, exec.Results)
	assert.Equal(t, types.MsgDirectURLFailed, exec.Error)
}

func TestManager_DirectURLVisitDisabled(t *testing.T) {
	l := &stubLoader{}
	searx := &stubProvider{id: types.ProviderSearXNG, results: makeResults(1)}
	m := newTestManager(t, map[string]interface{}{"visit_specific_website": false, "simple_mode": true}, l, searx)

	exec := m.Search(context.Background(), "see https://example.org please", 0, "")
	require.True(t, exec.Success)
	assert.Equal(t, "searxng", exec.Provider)
	assert.Equal(t, 0, l.callCount())
}

func TestManager_SimpleMode(t *testing.T) {
	l := &stubLoader{}
	searx := &stubProvider{id: types.ProviderSearXNG, results: []*types.SearchResult{
		{Title: "A", URL: "https://a.example", Snippet: "alpha snippet"},
		{Title: "B", URL: "https://b.example", Snippet: "beta snippet"},
	}}
	m := newTestManager(t, map[string]interface{}{"simple_mode": true}, l, searx)

	exec := m.Search(context.Background(), "q", 0, "")
	require.True(t, exec.Success)
	require.Len(t, exec.Results, 2)
	for _, r := range exec.Results {
		assert.Equal(t, r.Snippet, r.Content)
	}
	assert.Equal(t, 0, l.callCount())
	// provider values are not mutated
	assert.Empty(t, searx.results[0].Content)
}

func TestManager_TruncatesToTotalResults(t *testing.T) {
	searx := &stubProvider{id: types.ProviderSearXNG, results: makeResults(5)}
	m := newTestManager(t, map[string]interface{}{"total_results": 2, "simple_mode": true}, nil, searx)

	exec := m.Search(context.Background(), "q", 0, "")
	require.True(t, exec.Success)
	assert.Len(t, exec.Results, 2)
	assert.LessOrEqual(t, len(exec.Sources), 2)
	assert.Equal(t, int32(2), searx.lastMax.Load())

	exec = m.Search(context.Background(), "q", 4, "")
	assert.Len(t, exec.Results, 4)
}

func TestManager_Enrichment(t *testing.T) {
	long := strings.Repeat("Kubernetes operators reconcile state continuously. ", 20)
	l := &stubLoader{
		pages: map[string]string{
			"https://site1.example/page": "Short intro that is long enough to be kept around.\n\n" + long,
			"https://site3.example/page": "Nothing relevant here but long enough to survive filtering.",
		},
		delays: map[string]time.Duration{
			"https://site1.example/page": 30 * time.Millisecond,
		},
	}
	results := makeResults(3)
	results = append(results, &types.SearchResult{Title: "No URL", Snippet: "offline"})
	searx := &stubProvider{id: types.ProviderSearXNG, results: results}
	m := newTestManager(t, map[string]interface{}{"total_results": 4}, l, searx)

	exec := m.Search(context.Background(), "kubernetes operators", 0, "")
	require.True(t, exec.Success)
	require.Len(t, exec.Results, 4)

	// order preserved regardless of load timing
	for i, r := range exec.Results[:3] {
		assert.Equal(t, fmt.Sprintf("Result %d", i+1), r.Title)
	}

	r1 := exec.Results[0]
	assert.True(t, strings.HasPrefix(r1.Content, "Kubernetes operators"))
	assert.Equal(t, 800, len([]rune(r1.Content)))
	assert.Equal(t, SnippetLength, len([]rune(r1.Snippet)))

	// failed load leaves the result untouched
	assert.Equal(t, "snippet 2", exec.Results[1].Snippet)
	assert.Empty(t, exec.Results[1].Content)

	assert.Equal(t, "Nothing relevant here but long enough to survive filtering.", exec.Results[2].Content)

	// urlless results are not loaded and not cited
	assert.Equal(t, "offline", exec.Results[3].Snippet)
	assert.Equal(t, 3, l.callCount())
	assert.Len(t, exec.Sources, 3)
	assert.Contains(t, exec.Prompt, `<result source="" id="4">offline</result>`)
}

func TestBuildPrompt(t *testing.T) {
	results := []*types.SearchResult{
		{URL: "https://a.example/?x=1&y=2", Snippet: "snip", Content: `<b>"bold"</b> & more`},
		{URL: "https://b.example", Snippet: "only snippet"},
	}
	prompt := BuildPrompt(results)
	lines := strings.Split(prompt, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `<result source="https://a.example/?x=1&amp;y=2" id="1">&lt;b&gt;&#34;bold&#34;&lt;/b&gt; &amp; more</result>`, lines[0])
	assert.Equal(t, `<result source="https://b.example" id="2">only snippet</result>`, lines[1])
	assert.Equal(t, "", BuildPrompt(nil))
}

func TestManager_Providers(t *testing.T) {
	m := newTestManager(t, nil, nil,
		&stubProvider{id: types.ProviderBrave},
		&stubProvider{id: types.ProviderSearXNG},
	)
	assert.Equal(t, []types.ProviderID{types.ProviderBrave, types.ProviderSearXNG}, m.Providers())
}

func TestManager_ConcurrentSearches(t *testing.T) {
	searx := &stubProvider{id: types.ProviderSearXNG, results: makeResults(3)}
	l := &stubLoader{pages: map[string]string{
		"https://site1.example/page": "A paragraph long enough to be chosen as the snippet text.",
	}}
	m := newTestManager(t, nil, l, searx)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			exec := m.Search(context.Background(), "q", 0, "")
			assert.True(t, exec.Success)
			assert.Len(t, exec.Results, 3)
		}()
	}
	wg.Wait()
}

type blockingLoader struct {
	delay time.Duration

	running atomic.Int32
	peak    atomic.Int32
}

func (l *blockingLoader) Load(ctx context.Context, url string) (string, bool) {
	cur := l.running.Add(1)
	defer l.running.Add(-1)
	for {
		old := l.peak.Load()
		if cur <= old || l.peak.CompareAndSwap(old, cur) {
			break
		}
	}

	select {
	case <-time.After(l.delay):
		return "Loaded page body for " + url + " with enough text to keep.", true
	case <-ctx.Done():
		return "", false
	}
}

func newLoaderManager(t *testing.T, raw map[string]interface{}, l loader.Loader, providers ...provider.Provider) *Manager {
	t.Helper()
	m, err := NewManager(settings.FromConfig(raw),
		WithRegistry(provider.NewRegistry(providers...)),
		WithLoader(l),
		WithManagerLogger(logger.NewNop()),
	)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestManager_EnrichmentLimitIsPerSearch(t *testing.T) {
	l := &blockingLoader{delay: 150 * time.Millisecond}
	searx := &stubProvider{id: types.ProviderSearXNG, results: makeResults(2)}
	m := newLoaderManager(t, map[string]interface{}{"enrichment_concurrency": 2}, l, searx)

	const searches = 4
	execs := make([]*types.SearchExecution, searches)
	var wg sync.WaitGroup
	for i := 0; i < searches; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
			defer cancel()
			execs[i] = m.Search(ctx, "loaded page", 2, "")
		}(i)
	}
	wg.Wait()

	for _, exec := range execs {
		require.True(t, exec.Success)
		for _, r := range exec.Results {
			assert.Contains(t, r.Content, "Loaded page body", "search %s was starved", exec.ID)
		}
	}
	assert.Greater(t, l.peak.Load(), int32(2))
}

func TestManager_EnrichmentLimitBoundsOneSearch(t *testing.T) {
	l := &blockingLoader{delay: 20 * time.Millisecond}
	searx := &stubProvider{id: types.ProviderSearXNG, results: makeResults(6)}
	m := newLoaderManager(t, map[string]interface{}{"enrichment_concurrency": 2, "total_results": 6}, l, searx)

	exec := m.Search(context.Background(), "loaded page", 0, "")
	require.True(t, exec.Success)
	require.Len(t, exec.Results, 6)
	for _, r := range exec.Results {
		assert.Contains(t, r.Content, "Loaded page body")
	}
	assert.LessOrEqual(t, l.peak.Load(), int32(2))
}

func TestManager_EnrichmentStopsAtCallerDeadline(t *testing.T) {
	l := &blockingLoader{delay: time.Second}
	searx := &stubProvider{id: types.ProviderSearXNG, results: makeResults(6)}
	m := newLoaderManager(t, map[string]interface{}{"enrichment_concurrency": 1, "total_results": 6}, l, searx)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	exec := m.Search(ctx, "loaded page", 0, "")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	require.True(t, exec.Success)
	for i, r := range exec.Results {
		assert.Equal(t, fmt.Sprintf("snippet %d", i+1), r.Snippet)
	}
}
