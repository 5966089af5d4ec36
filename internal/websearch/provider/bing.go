package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lk2023060901/ai-search-backend/internal/websearch/types"
)

// BingProvider implements the Bing Web Search v7 API
type BingProvider struct {
	*BaseProvider
}

// NewBingProvider creates a new Bing provider
func NewBingProvider(config *types.ProviderConfig) (Provider, error) {
	return &BingProvider{BaseProvider: NewBaseProvider(config)}, nil
}

// Search executes a search query using the Bing API
func (p *BingProvider) Search(ctx context.Context, req *types.SearchRequest) (*types.SearchResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	startTime := time.Now()

	params := url.Values{}
	params.Set("q", req.Query)
	params.Set("textDecorations", "false")
	if req.MaxResults > 0 {
		params.Set("count", strconv.Itoa(req.MaxResults))
	}
	if req.Language != "" {
		params.Set("setLang", req.Language)
	}

	apiURL := fmt.Sprintf("%s/v7.0/search?%s", strings.TrimRight(p.config.APIHost, "/"), params.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range p.BuildDefaultHeaders() {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", p.GetAPIKey())

	resp, err := p.execute(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	body, err := p.readBody(resp)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, p.invalidResponse(fmt.Errorf("body is not valid JSON"))
	}

	var results []*types.SearchResult
	gjson.GetBytes(body, "webPages.value").ForEach(func(_, r gjson.Result) bool {
		if link := r.Get("url").String(); link != "" {
			results = append(results, &types.SearchResult{
				Title:   r.Get("name").String(),
				URL:     link,
				Snippet: r.Get("snippet").String(),
				Source:  string(types.ProviderBing),
			})
		}
		return true
	})

	return p.response(req, results, startTime), nil
}
