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

// BraveProvider implements the Brave Search API
type BraveProvider struct {
	*BaseProvider
}

// NewBraveProvider creates a new Brave provider
func NewBraveProvider(config *types.ProviderConfig) (Provider, error) {
	return &BraveProvider{BaseProvider: NewBaseProvider(config)}, nil
}

// Search executes a search query using the Brave API
func (p *BraveProvider) Search(ctx context.Context, req *types.SearchRequest) (*types.SearchResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	startTime := time.Now()

	count := req.MaxResults
	if count <= 0 {
		count = 5
	}
	if count > 20 {
		count = 20
	}
	params := url.Values{
		"q":     {req.Query},
		"count": {strconv.Itoa(count)},
	}
	if req.Language != "" {
		params.Set("search_lang", req.Language)
	}

	apiURL := fmt.Sprintf("%s/res/v1/web/search?%s", strings.TrimRight(p.config.APIHost, "/"), params.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range p.BuildDefaultHeaders() {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("X-Subscription-Token", p.GetAPIKey())

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
	gjson.GetBytes(body, "web.results").ForEach(func(_, r gjson.Result) bool {
		if link := r.Get("url").String(); link != "" {
			results = append(results, &types.SearchResult{
				Title:   r.Get("title").String(),
				URL:     link,
				Snippet: r.Get("description").String(),
				Source:  string(types.ProviderBrave),
			})
		}
		return true
	})

	return p.response(req, results, startTime), nil
}
