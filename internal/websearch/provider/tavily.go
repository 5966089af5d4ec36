package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lk2023060901/ai-search-backend/internal/websearch/types"
)

// TavilyProvider implements the Tavily search API
type TavilyProvider struct {
	*BaseProvider
}

// NewTavilyProvider creates a new Tavily provider
func NewTavilyProvider(config *types.ProviderConfig) (Provider, error) {
	base := NewBaseProvider(config)
	return &TavilyProvider{BaseProvider: base}, nil
}

// tavilyRequest represents a Tavily API request
type tavilyRequest struct {
	Query             string `json:"query"`
	SearchDepth       string `json:"search_depth,omitempty"`
	MaxResults        int    `json:"max_results,omitempty"`
	IncludeAnswer     bool   `json:"include_answer"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

// Search executes a search query using the Tavily API
func (p *TavilyProvider) Search(ctx context.Context, req *types.SearchRequest) (*types.SearchResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	startTime := time.Now()

	tavilyReq := tavilyRequest{
		Query:       req.Query,
		SearchDepth: "basic",
		MaxResults:  req.MaxResults,
	}
	if tavilyReq.MaxResults <= 0 {
		tavilyReq.MaxResults = 10
	}

	reqBody, err := json.Marshal(tavilyReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	apiURL := fmt.Sprintf("%s/search", strings.TrimRight(p.config.APIHost, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, v := range p.BuildDefaultHeaders() {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.GetAPIKey())

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
	gjson.GetBytes(body, "results").ForEach(func(_, r gjson.Result) bool {
		link := r.Get("url").String()
		if link == "" {
			return true
		}
		result := &types.SearchResult{
			Title:   r.Get("title").String(),
			URL:     link,
			Snippet: r.Get("content").String(),
			Source:  string(types.ProviderTavily),
		}
		if score := r.Get("score"); score.Exists() {
			v := score.Float()
			result.RelevanceScore = &v
		}
		results = append(results, result)
		return true
	})

	return p.response(req, results, startTime), nil
}
