package provider

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/net/html"

	"github.com/lk2023060901/ai-search-backend/internal/websearch/types"
)

// SearXNGProvider implements the SearXNG search API.
// JSON mode requires the instance to enable the json format; HTML mode scrapes the default theme.
type SearXNGProvider struct {
	*BaseProvider
}

// NewSearXNGProvider creates a new SearXNG provider
func NewSearXNGProvider(config *types.ProviderConfig) (Provider, error) {
	base := NewBaseProvider(config)
	return &SearXNGProvider{BaseProvider: base}, nil
}

// Search executes a search query using the SearXNG API
func (p *SearXNGProvider) Search(ctx context.Context, req *types.SearchRequest) (*types.SearchResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	startTime := time.Now()

	// Build query parameters
	params := url.Values{}
	params.Set("q", req.Query)
	params.Set("pageno", "1")
	if p.config.JSONMode {
		params.Set("format", "json")
	}
	if req.Language != "" {
		params.Set("language", req.Language)
	}

	apiURL := fmt.Sprintf("%s/search?%s", strings.TrimRight(p.config.APIHost, "/"), params.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, v := range p.BuildDefaultHeaders() {
		httpReq.Header.Set(k, v)
	}
	if !p.config.JSONMode {
		httpReq.Header.Set("Accept", "text/html")
	}

	// Basic Auth (if configured)
	if p.config.BasicAuthUsername != "" && p.config.BasicAuthPassword != "" {
		httpReq.SetBasicAuth(p.config.BasicAuthUsername, p.config.BasicAuthPassword)
	}

	resp, err := p.execute(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	body, err := p.readBody(resp)
	if err != nil {
		return nil, err
	}

	var results []*types.SearchResult
	if p.config.JSONMode {
		results, err = p.parseJSON(body)
	} else {
		results, err = p.parseHTML(body)
	}
	if err != nil {
		return nil, p.invalidResponse(err)
	}

	return p.response(req, results, startTime), nil
}

func (p *SearXNGProvider) parseJSON(body []byte) ([]*types.SearchResult, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("body is not valid JSON")
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
			Source:  string(types.ProviderSearXNG),
		}
		if score := r.Get("score"); score.Exists() {
			v := score.Float()
			result.RelevanceScore = &v
		}
		results = append(results, result)
		return true
	})
	return results, nil
}

func (p *SearXNGProvider) parseHTML(body []byte) ([]*types.SearchResult, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var results []*types.SearchResult
	for _, article := range findAll(doc, elementWithClass("article", "result")) {
		heading := findFirst(article, func(n *html.Node) bool { return n.Data == "h3" })
		if heading == nil {
			continue
		}
		link := findFirst(heading, func(n *html.Node) bool { return n.Data == "a" })
		if link == nil || attr(link, "href") == "" {
			continue
		}
		results = append(results, &types.SearchResult{
			Title:   textOf(link),
			URL:     attr(link, "href"),
			Snippet: textOf(findFirst(article, elementWithClass("p", "content"))),
			Source:  string(types.ProviderSearXNG),
		})
	}
	return results, nil
}
