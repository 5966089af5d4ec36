package provider

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/lk2023060901/ai-search-backend/internal/websearch/types"
)

// DuckDuckGoProvider scrapes the DuckDuckGo HTML endpoint. It needs no credentials.
type DuckDuckGoProvider struct {
	*BaseProvider
}

// NewDuckDuckGoProvider creates a new DuckDuckGo provider
func NewDuckDuckGoProvider(config *types.ProviderConfig) (Provider, error) {
	return &DuckDuckGoProvider{BaseProvider: NewBaseProvider(config)}, nil
}

// Search posts the query to the HTML endpoint and parses the result list
func (p *DuckDuckGoProvider) Search(ctx context.Context, req *types.SearchRequest) (*types.SearchResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	startTime := time.Now()

	form := url.Values{}
	form.Set("q", req.Query)
	if req.Language != "" {
		form.Set("kl", req.Language)
	}

	apiURL := strings.TrimRight(p.config.APIHost, "/") + "/html/"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", p.UserAgent())
	httpReq.Header.Set("Accept", "text/html")
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.execute(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	body, err := p.readBody(resp)
	if err != nil {
		return nil, err
	}

	results, err := parseDuckDuckGoHTML(body)
	if err != nil {
		return nil, p.invalidResponse(err)
	}
	return p.response(req, results, startTime), nil
}

func parseDuckDuckGoHTML(body []byte) ([]*types.SearchResult, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var results []*types.SearchResult
	for _, block := range findAll(doc, elementWithClass("", "result")) {
		if hasClass(block, "result--ad") {
			continue
		}
		link := findFirst(block, elementWithClass("a", "result__a"))
		if link == nil {
			continue
		}
		target := decodeDuckDuckGoLink(attr(link, "href"))
		if target == "" {
			continue
		}
		results = append(results, &types.SearchResult{
			Title:   textOf(link),
			URL:     target,
			Snippet: textOf(findFirst(block, elementWithClass("", "result__snippet"))),
			Source:  string(types.ProviderDuckDuckGo),
		})
	}
	return results, nil
}

// decodeDuckDuckGoLink unwraps /l/?uddg= redirect links
func decodeDuckDuckGoLink(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return href
}
