package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lk2023060901/ai-search-backend/internal/websearch/types"
)

// DefaultUserAgent is sent when the provider config does not carry one
const DefaultUserAgent = "Mozilla/5.0 (compatible; AI-Search-Backend/1.0)"

// Provider defines the interface for search providers.
// Implementations return at most req.MaxResults results.
type Provider interface {
	// Search executes a search query
	Search(ctx context.Context, req *types.SearchRequest) (*types.SearchResponse, error)

	// GetID returns the provider ID
	GetID() types.ProviderID

	// GetName returns the provider name
	GetName() string
}

// BaseProvider provides common functionality for all providers
type BaseProvider struct {
	config     *types.ProviderConfig
	httpClient *http.Client

	mu       sync.Mutex
	apiKeys  []string // Support multiple API keys for rotation
	keyIndex int      // Current key index
}

// NewBaseProvider creates a new base provider
func NewBaseProvider(config *types.ProviderConfig) *BaseProvider {
	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	// Parse multiple API keys (comma-separated)
	var apiKeys []string
	for _, key := range strings.Split(config.APIKey, ",") {
		if key = strings.TrimSpace(key); key != "" {
			apiKeys = append(apiKeys, key)
		}
	}

	return &BaseProvider{
		config:     config,
		httpClient: httpClient,
		apiKeys:    apiKeys,
	}
}

// GetID returns the provider ID
func (b *BaseProvider) GetID() types.ProviderID {
	return b.config.ID
}

// GetName returns the provider name
func (b *BaseProvider) GetName() string {
	return b.config.Name
}

// GetAPIKey returns the current API key (with rotation support)
func (b *BaseProvider) GetAPIKey() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.apiKeys) == 0 {
		return ""
	}

	key := b.apiKeys[b.keyIndex]
	b.keyIndex = (b.keyIndex + 1) % len(b.apiKeys)
	return key
}

// UserAgent returns the configured user agent
func (b *BaseProvider) UserAgent() string {
	if b.config.UserAgent != "" {
		return b.config.UserAgent
	}
	return DefaultUserAgent
}

// BuildDefaultHeaders builds default HTTP headers
func (b *BaseProvider) BuildDefaultHeaders() map[string]string {
	return map[string]string{
		"Accept":     "application/json",
		"User-Agent": b.UserAgent(),
	}
}

// DoRequest executes an HTTP request, retrying transport failures with exponential backoff.
// Non-2xx responses are not retried.
func (b *BaseProvider) DoRequest(ctx context.Context, req *http.Request) (*http.Response, error) {
	attempts := b.config.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		attempt := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to rewind request body: %w", err)
			}
			attempt.Body = body
		}

		resp, err := b.httpClient.Do(attempt)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if i < attempts-1 {
			backoff := time.Duration(1<<uint(i)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}

// execute sends req and converts transport and status failures into *types.ProviderError
func (b *BaseProvider) execute(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := b.DoRequest(ctx, req)
	if err != nil {
		return nil, &types.ProviderError{
			Provider: b.GetID(),
			Code:     "REQUEST_FAILED",
			Message:  "Failed to execute request",
			Err:      err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &types.ProviderError{
			Provider: b.GetID(),
			Code:     fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:  strings.TrimSpace(string(body)),
		}
	}

	return resp, nil
}

// readBody reads a successful response body up to maxResponseBytes
func (b *BaseProvider) readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &types.ProviderError{
			Provider: b.GetID(),
			Code:     "READ_FAILED",
			Message:  "Failed to read response body",
			Err:      err,
		}
	}
	return body, nil
}

func (b *BaseProvider) invalidResponse(err error) error {
	return &types.ProviderError{
		Provider: b.GetID(),
		Code:     "INVALID_RESPONSE",
		Message:  "Failed to parse response",
		Err:      fmt.Errorf("%w: %v", types.ErrInvalidResponse, err),
	}
}

func (b *BaseProvider) response(req *types.SearchRequest, results []*types.SearchResult, start time.Time) *types.SearchResponse {
	return &types.SearchResponse{
		Query:    req.Query,
		Results:  limitResults(results, req.MaxResults),
		Took:     time.Since(start).Milliseconds(),
		Provider: b.GetID(),
	}
}

const maxResponseBytes = 4 << 20

func limitResults(results []*types.SearchResult, max int) []*types.SearchResult {
	if results == nil {
		return []*types.SearchResult{}
	}
	if max > 0 && len(results) > max {
		return results[:max]
	}
	return results
}

func validateRequest(req *types.SearchRequest) error {
	if req == nil || strings.TrimSpace(req.Query) == "" {
		return types.ErrEmptyQuery
	}
	return nil
}
