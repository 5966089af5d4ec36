// Package settings normalizes the raw web search configuration map into a
// typed Settings value. FromConfig never fails: anything missing, malformed
// or out of range falls back to its documented default.
package settings

import (
	"strings"
	"time"

	"github.com/lk2023060901/ai-search-backend/internal/websearch/types"
	"github.com/spf13/cast"
)

const (
	DefaultProvider              = types.ProviderSearXNG
	DefaultTotalResults          = 5
	DefaultRequestTimeout        = 15 * time.Second
	DefaultUserAgent             = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultSearXNGURL            = "http://localhost:8080"
	DefaultEnrichmentConcurrency = 6
	maxEnrichmentConcurrency     = 16
)

// ProviderOptions holds the per-provider block under providers.<name>
type ProviderOptions struct {
	Enabled *bool  `json:"enabled,omitempty"`
	APIHost string `json:"api_host,omitempty"`
	APIKey  string `json:"api_key,omitempty"`
}

// Settings is the validated web search configuration
type Settings struct {
	Enabled              bool             `json:"enabled"`
	DefaultProvider      types.ProviderID `json:"default_provider"`
	TotalResults         int              `json:"total_results"`
	SimpleMode           bool             `json:"simple_mode"`
	VisitSpecificWebsite bool             `json:"visit_specific_website"`
	RequestTimeout       time.Duration    `json:"request_timeout"`
	UserAgent            string           `json:"user_agent"`

	// SearXNG
	SearXNGURL             string `json:"searxng_url"`
	SearXNGJSONMode        bool   `json:"searxng_json_mode"`
	AutoRestartSearXNG     bool   `json:"auto_restart_searxng"`
	RestartOnSearchFailure bool   `json:"restart_on_search_failure"`

	// API keys for commercial providers
	BingAPIKey   string `json:"-"`
	BraveAPIKey  string `json:"-"`
	TavilyAPIKey string `json:"-"`

	// Providers is keyed by lowercase provider name; unknown names are kept
	Providers map[string]ProviderOptions `json:"providers"`

	ResultFiltering map[string]interface{} `json:"result_filtering,omitempty"`

	// CacheTTL nil means the cache default applies
	CacheTTL *time.Duration `json:"cache_ttl,omitempty"`

	EnrichmentConcurrency int `json:"enrichment_concurrency"`
}

// Default returns settings with every field at its default value
func Default() *Settings {
	return &Settings{
		Enabled:               true,
		DefaultProvider:       DefaultProvider,
		TotalResults:          DefaultTotalResults,
		SimpleMode:            false,
		VisitSpecificWebsite:  true,
		RequestTimeout:        DefaultRequestTimeout,
		UserAgent:             DefaultUserAgent,
		SearXNGURL:            DefaultSearXNGURL,
		SearXNGJSONMode:       true,
		Providers:             make(map[string]ProviderOptions),
		ResultFiltering:       make(map[string]interface{}),
		EnrichmentConcurrency: DefaultEnrichmentConcurrency,
	}
}

// FromConfig builds Settings from a raw JSON/YAML-decoded map
func FromConfig(raw map[string]interface{}) *Settings {
	s := Default()
	if raw == nil {
		return s
	}
	raw = lowerKeys(raw)

	s.Enabled = boolOr(raw["enabled"], s.Enabled)

	if name := firstString(raw, "default_provider", "search_provider", "search_method"); name != "" {
		s.DefaultProvider, _ = types.ParseProviderID(name)
	}

	if n, ok := firstInt(raw, "total_results", "max_results"); ok && n >= 1 {
		s.TotalResults = n
	}

	s.SimpleMode = boolOr(raw["simple_mode"], s.SimpleMode)
	s.VisitSpecificWebsite = boolOr(raw["visit_specific_website"], s.VisitSpecificWebsite)

	if secs, err := cast.ToFloat64E(raw["timeout"]); err == nil && secs > 0 {
		s.RequestTimeout = time.Duration(secs * float64(time.Second))
	}

	if ua := stringOf(raw["user_agent"]); ua != "" {
		s.UserAgent = ua
	}

	if u := stringOf(raw["searxng_url"]); u != "" {
		s.SearXNGURL = strings.TrimRight(u, "/")
	}
	s.SearXNGJSONMode = boolOr(raw["searxng_json_mode"], s.SearXNGJSONMode)
	s.AutoRestartSearXNG = boolOr(raw["auto_restart_searxng"], s.AutoRestartSearXNG)
	s.RestartOnSearchFailure = boolOr(raw["restart_on_search_failure"], s.RestartOnSearchFailure)

	s.BingAPIKey = stringOf(raw["bing_api_key"])
	s.BraveAPIKey = stringOf(raw["brave_api_key"])
	s.TavilyAPIKey = stringOf(raw["tavily_api_key"])

	if providers, err := cast.ToStringMapE(raw["providers"]); err == nil {
		for name, v := range providers {
			s.Providers[strings.ToLower(strings.TrimSpace(name))] = parseProviderOptions(v)
		}
	}

	if filtering, err := cast.ToStringMapE(raw["result_filtering"]); err == nil {
		s.ResultFiltering = filtering
	}

	if ttl, err := cast.ToInt64E(raw["cache_ttl"]); err == nil && raw["cache_ttl"] != nil && ttl > 0 {
		d := time.Duration(ttl) * time.Second
		s.CacheTTL = &d
	}

	if n, err := cast.ToIntE(raw["enrichment_concurrency"]); err == nil && n > 0 {
		if n > maxEnrichmentConcurrency {
			n = maxEnrichmentConcurrency
		}
		s.EnrichmentConcurrency = n
	}

	return s
}

// ProviderEnabled reports whether the toggle for id is absent or true
func (s *Settings) ProviderEnabled(id types.ProviderID) bool {
	opts, ok := s.Providers[string(id)]
	if !ok || opts.Enabled == nil {
		return true
	}
	return *opts.Enabled
}

// ProviderOptionsFor returns the per-provider block, zero value when absent
func (s *Settings) ProviderOptionsFor(id types.ProviderID) ProviderOptions {
	return s.Providers[string(id)]
}

// APIKeyFor resolves a provider API key, preferring providers.<name>.api_key
func (s *Settings) APIKeyFor(id types.ProviderID) string {
	if key := s.ProviderOptionsFor(id).APIKey; key != "" {
		return key
	}
	switch id {
	case types.ProviderBing:
		return s.BingAPIKey
	case types.ProviderBrave:
		return s.BraveAPIKey
	case types.ProviderTavily:
		return s.TavilyAPIKey
	}
	return ""
}

func parseProviderOptions(v interface{}) ProviderOptions {
	var opts ProviderOptions
	m, err := cast.ToStringMapE(v)
	if err != nil {
		// providers.<name>: false is accepted as a shorthand toggle
		if b, err := cast.ToBoolE(v); err == nil && v != nil {
			opts.Enabled = &b
		}
		return opts
	}
	m = lowerKeys(m)
	if raw, ok := m["enabled"]; ok {
		if b, err := cast.ToBoolE(raw); err == nil {
			opts.Enabled = &b
		}
	}
	opts.APIHost = strings.TrimRight(stringOf(m["api_host"]), "/")
	opts.APIKey = stringOf(m["api_key"])
	return opts
}

func lowerKeys(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

func boolOr(v interface{}, def bool) bool {
	if v == nil {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

func stringOf(v interface{}) string {
	if v == nil {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstString(raw map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s := stringOf(raw[k]); s != "" {
			return s
		}
	}
	return ""
}

func firstInt(raw map[string]interface{}, keys ...string) (int, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		n, err := cast.ToIntE(v)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
