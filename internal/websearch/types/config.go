package types

import "strings"

type ProviderID string

const (
	ProviderSearXNG    ProviderID = "searxng"
	ProviderDuckDuckGo ProviderID = "duckduckgo"
	ProviderBing       ProviderID = "bing"
	ProviderBrave      ProviderID = "brave"
	ProviderTavily     ProviderID = "tavily"
)

// Labels reported in SearchExecution.Provider when no real provider ran
const (
	ProviderLabelDisabled  = "disabled"
	ProviderLabelDirectURL = "direct-url"
	ProviderLabelUnknown   = "unknown"
)

// KnownProviders lists every provider the factory can build, in fallback order
func KnownProviders() []ProviderID {
	return []ProviderID{
		ProviderSearXNG,
		ProviderDuckDuckGo,
		ProviderBing,
		ProviderBrave,
		ProviderTavily,
	}
}

// ParseProviderID normalizes a provider name and reports whether it is a known provider
func ParseProviderID(name string) (ProviderID, bool) {
	id := ProviderID(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range KnownProviders() {
		if id == known {
			return id, true
		}
	}
	return id, false
}

func (id ProviderID) String() string {
	return string(id)
}

// ProviderConfig represents search provider configuration
type ProviderConfig struct {
	ID   ProviderID `json:"id" yaml:"id"`
	Name string     `json:"name" yaml:"name"`

	// API settings
	APIHost string `json:"api_host" yaml:"api_host"`
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// SearXNG Basic Auth
	BasicAuthUsername string `json:"basic_auth_username,omitempty" yaml:"basic_auth_username,omitempty"`
	BasicAuthPassword string `json:"basic_auth_password,omitempty" yaml:"basic_auth_password,omitempty"`

	// SearXNG answers in JSON when true, HTML otherwise
	JSONMode bool `json:"json_mode,omitempty" yaml:"json_mode,omitempty"`

	// Optional settings
	UserAgent  string `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
	Timeout    int    `json:"timeout,omitempty" yaml:"timeout,omitempty"`         // seconds
	MaxRetries int    `json:"max_retries,omitempty" yaml:"max_retries,omitempty"` // default: 1
}

// Validate validates the provider configuration
func (c *ProviderConfig) Validate() error {
	if c.ID == "" {
		return ErrInvalidProviderID
	}
	if c.Name == "" {
		return ErrInvalidProviderName
	}
	if c.APIHost == "" {
		return ErrInvalidAPIHost
	}

	switch c.ID {
	case ProviderSearXNG:
		if c.BasicAuthUsername != "" && c.BasicAuthPassword == "" {
			return ErrMissingBasicAuthPassword
		}
	case ProviderDuckDuckGo:
		// scraped, no credentials
	default:
		if c.APIKey == "" {
			return ErrMissingAPIKey
		}
	}

	return nil
}
