package provider

import (
	"math"

	"github.com/lk2023060901/ai-search-backend/internal/websearch/settings"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/types"
)

// Default API hosts
const (
	DefaultDuckDuckGoHost = "https://html.duckduckgo.com"
	DefaultBingHost       = "https://api.bing.microsoft.com"
	DefaultBraveHost      = "https://api.search.brave.com"
	DefaultTavilyHost     = "https://api.tavily.com"
)

// Capabilities records which providers can be built with the current settings.
// It is computed once at startup and handed to the registry.
type Capabilities struct {
	SearXNG    bool `json:"searxng"`
	DuckDuckGo bool `json:"duckduckgo"`
	Bing       bool `json:"bing"`
	Brave      bool `json:"brave"`
	Tavily     bool `json:"tavily"`
}

// DetectCapabilities inspects settings for the endpoints and credentials each provider needs
func DetectCapabilities(s *settings.Settings) Capabilities {
	return Capabilities{
		SearXNG:    hostFor(s, types.ProviderSearXNG) != "",
		DuckDuckGo: true,
		Bing:       s.APIKeyFor(types.ProviderBing) != "",
		Brave:      s.APIKeyFor(types.ProviderBrave) != "",
		Tavily:     s.APIKeyFor(types.ProviderTavily) != "",
	}
}

// Available reports the capability for id
func (c Capabilities) Available(id types.ProviderID) bool {
	switch id {
	case types.ProviderSearXNG:
		return c.SearXNG
	case types.ProviderDuckDuckGo:
		return c.DuckDuckGo
	case types.ProviderBing:
		return c.Bing
	case types.ProviderBrave:
		return c.Brave
	case types.ProviderTavily:
		return c.Tavily
	}
	return false
}

// ConfigFor builds the provider config for id from settings
func ConfigFor(s *settings.Settings, id types.ProviderID) *types.ProviderConfig {
	timeout := int(math.Ceil(s.RequestTimeout.Seconds()))
	if timeout < 1 {
		timeout = 1
	}

	return &types.ProviderConfig{
		ID:         id,
		Name:       displayName(id),
		APIHost:    hostFor(s, id),
		APIKey:     s.APIKeyFor(id),
		JSONMode:   s.SearXNGJSONMode,
		UserAgent:  s.UserAgent,
		Timeout:    timeout,
		MaxRetries: 1,
	}
}

func hostFor(s *settings.Settings, id types.ProviderID) string {
	if host := s.ProviderOptionsFor(id).APIHost; host != "" {
		return host
	}
	switch id {
	case types.ProviderSearXNG:
		return s.SearXNGURL
	case types.ProviderDuckDuckGo:
		return DefaultDuckDuckGoHost
	case types.ProviderBing:
		return DefaultBingHost
	case types.ProviderBrave:
		return DefaultBraveHost
	case types.ProviderTavily:
		return DefaultTavilyHost
	}
	return ""
}

func displayName(id types.ProviderID) string {
	switch id {
	case types.ProviderSearXNG:
		return "SearXNG"
	case types.ProviderDuckDuckGo:
		return "DuckDuckGo"
	case types.ProviderBing:
		return "Bing"
	case types.ProviderBrave:
		return "Brave"
	case types.ProviderTavily:
		return "Tavily"
	}
	return string(id)
}
