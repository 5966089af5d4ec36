package biz

import (
	"net/url"
	"strings"

	"github.com/spf13/cast"

	"github.com/lk2023060901/ai-search-backend/internal/websearch/types"
)

// ResultFilter applies the result_filtering settings block
type ResultFilter struct {
	blockedDomains   []string
	allowedDomains   []string
	minSnippetLength int
	deduplicateURLs  bool
}

// NewResultFilter parses the opaque result_filtering map. Unknown keys are ignored.
func NewResultFilter(cfg map[string]interface{}) *ResultFilter {
	f := &ResultFilter{}
	if cfg == nil {
		return f
	}
	f.blockedDomains = domainList(cfg["blocked_domains"])
	f.allowedDomains = domainList(cfg["allowed_domains"])
	if n, err := cast.ToIntE(cfg["min_snippet_length"]); err == nil && n > 0 {
		f.minSnippetLength = n
	}
	f.deduplicateURLs = cast.ToBool(cfg["deduplicate_urls"])
	return f
}

// Active reports whether any rule is configured
func (f *ResultFilter) Active() bool {
	return len(f.blockedDomains) > 0 || len(f.allowedDomains) > 0 || f.minSnippetLength > 0 || f.deduplicateURLs
}

// Apply returns the results that pass every rule, in order, and how many were removed.
// Results without a URL are not subject to domain rules.
func (f *ResultFilter) Apply(results []*types.SearchResult) ([]*types.SearchResult, int) {
	if !f.Active() {
		return results, 0
	}

	seen := make(map[string]bool)
	kept := make([]*types.SearchResult, 0, len(results))
	for _, r := range results {
		if f.minSnippetLength > 0 && len([]rune(strings.TrimSpace(r.Snippet))) < f.minSnippetLength {
			continue
		}
		if r.URL != "" {
			host := hostOf(r.URL)
			if matchesAny(host, f.blockedDomains) {
				continue
			}
			if len(f.allowedDomains) > 0 && !matchesAny(host, f.allowedDomains) {
				continue
			}
			if f.deduplicateURLs {
				key := canonicalURL(r.URL)
				if seen[key] {
					continue
				}
				seen[key] = true
			}
		}
		kept = append(kept, r)
	}
	return kept, len(results) - len(kept)
}

func domainList(v interface{}) []string {
	var raw []string
	switch t := v.(type) {
	case string:
		raw = strings.Split(t, ",")
	default:
		raw = cast.ToStringSlice(v)
	}

	var out []string
	for _, d := range raw {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func matchesAny(host string, domains []string) bool {
	if host == "" {
		return false
	}
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func canonicalURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}
