package types

// SearchResponse represents a provider's normalized answer
type SearchResponse struct {
	Query    string          `json:"query"`
	Results  []*SearchResult `json:"results"`
	Took     int64           `json:"took"` // milliseconds
	Provider ProviderID      `json:"provider"`
}

// SearchResult represents a single search result.
// Snippet and Content are rewritten during enrichment; otherwise the value is not modified.
type SearchResult struct {
	Title          string   `json:"title"`
	URL            string   `json:"url,omitempty"` // empty for non-web hits
	Snippet        string   `json:"snippet"`
	Source         string   `json:"source"`
	Content        string   `json:"content,omitempty"`
	RelevanceScore *float64 `json:"relevance_score,omitempty"`
}

// Clone returns a deep copy of the result
func (r *SearchResult) Clone() *SearchResult {
	if r == nil {
		return nil
	}
	c := *r
	if r.RelevanceScore != nil {
		score := *r.RelevanceScore
		c.RelevanceScore = &score
	}
	return &c
}

// CloneResults deep-copies a result list
func CloneResults(results []*SearchResult) []*SearchResult {
	out := make([]*SearchResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r.Clone())
		}
	}
	return out
}
