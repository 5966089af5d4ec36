package types

// Source types used in citation lists
const (
	SourceTypeURL    = "url"
	SourceTypeDirect = "direct"
)

// Source is one citation entry derived from a result URL
type Source struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// SearchExecution is the record of a single search call. It is not modified after it is returned.
type SearchExecution struct {
	ID       string          `json:"id"`
	Query    string          `json:"query"`
	Provider string          `json:"provider"`
	Success  bool            `json:"success"`
	Results  []*SearchResult `json:"results"`
	Prompt   string          `json:"prompt"`
	Sources  []Source        `json:"sources"`
	Error    string          `json:"error,omitempty"`
}

// Failed builds an unsuccessful execution
func Failed(id, query, provider, message string) *SearchExecution {
	return &SearchExecution{
		ID:       id,
		Query:    query,
		Provider: provider,
		Success:  false,
		Results:  []*SearchResult{},
		Sources:  []Source{},
		Error:    message,
	}
}

// WithResults returns a copy of e carrying a different result set
func (e *SearchExecution) WithResults(results []*SearchResult, prompt string, sources []Source) *SearchExecution {
	c := *e
	c.Results = results
	c.Prompt = prompt
	c.Sources = sources
	return &c
}
