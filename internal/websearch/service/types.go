package service

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query      string `json:"query" binding:"required"`
	MaxResults int    `json:"max_results"`
	Provider   string `json:"provider"`
}

type ProvidersResponse struct {
	Providers []string `json:"providers"`
}

type ClearCacheResponse struct {
	Removed int `json:"removed"`
}
