package types

// SearchRequest represents a search request sent to a single provider
type SearchRequest struct {
	Query      string `json:"query" validate:"required,min=1,max=1000"`
	MaxResults int    `json:"max_results,omitempty" validate:"omitempty,min=0,max=100"`
	Language   string `json:"language,omitempty"`
}
