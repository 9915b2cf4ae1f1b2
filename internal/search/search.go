// Package search provides full-text search over persisted transcripts for
// the admin history views.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID          string `json:"id"`
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName,omitempty"`
	Role        string `json:"role"`
	Snippet     string `json:"snippet"`
	Sequence    int64  `json:"sequence"`
}

// Query describes a search request.
type Query struct {
	Text      string
	AccountID string // empty = all accounts
	Limit     int
	Offset    int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// MessageRecord is the data indexed per transcript message.
type MessageRecord struct {
	ID        string `json:"id"`
	AccountID string `json:"accountId"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Sequence  int64  `json:"sequence"`
}
