package search

import "context"

// Result is a single search hit returned to the caller.
type Result struct {
	ID        string `json:"id"`
	AuthorID  string `json:"authorId"`
	Snippet   string `json:"snippet"`
	CreatedAt int64  `json:"createdAt"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Engine  string   `json:"engine"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// PostRecord is the data we index for a post.
type PostRecord struct {
	ID        string   `json:"id"`
	AuthorID  string   `json:"authorId"`
	Content   string   `json:"content"`
	TagIDs    []string `json:"tagIds"`
	CreatedAt int64    `json:"createdAt"`
}
