package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultDocument ResultType = "document"
	ResultCategory ResultType = "category"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Snippet    string     `json:"snippet"`
	CategoryID string     `json:"categoryId,omitempty"`
	MimeType   string     `json:"mimeType,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text             string
	FilterType       ResultType // empty = all types
	FilterCategoryID string
	Limit            int
	Offset           int
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

// DocumentRecord is the data indexed per document.
type DocumentRecord struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CategoryID string `json:"categoryId"`
	MimeType   string `json:"mimeType"`
}

// CategoryRecord is the data indexed per category.
type CategoryRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
