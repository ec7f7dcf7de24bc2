package harnessports

import "context"

// Searcher turns a query into a single digest of result snippets.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string) (string, error)
}

// Fetcher returns the visible text of a web page, bounded in length.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}
