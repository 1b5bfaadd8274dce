package urls

import "context"

// URL represents an item URL found by a fetcher (listing page, sitemap or feed)
type URL struct {
	Location string // absolute URL of the item page
	Title    string // link text, when available
}

// URLsFetcher defines the interface for item URL sources
type URLsFetcher interface {
	Fetch(ctx context.Context, sourceURL string) ([]URL, error)
}
