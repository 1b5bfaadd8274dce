package urls

import (
	"context"
	"fmt"

	"irdin-archive/pkg/httpclient"
)

// URLExtractor extracts item URLs from an HTML page; pageURL resolves relative links
type URLExtractor func(html, pageURL string) ([]URL, error)

// HTMLFetcher fetches listing pages and extracts item URLs using a provided extractor
type HTMLFetcher struct {
	client    *httpclient.HTTPClient
	extractor URLExtractor
}

// NewHTMLFetcher creates a new HTML fetcher with the given client and extractor function
func NewHTMLFetcher(client *httpclient.HTTPClient, extractor URLExtractor) *HTMLFetcher {
	return &HTMLFetcher{
		client:    client,
		extractor: extractor,
	}
}

// Fetch implements URLsFetcher. A page without item links is not an error;
// an empty slice is returned. Non-2xx responses come back as *httpclient.StatusError.
func (f *HTMLFetcher) Fetch(ctx context.Context, pageURL string) ([]URL, error) {
	if f.extractor == nil {
		return nil, fmt.Errorf("extractor function is not set")
	}

	body, err := f.client.GetBody(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch HTML: %w", err)
	}

	found, err := f.extractor(string(body), pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to extract URLs: %w", err)
	}
	return found, nil
}
