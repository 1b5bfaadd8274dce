package urls

import (
	"bytes"
	"context"
	"fmt"

	"irdin-archive/pkg/httpclient"

	"github.com/mmcdole/gofeed"
)

// FeedFetcher reads item URLs from an RSS or Atom feed
type FeedFetcher struct {
	client     *httpclient.HTTPClient
	feedParser *gofeed.Parser
}

// NewFeedFetcher creates a new feed fetcher
func NewFeedFetcher(client *httpclient.HTTPClient) *FeedFetcher {
	return &FeedFetcher{
		client:     client,
		feedParser: gofeed.NewParser(),
	}
}

// Fetch implements URLsFetcher
func (f *FeedFetcher) Fetch(ctx context.Context, feedURL string) ([]URL, error) {
	body, err := f.client.GetBody(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	feed, err := f.feedParser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	found := make([]URL, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link == "" {
			continue
		}
		found = append(found, URL{Location: item.Link, Title: item.Title})
	}
	return found, nil
}
