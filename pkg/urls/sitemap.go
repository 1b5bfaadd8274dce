package urls

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"irdin-archive/pkg/httpclient"

	"go.uber.org/zap"
)

// maxIndexDepth stops runaway recursion through nested sitemap indexes
const maxIndexDepth = 3

// SitemapFetcher reads item URLs from an XML sitemap, following sitemap indexes
type SitemapFetcher struct {
	client *httpclient.HTTPClient
	logger *zap.Logger
}

// NewSitemapFetcher creates a new sitemap fetcher
func NewSitemapFetcher(client *httpclient.HTTPClient, logger *zap.Logger) *SitemapFetcher {
	return &SitemapFetcher{client: client, logger: logger}
}

// Fetch implements URLsFetcher
func (f *SitemapFetcher) Fetch(ctx context.Context, sitemapURL string) ([]URL, error) {
	return f.fetch(ctx, sitemapURL, 0)
}

func (f *SitemapFetcher) fetch(ctx context.Context, sitemapURL string, depth int) ([]URL, error) {
	body, err := f.client.GetBody(ctx, sitemapURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sitemap: %w", err)
	}

	// Only the head of the document is needed to tell an index from a urlset
	head := body
	if len(head) > 512 {
		head = head[:512]
	}

	if !strings.Contains(string(head), "sitemapindex") {
		return parseSitemap(bytes.NewReader(body))
	}

	if depth >= maxIndexDepth {
		return nil, fmt.Errorf("sitemap index nesting deeper than %d", maxIndexDepth)
	}

	children, err := parseSitemapIndex(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse sitemap index: %w", err)
	}

	var all []URL
	for _, child := range children {
		found, err := f.fetch(ctx, child, depth+1)
		if err != nil {
			// One broken child sitemap should not hide the others
			f.logger.Warn("skipping sitemap", zap.String("url", child), zap.Error(err))
			continue
		}
		all = append(all, found...)
	}
	return all, nil
}

// parseSitemapIndex parses a sitemap index file
func parseSitemapIndex(reader io.Reader) ([]string, error) {
	var index sitemapIndex
	if err := xml.NewDecoder(reader).Decode(&index); err != nil {
		return nil, fmt.Errorf("failed to decode sitemap index XML: %w", err)
	}

	locations := make([]string, 0, len(index.Sitemaps))
	for _, ref := range index.Sitemaps {
		if loc := strings.TrimSpace(ref.Location); loc != "" {
			locations = append(locations, loc)
		}
	}
	return locations, nil
}

// parseSitemap parses a regular sitemap XML
func parseSitemap(reader io.Reader) ([]URL, error) {
	var set urlSet
	if err := xml.NewDecoder(reader).Decode(&set); err != nil {
		return nil, fmt.Errorf("failed to decode sitemap XML: %w", err)
	}

	found := make([]URL, 0, len(set.URLs))
	for _, entry := range set.URLs {
		if loc := strings.TrimSpace(entry.Location); loc != "" {
			found = append(found, URL{Location: loc})
		}
	}
	return found, nil
}

type urlSet struct {
	XMLName xml.Name   `xml:"urlset"`
	URLs    []urlEntry `xml:"url"`
}

type urlEntry struct {
	Location string `xml:"loc"`
	LastMod  string `xml:"lastmod,omitempty"`
}

type sitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []sitemapRef `xml:"sitemap"`
}

type sitemapRef struct {
	Location string `xml:"loc"`
}
