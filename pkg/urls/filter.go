package urls

import (
	"context"
	"net/url"
	"strings"
)

// UrlFilter defines the interface for URL filtering
type UrlFilter interface {
	ShouldKeep(ctx context.Context, url string) (bool, error)
}

// BaseURLFilter filters out base/root URLs
type BaseURLFilter struct{}

// NewBaseURLFilter creates a new base URL filter
func NewBaseURLFilter() *BaseURLFilter {
	return &BaseURLFilter{}
}

// ShouldKeep returns false if URL is a base/root URL
func (f *BaseURLFilter) ShouldKeep(ctx context.Context, urlStr string) (bool, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false, nil
	}
	return strings.Trim(parsed.Path, "/") != "", nil
}

// ContainsPathFilter keeps only URLs containing a path marker such as "/produtos/"
type ContainsPathFilter struct {
	pathSegment string
}

// NewContainsPathFilter creates a new path filter that keeps URLs containing the specified path segment
func NewContainsPathFilter(pathSegment string) *ContainsPathFilter {
	return &ContainsPathFilter{
		pathSegment: pathSegment,
	}
}

// ShouldKeep returns true if URL contains the specified path segment
func (f *ContainsPathFilter) ShouldKeep(ctx context.Context, urlStr string) (bool, error) {
	return strings.Contains(urlStr, f.pathSegment), nil
}

// Apply returns the URLs every filter keeps, dropping duplicates and preserving order
func Apply(ctx context.Context, found []URL, filters ...UrlFilter) ([]URL, error) {
	seen := make(map[string]bool, len(found))
	kept := make([]URL, 0, len(found))

next:
	for _, u := range found {
		if seen[u.Location] {
			continue
		}
		for _, f := range filters {
			keep, err := f.ShouldKeep(ctx, u.Location)
			if err != nil {
				return nil, err
			}
			if !keep {
				continue next
			}
		}
		seen[u.Location] = true
		kept = append(kept, u)
	}
	return kept, nil
}
