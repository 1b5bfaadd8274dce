package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"irdin-archive/pkg/domain"
	"irdin-archive/pkg/httpclient"
	"irdin-archive/pkg/metrics"
	"irdin-archive/pkg/sites"
	"irdin-archive/pkg/urls"
	"irdin-archive/pkg/worker"

	"go.uber.org/zap"
)

// StopReason tells why pagination ended. Every reason is a normal termination.
type StopReason string

const (
	StopEmptyPage StopReason = "empty_page"
	StopNotFound  StopReason = "not_found"
	StopHTTPError StopReason = "http_error"
	StopTransport StopReason = "transport_error"
	StopMaxPages  StopReason = "max_pages"
	StopCancelled StopReason = "cancelled"
	StopExhausted StopReason = "source_exhausted"
)

// SourceStore is the part of the record store discovery writes to
type SourceStore interface {
	CreateSourceIfMissing(ctx context.Context, slug, url string) (bool, error)
}

// Options controls one discovery run
type Options struct {
	StartPage int
	Delay     time.Duration
	// MaxPages bounds the number of listing pages visited; 0 means until the listing ends
	MaxPages int
}

// Summary reports a discovery run
type Summary struct {
	Created int
	Seen    int
	Pages   int
	Stop    StopReason
	// StopErr holds the fetch error behind StopHTTPError and StopTransport
	StopErr error
}

// Discoverer walks a URL source and records a Source stub for every item link
type Discoverer struct {
	store   SourceStore
	fetcher urls.URLsFetcher
	filters []urls.UrlFilter
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a Discoverer. Links not containing itemMarker are ignored.
func New(store SourceStore, fetcher urls.URLsFetcher, itemMarker string, logger *zap.Logger, m *metrics.Metrics) *Discoverer {
	return &Discoverer{
		store:   store,
		fetcher: fetcher,
		filters: []urls.UrlFilter{urls.NewBaseURLFilter(), urls.NewContainsPathFilter(itemMarker)},
		logger:  logger.Named("discovery"),
		metrics: m,
	}
}

// NewListing creates a Discoverer over the paginated catalog listing
func NewListing(store SourceStore, client *httpclient.HTTPClient, itemMarker string, logger *zap.Logger, m *metrics.Metrics) *Discoverer {
	return New(store, urls.NewHTMLFetcher(client, sites.ExtractListingURLs), itemMarker, logger, m)
}

// Paginate visits listing pages starting at opts.StartPage until a page yields no item
// links, returns 404, or fails. Store errors abort the run; fetch errors end it normally.
func (d *Discoverer) Paginate(ctx context.Context, listingURL string, opts Options) (Summary, error) {
	var summary Summary
	page := opts.StartPage
	if page < 1 {
		page = 1
	}

	for {
		if opts.MaxPages > 0 && summary.Pages >= opts.MaxPages {
			summary.Stop = StopMaxPages
			break
		}
		if ctx.Err() != nil {
			summary.Stop = StopCancelled
			break
		}

		pageURL := sites.ListingPageURL(listingURL, page)
		found, err := d.fetcher.Fetch(ctx, pageURL)
		summary.Pages++
		if err != nil {
			summary.Stop, summary.StopErr = classify(ctx, err), err
			d.logger.Info("listing ended", zap.Int("page", page), zap.String("reason", string(summary.Stop)), zap.Error(err))
			break
		}

		created, kept, err := d.record(ctx, found)
		summary.Created += created
		summary.Seen += kept
		if err != nil {
			return summary, err
		}
		if kept == 0 {
			summary.Stop = StopEmptyPage
			d.logger.Info("listing ended", zap.Int("page", page), zap.String("reason", string(summary.Stop)))
			break
		}

		d.logger.Info("page processed",
			zap.Int("page", page),
			zap.Int("links", kept),
			zap.Int("created", created))

		page++
		if err := worker.Sleep(ctx, opts.Delay); err != nil {
			summary.Stop = StopCancelled
			break
		}
	}

	d.logger.Info("discovery complete",
		zap.Int("created", summary.Created),
		zap.Int("seen", summary.Seen),
		zap.Int("pages", summary.Pages),
		zap.String("stop", string(summary.Stop)))
	return summary, nil
}

// Once reads a single non-paginated source such as a feed or a sitemap.
func (d *Discoverer) Once(ctx context.Context, sourceURL string) (Summary, error) {
	summary := Summary{Pages: 1, Stop: StopExhausted}

	found, err := d.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return summary, fmt.Errorf("fetch %s: %w", sourceURL, err)
	}

	created, kept, err := d.record(ctx, found)
	summary.Created, summary.Seen = created, kept
	if err != nil {
		return summary, err
	}

	d.logger.Info("discovery complete",
		zap.String("source", sourceURL),
		zap.Int("created", created),
		zap.Int("seen", kept))
	return summary, nil
}

// record filters the links and upserts a stub per item
func (d *Discoverer) record(ctx context.Context, found []urls.URL) (created, kept int, err error) {
	items, err := urls.Apply(ctx, found, d.filters...)
	if err != nil {
		return 0, 0, fmt.Errorf("filter links: %w", err)
	}

	for _, item := range items {
		slug := domain.SlugFromURL(item.Location)
		if slug == "" {
			continue
		}
		kept++

		isNew, err := d.store.CreateSourceIfMissing(ctx, slug, item.Location)
		if err != nil {
			return created, kept, err
		}
		if isNew {
			created++
			d.metrics.ItemProcessed("discover", "created")
			d.logger.Debug("new source", zap.String("slug", slug))
		} else {
			d.metrics.ItemProcessed("discover", "existing")
		}
	}
	return created, kept, nil
}

func classify(ctx context.Context, err error) StopReason {
	switch {
	case ctx.Err() != nil:
		return StopCancelled
	case httpclient.StatusCode(err) == http.StatusNotFound:
		return StopNotFound
	case errors.Is(err, httpclient.ErrStatus):
		return StopHTTPError
	default:
		return StopTransport
	}
}
