package scraper

import (
	"context"
	"fmt"
	"time"

	"irdin-archive/pkg/content"
	"irdin-archive/pkg/db"
	"irdin-archive/pkg/domain"
	"irdin-archive/pkg/httpclient"
	"irdin-archive/pkg/metrics"
	"irdin-archive/pkg/worker"

	"go.uber.org/zap"
)

// DefaultWorkers is the pool size when Options.Workers is not set
const DefaultWorkers = 4

// Options controls one scraper run
type Options struct {
	Workers int
	Delay   time.Duration
	// Limit caps the number of sources; 0 means all pending
	Limit int
}

// Summary reports a scraper run
type Summary struct {
	Total     int
	Done      int
	Errors    int
	NewTracks int
}

// Scraper fetches unscraped detail pages concurrently and stores what they describe
type Scraper struct {
	store     *db.Store
	newClient func() *httpclient.HTTPClient
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// New creates a Scraper. newClient is called once per worker; nil uses a browser-profile client.
func New(store *db.Store, newClient func() *httpclient.HTTPClient, logger *zap.Logger, m *metrics.Metrics) *Scraper {
	if newClient == nil {
		newClient = func() *httpclient.HTTPClient { return httpclient.NewClient(httpclient.BrowserClient) }
	}
	return &Scraper{
		store:     store,
		newClient: newClient,
		logger:    logger.Named("scraper"),
		metrics:   m,
	}
}

// job carries a source through the pool; newTracks is written by the worker
// and read by the aggregator after the result is received
type job struct {
	source    domain.Source
	newTracks int
}

// Run scrapes every Source with no ScrapedOn. Per-item failures are logged and counted;
// only a failure to select the work is returned as an error.
func (s *Scraper) Run(ctx context.Context, opts Options) (Summary, error) {
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}

	sources, err := s.store.UnscrapedSources(ctx, opts.Limit)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Total: len(sources)}
	if len(sources) == 0 {
		s.logger.Info("nothing to scrape")
		return summary, nil
	}

	jobs := make([]*job, len(sources))
	for i := range sources {
		jobs[i] = &job{source: sources[i]}
	}

	s.logger.Info("scraping sources", zap.Int("count", len(jobs)), zap.Int("workers", opts.Workers))

	newHandler := func(workerID int) worker.Handler[*job] {
		client := s.newClient()
		session := s.store.Session()
		return func(ctx context.Context, j *job) error {
			defer func() { _ = worker.Sleep(ctx, opts.Delay) }()
			// A started item is finished even after cancellation
			n, err := scrapeOne(context.WithoutCancel(ctx), client, session, &j.source)
			j.newTracks = n
			return err
		}
	}

	finished := 0
	stats := worker.Run(ctx, opts.Workers, jobs, newHandler, func(res worker.Result[*job]) {
		finished++
		slug := res.Item.source.Slug
		if res.Err != nil {
			s.metrics.ItemProcessed("scrape", "error")
			s.logger.Error("scrape failed",
				zap.String("slug", slug),
				zap.Int("worker", res.WorkerID),
				zap.Error(res.Err))
		} else {
			summary.NewTracks += res.Item.newTracks
			s.metrics.ItemProcessed("scrape", "ok")
			s.logger.Info("scraped",
				zap.String("slug", slug),
				zap.Int("new_tracks", res.Item.newTracks),
				zap.String("progress", fmt.Sprintf("%d/%d", finished, len(jobs))))
		}
	})

	summary.Done, summary.Errors = stats.Done, stats.Errors
	s.logger.Info("scrape complete",
		zap.Int("done", summary.Done),
		zap.Int("errors", summary.Errors),
		zap.Int("new_tracks", summary.NewTracks),
		zap.Int("skipped", summary.Total-summary.Done-summary.Errors))
	return summary, nil
}

// scrapeOne fetches and parses one detail page and persists it. It returns the number of new tracks.
func scrapeOne(ctx context.Context, client *httpclient.HTTPClient, store *db.Store, src *domain.Source) (int, error) {
	body, err := client.GetBody(ctx, src.URL)
	if err != nil {
		return 0, fmt.Errorf("fetch detail page: %w", err)
	}

	product, err := content.ParseProduct(string(body), src.URL)
	if err != nil {
		return 0, err
	}
	product.ApplyTo(src)

	tracks := make([]domain.Track, 0, len(product.Tracks))
	for _, t := range product.Tracks {
		tracks = append(tracks, domain.Track{Name: t.Name, RemoteURL: t.URL})
	}

	return store.SaveScrape(ctx, src, product.Authors, tracks)
}
