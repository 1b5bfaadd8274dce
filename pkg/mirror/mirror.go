package mirror

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"irdin-archive/pkg/domain"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize = 100
	DefaultWorkers   = 5
)

// SourceReader pages through scraped catalog items
type SourceReader interface {
	ScrapedSources(ctx context.Context, offset, limit int) ([]domain.Source, error)
}

// DocumentWriter stores catalog documents keyed by slug
type DocumentWriter interface {
	UpsertSources(ctx context.Context, docs []*domain.SourceDocument) (int, error)
	MirroredSlugs(ctx context.Context) (map[string]bool, error)
}

// Config wires the mirror dependencies.
type Config struct {
	Store     SourceReader
	Documents DocumentWriter
	Logger    *zap.Logger

	BatchSize int
	Workers   int
}

// Summary reports a mirror run. Updated counts documents that already existed.
// Stale lists mirrored slugs, sorted, that are no longer scraped sources of the catalog;
// they are reported and left in place.
type Summary struct {
	Processed int
	Inserted  int
	Updated   int
	Stale     []string
}

// Mirror copies the scraped catalog into a document store.
//
// This is a one-shot, "copy everything" flow: every scraped Source is upserted on each run.
type Mirror struct {
	store     SourceReader
	docs      DocumentWriter
	logger    *zap.Logger
	batchSize int
	workers   int
	now       func() time.Time
}

func NewMirror(cfg Config) (*Mirror, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if cfg.Documents == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Mirror{
		store:     cfg.Store,
		docs:      cfg.Documents,
		logger:    cfg.Logger.Named("mirror"),
		batchSize: cfg.BatchSize,
		workers:   cfg.Workers,
		now:       time.Now,
	}, nil
}

// Run reads the catalog in batches and upserts them concurrently. The first failing
// batch cancels the rest and its error is returned.
func (m *Mirror) Run(ctx context.Context) (Summary, error) {
	existing, err := m.docs.MirroredSlugs(ctx)
	if err != nil {
		return Summary{}, err
	}
	m.logger.Info("starting mirror", zap.Int("already_mirrored", len(existing)))

	var (
		mu      sync.Mutex
		summary Summary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for offset := 0; ; offset += m.batchSize {
		if gctx.Err() != nil {
			break
		}
		batch, err := m.store.ScrapedSources(gctx, offset, m.batchSize)
		if err != nil {
			// A failed batch cancels gctx; report that error rather than the cancellation
			if werr := g.Wait(); werr != nil {
				return summary, werr
			}
			return summary, err
		}
		if len(batch) == 0 {
			break
		}

		start := offset
		g.Go(func() error {
			inserted, err := m.processBatch(gctx, batch)
			if err != nil {
				return fmt.Errorf("mirror batch [%d:%d]: %w", start, start+len(batch), err)
			}

			mu.Lock()
			for i := range batch {
				delete(existing, batch[i].Slug)
			}
			summary.Processed += len(batch)
			summary.Inserted += inserted
			processed := summary.Processed
			mu.Unlock()

			m.logger.Info("batch mirrored",
				zap.Int("offset", start),
				zap.Int("size", len(batch)),
				zap.Int("inserted", inserted),
				zap.Int("processed", processed))
			return nil
		})

		if len(batch) < m.batchSize {
			break
		}
	}

	err = g.Wait()
	summary.Updated = summary.Processed - summary.Inserted
	if err != nil {
		return summary, err
	}

	for slug := range existing {
		summary.Stale = append(summary.Stale, slug)
	}
	sort.Strings(summary.Stale)
	if len(summary.Stale) > 0 {
		m.logger.Warn("mirrored documents without a catalog source",
			zap.Int("count", len(summary.Stale)),
			zap.Strings("slugs", summary.Stale))
	}

	m.logger.Info("mirror complete",
		zap.Int("processed", summary.Processed),
		zap.Int("inserted", summary.Inserted),
		zap.Int("updated", summary.Updated))
	return summary, nil
}

func (m *Mirror) processBatch(ctx context.Context, batch []domain.Source) (int, error) {
	now := m.now().UTC()
	docs := make([]*domain.SourceDocument, 0, len(batch))
	for i := range batch {
		docs = append(docs, domain.NewSourceDocument(&batch[i], now))
	}
	return m.docs.UpsertSources(ctx, docs)
}
