package concepts

import (
	"context"
	"fmt"

	"irdin-archive/pkg/domain"
	"irdin-archive/pkg/metrics"

	"go.uber.org/zap"
)

// Completer returns a model's raw reply for a transcription
type Completer interface {
	Complete(ctx context.Context, model, transcription string) (string, error)
}

// TrackStore is the part of the record store the extractor needs
type TrackStore interface {
	TracksForConcepts(ctx context.Context, limit int) ([]domain.Track, error)
	SaveConcepts(ctx context.Context, id uint, concepts []string, stamp bool) error
}

// Options controls one extractor run
type Options struct {
	Limit int
	Model string
}

// Summary reports an extractor run. Empty counts replies that held no usable list;
// those tracks stay eligible for the next run.
type Summary struct {
	Extracted int
	Empty     int
	Errors    int
}

// Extractor labels transcribed tracks with topic concepts, one track at a time
type Extractor struct {
	store   TrackStore
	llm     Completer
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewExtractor(store TrackStore, llm Completer, logger *zap.Logger, m *metrics.Metrics) *Extractor {
	return &Extractor{store: store, llm: llm, logger: logger.Named("concepts"), metrics: m}
}

func (e *Extractor) Run(ctx context.Context, opts Options) (Summary, error) {
	var summary Summary
	model := ResolveModel(opts.Model)

	tracks, err := e.store.TracksForConcepts(ctx, opts.Limit)
	if err != nil {
		return summary, err
	}
	e.logger.Info("tracks to label", zap.Int("count", len(tracks)), zap.String("model", model))

	for i := range tracks {
		if ctx.Err() != nil {
			break
		}
		track := &tracks[i]
		log := e.logger.With(
			zap.Uint("track", track.ID),
			zap.String("name", track.Name),
			zap.String("progress", fmt.Sprintf("%d/%d", i+1, len(tracks))))

		itemCtx := context.WithoutCancel(ctx)
		reply, err := e.llm.Complete(itemCtx, model, track.Transcription)
		if err != nil {
			summary.Errors++
			e.metrics.ItemProcessed("concepts", "error")
			log.Error("concept extraction failed", zap.Error(err))
			continue
		}

		labels, ok := ParseConcepts(reply)
		if err := e.store.SaveConcepts(itemCtx, track.ID, labels, ok); err != nil {
			summary.Errors++
			e.metrics.ItemProcessed("concepts", "error")
			log.Error("saving concepts failed", zap.Error(err))
			continue
		}

		if !ok {
			summary.Empty++
			e.metrics.ItemProcessed("concepts", "empty")
			log.Warn("no concept list in reply", zap.String("reply", truncate(reply, 200)))
			continue
		}
		summary.Extracted++
		e.metrics.ItemProcessed("concepts", "ok")
		log.Info("concepts extracted", zap.Int("count", len(labels)))
	}

	e.logger.Info("concept extraction complete",
		zap.Int("extracted", summary.Extracted),
		zap.Int("empty", summary.Empty),
		zap.Int("errors", summary.Errors))
	return summary, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
