package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"irdin-archive/pkg/domain"
	"irdin-archive/pkg/metrics"

	"go.uber.org/zap"
)

var (
	// ErrAudioMissing is reported for a track whose local file is gone
	ErrAudioMissing = errors.New("local audio file missing")

	// ErrEmptyTranscript is reported when the engine recognised no speech; nothing is stored
	ErrEmptyTranscript = errors.New("backend returned no text")
)

// TrackStore is the part of the record store the transcriber needs
type TrackStore interface {
	TracksToTranscribe(ctx context.Context, method string, retranscribe bool, limit int) ([]domain.Track, error)
	SaveTranscription(ctx context.Context, id uint, plain, timecoded, method string) error
}

// Options controls one transcriber run
type Options struct {
	Limit        int
	Retranscribe bool
}

// Summary reports a transcriber run
type Summary struct {
	Transcribed int
	Skipped     int
	Errors      int
}

// Transcriber runs a Backend over downloaded tracks, one at a time
type Transcriber struct {
	store     TrackStore
	backend   Backend
	mediaRoot string
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewTranscriber creates a Transcriber. Track local paths are resolved against mediaRoot.
func NewTranscriber(store TrackStore, backend Backend, mediaRoot string, logger *zap.Logger, m *metrics.Metrics) *Transcriber {
	return &Transcriber{
		store:     store,
		backend:   backend,
		mediaRoot: mediaRoot,
		logger:    logger.Named("transcribe"),
		metrics:   m,
	}
}

// Run transcribes every eligible track. Only selection and backend loading fail the run.
func (t *Transcriber) Run(ctx context.Context, opts Options) (Summary, error) {
	var summary Summary
	method := Fingerprint(t.backend)

	tracks, err := t.store.TracksToTranscribe(ctx, method, opts.Retranscribe, opts.Limit)
	if err != nil {
		return summary, err
	}
	t.logger.Info("tracks to transcribe", zap.Int("count", len(tracks)), zap.String("method", method))
	if len(tracks) == 0 {
		return summary, nil
	}

	t.logger.Info("loading backend", zap.String("backend", t.backend.Name()), zap.String("model", t.backend.Model()))
	if err := t.backend.Load(ctx); err != nil {
		return summary, err
	}

	for i := range tracks {
		if ctx.Err() != nil {
			break
		}
		track := &tracks[i]
		log := t.logger.With(
			zap.Uint("track", track.ID),
			zap.String("name", track.Name),
			zap.String("progress", fmt.Sprintf("%d/%d", i+1, len(tracks))))

		audioPath := filepath.Join(t.mediaRoot, filepath.FromSlash(track.LocalPath))
		if !fileExists(track.LocalPath, audioPath) {
			summary.Skipped++
			t.metrics.ItemProcessed("transcribe", "missing")
			log.Error("skipping track", zap.String("path", audioPath), zap.Error(ErrAudioMissing))
			continue
		}

		// The engine run and the save finish even when the run is cancelled meanwhile
		words, err := t.transcribeOne(context.WithoutCancel(ctx), track.ID, audioPath, method)
		if err != nil {
			summary.Errors++
			t.metrics.ItemProcessed("transcribe", "error")
			log.Error("transcription failed", zap.Error(err))
			continue
		}

		summary.Transcribed++
		t.metrics.ItemProcessed("transcribe", "ok")
		log.Info("transcribed", zap.Int("words", words))
	}

	t.logger.Info("transcription complete",
		zap.Int("transcribed", summary.Transcribed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errors", summary.Errors))
	return summary, nil
}

func (t *Transcriber) transcribeOne(ctx context.Context, id uint, audioPath, method string) (int, error) {
	res, err := t.backend.Transcribe(ctx, audioPath)
	if err != nil {
		return 0, err
	}

	plain := PlainText(res.Segments)
	if plain == "" {
		return 0, ErrEmptyTranscript
	}
	timecoded := Timecoded(res.Segments)

	if err := WriteSidecars(audioPath, plain, timecoded); err != nil {
		return 0, err
	}
	if err := t.store.SaveTranscription(ctx, id, plain, timecoded, method); err != nil {
		return 0, err
	}
	return len(strings.Fields(plain)), nil
}

// SidecarPaths returns the plain and timecoded transcript files of an audio file
func SidecarPaths(audioPath string) (plain, timecoded string) {
	base := strings.TrimSuffix(audioPath, filepath.Ext(audioPath))
	return base + ".txt", base + ".timecoded.txt"
}

// WriteSidecars stores both renderings next to the audio file
func WriteSidecars(audioPath, plain, timecoded string) error {
	plainPath, tcPath := SidecarPaths(audioPath)
	if err := os.WriteFile(plainPath, []byte(plain), 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := os.WriteFile(tcPath, []byte(timecoded), 0o644); err != nil {
		return fmt.Errorf("write timecoded transcript: %w", err)
	}
	return nil
}

func fileExists(localPath, path string) bool {
	if localPath == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
