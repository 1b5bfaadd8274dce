package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"irdin-archive/pkg/domain"
	"irdin-archive/pkg/httpclient"
	"irdin-archive/pkg/metrics"
	"irdin-archive/pkg/worker"

	"github.com/gofrs/flock"
	"github.com/h2non/filetype"
	"go.uber.org/zap"
)

// LocalDirName is the media-root-relative directory stored in Track.LocalPath
const LocalDirName = "audios"

var (
	// ErrLocked is returned when another downloader holds the audio directory
	ErrLocked = errors.New("audio directory is locked by another download run")

	// ErrNotAudio is returned when the received bytes do not look like an audio file
	ErrNotAudio = errors.New("response is not an audio file")
)

// TrackStore is the part of the record store the downloader needs
type TrackStore interface {
	PendingDownloads(ctx context.Context, limit int) ([]domain.Track, error)
	MarkDownloaded(ctx context.Context, id uint, localPath string) error
}

// Options controls one downloader run
type Options struct {
	Delay time.Duration
	Limit int
}

// Summary reports a downloader run
type Summary struct {
	Downloaded int
	Existing   int
	Errors     int
}

// Downloader fetches pending audio files one at a time
type Downloader struct {
	store    TrackStore
	client   *httpclient.HTTPClient
	audioDir string
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// New creates a Downloader writing into audioDir
func New(store TrackStore, client *httpclient.HTTPClient, audioDir string, logger *zap.Logger, m *metrics.Metrics) *Downloader {
	if client == nil {
		client = httpclient.New(httpclient.Config{Type: httpclient.BrowserClient, Timeout: httpclient.MediaTimeout, Streaming: true})
	}
	return &Downloader{
		store:    store,
		client:   client,
		audioDir: audioDir,
		logger:   logger.Named("downloader"),
		metrics:  m,
	}
}

// Run downloads every pending track sequentially, sleeping opts.Delay after each attempt.
func (d *Downloader) Run(ctx context.Context, opts Options) (Summary, error) {
	var summary Summary

	if err := os.MkdirAll(d.audioDir, 0o755); err != nil {
		return summary, fmt.Errorf("create audio directory: %w", err)
	}

	lock := flock.New(filepath.Join(d.audioDir, ".download.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return summary, fmt.Errorf("lock audio directory: %w", err)
	}
	if !locked {
		return summary, ErrLocked
	}
	defer func() { _ = lock.Unlock() }()

	tracks, err := d.store.PendingDownloads(ctx, opts.Limit)
	if err != nil {
		return summary, err
	}
	d.logger.Info("downloading tracks", zap.Int("count", len(tracks)))

	for i := range tracks {
		if ctx.Err() != nil {
			break
		}
		track := &tracks[i]

		// A started transfer runs to completion; cancellation only stops the next one
		existed, err := d.downloadOne(context.WithoutCancel(ctx), track)
		switch {
		case err != nil:
			summary.Errors++
			d.metrics.ItemProcessed("download", "error")
			d.logger.Error("download failed",
				zap.Uint("track", track.ID),
				zap.String("url", track.RemoteURL),
				zap.Error(err))
		case existed:
			summary.Existing++
			d.metrics.ItemProcessed("download", "existing")
			d.logger.Info("already on disk", zap.Uint("track", track.ID), zap.String("path", track.LocalPath))
			// Nothing was requested, so no delay is owed
			continue
		default:
			summary.Downloaded++
			d.metrics.ItemProcessed("download", "ok")
			d.logger.Info("downloaded",
				zap.Uint("track", track.ID),
				zap.String("path", track.LocalPath),
				zap.String("progress", fmt.Sprintf("%d/%d", i+1, len(tracks))))
		}

		if err := worker.Sleep(ctx, opts.Delay); err != nil {
			break
		}
	}

	d.logger.Info("download complete",
		zap.Int("downloaded", summary.Downloaded),
		zap.Int("existing", summary.Existing),
		zap.Int("errors", summary.Errors))
	return summary, nil
}

// downloadOne fetches one track. It reports existed=true when the file was already
// on disk and no request was made.
func (d *Downloader) downloadOne(ctx context.Context, track *domain.Track) (existed bool, err error) {
	filename := domain.FilenameFromURL(track.RemoteURL)
	if filename == "" || filename == "." || filename == ".." {
		return false, fmt.Errorf("cannot derive a file name from %q", track.RemoteURL)
	}
	dest := filepath.Join(d.audioDir, filename)
	localPath := path.Join(LocalDirName, filename)

	if _, err := os.Stat(dest); err == nil {
		if err := d.store.MarkDownloaded(ctx, track.ID, localPath); err != nil {
			return false, err
		}
		track.Downloaded, track.LocalPath = true, localPath
		return true, nil
	}

	if err := d.fetchTo(ctx, track.RemoteURL, dest); err != nil {
		return false, err
	}

	if err := d.store.MarkDownloaded(ctx, track.ID, localPath); err != nil {
		return false, err
	}
	track.Downloaded, track.LocalPath = true, localPath
	return false, nil
}

// fetchTo streams url into dest+".tmp" and renames it into place only after the
// whole body arrived and looks like audio. The temp file never survives a failure.
func (d *Downloader) fetchTo(ctx context.Context, url, dest string) (err error) {
	resp, err := d.client.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("request audio: %w", err)
	}
	defer resp.Body.Close()

	if err := httpclient.CheckStatus(resp); err != nil {
		return err
	}

	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	buf := make([]byte, 64*1024)
	if _, err = io.CopyBuffer(f, resp.Body, buf); err != nil {
		return fmt.Errorf("stream audio: %w", err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err = checkAudio(tmp); err != nil {
		return err
	}

	if err = os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("move into place: %w", err)
	}
	return nil
}

// hasFrameSync reports whether head starts with an MPEG audio frame header.
// filetype only knows the MPEG-1 Layer III sync; MPEG-2/2.5 and CRC-protected
// frames (FF F3, FF F2, FF FA) are common in low bitrate speech recordings.
func hasFrameSync(head []byte) bool {
	return len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0
}

// checkAudio sniffs the file header
func checkAudio(name string) error {
	head := make([]byte, 261)
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read header: %w", err)
	}
	if !hasFrameSync(head[:n]) && !filetype.IsAudio(head[:n]) {
		return ErrNotAudio
	}
	return nil
}
