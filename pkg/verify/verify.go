package verify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"irdin-archive/pkg/domain"
	"irdin-archive/pkg/httpclient"
	"irdin-archive/pkg/metrics"
	"irdin-archive/pkg/worker"

	"go.uber.org/zap"
)

// Status is the outcome of checking one track
type Status string

const (
	StatusOK           Status = "ok"
	StatusMissing      Status = "missing"
	StatusSizeMismatch Status = "size_mismatch"
	StatusCheckError   Status = "check_error"
)

// ErrNoContentLength is recorded when the server does not declare a size
var ErrNoContentLength = errors.New("no Content-Length in response")

// TrackStore is the part of the record store the verifier reads
type TrackStore interface {
	DownloadedTracks(ctx context.Context, limit int) ([]domain.Track, error)
}

// Options controls one verifier run
type Options struct {
	Delay time.Duration
	Limit int
}

// Check is the result for one track
type Check struct {
	TrackID    uint
	Filename   string
	Status     Status
	LocalSize  int64
	RemoteSize int64
	Err        error
}

// Report aggregates a verifier run. The id lists feed Reset.
type Report struct {
	Checked      int
	OK           int
	Missing      []uint
	SizeMismatch []uint
	CheckErrors  []uint
}

// NeedsReset returns the tracks whose local file is missing or incomplete
func (r *Report) NeedsReset() []uint {
	ids := make([]uint, 0, len(r.Missing)+len(r.SizeMismatch))
	ids = append(ids, r.Missing...)
	return append(ids, r.SizeMismatch...)
}

func (r *Report) add(c Check) {
	r.Checked++
	switch c.Status {
	case StatusOK:
		r.OK++
	case StatusMissing:
		r.Missing = append(r.Missing, c.TrackID)
	case StatusSizeMismatch:
		r.SizeMismatch = append(r.SizeMismatch, c.TrackID)
	default:
		r.CheckErrors = append(r.CheckErrors, c.TrackID)
	}
}

// Verifier compares downloaded files with the size the server declares. It never
// changes track state.
type Verifier struct {
	store    TrackStore
	client   *httpclient.HTTPClient
	audioDir string
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func New(store TrackStore, client *httpclient.HTTPClient, audioDir string, logger *zap.Logger, m *metrics.Metrics) *Verifier {
	if client == nil {
		client = httpclient.NewClient(httpclient.BrowserClient)
	}
	return &Verifier{store: store, client: client, audioDir: audioDir, logger: logger.Named("verify"), metrics: m}
}

func (v *Verifier) Run(ctx context.Context, opts Options) (*Report, error) {
	tracks, err := v.store.DownloadedTracks(ctx, opts.Limit)
	if err != nil {
		return nil, err
	}
	v.logger.Info("checking downloaded tracks", zap.Int("count", len(tracks)))

	report := &Report{}
	for i := range tracks {
		if ctx.Err() != nil {
			break
		}
		c := v.Check(ctx, &tracks[i])
		report.add(c)
		v.metrics.ItemProcessed("verify", string(c.Status))
		v.log(c, i+1, len(tracks))

		// Only metadata requests are throttled
		if c.Status != StatusMissing {
			if err := worker.Sleep(ctx, opts.Delay); err != nil {
				break
			}
		}
	}

	v.logger.Info("verification complete",
		zap.Int("ok", report.OK),
		zap.Int("missing", len(report.Missing)),
		zap.Int("size_mismatch", len(report.SizeMismatch)),
		zap.Int("check_errors", len(report.CheckErrors)))
	if ids := report.NeedsReset(); len(ids) > 0 {
		v.logger.Warn("reset these tracks and rerun download", zap.Uints("track_ids", ids))
	}
	return report, nil
}

// Check classifies one track
func (v *Verifier) Check(ctx context.Context, track *domain.Track) Check {
	filename := domain.FilenameFromURL(track.RemoteURL)
	c := Check{TrackID: track.ID, Filename: filename}

	info, err := os.Stat(filepath.Join(v.audioDir, filename))
	if err != nil || info.IsDir() {
		c.Status = StatusMissing
		return c
	}
	c.LocalSize = info.Size()

	remote, err := v.remoteSize(ctx, track.RemoteURL)
	if err != nil {
		c.Status, c.Err = StatusCheckError, err
		return c
	}
	c.RemoteSize = remote

	if remote != c.LocalSize {
		c.Status = StatusSizeMismatch
	} else {
		c.Status = StatusOK
	}
	return c
}

func (v *Verifier) remoteSize(ctx context.Context, url string) (int64, error) {
	resp, err := v.client.Head(ctx, url)
	if err != nil {
		return 0, fmt.Errorf("HEAD request: %w", err)
	}
	defer resp.Body.Close()

	if err := httpclient.CheckStatus(resp); err != nil {
		return 0, err
	}
	if resp.ContentLength < 0 {
		return 0, ErrNoContentLength
	}
	return resp.ContentLength, nil
}

func (v *Verifier) log(c Check, n, total int) {
	fields := []zap.Field{
		zap.Uint("track", c.TrackID),
		zap.String("file", c.Filename),
		zap.String("progress", fmt.Sprintf("%d/%d", n, total)),
	}
	switch c.Status {
	case StatusOK:
		v.logger.Debug("ok", fields...)
	case StatusMissing:
		v.logger.Error("missing", fields...)
	case StatusSizeMismatch:
		v.logger.Error("size mismatch", append(fields, zap.Int64("local", c.LocalSize), zap.Int64("remote", c.RemoteSize))...)
	default:
		v.logger.Warn("check failed", append(fields, zap.Error(c.Err))...)
	}
}
