package verify

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"irdin-archive/pkg/domain"

	"go.uber.org/zap"
)

// ResetStore is what Reset needs from the record store
type ResetStore interface {
	TracksByID(ctx context.Context, ids []uint) ([]domain.Track, error)
	ResetDownloads(ctx context.Context, ids []uint) (int64, error)
}

// Reset deletes the local audio of the given tracks and marks them pending so the
// downloader fetches them again. It returns the number of tracks reset.
func Reset(ctx context.Context, store ResetStore, mediaRoot string, ids []uint, logger *zap.Logger) (int64, error) {
	tracks, err := store.TracksByID(ctx, ids)
	if err != nil {
		return 0, err
	}
	if len(tracks) < len(ids) {
		logger.Warn("some track ids do not exist", zap.Int("requested", len(ids)), zap.Int("found", len(tracks)))
	}

	found := make([]uint, 0, len(tracks))
	for _, t := range tracks {
		found = append(found, t.ID)
		if t.LocalPath == "" {
			continue
		}
		path := filepath.Join(mediaRoot, filepath.FromSlash(t.LocalPath))
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("remove %s: %w", path, err)
		}
		logger.Info("removed local audio", zap.Uint("track", t.ID), zap.String("path", path))
	}

	n, err := store.ResetDownloads(ctx, found)
	if err != nil {
		return 0, err
	}
	logger.Info("tracks reset", zap.Int64("count", n))
	return n, nil
}
