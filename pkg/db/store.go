package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"irdin-archive/pkg/domain"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when a lookup by key matches no row.
	ErrNotFound = errors.New("record not found")

	// ErrEmptySlug is returned when a name folds to an empty slug.
	ErrEmptySlug = errors.New("name produces an empty slug")
)

// Store is the catalog record store backed by gorm.
// A Store is safe for concurrent use; workers that want an isolated
// statement chain call Session.
type Store struct {
	db       *gorm.DB
	provider DBProvider
	logger   *zap.Logger
}

// NewStore wraps an already opened gorm handle. Used by tests and tools that manage their own connection.
func NewStore(gdb *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: gdb, logger: logger}
}

// Session returns a Store bound to a fresh gorm session sharing the same pool.
func (s *Store) Session() *Store {
	return &Store{
		db:       s.db.Session(&gorm.Session{NewDB: true}),
		provider: s.provider,
		logger:   s.logger,
	}
}

// Gorm exposes the underlying handle.
func (s *Store) Gorm() *gorm.DB {
	return s.db
}

// --- Sources ---

// CreateSourceIfMissing inserts a Source stub keyed by slug. An existing row is never
// overwritten. The returned flag reports whether a new row was created.
func (s *Store) CreateSourceIfMissing(ctx context.Context, slug, url string) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "slug"}}, DoNothing: true}).
		Create(&domain.Source{Slug: slug, URL: url})
	if res.Error != nil {
		return false, fmt.Errorf("create source %s: %w", slug, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// UnscrapedSources returns Sources whose detail page was never parsed, oldest first.
// A limit of zero means no limit.
func (s *Store) UnscrapedSources(ctx context.Context, limit int) ([]domain.Source, error) {
	var sources []domain.Source
	q := s.db.WithContext(ctx).Where("scraped_on IS NULL").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("query unscraped sources: %w", err)
	}
	return sources, nil
}

// SaveScrape persists one parsed detail page in a single transaction: authors are
// get-or-created and associated additively, tracks are inserted unless already present,
// and the Source metadata is written with ScrapedOn stamped last.
// It returns the number of newly created tracks.
func (s *Store) SaveScrape(ctx context.Context, src *domain.Source, authorNames []string, tracks []domain.Track) (int, error) {
	created := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		authors := make([]domain.Author, 0, len(authorNames))
		for _, name := range authorNames {
			author, err := getOrCreateAuthor(tx, name)
			if errors.Is(err, ErrEmptySlug) {
				continue
			}
			if err != nil {
				return err
			}
			authors = append(authors, *author)
		}
		if len(authors) > 0 {
			if err := tx.Model(&domain.Source{ID: src.ID}).Association("Authors").Append(&authors); err != nil {
				return fmt.Errorf("associate authors: %w", err)
			}
		}

		for i := range tracks {
			track := domain.Track{SourceID: src.ID, Name: tracks[i].Name, RemoteURL: tracks[i].RemoteURL}
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "source_id"}, {Name: "remote_url"}},
				DoNothing: true,
			}).Create(&track)
			if res.Error != nil {
				return fmt.Errorf("create track %s: %w", tracks[i].RemoteURL, res.Error)
			}
			created += int(res.RowsAffected)
		}

		now := time.Now().UTC()
		res := tx.Model(&domain.Source{}).Where("id = ?", src.ID).Updates(map[string]any{
			"title":        src.Title,
			"description":  src.Description,
			"sku":          src.SKU,
			"categories":   src.Categories,
			"tags":         src.Tags,
			"weight":       src.Weight,
			"dimensions":   src.Dimensions,
			"media_format": src.MediaFormat,
			"scraped_on":   now,
		})
		if res.Error != nil {
			return fmt.Errorf("update source: %w", res.Error)
		}
		src.ScrapedOn = &now
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("save scrape of %s: %w", src.Slug, err)
	}
	return created, nil
}

// SourceBySlug loads a Source with its authors and tracks.
func (s *Store) SourceBySlug(ctx context.Context, slug string) (*domain.Source, error) {
	var src domain.Source
	err := s.db.WithContext(ctx).
		Preload("Authors", func(db *gorm.DB) *gorm.DB { return db.Order("authors.name") }).
		Preload("Tracks", func(db *gorm.DB) *gorm.DB { return db.Order("tracks.id") }).
		Where("slug = ?", slug).
		First(&src).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load source %s: %w", slug, err)
	}
	return &src, nil
}

// ScrapedSources pages through scraped Sources with authors and tracks preloaded.
func (s *Store) ScrapedSources(ctx context.Context, offset, limit int) ([]domain.Source, error) {
	var sources []domain.Source
	err := s.db.WithContext(ctx).
		Preload("Authors").
		Preload("Tracks", func(db *gorm.DB) *gorm.DB { return db.Order("tracks.id") }).
		Where("scraped_on IS NOT NULL").
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&sources).Error
	if err != nil {
		return nil, fmt.Errorf("query scraped sources: %w", err)
	}
	return sources, nil
}

// DeleteSource removes a Source; its tracks and author links go with it.
func (s *Store) DeleteSource(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&domain.Source{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete source %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Authors ---

// GetOrCreateAuthor returns the Author for name's slug, creating it on first sight.
func (s *Store) GetOrCreateAuthor(ctx context.Context, name string) (*domain.Author, error) {
	return getOrCreateAuthor(s.db.WithContext(ctx), name)
}

func getOrCreateAuthor(tx *gorm.DB, name string) (*domain.Author, error) {
	slug := domain.Slugify(name)
	if slug == "" {
		return nil, ErrEmptySlug
	}

	author := domain.Author{Name: name, Slug: slug}
	if err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "slug"}}, DoNothing: true}).
		Create(&author).Error; err != nil {
		return nil, fmt.Errorf("create author %s: %w", slug, err)
	}

	// The insert is a no-op for an existing slug, so read back the stored row.
	var stored domain.Author
	if err := tx.Where("slug = ?", slug).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("load author %s: %w", slug, err)
	}
	return &stored, nil
}

// --- Tracks ---

// CreateTrackIfMissing inserts a Track unless (source, remote URL) already exists.
func (s *Store) CreateTrackIfMissing(ctx context.Context, sourceID uint, name, remoteURL string) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_id"}, {Name: "remote_url"}},
			DoNothing: true,
		}).
		Create(&domain.Track{SourceID: sourceID, Name: name, RemoteURL: remoteURL})
	if res.Error != nil {
		return false, fmt.Errorf("create track %s: %w", remoteURL, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// PendingDownloads returns tracks whose audio was not fetched yet.
func (s *Store) PendingDownloads(ctx context.Context, limit int) ([]domain.Track, error) {
	return s.findTracks(ctx, limit, "downloaded = ?", false)
}

// DownloadedTracks returns tracks marked as downloaded.
func (s *Store) DownloadedTracks(ctx context.Context, limit int) ([]domain.Track, error) {
	return s.findTracks(ctx, limit, "downloaded = ?", true)
}

// TracksToTranscribe returns downloaded tracks eligible for transcription. By default only
// tracks never transcribed are returned; with retranscribe, every track whose stored
// fingerprint differs from method is returned.
func (s *Store) TracksToTranscribe(ctx context.Context, method string, retranscribe bool, limit int) ([]domain.Track, error) {
	if retranscribe {
		return s.findTracks(ctx, limit,
			"downloaded = ? AND (transcription_method IS NULL OR transcription_method <> ?)", true, method)
	}
	return s.findTracks(ctx, limit, "downloaded = ? AND transcribed_on IS NULL", true)
}

// TracksForConcepts returns transcribed tracks whose concepts were never extracted.
func (s *Store) TracksForConcepts(ctx context.Context, limit int) ([]domain.Track, error) {
	return s.findTracks(ctx, limit,
		"transcribed_on IS NOT NULL AND concepts_extracted_on IS NULL AND transcription <> ''")
}

// TracksByID loads the given tracks.
func (s *Store) TracksByID(ctx context.Context, ids []uint) ([]domain.Track, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.findTracks(ctx, 0, "id IN ?", ids)
}

func (s *Store) findTracks(ctx context.Context, limit int, query string, args ...any) ([]domain.Track, error) {
	var tracks []domain.Track
	q := s.db.WithContext(ctx).Where(query, args...).Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&tracks).Error; err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	return tracks, nil
}

// MarkDownloaded records the local file reference of a track.
func (s *Store) MarkDownloaded(ctx context.Context, id uint, localPath string) error {
	return s.updateTrack(ctx, id, map[string]any{"downloaded": true, "local_path": localPath})
}

// ResetDownloads clears the download state of the given tracks so the downloader picks them up again.
func (s *Store) ResetDownloads(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&domain.Track{}).Where("id IN ?", ids).
		Updates(map[string]any{"downloaded": false, "local_path": ""})
	if res.Error != nil {
		return 0, fmt.Errorf("reset downloads: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// SaveTranscription stores both renderings, the backend fingerprint and the timestamp together.
func (s *Store) SaveTranscription(ctx context.Context, id uint, plain, timecoded, method string) error {
	return s.updateTrack(ctx, id, map[string]any{
		"transcription":           plain,
		"transcription_timecoded": timecoded,
		"transcription_method":    method,
		"transcribed_on":          time.Now().UTC(),
	})
}

// SaveConcepts stores the extracted labels. When stamp is false the track stays
// eligible for another extraction attempt.
func (s *Store) SaveConcepts(ctx context.Context, id uint, concepts []string, stamp bool) error {
	if concepts == nil {
		concepts = []string{}
	}
	fields := map[string]any{"concepts": datatypes.JSONSlice[string](concepts)}
	if stamp {
		fields["concepts_extracted_on"] = time.Now().UTC()
	}
	return s.updateTrack(ctx, id, fields)
}

func (s *Store) updateTrack(ctx context.Context, id uint, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&domain.Track{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update track %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
