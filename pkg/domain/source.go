package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Source represents one catalog item (a lecture) discovered on the listing site.
//
// A Source that only carries Slug and URL is the normal state right after discovery.
// The remaining fields are filled by the detail scraper, which stamps ScrapedOn last.
type Source struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Slug        string `gorm:"size:255;not null;uniqueIndex" json:"slug"`
	URL         string `gorm:"size:500;not null" json:"url"`
	Title       string `gorm:"size:500" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	SKU         string `gorm:"column:sku;size:100" json:"sku"`
	Categories  string `gorm:"size:500" json:"categories"`
	Tags        string `gorm:"size:500" json:"tags"`
	Weight      string `gorm:"size:100" json:"weight"`
	Dimensions  string `gorm:"size:100" json:"dimensions"`
	MediaFormat string `gorm:"size:100" json:"media_format"`

	// ScrapedOn is nil until the detail page was fetched and parsed successfully.
	ScrapedOn *time.Time `gorm:"index" json:"scraped_on"`

	Authors []Author `gorm:"many2many:source_authors;constraint:OnDelete:CASCADE" json:"authors,omitempty"`
	Tracks  []Track  `gorm:"foreignKey:SourceID;constraint:OnDelete:CASCADE" json:"tracks,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Author is a lecturer. Authors are created lazily, once per slug, and never deleted.
type Author struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:255;not null" json:"name"`
	Slug string `gorm:"size:255;not null;uniqueIndex" json:"slug"`
}

// Track is one audio file belonging to a Source.
type Track struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	SourceID  uint   `gorm:"not null;uniqueIndex:idx_track_source_url,priority:1" json:"source_id"`
	Name      string `gorm:"size:500" json:"name"`
	RemoteURL string `gorm:"size:500;not null;uniqueIndex:idx_track_source_url,priority:2" json:"remote_url"`

	// LocalPath is relative to the media root, e.g. "audios/palestra.mp3".
	LocalPath  string `gorm:"size:500" json:"local_path"`
	Downloaded bool   `gorm:"not null;default:false;index" json:"downloaded"`

	Transcription          string     `gorm:"type:text" json:"transcription"`
	TranscriptionTimecoded string     `gorm:"type:text" json:"transcription_timecoded"`
	TranscriptionMethod    string     `gorm:"size:100" json:"transcription_method"`
	TranscribedOn          *time.Time `gorm:"index" json:"transcribed_on"`

	Concepts            datatypes.JSONSlice[string] `json:"concepts"`
	ConceptsExtractedOn *time.Time                  `json:"concepts_extracted_on"`
}

// IsTranscribed reports whether the track carries a persisted transcription.
func (t *Track) IsTranscribed() bool {
	return t.TranscribedOn != nil
}
