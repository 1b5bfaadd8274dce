package domain

import "time"

// SourceDocument is the denormalized shape of a Source stored in the document mirror.
type SourceDocument struct {
	Slug        string          `bson:"slug" json:"slug"`
	URL         string          `bson:"url" json:"url"`
	Title       string          `bson:"title" json:"title"`
	Description string          `bson:"description" json:"description"`
	Categories  string          `bson:"categories" json:"categories"`
	Tags        string          `bson:"tags" json:"tags"`
	Authors     []string        `bson:"authors" json:"authors"`
	Tracks      []TrackDocument `bson:"tracks" json:"tracks"`
	ScrapedOn   *time.Time      `bson:"scraped_on,omitempty" json:"scraped_on,omitempty"`
	MirroredAt  time.Time       `bson:"mirrored_at" json:"mirrored_at"`
}

// TrackDocument is the embedded shape of a Track inside a SourceDocument.
type TrackDocument struct {
	Name          string   `bson:"name" json:"name"`
	RemoteURL     string   `bson:"remote_url" json:"remote_url"`
	Transcription string   `bson:"transcription,omitempty" json:"transcription,omitempty"`
	Method        string   `bson:"transcription_method,omitempty" json:"transcription_method,omitempty"`
	Concepts      []string `bson:"concepts,omitempty" json:"concepts,omitempty"`
}

// NewSourceDocument flattens a Source with its preloaded authors and tracks.
func NewSourceDocument(s *Source, now time.Time) *SourceDocument {
	doc := &SourceDocument{
		Slug:        s.Slug,
		URL:         s.URL,
		Title:       s.Title,
		Description: s.Description,
		Categories:  s.Categories,
		Tags:        s.Tags,
		Authors:     make([]string, 0, len(s.Authors)),
		Tracks:      make([]TrackDocument, 0, len(s.Tracks)),
		ScrapedOn:   s.ScrapedOn,
		MirroredAt:  now,
	}
	for _, a := range s.Authors {
		doc.Authors = append(doc.Authors, a.Name)
	}
	for _, t := range s.Tracks {
		doc.Tracks = append(doc.Tracks, TrackDocument{
			Name:          t.Name,
			RemoteURL:     t.RemoteURL,
			Transcription: t.Transcription,
			Method:        t.TranscriptionMethod,
			Concepts:      []string(t.Concepts),
		})
	}
	return doc
}
