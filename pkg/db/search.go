package db

import (
	"context"
	"fmt"
	"strings"

	"irdin-archive/pkg/domain"

	"gorm.io/gorm"
)

// SearchField names a searchable attribute of a Source.
type SearchField string

const (
	FieldTitle          SearchField = "title"
	FieldDescription    SearchField = "description"
	FieldCategories     SearchField = "categories"
	FieldTags           SearchField = "tags"
	FieldAuthors        SearchField = "authors"
	FieldTranscriptions SearchField = "transcriptions"
)

// AllSearchFields lists every searchable field in display order.
var AllSearchFields = []SearchField{
	FieldTitle, FieldDescription, FieldCategories, FieldTags, FieldAuthors, FieldTranscriptions,
}

// fieldConditions maps a field to a single-placeholder SQL predicate on the sources table.
// Authors and transcriptions use EXISTS so a Source never appears twice in a page.
var fieldConditions = map[SearchField]string{
	FieldTitle:       `LOWER(sources.title) LIKE ? ESCAPE '\'`,
	FieldDescription: `LOWER(sources.description) LIKE ? ESCAPE '\'`,
	FieldCategories:  `LOWER(sources.categories) LIKE ? ESCAPE '\'`,
	FieldTags:        `LOWER(sources.tags) LIKE ? ESCAPE '\'`,
	FieldAuthors: `EXISTS (SELECT 1 FROM source_authors sa JOIN authors a ON a.id = sa.author_id ` +
		`WHERE sa.source_id = sources.id AND LOWER(a.name) LIKE ? ESCAPE '\')`,
	FieldTranscriptions: `EXISTS (SELECT 1 FROM tracks t ` +
		`WHERE t.source_id = sources.id AND LOWER(t.transcription) LIKE ? ESCAPE '\')`,
}

// SearchQuery is a conjunctive multi-word query: every word must occur, case-insensitively,
// in at least one of the fields.
type SearchQuery struct {
	Words  []string
	Fields []SearchField
	Offset int
	Limit  int
}

// SearchSources returns one page of matching Sources ordered by id, with authors and
// tracks preloaded, and the total number of matches.
func (s *Store) SearchSources(ctx context.Context, q SearchQuery) ([]domain.Source, int64, error) {
	base := s.db.WithContext(ctx).Model(&domain.Source{})
	for _, word := range q.Words {
		cond, args := wordCondition(word, q.Fields)
		if cond == "" {
			continue
		}
		base = base.Where(cond, args...)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count search results: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	var sources []domain.Source
	err := base.Session(&gorm.Session{}).
		Preload("Authors", func(db *gorm.DB) *gorm.DB { return db.Order("authors.name") }).
		Preload("Tracks", func(db *gorm.DB) *gorm.DB { return db.Order("tracks.id") }).
		Order("sources.id").
		Offset(q.Offset).
		Limit(q.Limit).
		Find(&sources).Error
	if err != nil {
		return nil, 0, fmt.Errorf("query search results: %w", err)
	}
	return sources, total, nil
}

// wordCondition ORs the predicates of all fields for one word.
func wordCondition(word string, fields []SearchField) (string, []any) {
	pattern := "%" + escapeLike(strings.ToLower(word)) + "%"

	parts := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		cond, ok := fieldConditions[f]
		if !ok {
			continue
		}
		parts = append(parts, cond)
		args = append(args, pattern)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// escapeLike makes LIKE wildcards in user input literal.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
