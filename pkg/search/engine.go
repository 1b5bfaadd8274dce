package search

import (
	"context"
	"strings"

	"irdin-archive/pkg/db"
	"irdin-archive/pkg/domain"
)

// PageSize is the number of results per page
const PageSize = 20

// Request is one search query. Page is 1-based; Fields defaults to all fields.
type Request struct {
	Query  string
	Page   int
	Fields []string
}

type Snippet struct {
	TrackName string `json:"track_name"`
	Snippet   string `json:"snippet"`
}

type Result struct {
	ID                    uint      `json:"id"`
	Title                 string    `json:"title"`
	Slug                  string    `json:"slug"`
	URL                   string    `json:"url"`
	Description           string    `json:"description"`
	Categories            string    `json:"categories"`
	Tags                  string    `json:"tags"`
	Authors               []string  `json:"authors"`
	TrackCount            int       `json:"track_count"`
	TranscriptionSnippets []Snippet `json:"transcription_snippets"`
}

type Response struct {
	Results []Result `json:"results"`
	Total   int64    `json:"total"`
	Page    int      `json:"page"`
	Pages   int      `json:"pages"`
}

// Searcher runs the conjunctive query against the record store
type Searcher interface {
	SearchSources(ctx context.Context, q db.SearchQuery) ([]domain.Source, int64, error)
}

// Engine answers search requests. It only reads from the store.
type Engine struct {
	store Searcher
}

func NewEngine(store Searcher) *Engine {
	return &Engine{store: store}
}

// Search runs req. A blank query is an empty result, not an error.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	words := strings.Fields(req.Query)
	if len(words) == 0 {
		return &Response{Results: []Result{}, Page: 1, Pages: 1}, nil
	}
	fields := ParseFields(req.Fields)

	page := max(req.Page, 1)
	sources, total, err := e.store.SearchSources(ctx, db.SearchQuery{
		Words: words, Fields: fields, Offset: (page - 1) * PageSize, Limit: PageSize,
	})
	if err != nil {
		return nil, err
	}

	pages := PageCount(total)
	if page > pages {
		// Past the end: serve the last page instead
		page = pages
		sources, total, err = e.store.SearchSources(ctx, db.SearchQuery{
			Words: words, Fields: fields, Offset: (page - 1) * PageSize, Limit: PageSize,
		})
		if err != nil {
			return nil, err
		}
		pages = PageCount(total)
	}

	withSnippets := hasField(fields, db.FieldTranscriptions)
	results := make([]Result, 0, len(sources))
	for i := range sources {
		results = append(results, toResult(&sources[i], words, withSnippets))
	}

	return &Response{Results: results, Total: total, Page: page, Pages: pages}, nil
}

// PageCount is ceil(total/PageSize), never less than 1
func PageCount(total int64) int {
	pages := int((total + PageSize - 1) / PageSize)
	return max(pages, 1)
}

// ParseFields keeps the known field names; none left means all fields
func ParseFields(names []string) []db.SearchField {
	var fields []db.SearchField
	seen := make(map[db.SearchField]bool)
	for _, name := range names {
		f := db.SearchField(strings.ToLower(strings.TrimSpace(name)))
		if seen[f] || !hasField(db.AllSearchFields, f) {
			continue
		}
		seen[f] = true
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		return db.AllSearchFields
	}
	return fields
}

func hasField(fields []db.SearchField, f db.SearchField) bool {
	for _, x := range fields {
		if x == f {
			return true
		}
	}
	return false
}

func toResult(src *domain.Source, words []string, withSnippets bool) Result {
	r := Result{
		ID:                    src.ID,
		Title:                 src.Title,
		Slug:                  src.Slug,
		URL:                   src.URL,
		Description:           src.Description,
		Categories:            src.Categories,
		Tags:                  src.Tags,
		Authors:               make([]string, 0, len(src.Authors)),
		TrackCount:            len(src.Tracks),
		TranscriptionSnippets: []Snippet{},
	}
	for _, a := range src.Authors {
		r.Authors = append(r.Authors, a.Name)
	}
	if !withSnippets {
		return r
	}
	for _, t := range src.Tracks {
		if t.Transcription == "" {
			continue
		}
		if s, ok := FindSnippet(t.Transcription, words); ok {
			r.TranscriptionSnippets = append(r.TranscriptionSnippets, Snippet{TrackName: t.Name, Snippet: s})
		}
	}
	return r
}
