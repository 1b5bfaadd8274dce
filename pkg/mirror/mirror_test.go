package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"irdin-archive/pkg/db"
	"irdin-archive/pkg/db/dbtest"
	"irdin-archive/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memoryDocs is an in-memory DocumentWriter
type memoryDocs struct {
	mu   sync.Mutex
	docs map[string]*domain.SourceDocument
	fail bool
}

func newMemoryDocs() *memoryDocs {
	return &memoryDocs{docs: make(map[string]*domain.SourceDocument)}
}

func (m *memoryDocs) UpsertSources(ctx context.Context, docs []*domain.SourceDocument) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return 0, errors.New("write concern error")
	}
	inserted := 0
	for _, d := range docs {
		if _, ok := m.docs[d.Slug]; !ok {
			inserted++
		}
		m.docs[d.Slug] = d
	}
	return inserted, nil
}

func (m *memoryDocs) MirroredSlugs(ctx context.Context) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.docs))
	for slug := range m.docs {
		out[slug] = true
	}
	return out, nil
}

func seedCatalog(t *testing.T, scraped, unscraped int) *db.Store {
	t.Helper()
	ctx := context.Background()
	store := dbtest.NewStore(t)

	for i := 0; i < scraped+unscraped; i++ {
		slug := fmt.Sprintf("s%02d", i)
		_, err := store.CreateSourceIfMissing(ctx, slug, "https://example.org/produtos/"+slug+"/")
		require.NoError(t, err)
		if i >= scraped {
			continue
		}
		src, err := store.SourceBySlug(ctx, slug)
		require.NoError(t, err)
		src.Title = "Palestra " + slug
		_, err = store.SaveScrape(ctx, src, []string{"Autor " + slug}, []domain.Track{
			{Name: "Parte 1", RemoteURL: "https://example.org/" + slug + ".mp3"},
		})
		require.NoError(t, err)
	}
	return store
}

func TestMirror_Run(t *testing.T) {
	store := seedCatalog(t, 23, 4)
	docs := newMemoryDocs()

	m, err := NewMirror(Config{Store: store, Documents: docs, Logger: zap.NewNop(), BatchSize: 5, Workers: 3})
	require.NoError(t, err)

	summary, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 23, Inserted: 23}, summary)
	require.Len(t, docs.docs, 23, "unscraped stubs are not mirrored")

	doc := docs.docs["s07"]
	require.NotNil(t, doc)
	assert.Equal(t, "Palestra s07", doc.Title)
	assert.Equal(t, []string{"Autor s07"}, doc.Authors)
	require.Len(t, doc.Tracks, 1)
	assert.Equal(t, "https://example.org/s07.mp3", doc.Tracks[0].RemoteURL)

	// A second run only updates
	summary, err = m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 23, Updated: 23}, summary)
}

func TestMirror_ReportsStaleDocuments(t *testing.T) {
	store := seedCatalog(t, 7, 0)
	docs := newMemoryDocs()
	docs.docs["gone"] = &domain.SourceDocument{Slug: "gone"}
	docs.docs["s03"] = &domain.SourceDocument{Slug: "s03"}

	m, err := NewMirror(Config{Store: store, Documents: docs, BatchSize: 3, Workers: 2})
	require.NoError(t, err)

	summary, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 7, Inserted: 6, Updated: 1, Stale: []string{"gone"}}, summary)
	assert.Contains(t, docs.docs, "gone", "stale documents are left in place")
}

func TestMirror_FailsFast(t *testing.T) {
	store := seedCatalog(t, 12, 0)
	docs := newMemoryDocs()
	docs.fail = true

	m, err := NewMirror(Config{Store: store, Documents: docs, BatchSize: 5})
	require.NoError(t, err)

	_, err = m.Run(context.Background())
	assert.ErrorContains(t, err, "write concern error")
}

func TestNewMirror_RequiresStores(t *testing.T) {
	_, err := NewMirror(Config{Documents: newMemoryDocs()})
	assert.Error(t, err)
	_, err = NewMirror(Config{Store: seedCatalog(t, 0, 0)})
	assert.Error(t, err)
}
