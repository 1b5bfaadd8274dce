package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"irdin-archive/pkg/db/dbtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func detailPage(slug string) string {
	return fmt.Sprintf(`<html><body>
<h1 class="product_title">Palestra %[1]s</h1>
<div id="tab-description"><p>Sobre %[1]s.</p></div>
<span class="posted_in"><a href="#">Palestras</a></span>
<span class="fap-single-track" data-href="/audio/%[1]s-1.mp3" data-title="%[1]s parte 1"></span>
<span class="fap-single-track" data-href="/audio/%[1]s-2.mp3" data-title="%[1]s parte 2"></span>
<table class="woocommerce-product-attributes"><tr><th>Autor</th><td>José Silva</td></tr></table>
</body></html>`, slug)
}

func TestScraper_Run(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slug := strings.Trim(strings.TrimPrefix(r.URL.Path, "/produtos/"), "/")
		if slug == "quebrada" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, detailPage(slug))
	}))
	defer server.Close()

	store := dbtest.NewStore(t)
	ctx := context.Background()
	for _, slug := range []string{"a", "b", "c", "quebrada"} {
		_, err := store.CreateSourceIfMissing(ctx, slug, server.URL+"/produtos/"+slug+"/")
		require.NoError(t, err)
	}

	s := New(store, nil, zap.NewNop(), nil)

	summary, err := s.Run(ctx, Options{Workers: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 3, summary.Done)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 6, summary.NewTracks)

	src, err := store.SourceBySlug(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "Palestra b", src.Title)
	assert.Equal(t, "Sobre b.", src.Description)
	assert.Equal(t, "Palestras", src.Categories)
	assert.NotNil(t, src.ScrapedOn)
	require.Len(t, src.Tracks, 2)
	assert.Equal(t, server.URL+"/audio/b-1.mp3", src.Tracks[0].RemoteURL)
	require.Len(t, src.Authors, 1)
	assert.Equal(t, "jose-silva", src.Authors[0].Slug)

	broken, err := store.SourceBySlug(ctx, "quebrada")
	require.NoError(t, err)
	assert.Nil(t, broken.ScrapedOn, "failed item stays pending")

	// Rerun only retries the failed item and creates no duplicates
	summary, err = s.Run(ctx, Options{Workers: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 0, summary.NewTracks)

	pending, err := store.PendingDownloads(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 6)
}

func TestScraper_RespectsLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, detailPage("x"))
	}))
	defer server.Close()

	store := dbtest.NewStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := store.CreateSourceIfMissing(ctx, fmt.Sprintf("s%d", i), fmt.Sprintf("%s/produtos/s%d/", server.URL, i))
		require.NoError(t, err)
	}

	summary, err := New(store, nil, zap.NewNop(), nil).Run(ctx, Options{Workers: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Done)

	remaining, err := store.UnscrapedSources(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 3)
}

func TestScraper_CancelFinishesCurrentSource(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var requests []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slug := strings.Trim(strings.TrimPrefix(r.URL.Path, "/produtos/"), "/")
		requests = append(requests, slug)
		// Interrupted while the page is being served
		cancel()
		fmt.Fprint(w, detailPage(slug))
	}))
	defer server.Close()

	store := dbtest.NewStore(t)
	for _, slug := range []string{"a", "b"} {
		_, err := store.CreateSourceIfMissing(context.Background(), slug, server.URL+"/produtos/"+slug+"/")
		require.NoError(t, err)
	}

	summary, err := New(store, nil, zap.NewNop(), nil).Run(ctx, Options{Workers: 1})
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 2, Done: 1, NewTracks: 2}, summary)
	assert.Equal(t, []string{"a"}, requests)

	src, err := store.SourceBySlug(context.Background(), "a")
	require.NoError(t, err)
	assert.NotNil(t, src.ScrapedOn, "the started source is saved")
}
