package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"irdin-archive/pkg/db/dbtest"
	"irdin-archive/pkg/httpclient"
	"irdin-archive/pkg/urls"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func listingServer(t *testing.T, lastPage int, emptyAfter bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	handler := func(page int) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if page > lastPage {
				if emptyAfter {
					// Past the end the theme still shows best sellers in the sidebar
					fmt.Fprint(w, `<html><body><main><p>Nada aqui</p>
<aside><a href="/produtos/mais-vendido/">Mais vendido</a></aside></main></body></html>`)
					return
				}
				http.NotFound(w, r)
				return
			}
			fmt.Fprintf(w, `<html><body>
<h3 class="wd-entities-title"><a href="/produtos/palestra-%[1]d-a/">A</a></h3>
<h3 class="wd-entities-title"><a href="/produtos/palestra-%[1]d-b/">B</a></h3>
<h3 class="wd-entities-title"><a href="/minha-conta/">Conta</a></h3>
</body></html>`, page)
		}
	}
	mux.HandleFunc("/palestras/", handler(1))
	for p := 2; p <= lastPage+1; p++ {
		mux.HandleFunc(fmt.Sprintf("/palestras/page/%d/", p), handler(p))
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestPaginate_StopsOn404AndIsIdempotent(t *testing.T) {
	server := listingServer(t, 2, false)
	store := dbtest.NewStore(t)
	d := NewListing(store, httpclient.NewClient(httpclient.BrowserClient), "/produtos/", zap.NewNop(), nil)

	ctx := context.Background()
	summary, err := d.Paginate(ctx, server.URL+"/palestras/", Options{StartPage: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Created)
	assert.Equal(t, 3, summary.Pages)
	assert.Equal(t, StopNotFound, summary.Stop)

	// Second run over an unchanged listing creates nothing
	summary, err = d.Paginate(ctx, server.URL+"/palestras/", Options{StartPage: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Created)
	assert.Equal(t, 4, summary.Seen)

	src, err := store.SourceBySlug(ctx, "palestra-2-b")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/produtos/palestra-2-b/", src.URL)
}

func TestPaginate_StopsOnEmptyPage(t *testing.T) {
	server := listingServer(t, 1, true)
	d := NewListing(dbtest.NewStore(t), httpclient.NewClient(httpclient.BrowserClient), "/produtos/", zap.NewNop(), nil)

	summary, err := d.Paginate(context.Background(), server.URL+"/palestras/", Options{StartPage: 1})
	require.NoError(t, err)
	assert.Equal(t, StopEmptyPage, summary.Stop)
	assert.Equal(t, 2, summary.Created)
	assert.Equal(t, 2, summary.Pages)
}

func TestPaginate_StopsOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	d := NewListing(dbtest.NewStore(t), httpclient.NewClient(httpclient.BrowserClient), "/produtos/", zap.NewNop(), nil)
	summary, err := d.Paginate(context.Background(), server.URL+"/palestras/", Options{StartPage: 5})
	require.NoError(t, err)
	assert.Equal(t, StopHTTPError, summary.Stop)
	assert.Error(t, summary.StopErr)
}

func TestPaginate_MaxPages(t *testing.T) {
	server := listingServer(t, 5, false)
	d := NewListing(dbtest.NewStore(t), httpclient.NewClient(httpclient.BrowserClient), "/produtos/", zap.NewNop(), nil)

	summary, err := d.Paginate(context.Background(), server.URL+"/palestras/", Options{StartPage: 1, MaxPages: 2})
	require.NoError(t, err)
	assert.Equal(t, StopMaxPages, summary.Stop)
	assert.Equal(t, 2, summary.Pages)
}

func TestOnce_Feed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>x</title>
<item><title>A</title><link>https://www.irdin.org.br/produtos/a/</link></item>
<item><title>Blog</title><link>https://www.irdin.org.br/blog/post/</link></item>
</channel></rss>`)
	}))
	defer server.Close()

	store := dbtest.NewStore(t)
	d := New(store, urls.NewFeedFetcher(httpclient.NewClient(httpclient.BrowserClient)), "/produtos/", zap.NewNop(), nil)

	summary, err := d.Once(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, StopExhausted, summary.Stop)
}
