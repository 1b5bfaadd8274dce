package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_HeaderProfiles(t *testing.T) {
	var gotUA, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx := context.Background()

	// Test Case 1: Cloudflare profile looks like curl
	resp, err := NewClient(CloudflareClient).Get(ctx, server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "curl/8.7.1", gotUA)

	// Test Case 2: API profile asks for JSON
	resp, err = NewClient(APIClient).Get(ctx, server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "application/json", gotAccept)

	// Test Case 3: explicit User-Agent wins over the profile
	resp, err = New(Config{Type: BrowserClient, UserAgent: "custom"}).Get(ctx, server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "custom", gotUA)
}

func TestParseClientType(t *testing.T) {
	for name, want := range map[string]ClientType{
		"":             BrowserClient,
		"browser":      BrowserClient,
		" Cloudflare ": CloudflareClient,
		"api":          APIClient,
	} {
		got, err := ParseClientType(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseClientType("firefox")
	assert.Error(t, err)
}

func TestClient_HeadSendsNoBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp, err := NewClient(BrowserClient).Head(context.Background(), server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.EqualValues(t, 1000, resp.ContentLength)
}

func TestGetBody_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := NewClient(BrowserClient).GetBody(context.Background(), server.URL+"/missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStatus))
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
}

func TestPost_MarshalsJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	resp, err := NewClient(APIClient).Post(context.Background(), server.URL, "", map[string]string{"a": "b"})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
