package transcribe

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"irdin-archive/pkg/httpclient"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const transcriptionsURL = "https://stt.example.org/v1/audio/transcriptions"

func newMockedRemote(t *testing.T, apiKey string) (Backend, *httpmock.MockTransport) {
	t.Helper()
	mock := httpmock.NewMockTransport()
	client := httpclient.New(httpclient.Config{Type: httpclient.APIClient, Transport: mock})

	b, err := New(RemoteAPI, "", Settings{
		RemoteBaseURL: "https://stt.example.org/v1/",
		RemoteAPIKey:  apiKey,
		Client:        client,
	})
	require.NoError(t, err)
	return b, mock
}

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.mp3")
	require.NoError(t, os.WriteFile(path, []byte("ID3 fake audio"), 0o644))
	return path
}

func TestRemote_VerboseJSON(t *testing.T) {
	b, mock := newMockedRemote(t, "secret")

	var auth, contentType string
	mock.RegisterResponder(http.MethodPost, transcriptionsURL, func(req *http.Request) (*http.Response, error) {
		auth = req.Header.Get("Authorization")
		contentType = req.Header.Get("Content-Type")
		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
			"text":     "Olá. Tudo bem?",
			"duration": 12.5,
			"segments": []map[string]any{
				{"start": 0.0, "end": 1.0, "text": " Olá."},
				{"start": 1.0, "end": 12.5, "text": " Tudo bem?"},
			},
		})
	})

	require.NoError(t, b.Load(context.Background()))
	res, err := b.Transcribe(context.Background(), writeAudio(t))
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", auth)
	assert.True(t, strings.HasPrefix(contentType, "multipart/form-data"))
	assert.Equal(t, "Olá. Tudo bem?", PlainText(res.Segments))
	assert.Equal(t, 12500*time.Millisecond, res.Duration)
	assert.Equal(t, "remote-api:whisper-large-v3-turbo", Fingerprint(b))
}

func TestRemote_StatusError(t *testing.T) {
	b, mock := newMockedRemote(t, "secret")
	mock.RegisterResponder(http.MethodPost, transcriptionsURL,
		httpmock.NewStringResponder(http.StatusTooManyRequests, `{"error":"rate limited"}`))

	_, err := b.Transcribe(context.Background(), writeAudio(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, httpclient.ErrStatus)
	assert.Equal(t, http.StatusTooManyRequests, httpclient.StatusCode(err))
}

func TestRemote_LoadNeedsKey(t *testing.T) {
	b, _ := newMockedRemote(t, "")
	assert.ErrorIs(t, b.Load(context.Background()), ErrBackendUnavailable)
}
