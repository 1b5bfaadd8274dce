package concepts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"irdin-archive/pkg/db"
	"irdin-archive/pkg/db/dbtest"
	"irdin-archive/pkg/httpclient"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedLLM struct {
	replies map[string]string
	errs    map[string]error
	models  []string

	during  func()
	ctxErrs []error
}

func (s *scriptedLLM) Complete(ctx context.Context, model, transcription string) (string, error) {
	s.models = append(s.models, model)
	if s.during != nil {
		s.during()
	}
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	if err := s.errs[transcription]; err != nil {
		return "", err
	}
	return s.replies[transcription], nil
}

func seedTranscribed(t *testing.T, transcripts ...string) *db.Store {
	t.Helper()
	ctx := context.Background()
	store := dbtest.NewStore(t)

	_, err := store.CreateSourceIfMissing(ctx, "p", "https://example.org/produtos/p/")
	require.NoError(t, err)
	src, err := store.SourceBySlug(ctx, "p")
	require.NoError(t, err)

	for i, text := range transcripts {
		_, err := store.CreateTrackIfMissing(ctx, src.ID, "", "https://example.org/a"+string(rune('0'+i))+".mp3")
		require.NoError(t, err)
		require.NoError(t, store.MarkDownloaded(ctx, uint(i+1), "audios/x.mp3"))
		require.NoError(t, store.SaveTranscription(ctx, uint(i+1), text, "[00:00:00] "+text, "stub:v1"))
	}
	return store
}

func TestExtractor_Run(t *testing.T) {
	store := seedTranscribed(t, "sobre caridade", "sem nada", "falha", "sem conceitos")
	llm := &scriptedLLM{
		replies: map[string]string{
			"sobre caridade": `Resposta: [" Caridade ", "Amor"] fim`,
			"sem nada":       "desculpe",
			"sem conceitos":  "[]",
		},
		errs: map[string]error{"falha": errors.New("connection refused")},
	}
	ctx := context.Background()

	summary, err := NewExtractor(store, llm, zap.NewNop(), nil).Run(ctx, Options{Model: "baseline"})
	require.NoError(t, err)
	assert.Equal(t, Summary{Extracted: 2, Empty: 1, Errors: 1}, summary)
	assert.Equal(t, "llama3.2", llm.models[0])

	tracks, err := store.TracksByID(ctx, []uint{1, 2, 4})
	require.NoError(t, err)
	assert.Equal(t, []string{"caridade", "amor"}, []string(tracks[0].Concepts))
	assert.NotNil(t, tracks[0].ConceptsExtractedOn)
	assert.Empty(t, tracks[1].Concepts)
	assert.Nil(t, tracks[1].ConceptsExtractedOn, "unparseable reply leaves the track eligible")
	assert.Empty(t, tracks[2].Concepts)
	assert.NotNil(t, tracks[2].ConceptsExtractedOn, "a well formed empty list is final")

	// Only the malformed reply and the transport failure come back
	remaining, err := store.TracksForConcepts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, uint(2), remaining[0].ID)
	assert.Equal(t, uint(3), remaining[1].ID)
}

func TestExtractor_CancelFinishesCurrentTrack(t *testing.T) {
	store := seedTranscribed(t, "sobre caridade", "sobre fé")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	llm := &scriptedLLM{
		replies: map[string]string{"sobre caridade": `["caridade"]`, "sobre fé": `["fé"]`},
		during:  cancel,
	}

	summary, err := NewExtractor(store, llm, zap.NewNop(), nil).Run(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, Summary{Extracted: 1}, summary)
	assert.Equal(t, []error{nil}, llm.ctxErrs)

	remaining, err := store.TracksForConcepts(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, uint(2), remaining[0].ID)
}

func TestOllamaClient_Complete(t *testing.T) {
	mock := httpmock.NewMockTransport()
	var sent chatRequest
	mock.RegisterResponder(http.MethodPost, "http://ollama.local:11434/api/chat", func(req *http.Request) (*http.Response, error) {
		if err := json.NewDecoder(req.Body).Decode(&sent); err != nil {
			return nil, err
		}
		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
			"model":   "llama3.2",
			"message": map[string]string{"role": "assistant", "content": `["fé"]`},
			"done":    true,
		})
	})

	client := NewOllamaClient("http://ollama.local:11434/",
		httpclient.New(httpclient.Config{Type: httpclient.APIClient, Transport: mock}))

	reply, err := client.Complete(context.Background(), "llama3.2", "texto da palestra")
	require.NoError(t, err)
	assert.Equal(t, `["fé"]`, reply)

	assert.Equal(t, "llama3.2", sent.Model)
	assert.False(t, sent.Stream)
	assert.Equal(t, "json", sent.Format)
	require.Len(t, sent.Messages, 2)
	assert.Equal(t, "system", sent.Messages[0].Role)
	assert.Contains(t, sent.Messages[1].Content, "texto da palestra")
}

func TestOllamaClient_StatusError(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodPost, "http://localhost:11434/api/chat",
		httpmock.NewStringResponder(http.StatusNotFound, `{"error":"model not found"}`))

	client := NewOllamaClient("", httpclient.New(httpclient.Config{Type: httpclient.APIClient, Transport: mock}))
	_, err := client.Complete(context.Background(), "nope", "x")
	assert.ErrorIs(t, err, httpclient.ErrStatus)
}
