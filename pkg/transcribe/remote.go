package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"irdin-archive/pkg/httpclient"

	"github.com/sony/gobreaker"
)

const (
	defaultRemoteBaseURL = "https://api.groq.com/openai/v1"

	// RemoteTimeout bounds one upload and its transcription
	RemoteTimeout = 300 * time.Second
)

// remote sends audio to an OpenAI-compatible /audio/transcriptions endpoint
type remote struct {
	baseURL  string
	apiKey   string
	model    string
	language string
	client   *httpclient.HTTPClient
	cb       *gobreaker.CircuitBreaker
}

func newRemote(model string, s Settings) Backend {
	baseURL := strings.TrimRight(s.RemoteBaseURL, "/")
	if baseURL == "" {
		baseURL = defaultRemoteBaseURL
	}
	client := s.Client
	if client == nil {
		client = httpclient.New(httpclient.Config{Type: httpclient.APIClient, Timeout: RemoteTimeout})
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "TranscriptionAPI",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
	})

	return &remote{
		baseURL:  baseURL,
		apiKey:   s.RemoteAPIKey,
		model:    model,
		language: s.Language,
		client:   client,
		cb:       cb,
	}
}

func (r *remote) Name() string  { return RemoteAPI }
func (r *remote) Model() string { return r.model }

func (r *remote) Load(ctx context.Context) error {
	if r.apiKey == "" {
		return fmt.Errorf("%w: no API key configured", ErrBackendUnavailable)
	}
	return nil
}

type verboseJSON struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (r *remote) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	out, err := r.cb.Execute(func() (interface{}, error) {
		return r.upload(ctx, audioPath)
	})
	if err != nil {
		return nil, err
	}
	return out.(*Result), nil
}

func (r *remote) upload(ctx context.Context, audioPath string) (*Result, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Stream the multipart body instead of buffering the whole file
	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, f, filepath.Base(audioPath), map[string]string{
			"model":                     r.model,
			"language":                  r.language,
			"response_format":           "verbose_json",
			"timestamp_granularities[]": "segment",
		}))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/audio/transcriptions", pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if err := httpclient.CheckStatus(resp); err != nil {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(body)))
	}

	var out verboseJSON
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode transcription response: %w", err)
	}

	res := &Result{Segments: make([]Segment, 0, len(out.Segments))}
	for _, s := range out.Segments {
		res.Segments = append(res.Segments, Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	switch {
	case out.Duration > 0:
		res.Duration = seconds(out.Duration)
	case len(res.Segments) > 0:
		res.Duration = seconds(res.Segments[len(res.Segments)-1].End)
	}
	return res, nil
}

func writeForm(mw *multipart.Writer, file io.Reader, filename string, fields map[string]string) error {
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return mw.Close()
}
