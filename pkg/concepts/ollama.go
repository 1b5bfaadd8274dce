package concepts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"irdin-archive/pkg/httpclient"

	"github.com/sony/gobreaker"
)

const (
	// DefaultBaseURL is a local Ollama server
	DefaultBaseURL = "http://localhost:11434"

	// BaselineModel is what the "baseline" model alias resolves to
	BaselineModel = "llama3.2"

	// GenerateTimeout bounds one chat completion
	GenerateTimeout = 300 * time.Second
)

const systemPrompt = "You are a concept extractor. You receive a lecture transcription and return " +
	"ONLY a JSON array of short concept names in Portuguese. No explanation, no " +
	"markdown, no commentary, just the raw JSON array. " +
	`Example output: ["reencarnação", "caridade", "mediunidade"]`

const userPrompt = "Extract the main concepts and topics from this lecture. " +
	"Reply with ONLY a JSON array of short concept names in Portuguese.\n\n"

// ResolveModel maps the "baseline" alias to a concrete model name
func ResolveModel(model string) string {
	if model == "" || model == "baseline" {
		return BaselineModel
	}
	return model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// OllamaClient asks an Ollama server for concept lists
type OllamaClient struct {
	baseURL string
	client  *httpclient.HTTPClient
	cb      *gobreaker.CircuitBreaker
}

// NewOllamaClient creates a client for baseURL; a nil client gets an API profile client.
func NewOllamaClient(baseURL string, client *httpclient.HTTPClient) *OllamaClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = httpclient.New(httpclient.Config{Type: httpclient.APIClient, Timeout: GenerateTimeout})
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "Ollama",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 3
			},
		}),
	}
}

// Complete sends a transcription and returns the raw reply text
func (c *OllamaClient) Complete(ctx context.Context, model, transcription string) (string, error) {
	out, err := c.cb.Execute(func() (interface{}, error) {
		return c.chat(ctx, chatRequest{
			Model: model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: userPrompt + transcription},
			},
			Format: "json",
		})
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (c *OllamaClient) chat(ctx context.Context, body chatRequest) (string, error) {
	resp, err := c.client.Post(ctx, c.baseURL+"/api/chat", "", body)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if err := httpclient.CheckStatus(resp); err != nil {
		return "", err
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	return out.Message.Content, nil
}
