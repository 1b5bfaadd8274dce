package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ClientType represents the header profile a client sends
type ClientType string

const (
	// BrowserClient uses browser-like headers; the catalog site serves its
	// WooCommerce pages to these without a challenge
	BrowserClient ClientType = "browser"

	// CloudflareClient uses simple headers (like curl) to avoid 403 (Forbidden) errors
	// from sites that block browser-like User-Agents
	CloudflareClient ClientType = "cloudflare"

	// APIClient sends only a User-Agent and expects JSON back
	APIClient ClientType = "api"
)

// ParseClientType maps a configured profile name to its ClientType
func ParseClientType(name string) (ClientType, error) {
	switch t := ClientType(strings.ToLower(strings.TrimSpace(name))); t {
	case BrowserClient, CloudflareClient, APIClient:
		return t, nil
	case "":
		return BrowserClient, nil
	default:
		return "", fmt.Errorf("unknown client profile %q (want browser, cloudflare or api)", name)
	}
}

const (
	// DefaultTimeout bounds page and metadata requests
	DefaultTimeout = 30 * time.Second

	// MediaTimeout bounds connection setup and response headers of audio downloads
	MediaTimeout = 120 * time.Second

	defaultUserAgent = "irdin-archive/1.0"
	maxRedirects     = 10
)

// ErrStatus is matched by errors returned from CheckStatus
var ErrStatus = errors.New("unexpected HTTP status")

// StatusError carries the status code of a non-2xx response
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d for %s", e.Code, e.URL)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// Config holds the settings of a client
type Config struct {
	Type ClientType

	// Timeout bounds the whole exchange, body included. When Streaming is set
	// it only bounds connection setup and response headers.
	Timeout   time.Duration
	Streaming bool

	// UserAgent overrides the profile's User-Agent
	UserAgent string

	// Transport replaces the default pooled transport, e.g. with a mock in tests
	Transport http.RoundTripper
}

// HTTPClient wraps an http.Client with a header profile and timeouts.
// Safe for concurrent use.
type HTTPClient struct {
	client     *http.Client
	clientType ClientType
	userAgent  string

	hookMu        sync.RWMutex
	afterResponse func(*http.Request, *http.Response, error)
}

// NewClient creates a client with the given header profile and the default timeout
func NewClient(clientType ClientType) *HTTPClient {
	return New(Config{Type: clientType})
}

// New creates a client from cfg, filling zero values with defaults
func New(cfg Config) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Type == "" {
		cfg.Type = BrowserClient
	}

	var transport http.RoundTripper = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
	}
	if cfg.Transport != nil {
		transport = cfg.Transport
	}

	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	if !cfg.Streaming {
		client.Timeout = cfg.Timeout
	}

	return &HTTPClient{
		client:     client,
		clientType: cfg.Type,
		userAgent:  cfg.UserAgent,
	}
}

// Do executes an HTTP request with the profile's headers
func (c *HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	req = req.WithContext(ctx)
	c.setHeaders(req)

	resp, err := c.client.Do(req)

	c.hookMu.RLock()
	hook := c.afterResponse
	c.hookMu.RUnlock()
	if hook != nil {
		hook(req, resp, err)
	}

	return resp, err
}

// Get is a convenience method for GET requests
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create GET request: %w", err)
	}
	return c.Do(ctx, req)
}

// Head issues a HEAD request; no body is transferred
func (c *HTTPClient) Head(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create HEAD request: %w", err)
	}
	return c.Do(ctx, req)
}

// Post sends body as-is for io.Reader, []byte and string values and as JSON otherwise
func (c *HTTPClient) Post(ctx context.Context, url, contentType string, body any) (*http.Response, error) {
	var bodyReader io.Reader = http.NoBody
	isJSON := false

	switch v := body.(type) {
	case nil:
	case io.Reader:
		bodyReader = v
	case []byte:
		bodyReader = bytes.NewReader(v)
	case string:
		bodyReader = strings.NewReader(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
		isJSON = true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create POST request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	} else if isJSON {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.Do(ctx, req)
}

// GetBody fetches url and returns the body of a 2xx response
func (c *HTTPClient) GetBody(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := CheckStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// SetAfterResponseHook registers a function called after every request, e.g. for metrics
func (c *HTTPClient) SetAfterResponseHook(fn func(*http.Request, *http.Response, error)) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.afterResponse = fn
}

// Close drops idle pooled connections
func (c *HTTPClient) Close() {
	c.client.CloseIdleConnections()
}

// CheckStatus returns a *StatusError for non-2xx responses
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		url := ""
		if resp.Request != nil {
			url = resp.Request.URL.String()
		}
		return &StatusError{Code: resp.StatusCode, URL: url}
	}
	return nil
}

// StatusCode extracts the HTTP status from err, or 0 when err is not a status error
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// setHeaders sets the appropriate headers based on client type
func (c *HTTPClient) setHeaders(req *http.Request) {
	switch c.clientType {
	case BrowserClient:
		req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
		if req.Header.Get("Accept") == "" {
			req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		}
		req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.8")

	case CloudflareClient:
		// Cloudflare allows simple tools like curl but blocks browser-like User-Agents
		req.Header.Set("User-Agent", "curl/8.7.1")

	case APIClient:
		req.Header.Set("User-Agent", defaultUserAgent)
		if req.Header.Get("Accept") == "" {
			req.Header.Set("Accept", "application/json")
		}
	}

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}
