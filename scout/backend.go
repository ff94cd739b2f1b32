package scout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBackendTimeout is the default HTTP request timeout for backend calls.
	DefaultBackendTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of attempts per call.
	DefaultMaxRetries = 3

	// defaultBaseBackoff is the base delay for exponential backoff.
	defaultBaseBackoff = 500 * time.Millisecond

	// maxResponseBytes limits the response body to 10 MB.
	maxResponseBytes = 10 << 20
)

// ClientOption configures a BackendClient.
type ClientOption func(*clientConfig)

type clientConfig struct {
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	client      *http.Client
}

func defaultClientConfig() clientConfig {
	return clientConfig{
		timeout:     DefaultBackendTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithMaxRetries sets the maximum number of attempts per call.
func WithMaxRetries(n int) ClientOption {
	return func(c *clientConfig) {
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the base delay for exponential backoff between retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.baseBackoff = d
	}
}

// WithHTTPClient overrides the default HTTP client (useful for testing).
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *clientConfig) {
		c.client = client
	}
}

// CaptureRequest is the body of POST /capture.
type CaptureRequest struct {
	Image     string  `json:"image"` // data:image/jpeg;base64,...
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// BackendClient talks to the classification backend.
type BackendClient struct {
	baseURL string
	cfg     clientConfig
	client  *http.Client
}

// statusError is a non-2xx response.
type statusError struct {
	method, url string
	code        int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %s %s: status %d", e.method, e.url, e.code)
}

// retryable reports whether a failed attempt may succeed when repeated.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// NewBackendClient creates a client for the backend at baseURL.
func NewBackendClient(baseURL string, opts ...ClientOption) (*BackendClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("backend client: base URL is empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("backend client: invalid base URL %q", baseURL)
	}

	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxRetries < 1 {
		cfg.maxRetries = 1
	}

	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}

	return &BackendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		cfg:     cfg,
		client:  client,
	}, nil
}

// StartCapture asks the backend to begin a capture session.
func (c *BackendClient) StartCapture(ctx context.Context) error {
	if _, err := c.post(ctx, "/start_capture", nil); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	return nil
}

// Capture uploads one geotagged frame.
func (c *BackendClient) Capture(ctx context.Context, req CaptureRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("capture: marshaling request: %w", err)
	}
	if _, err := c.post(ctx, "/capture", body); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	return nil
}

// StopCapture ends the capture session and returns the classified results.
func (c *BackendClient) StopCapture(ctx context.Context) (*ResultBatch, error) {
	body, err := c.post(ctx, "/stop_capture", nil)
	if err != nil {
		return nil, fmt.Errorf("stop capture: %w", err)
	}

	batch, err := ParseResultBatch(body)
	if err != nil {
		return nil, fmt.Errorf("stop capture: %w", err)
	}
	return batch, nil
}

// post sends a JSON POST, retrying transient failures with exponential backoff.
func (c *BackendClient) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	target := c.baseURL + path

	var lastErr error
	for attempt := range c.cfg.maxRetries {
		if attempt > 0 {
			backoff := c.cfg.baseBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := c.doPost(ctx, target, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("all %d attempts failed: %w", c.cfg.maxRetries, lastErr)
}

// doPost performs a single HTTP POST and returns the response body bytes.
func (c *BackendClient) doPost(ctx context.Context, target string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP POST %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{method: http.MethodPost, url: target, code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", target, err)
	}
	return data, nil
}
