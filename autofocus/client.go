// Package autofocus is the HTTP client for the AutoFocus v1.0 REST API.
package autofocus

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"afdata/metrics"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultHostname is the public AutoFocus API host
	DefaultHostname = "autofocus.paloaltonetworks.com"

	apiPrefix = "/api/v1.0"

	maxErrorBody = 64 * 1024
)

// Config holds client settings
type Config struct {
	// BaseURL overrides https://{Hostname}; used by tests
	BaseURL  string
	Hostname string
	APIKey   string
	Timeout  time.Duration

	// RequestsPerSecond spaces consecutive requests; zero disables the limiter
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig returns the client defaults
func DefaultConfig() Config {
	return Config{
		Hostname:          DefaultHostname,
		Timeout:           60 * time.Second,
		RequestsPerSecond: 1,
		Burst:             1,
	}
}

// Client issues signed POST requests to the AutoFocus API
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

// NewClient creates a client
func NewClient(cfg Config, logger *zap.SugaredLogger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("AutoFocus API key is required")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		host := cfg.Hostname
		if host == "" {
			host = DefaultHostname
		}
		baseURL = "https://" + host
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}

	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if burst <= 0 {
		burst = 1
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}

	return &Client{
		baseURL: baseURL + apiPrefix,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout, Transport: transport},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}, nil
}

// Post sends body as JSON to path and decodes the response into out.
// Non-2xx responses return *RemoteRequestError; connection failures return *TransportError.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	url := c.baseURL + path

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	endpoint := endpointLabel(path)
	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.APIRequests.WithLabelValues(endpoint, "transport_error").Inc()
		return &TransportError{Op: "POST", URL: redact(url), Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debugw("Failed to close response body", "error", cerr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.APIRequests.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &RemoteRequestError{URL: redact(url), StatusCode: resp.StatusCode, Body: string(text)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.APIRequests.WithLabelValues(endpoint, "transport_error").Inc()
		return &TransportError{Op: "read", URL: redact(url), Err: err}
	}
	metrics.APIRequests.WithLabelValues(endpoint, "ok").Inc()

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

// endpointLabel strips cookies and hashes so metrics stay low-cardinality
func endpointLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/samples/results/"):
		return "samples_results"
	case strings.HasPrefix(path, "/sessions/results/"):
		return "sessions_results"
	case strings.HasPrefix(path, "/sample/"):
		return "sample_analysis"
	default:
		return strings.ReplaceAll(strings.Trim(path, "/"), "/", "_")
	}
}

// redact drops any query string before a URL is surfaced in errors
func redact(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}
