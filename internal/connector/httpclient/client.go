// Package httpclient is the outbound HTTP client shared by CRM connectors.
// Requests are throttled per connector and never retried.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Config configures the client behavior.
type Config struct {
	// Name identifies the connector in logs.
	Name string

	// Timeout for individual requests (default: 30s).
	Timeout time.Duration

	// RateLimit requests per second (default: 10).
	RateLimit float64

	// RateBurst maximum burst size (default: 5).
	RateBurst int

	// UserAgent string (default: "crm-bridge/1.0").
	UserAgent string

	// Transport allows injecting a custom HTTP transport for tests.
	Transport http.RoundTripper
}

// Client is a rate-limited HTTP client.
type Client struct {
	config      Config
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

func New(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 10.0
	}
	if config.RateBurst == 0 {
		config.RateBurst = 5
	}
	if config.UserAgent == "" {
		config.UserAgent = "crm-bridge/1.0"
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: config.Transport,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
	}
}

// Request represents an HTTP request to be made.
type Request struct {
	Method  string
	URL     string
	Query   url.Values
	Headers map[string]string
	// JSON is marshalled as the body when set.
	JSON any
	// Form is url-encoded as the body when set.
	Form url.Values
}

// Response wraps an HTTP response with convenience methods.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON unmarshals the response body into the given target.
func (r *Response) JSON(target any) error {
	if err := json.Unmarshal(r.Body, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Do executes a request. Status codes >= 400 return an *Error alongside the response.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	fullURL := req.URL
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(fullURL, "?") {
			sep = "&"
		}
		fullURL += sep + req.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.JSON != nil:
		data, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	log.Debug().
		Str("connector", c.config.Name).
		Str("method", req.Method).
		Str("host", httpReq.URL.Host).
		Str("path", httpReq.URL.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("crm request")

	response := &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}

	if resp.StatusCode >= 400 {
		return response, &Error{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(respBody), 512),
		}
	}

	return response, nil
}

func (c *Client) Get(ctx context.Context, rawURL string, query url.Values, headers map[string]string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, URL: rawURL, Query: query, Headers: headers})
}

func (c *Client) PostJSON(ctx context.Context, rawURL string, body any, headers map[string]string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, URL: rawURL, JSON: body, Headers: headers})
}

func (c *Client) PutJSON(ctx context.Context, rawURL string, body any, headers map[string]string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPut, URL: rawURL, JSON: body, Headers: headers})
}

func (c *Client) PatchJSON(ctx context.Context, rawURL string, body any, headers map[string]string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPatch, URL: rawURL, JSON: body, Headers: headers})
}

func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, headers map[string]string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, URL: rawURL, Form: form, Headers: headers})
}

// Error represents an HTTP error response.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRateLimited returns true if this is a rate limit error.
func (e *Error) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsAuthError returns true for the 400-409 range CRMs use for bad or expired credentials.
func (e *Error) IsAuthError() bool {
	return e.StatusCode >= 400 && e.StatusCode <= 409
}

// IsServerError returns true if this is a server error.
func (e *Error) IsServerError() bool {
	return e.StatusCode >= 500
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
