// Package scrapeapi is a client for a Firecrawl-compatible scraping service.
// The service renders a page in a browser and returns its HTML or a
// structured extraction of it.
package scrapeapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"etfscraper/internal/httpx"
)

// DefaultBaseURL is the hosted scraping service.
const DefaultBaseURL = "https://api.firecrawl.dev"

const (
	defaultTimeout = 30 * time.Second
	defaultBackoff = 250 * time.Millisecond
)

// ErrMissingAPIKey is returned by New when no key is given.
var ErrMissingAPIKey = errors.New("scrapeapi: missing API key")

// Client calls the scrape endpoint. It is safe for concurrent use.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient carries the requests; resty wraps it.
	httpClient *http.Client
	// userAgent identifies the client; resty would otherwise send its own.
	userAgent string
	// retries is the number of extra attempts after a retryable failure.
	retries int
	// backoff is the wait before the first retry; it doubles per attempt.
	backoff time.Duration
	// timeout bounds one attempt and is forwarded to the service.
	timeout time.Duration

	rc *resty.Client
}

// Option is a configuration option for the client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithUserAgent sets the User-Agent header. Empty keeps httpx.DefaultUserAgent.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRetries enables up to n retries on rate limiting, 5xx responses and
// transport errors. The default is a single attempt.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithBackoff sets the wait before the first retry.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.backoff = d
		}
	}
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a client authenticated with key.
func New(key string, options ...Option) (*Client, error) {
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
		userAgent:  httpx.DefaultUserAgent,
		backoff:    defaultBackoff,
		timeout:    defaultTimeout,
	}
	for _, option := range options {
		option(c)
	}
	c.rc = resty.NewWithClient(c.httpClient).
		SetBaseURL(c.baseURL).
		SetAuthToken(key).
		SetHeader("User-Agent", c.userAgent).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("Accept-Encoding", acceptEncoding).
		SetDoNotParseResponse(true)
	return c, nil
}
