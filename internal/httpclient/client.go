// Package httpclient provides the outbound HTTP client used for upstream
// fetches, probes and hosted search. Transient failures are retried with
// exponential backoff.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/stacklok/toolhive-docs-cache/internal/versions"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 10 * time.Second

	// DefaultMaxTries is the default number of attempts for retryable failures
	DefaultMaxTries = 3

	// MaxResponseSize is the maximum allowed response size (100MB)
	MaxResponseSize = 100 * 1024 * 1024
)

// Client is an interface for HTTP operations
type Client interface {
	// Get performs a GET request. A non-empty etag is sent as If-None-Match;
	// a 304 reply yields a Response with NotModified set and no body.
	Get(ctx context.Context, url string, etag string) (*Response, error)

	// Post sends a JSON body and returns the response body
	Post(ctx context.Context, url string, body []byte) ([]byte, error)
}

// Response is the result of a GET
type Response struct {
	Body        []byte
	ETag        string
	NotModified bool
}

// Option configures a DefaultClient
type Option func(*DefaultClient)

// WithMaxTries sets the number of attempts for retryable failures (minimum 1)
func WithMaxTries(n uint) Option {
	return func(c *DefaultClient) {
		if n > 0 {
			c.maxTries = n
		}
	}
}

// WithBackOff replaces the retry schedule, mainly for tests
func WithBackOff(b func() backoff.BackOff) Option {
	return func(c *DefaultClient) {
		c.newBackOff = b
	}
}

// DefaultClient is the default HTTP client implementation
type DefaultClient struct {
	client     *http.Client
	maxTries   uint
	newBackOff func() backoff.BackOff
	userAgent  string
}

// NewDefaultClient creates a new HTTP client. A zero timeout uses DefaultTimeout.
func NewDefaultClient(timeout time.Duration, opts ...Option) *DefaultClient {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	c := &DefaultClient{
		client:   &http.Client{Timeout: timeout},
		maxTries: DefaultMaxTries,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		userAgent: versions.UserAgent(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs an HTTP GET request
func (c *DefaultClient) Get(ctx context.Context, url string, etag string) (*Response, error) {
	return backoff.Retry(ctx, func() (*Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("User-Agent", c.userAgent)
		if etag != "" {
			req.Header.Set("If-None-Match", etag)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		if resp.StatusCode == http.StatusNotModified {
			return &Response{ETag: etag, NotModified: true}, nil
		}
		if err := checkStatus(resp, url); err != nil {
			return nil, err
		}

		body, err := readBody(resp)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return &Response{Body: body, ETag: resp.Header.Get("ETag")}, nil
	}, c.retryOptions()...)
}

// Post performs an HTTP POST request with a JSON body
func (c *DefaultClient) Post(ctx context.Context, url string, body []byte) ([]byte, error) {
	return backoff.Retry(ctx, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		if err := checkStatus(resp, url); err != nil {
			return nil, err
		}

		data, err := readBody(resp)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return data, nil
	}, c.retryOptions()...)
}

func (c *DefaultClient) retryOptions() []backoff.RetryOption {
	return []backoff.RetryOption{
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxTries),
	}
}

// checkStatus converts non-2xx responses into errors; only 429 and 5xx are retried
func checkStatus(resp *http.Response, url string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	httpErr := NewHTTPError(resp.StatusCode, url, resp.Status)
	if !retryable(resp.StatusCode) {
		return backoff.Permanent(httpErr)
	}
	return httpErr
}

func readBody(resp *http.Response) ([]byte, error) {
	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("response size %d bytes exceeds maximum allowed size of %d bytes",
			resp.ContentLength, MaxResponseSize)
	}

	// +1 to detect if the limit was exceeded
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response size exceeds maximum allowed size of %d bytes", MaxResponseSize)
	}
	return body, nil
}
