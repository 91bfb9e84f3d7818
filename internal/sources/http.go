package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/stacklok/toolhive-docs-cache/internal/httpclient"
)

// HTTPFetcher fetches sources relative to a base URL
type HTTPFetcher struct {
	baseURL string
	client  httpclient.Client
}

var _ ContentFetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher for <baseURL>/<source path>
func NewHTTPFetcher(baseURL string, client httpclient.Client) (*HTTPFetcher, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}, nil
}

// Fetch retrieves the source over HTTP. 404/410 map to ErrSourceNotFound.
func (f *HTTPFetcher) Fetch(ctx context.Context, src SourceConfig, etag string) (*FetchResult, error) {
	target := f.baseURL + "/" + strings.TrimLeft(src.Path, "/")

	resp, err := f.client.Get(ctx, target, etag)
	if err != nil {
		if httpclient.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, target)
		}
		return nil, fmt.Errorf("failed to fetch %s: %w", target, err)
	}

	if resp.NotModified {
		return &FetchResult{ETag: resp.ETag, NotModified: true}, nil
	}
	return NewFetchResult(resp.Body, resp.ETag), nil
}
