// Package search is the read path of the docs cache. It queries a hosted
// search service with a local fallback, caches responses, and decorates every
// response with how fresh the underlying cache is.
package search

import (
	"context"
	"errors"
	"time"

	"github.com/stacklok/toolhive-docs-cache/internal/metadata"
	"github.com/stacklok/toolhive-docs-cache/internal/sources"
)

// Backend names reported in responses
const (
	BackendHosted = "hosted"
	BackendLocal  = "local"
)

// DefaultLimit is used when a query does not set one
const DefaultLimit = 10

var (
	// ErrEmptyQuery is returned for a query without search text
	ErrEmptyQuery = errors.New("query text cannot be empty")

	// ErrNotCached is returned by Lookup for a source with no cached content
	ErrNotCached = errors.New("source has no cached content")
)

// Query is a search request. Filters are matched exactly; the local backend
// understands the "category" filter.
type Query struct {
	Text    string            `json:"query"`
	Limit   int               `json:"limit,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
}

// Result is one search hit
type Result struct {
	SourceID string  `json:"id"`
	Title    string  `json:"title"`
	Path     string  `json:"path,omitempty"`
	Category string  `json:"category,omitempty"`
	Snippet  string  `json:"snippet,omitempty"`
	URL      string  `json:"url,omitempty"`
	Score    float64 `json:"score"`
}

// Backend runs queries
type Backend interface {
	Search(ctx context.Context, q Query) ([]Result, error)
}

// DataFreshness describes how recently the cache was confirmed against upstream
type DataFreshness struct {
	LastIndexed         time.Time `json:"lastIndexed,omitzero"`
	LastIndexedRelative string    `json:"lastIndexedRelative"`
	Warning             string    `json:"warning,omitempty"`
}

// Response is a decorated search response
type Response struct {
	Results          []Result      `json:"results"`
	Backend          string        `json:"backend"`
	CacheHit         bool          `json:"cacheHit"`
	DataFreshness    DataFreshness `json:"dataFreshness"`
	StalenessWarning string        `json:"stalenessWarning,omitempty"`
}

// Document is a cached source read through Lookup
type Document struct {
	Source   sources.SourceConfig    `json:"source"`
	Metadata metadata.SourceMetadata `json:"metadata"`
	Content  string                  `json:"content"`

	// Stale is set when the source was last fetched longer ago than the staleness threshold
	Stale            bool   `json:"stale"`
	StalenessWarning string `json:"stalenessWarning,omitempty"`
}
