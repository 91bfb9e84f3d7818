package sources

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"

	"github.com/stacklok/toolhive-docs-cache/internal/config"
)

var (
	// ErrUnknownSource is returned when a source id is not in the registry
	ErrUnknownSource = errors.New("unknown source")

	// ErrSourceNotFound is returned by fetchers when the upstream no longer has the source
	ErrSourceNotFound = errors.New("source not found upstream")
)

// Category groups sources (e.g. "guides", "api", "reference")
type Category string

// SourceConfig is one independently trackable documentation page. Immutable.
type SourceConfig struct {
	ID          string   `json:"id"`
	Path        string   `json:"path"`
	Category    Category `json:"category"`
	Description string   `json:"description,omitempty"`
}

//go:generate mockgen -destination=mocks/mock_sources.go -package=mocks -source=types.go ContentFetcher,UpstreamProbe

// ContentFetcher retrieves the current content of a source. Implementations must be safe to retry.
type ContentFetcher interface {
	// Fetch returns the source's content and fingerprint. A non-empty etag may be used
	// for a conditional request; when upstream reports no change the result has
	// NotModified set and carries no content.
	Fetch(ctx context.Context, src SourceConfig, etag string) (*FetchResult, error)
}

// UpstreamProbe returns a top-level fingerprint that changes whenever any source may have changed
type UpstreamProbe interface {
	Fingerprint(ctx context.Context) (string, error)
}

// FetchResult contains the result of a fetch operation
type FetchResult struct {
	Content     []byte
	Fingerprint string
	Size        int64
	ETag        string
	NotModified bool
}

// NewFetchResult builds a FetchResult, computing the fingerprint from content
func NewFetchResult(content []byte, etag string) *FetchResult {
	return &FetchResult{
		Content:     content,
		Fingerprint: Fingerprint(content),
		Size:        int64(len(content)),
		ETag:        etag,
	}
}

// Fingerprint is the hex SHA-256 of data
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Registry is the static, ordered set of configured sources
type Registry struct {
	sources []SourceConfig
	index   map[string]int
}

// NewRegistry creates a registry, rejecting empty or duplicate ids
func NewRegistry(sources []SourceConfig) (*Registry, error) {
	r := &Registry{
		sources: make([]SourceConfig, 0, len(sources)),
		index:   make(map[string]int, len(sources)),
	}
	for _, src := range sources {
		if src.ID == "" {
			return nil, fmt.Errorf("source id cannot be empty")
		}
		if _, dup := r.index[src.ID]; dup {
			return nil, fmt.Errorf("duplicate source id: %s", src.ID)
		}
		r.index[src.ID] = len(r.sources)
		r.sources = append(r.sources, src)
	}
	return r, nil
}

// NewRegistryFromConfig converts the configured source entries into a Registry
func NewRegistryFromConfig(entries []config.SourceEntry) (*Registry, error) {
	srcs := make([]SourceConfig, 0, len(entries))
	for _, e := range entries {
		srcs = append(srcs, SourceConfig{
			ID:          e.ID,
			Path:        e.Path,
			Category:    Category(e.Category),
			Description: e.Description,
		})
	}
	return NewRegistry(srcs)
}

// Get looks up a source by id
func (r *Registry) Get(id string) (SourceConfig, bool) {
	i, ok := r.index[id]
	if !ok {
		return SourceConfig{}, false
	}
	return r.sources[i], true
}

// All returns the sources in registry order
func (r *Registry) All() []SourceConfig {
	return slices.Clone(r.sources)
}

// Filter returns, in registry order, the sources in any of the given categories.
// No categories means all sources.
func (r *Registry) Filter(categories []Category) []SourceConfig {
	if len(categories) == 0 {
		return r.All()
	}
	var out []SourceConfig
	for _, src := range r.sources {
		if slices.Contains(categories, src.Category) {
			out = append(out, src)
		}
	}
	return out
}

// IDs returns the source ids in registry order
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.sources))
	for i, src := range r.sources {
		ids[i] = src.ID
	}
	return ids
}

// Len returns the number of sources
func (r *Registry) Len() int {
	return len(r.sources)
}
