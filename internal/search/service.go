package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/toolhive-docs-cache/internal/clock"
	"github.com/stacklok/toolhive-docs-cache/internal/metadata"
	"github.com/stacklok/toolhive-docs-cache/internal/otel"
	"github.com/stacklok/toolhive-docs-cache/internal/sources"
	"github.com/stacklok/toolhive-docs-cache/internal/storage"
	"github.com/stacklok/toolhive-docs-cache/internal/telemetry"
)

// DefaultStalenessThreshold is the data age after which responses carry a warning
const DefaultStalenessThreshold = 24 * time.Hour

const neverIndexed = "never"

// Option configures a Service
type Option func(*Service)

// WithHosted sets the backend tried before the local one
func WithHosted(b Backend) Option {
	return func(s *Service) {
		s.hosted = b
	}
}

// WithStalenessThreshold sets the age after which data is reported stale
func WithStalenessThreshold(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.threshold = d
		}
	}
}

// WithClock sets the time source used for freshness
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithMetrics sets the query metrics recorder
func WithMetrics(m *telemetry.SearchMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer sets the tracer for query spans
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

type cacheEntry struct {
	results []Result
	backend string
	at      time.Time
}

// Service answers queries and cached-content reads
type Service struct {
	registry *sources.Registry
	store    *metadata.Store
	content  storage.BlobStore

	hosted    Backend
	local     Backend
	threshold time.Duration
	clock     clock.Clock
	metrics   *telemetry.SearchMetrics
	tracer    trace.Tracer

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewService creates a query service over the metadata store and content cache
func NewService(
	registry *sources.Registry,
	store *metadata.Store,
	content storage.BlobStore,
	opts ...Option,
) *Service {
	s := &Service{
		registry:  registry,
		store:     store,
		content:   content,
		local:     NewLocalBackend(registry, content),
		threshold: DefaultStalenessThreshold,
		clock:     clock.Real{},
		cache:     make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search runs q against the hosted backend, falling back to the local one.
// Successful results are cached until a sync records a change after they
// were stored. When both backends fail, a previously cached answer is
// served if one exists.
func (s *Service) Search(ctx context.Context, q Query) (*Response, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, ErrEmptyQuery
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}

	ctx, span := otel.StartSpan(ctx, s.tracer, "search.Search")
	defer span.End()

	key := cacheKey(q)
	cached, found := s.cached(key)
	if found && !s.store.LastUpdate().After(cached.at) {
		return s.respond(ctx, span, cached, true), nil
	}

	results, backend, err := s.query(ctx, q)
	if err != nil {
		if found {
			slog.Warn("Search backends failed, serving cached results", "query", q.Text, "error", err)
			return s.respond(ctx, span, cached, true), nil
		}
		otel.RecordError(span, err)
		return nil, err
	}

	entry := cacheEntry{results: results, backend: backend, at: s.clock.Now()}
	s.mu.Lock()
	s.cache[key] = entry
	s.mu.Unlock()

	return s.respond(ctx, span, entry, false), nil
}

func (s *Service) query(ctx context.Context, q Query) ([]Result, string, error) {
	var hostedErr error
	if s.hosted != nil {
		results, err := s.hosted.Search(ctx, q)
		if err == nil {
			return results, BackendHosted, nil
		}
		hostedErr = err
		slog.Warn("Hosted search failed, falling back to local search", "query", q.Text, "error", err)
	}

	results, err := s.local.Search(ctx, q)
	if err != nil {
		return nil, "", errors.Join(hostedErr, fmt.Errorf("local search failed: %w", err))
	}
	return results, BackendLocal, nil
}

func (s *Service) cached(key string) (cacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[key]
	return entry, ok
}

func (s *Service) respond(ctx context.Context, span trace.Span, entry cacheEntry, hit bool) *Response {
	freshness := s.Freshness()
	s.metrics.RecordQuery(ctx, entry.backend, hit)
	span.SetAttributes(
		otel.AttrSearchBackend.String(entry.backend),
		otel.AttrCacheHit.Bool(hit),
		otel.AttrResultCount.Int(len(entry.results)),
	)

	return &Response{
		Results:          slices.Clone(entry.results),
		Backend:          entry.backend,
		CacheHit:         hit,
		DataFreshness:    freshness,
		StalenessWarning: freshness.Warning,
	}
}

// Freshness describes the age of the most recently fetched source
func (s *Service) Freshness() DataFreshness {
	last := s.store.LastFetched()
	if last.IsZero() {
		return DataFreshness{
			LastIndexedRelative: neverIndexed,
			Warning:             "Documentation has not been indexed yet; results may be missing",
		}
	}

	now := s.clock.Now()
	f := DataFreshness{
		LastIndexed:         last,
		LastIndexedRelative: humanize.RelTime(last, now, "ago", "from now"),
	}
	if now.Sub(last) > s.threshold {
		f.Warning = fmt.Sprintf("Data might be stale: last indexed %s", f.LastIndexedRelative)
	}
	return f
}

// Lookup reads a source's cached content along with its metadata
func (s *Service) Lookup(ctx context.Context, id string) (*Document, error) {
	src, ok := s.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", sources.ErrUnknownSource, id)
	}

	meta, ok := s.store.GetSource(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotCached, id)
	}

	data, err := s.content.ReadBlob(ctx, storage.ContentKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotCached, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached content for %s: %w", id, err)
	}

	doc := &Document{
		Source:   src,
		Metadata: meta,
		Content:  string(data),
	}
	now := s.clock.Now()
	if now.Sub(meta.LastFetched) > s.threshold {
		doc.Stale = true
		doc.StalenessWarning = fmt.Sprintf("Content might be stale: last fetched %s",
			humanize.RelTime(meta.LastFetched, now, "ago", "from now"))
	}
	return doc, nil
}

// cacheKey normalizes a query so equivalent requests share an entry. Text,
// filter keys and values are quoted so separators inside them cannot collide.
func cacheKey(q Query) string {
	var b strings.Builder
	b.WriteString(strconv.Quote(strings.ToLower(q.Text)))
	b.WriteString("|")
	b.WriteString(strconv.Itoa(q.Limit))
	for _, k := range slices.Sorted(maps.Keys(q.Filters)) {
		if q.Filters[k] == "" {
			continue
		}
		b.WriteString("|")
		b.WriteString(strconv.Quote(k))
		b.WriteString("=")
		b.WriteString(strconv.Quote(q.Filters[k]))
	}
	return b.String()
}
