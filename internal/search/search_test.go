package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-docs-cache/internal/clock"
	"github.com/stacklok/toolhive-docs-cache/internal/httpclient"
	"github.com/stacklok/toolhive-docs-cache/internal/metadata"
	"github.com/stacklok/toolhive-docs-cache/internal/sources"
	"github.com/stacklok/toolhive-docs-cache/internal/storage"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	introContent = "# Getting Started\n\nInstall the CLI and run your first server.\n"
	authContent  = "# Authentication\n\nRequests use a bearer token. Rotate the token often.\n"
)

type backendFunc func(ctx context.Context, q Query) ([]Result, error)

func (f backendFunc) Search(ctx context.Context, q Query) ([]Result, error) {
	return f(ctx, q)
}

type fixture struct {
	registry *sources.Registry
	store    *metadata.Store
	content  *storage.MemoryStore
	clock    *clock.Stub
}

// newFixture registers intro, auth, and ref; intro and auth are cached
func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry, err := sources.NewRegistry([]sources.SourceConfig{
		{ID: "intro", Path: "intro.md", Category: "guides"},
		{ID: "auth", Path: "api/auth.md", Category: "api"},
		{ID: "ref", Path: "reference/cli.md", Category: "reference"},
	})
	require.NoError(t, err)

	f := &fixture{
		registry: registry,
		content:  storage.NewMemoryStore(),
		clock:    clock.NewStub(baseTime),
	}
	f.store = metadata.NewStore(storage.NewMemoryStore(), metadata.WithClock(f.clock))
	f.cache(t, "intro", introContent)
	f.cache(t, "auth", authContent)
	return f
}

func (f *fixture) cache(t *testing.T, id, body string) {
	t.Helper()
	src, ok := f.registry.Get(id)
	require.True(t, ok)
	require.NoError(t, f.content.WriteBlob(context.Background(), storage.ContentKey(id), []byte(body)))
	f.store.RecordChange(id, src.Path, "", sources.Fingerprint([]byte(body)),
		metadata.ChangeCreated, metadata.FetchInfo{Size: int64(len(body))})
}

func (f *fixture) service(opts ...Option) *Service {
	opts = append([]Option{WithClock(f.clock)}, opts...)
	return NewService(f.registry, f.store, f.content, opts...)
}

func resultIDs(results []Result) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.SourceID)
	}
	return ids
}

func TestLocalBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		query   Query
		wantIDs []string
		wantErr error
	}{
		{
			name:    "single match",
			query:   Query{Text: "token"},
			wantIDs: []string{"auth"},
		},
		{
			name:    "ranked by score",
			query:   Query{Text: "server token"},
			wantIDs: []string{"auth", "intro"},
		},
		{
			name:    "ties keep registry order",
			query:   Query{Text: "first bearer"},
			wantIDs: []string{"intro", "auth"},
		},
		{
			name:    "category filter",
			query:   Query{Text: "server token", Filters: map[string]string{"category": "guides"}},
			wantIDs: []string{"intro"},
		},
		{
			name:    "limit",
			query:   Query{Text: "server token", Limit: 1},
			wantIDs: []string{"auth"},
		},
		{
			name:    "case insensitive",
			query:   Query{Text: "TOKEN"},
			wantIDs: []string{"auth"},
		},
		{
			name:    "no matches",
			query:   Query{Text: "widgets"},
			wantIDs: []string{},
		},
		{
			name:    "punctuation only",
			query:   Query{Text: "?!"},
			wantErr: ErrEmptyQuery,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			backend := NewLocalBackend(f.registry, f.content)

			results, err := backend.Search(context.Background(), tt.query)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantIDs, resultIDs(results))
		})
	}
}

func TestLocalBackendResultFields(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.cache(t, "ref", "plain text listing every widget flag")
	backend := NewLocalBackend(f.registry, f.content)

	results, err := backend.Search(context.Background(), Query{Text: "token"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Authentication", results[0].Title)
	assert.Equal(t, "api/auth.md", results[0].Path)
	assert.Equal(t, "api", results[0].Category)
	assert.Equal(t, float64(2), results[0].Score)
	assert.Contains(t, results[0].Snippet, "bearer token")

	results, err = backend.Search(context.Background(), Query{Text: "widget"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ref", results[0].Title, "title falls back to the source id")
}

func TestSnippet(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("lorem ", 40) + "needle " + strings.Repeat("ipsum ", 40)
	got := snippet(body, []string{"needle"})
	assert.Contains(t, got, "needle")
	assert.True(t, len(got) < len(body))
	assert.Equal(t, "...", got[:3])
	assert.Equal(t, "...", got[len(got)-3:])

	assert.Empty(t, snippet("nothing here", []string{"needle"}))
}

func TestHostedBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantIDs []string
		wantErr string
	}{
		{
			name:   "parses results",
			status: http.StatusOK,
			body: `{"results":[
				{"id":"auth","title":"Authentication","score":0.9,"url":"https://docs.example.com/api/auth"},
				{"title":"entry without id"},
				{"id":"intro","title":"Getting Started","score":0.4}
			]}`,
			wantIDs: []string{"auth", "intro"},
		},
		{
			name:    "empty results",
			status:  http.StatusOK,
			body:    `{"results":[]}`,
			wantIDs: []string{},
		},
		{
			name:    "results not an array",
			status:  http.StatusOK,
			body:    `{"results":{"id":"auth"}}`,
			wantErr: "no results array",
		},
		{
			name:    "invalid json",
			status:  http.StatusOK,
			body:    `{"results":`,
			wantErr: "invalid JSON",
		},
		{
			name:    "server error",
			status:  http.StatusBadGateway,
			body:    `upstream down`,
			wantErr: "hosted search failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got Query
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/search", r.URL.Path)
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := httpclient.NewDefaultClient(5*time.Second, httpclient.WithMaxTries(1))
			backend := NewHostedBackend(server.URL+"/", client)

			q := Query{Text: "auth", Limit: 5, Filters: map[string]string{"category": "api"}}
			results, err := backend.Search(context.Background(), q)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, q, got)
			assert.Equal(t, tt.wantIDs, resultIDs(results))
		})
	}
}

func TestServiceSearch(t *testing.T) {
	t.Parallel()

	hostedResults := []Result{{SourceID: "auth", Title: "Authentication", Score: 1}}
	failing := errors.New("connection refused")

	tests := []struct {
		name        string
		hostedErr   error
		noHosted    bool
		wantBackend string
		wantIDs     []string
	}{
		{
			name:        "hosted first",
			wantBackend: BackendHosted,
			wantIDs:     []string{"auth"},
		},
		{
			name:        "falls back to local",
			hostedErr:   failing,
			wantBackend: BackendLocal,
			wantIDs:     []string{"auth", "intro"},
		},
		{
			name:        "local only",
			noHosted:    true,
			wantBackend: BackendLocal,
			wantIDs:     []string{"auth", "intro"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)

			var opts []Option
			if !tt.noHosted {
				opts = append(opts, WithHosted(backendFunc(func(context.Context, Query) ([]Result, error) {
					if tt.hostedErr != nil {
						return nil, tt.hostedErr
					}
					return hostedResults, nil
				})))
			}
			svc := f.service(opts...)

			resp, err := svc.Search(context.Background(), Query{Text: "server token"})
			require.NoError(t, err)
			assert.Equal(t, tt.wantBackend, resp.Backend)
			assert.False(t, resp.CacheHit)
			assert.Equal(t, tt.wantIDs, resultIDs(resp.Results))
		})
	}
}

func TestServiceSearchCache(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var calls atomic.Int32
	svc := f.service(WithHosted(backendFunc(func(_ context.Context, q Query) ([]Result, error) {
		calls.Add(1)
		return []Result{{SourceID: "auth", Title: q.Text}}, nil
	})))
	ctx := context.Background()

	first, err := svc.Search(ctx, Query{Text: "Token", Filters: map[string]string{"category": "api"}})
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := svc.Search(ctx, Query{Text: "  token ", Filters: map[string]string{"category": "api"}})
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, BackendHosted, second.Backend)
	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, int32(1), calls.Load())

	_, err = svc.Search(ctx, Query{Text: "token", Filters: map[string]string{"category": "guides"}})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "different filters miss the cache")

	_, err = svc.Search(ctx, Query{Text: "token", Limit: 3, Filters: map[string]string{"category": "api"}})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load(), "different limit misses the cache")

	f.clock.Advance(time.Minute)
	f.store.MarkChecked(false)
	third, err := svc.Search(ctx, Query{Text: "token", Filters: map[string]string{"category": "api"}})
	require.NoError(t, err)
	assert.True(t, third.CacheHit, "a check without changes keeps the entry")

	f.store.MarkChecked(true)
	fourth, err := svc.Search(ctx, Query{Text: "token", Filters: map[string]string{"category": "api"}})
	require.NoError(t, err)
	assert.False(t, fourth.CacheHit, "a recorded update replaces the entry")
	assert.Equal(t, int32(4), calls.Load())
}

func TestServiceSearchBothBackendsFail(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	hostedDown := errors.New("hosted down")
	localDown := errors.New("index unavailable")
	svc := f.service(WithHosted(backendFunc(func(context.Context, Query) ([]Result, error) {
		return nil, hostedDown
	})))
	svc.local = backendFunc(func(context.Context, Query) ([]Result, error) {
		return nil, localDown
	})

	_, err := svc.Search(context.Background(), Query{Text: "token"})
	require.Error(t, err)
	assert.ErrorIs(t, err, hostedDown)
	assert.ErrorIs(t, err, localDown)
}

func TestServiceSearchServesCachedWhenBackendsFail(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var down atomic.Bool
	svc := f.service(WithHosted(backendFunc(func(context.Context, Query) ([]Result, error) {
		if down.Load() {
			return nil, errors.New("hosted down")
		}
		return []Result{{SourceID: "auth"}}, nil
	})))
	svc.local = backendFunc(func(context.Context, Query) ([]Result, error) {
		return nil, errors.New("local down")
	})
	ctx := context.Background()

	_, err := svc.Search(ctx, Query{Text: "token"})
	require.NoError(t, err)

	down.Store(true)
	f.clock.Advance(time.Minute)
	f.store.MarkChecked(true)

	resp, err := svc.Search(ctx, Query{Text: "token"})
	require.NoError(t, err)
	assert.True(t, resp.CacheHit)
	assert.Equal(t, []string{"auth"}, resultIDs(resp.Results))
}

func TestServiceSearchEmptyQuery(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.service().Search(context.Background(), Query{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestFreshness(t *testing.T) {
	t.Parallel()

	t.Run("never indexed", func(t *testing.T) {
		t.Parallel()
		store := metadata.NewStore(storage.NewMemoryStore())
		svc := NewService(mustRegistry(t), store, storage.NewMemoryStore())

		f := svc.Freshness()
		assert.True(t, f.LastIndexed.IsZero())
		assert.Equal(t, "never", f.LastIndexedRelative)
		assert.NotEmpty(t, f.Warning)
	})

	t.Run("fresh", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.clock.Advance(2 * time.Hour)

		fresh := f.service().Freshness()
		assert.Equal(t, baseTime, fresh.LastIndexed)
		assert.Equal(t, "2 hours ago", fresh.LastIndexedRelative)
		assert.Empty(t, fresh.Warning)
	})

	t.Run("stale beyond threshold", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.clock.Advance(30 * time.Hour)

		svc := f.service()
		resp, err := svc.Search(context.Background(), Query{Text: "token"})
		require.NoError(t, err)
		assert.Contains(t, resp.DataFreshness.Warning, "stale")
		assert.Equal(t, resp.DataFreshness.Warning, resp.StalenessWarning)
	})

	t.Run("custom threshold", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.clock.Advance(2 * time.Hour)

		fresh := f.service(WithStalenessThreshold(time.Hour)).Freshness()
		assert.NotEmpty(t, fresh.Warning)
	})
}

func mustRegistry(t *testing.T) *sources.Registry {
	t.Helper()
	r, err := sources.NewRegistry([]sources.SourceConfig{{ID: "intro", Path: "intro.md", Category: "guides"}})
	require.NoError(t, err)
	return r
}

func TestLookup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("unknown source", func(t *testing.T) {
		t.Parallel()
		_, err := newFixture(t).service().Lookup(ctx, "missing")
		assert.ErrorIs(t, err, sources.ErrUnknownSource)
	})

	t.Run("never fetched", func(t *testing.T) {
		t.Parallel()
		_, err := newFixture(t).service().Lookup(ctx, "ref")
		assert.ErrorIs(t, err, ErrNotCached)
	})

	t.Run("metadata without content", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		require.NoError(t, f.content.DeleteBlob(ctx, storage.ContentKey("intro")))
		_, err := f.service().Lookup(ctx, "intro")
		assert.ErrorIs(t, err, ErrNotCached)
	})

	t.Run("fresh content", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.clock.Advance(time.Hour)

		doc, err := f.service().Lookup(ctx, "auth")
		require.NoError(t, err)
		assert.Equal(t, authContent, doc.Content)
		assert.Equal(t, "api/auth.md", doc.Source.Path)
		assert.Equal(t, "auth", doc.Metadata.ID)
		assert.False(t, doc.Stale)
		assert.Empty(t, doc.StalenessWarning)
	})

	t.Run("stale content", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.clock.Advance(25 * time.Hour)

		doc, err := f.service().Lookup(ctx, "auth")
		require.NoError(t, err)
		assert.True(t, doc.Stale)
		assert.Contains(t, doc.StalenessWarning, "1 day ago")
	})
}

func TestCacheKey(t *testing.T) {
	t.Parallel()

	a := cacheKey(Query{Text: "token", Limit: 10, Filters: map[string]string{"category": "api", "lang": "en"}})
	b := cacheKey(Query{Text: "token", Limit: 10, Filters: map[string]string{"lang": "en", "category": "api"}})
	c := cacheKey(Query{Text: "token", Limit: 10, Filters: map[string]string{"category": "api", "unused": ""}})
	d := cacheKey(Query{Text: "token", Limit: 10, Filters: map[string]string{"category": "api"}})

	assert.Equal(t, a, b)
	assert.Equal(t, c, d)
	assert.NotEqual(t, a, d)

	// separators inside text or filter values must not collide
	e := cacheKey(Query{Text: "x|10|k=v", Limit: 10})
	f := cacheKey(Query{Text: "x", Limit: 10, Filters: map[string]string{"k": "v|10"}})
	assert.NotEqual(t, e, f)
}
