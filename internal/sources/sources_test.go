package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-docs-cache/internal/config"
	"github.com/stacklok/toolhive-docs-cache/internal/httpclient"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry([]SourceConfig{
		{ID: "docs/intro", Path: "intro.md", Category: "guides"},
		{ID: "api/auth", Path: "api/auth.md", Category: "api"},
		{ID: "docs/setup", Path: "setup.md", Category: "guides"},
	})
	require.NoError(t, err)
	return reg
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	assert.Equal(t, 3, reg.Len())
	assert.Equal(t, []string{"docs/intro", "api/auth", "docs/setup"}, reg.IDs())

	src, ok := reg.Get("api/auth")
	require.True(t, ok)
	assert.Equal(t, Category("api"), src.Category)

	_, ok = reg.Get("missing")
	assert.False(t, ok)

	guides := reg.Filter([]Category{"guides"})
	require.Len(t, guides, 2)
	assert.Equal(t, "docs/intro", guides[0].ID)
	assert.Equal(t, "docs/setup", guides[1].ID)

	assert.Len(t, reg.Filter(nil), 3)
	assert.Empty(t, reg.Filter([]Category{"unknown"}))

	// All returns a copy
	all := reg.All()
	all[0].ID = "mutated"
	assert.Equal(t, "docs/intro", reg.IDs()[0])
}

func TestNewRegistryRejectsInvalid(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry([]SourceConfig{{ID: "a"}, {ID: "a"}})
	assert.ErrorContains(t, err, "duplicate source id")

	_, err = NewRegistry([]SourceConfig{{ID: ""}})
	assert.ErrorContains(t, err, "cannot be empty")
}

func TestNewRegistryFromConfig(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistryFromConfig([]config.SourceEntry{
		{ID: "intro", Path: "intro.md", Category: "guides", Description: "Intro"},
	})
	require.NoError(t, err)
	src, ok := reg.Get("intro")
	require.True(t, ok)
	assert.Equal(t, SourceConfig{ID: "intro", Path: "intro.md", Category: "guides", Description: "Intro"}, src)
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Fingerprint(nil))
	res := NewFetchResult([]byte("hello"), `"e1"`)
	assert.Equal(t, int64(5), res.Size)
	assert.Equal(t, Fingerprint([]byte("hello")), res.Fingerprint)
	assert.Equal(t, `"e1"`, res.ETag)
}

func TestFileFetcher(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "api"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "api", "auth.md"), []byte("# Auth"), 0o600))

	fetcher := NewFileFetcher(root)

	tests := []struct {
		name        string
		src         SourceConfig
		wantContent string
		wantErr     error
		errContains string
	}{
		{
			name:        "existing file",
			src:         SourceConfig{ID: "api/auth", Path: "api/auth.md"},
			wantContent: "# Auth",
		},
		{
			name:    "missing file",
			src:     SourceConfig{ID: "gone", Path: "gone.md"},
			wantErr: ErrSourceNotFound,
		},
		{
			name:        "path escaping root",
			src:         SourceConfig{ID: "evil", Path: "../etc/passwd"},
			errContains: "escapes the upstream root",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := fetcher.Fetch(context.Background(), tt.src, "")
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.errContains != "":
				require.ErrorContains(t, err, tt.errContains)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantContent, string(res.Content))
				assert.Equal(t, Fingerprint([]byte(tt.wantContent)), res.Fingerprint)
			}
		})
	}
}

func TestHTTPFetcher(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/raw/intro.md":
			if r.Header.Get("If-None-Match") == `"v1"` {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Header().Set("ETag", `"v1"`)
			_, _ = w.Write([]byte("# Intro"))
		case "/raw/broken.md":
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	server.Config.SetKeepAlivesEnabled(false)
	defer server.Close()

	fetcher, err := NewHTTPFetcher(server.URL+"/raw/", httpclient.NewDefaultClient(5*time.Second))
	require.NoError(t, err)
	ctx := context.Background()

	res, err := fetcher.Fetch(ctx, SourceConfig{ID: "intro", Path: "/intro.md"}, "")
	require.NoError(t, err)
	assert.Equal(t, "# Intro", string(res.Content))
	assert.Equal(t, `"v1"`, res.ETag)
	assert.False(t, res.NotModified)

	res, err = fetcher.Fetch(ctx, SourceConfig{ID: "intro", Path: "intro.md"}, `"v1"`)
	require.NoError(t, err)
	assert.True(t, res.NotModified)
	assert.Nil(t, res.Content)

	_, err = fetcher.Fetch(ctx, SourceConfig{ID: "gone", Path: "gone.md"}, "")
	assert.ErrorIs(t, err, ErrSourceNotFound)

	_, err = fetcher.Fetch(ctx, SourceConfig{ID: "broken", Path: "broken.md"}, "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSourceNotFound)
}

func TestNewHTTPFetcherInvalidURL(t *testing.T) {
	t.Parallel()

	_, err := NewHTTPFetcher("not a url", httpclient.NewDefaultClient(time.Second))
	assert.Error(t, err)
}

type fakeLister struct {
	refs []*plumbing.Reference
	err  error
}

func (f *fakeLister) ListContext(context.Context, *git.ListOptions) ([]*plumbing.Reference, error) {
	return f.refs, f.err
}

func TestGitProbe(t *testing.T) {
	t.Parallel()

	mainHash := plumbing.NewHash("1111111111111111111111111111111111111111")
	tagHash := plumbing.NewHash("2222222222222222222222222222222222222222")
	refs := []*plumbing.Reference{
		plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main")),
		plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), mainHash),
		plumbing.NewHashReference(plumbing.NewTagReferenceName("v1.0.0"), tagHash),
	}

	tests := []struct {
		name    string
		ref     string
		lister  *fakeLister
		want    string
		wantErr string
	}{
		{name: "default HEAD follows symbolic ref", lister: &fakeLister{refs: refs}, want: mainHash.String()},
		{name: "branch short name", ref: "main", lister: &fakeLister{refs: refs}, want: mainHash.String()},
		{name: "tag short name", ref: "v1.0.0", lister: &fakeLister{refs: refs}, want: tagHash.String()},
		{name: "full ref name", ref: "refs/tags/v1.0.0", lister: &fakeLister{refs: refs}, want: tagHash.String()},
		{name: "unknown ref", ref: "develop", lister: &fakeLister{refs: refs}, wantErr: "not found"},
		{name: "list error", lister: &fakeLister{err: errors.New("connection refused")}, wantErr: "connection refused"},
		{
			name: "dangling symbolic ref",
			lister: &fakeLister{refs: []*plumbing.Reference{
				plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("gone")),
			}},
			wantErr: "points at missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			probe := NewGitProbe("https://github.com/example/docs.git", tt.ref)
			probe.lister = tt.lister

			got, err := probe.Fingerprint(context.Background())
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPProbe(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("intro.md\nsetup.md\n"))
	}))
	server.Config.SetKeepAlivesEnabled(false)
	defer server.Close()

	probe := NewHTTPProbe(server.URL+"/llms.txt", httpclient.NewDefaultClient(5*time.Second))
	got, err := probe.Fingerprint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Fingerprint([]byte("intro.md\nsetup.md\n")), got)
}

func TestFactory(t *testing.T) {
	t.Parallel()

	client := httpclient.NewDefaultClient(time.Second)

	f, err := NewFetcher(&config.UpstreamConfig{Type: config.UpstreamTypeFile, Root: "/srv/docs"}, client)
	require.NoError(t, err)
	assert.IsType(t, &FileFetcher{}, f)

	f, err = NewFetcher(&config.UpstreamConfig{Type: config.UpstreamTypeHTTP, BaseURL: "https://docs.example.com"}, client)
	require.NoError(t, err)
	assert.IsType(t, &HTTPFetcher{}, f)

	_, err = NewFetcher(&config.UpstreamConfig{Type: "ftp"}, client)
	assert.Error(t, err)

	p, err := NewProbe(nil, client)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = NewProbe(&config.ProbeConfig{Type: config.ProbeTypeGit, Repository: "https://github.com/example/docs.git"}, client)
	require.NoError(t, err)
	assert.IsType(t, &GitProbe{}, p)

	p, err = NewProbe(&config.ProbeConfig{Type: config.ProbeTypeHTTP, URL: "https://docs.example.com/llms.txt"}, client)
	require.NoError(t, err)
	assert.IsType(t, &HTTPProbe{}, p)
}

func TestWatcher(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "intro.md")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o600))

	reg, err := NewRegistry([]SourceConfig{
		{ID: "docs/intro", Path: "intro.md", Category: "guides"},
		{ID: "docs/other", Path: "other.md", Category: "guides"},
	})
	require.NoError(t, err)

	changed := make(chan string, 10)
	w, err := NewWatcher(NewFileFetcher(root), reg, func(id string) { changed <- id })
	require.NoError(t, err)
	w.debounce = 100 * time.Millisecond

	require.NoError(t, w.Start())
	defer func() { require.NoError(t, w.Stop()) }()
	assert.Error(t, w.Start(), "second start should fail")

	// Several writes in a burst collapse into one notification
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte('a' + i)}, 0o600))
	}

	select {
	case id := <-changed:
		assert.Equal(t, "docs/intro", id)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}

	select {
	case id := <-changed:
		t.Fatalf("unexpected extra notification for %s", id)
	case <-time.After(400 * time.Millisecond):
	}
}
