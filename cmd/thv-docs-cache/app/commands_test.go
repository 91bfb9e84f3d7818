package app

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-docs-cache/internal/search"
	"github.com/stacklok/toolhive-docs-cache/internal/service"
	pkgsync "github.com/stacklok/toolhive-docs-cache/internal/sync"
	"github.com/stacklok/toolhive-docs-cache/internal/versions"
)

// writeTestConfig lays out a file upstream with two pages and returns the config path
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "docs")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "api"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "intro.md"),
		[]byte("# Getting Started\n\nInstall the CLI.\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "api", "auth.md"),
		[]byte("# Authentication\n\nRequests use a bearer token.\n"), 0o600))

	cfg := `sources:
  - id: intro
    path: intro.md
    category: guides
  - id: auth
    path: api/auth.md
    category: api
upstream:
  type: file
  root: ` + root + `
storage:
  type: file
  path: ` + filepath.Join(dir, "data") + `
logging:
  level: error
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func runJSON(t *testing.T, target any, args ...string) {
	t.Helper()
	out, err := run(t, append(args, "--format", "json")...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), target), out)
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	var info versions.VersionInfo
	runJSON(t, &info, "version")
	assert.Equal(t, versions.GetVersionInfo(), info)

	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, info.GoVersion)
}

func TestCommandsRequireConfig(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{{"sync"}, {"status"}, {"history"}, {"stale"}, {"sources"}, {"export"}} {
		_, err := run(t, args...)
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "configuration file is required")
	}
}

func TestSyncWorkflow(t *testing.T) {
	t.Parallel()
	configPath := writeTestConfig(t)

	var result pkgsync.BatchResult
	runJSON(t, &result, "sync", "--config", configPath)
	assert.ElementsMatch(t, []string{"intro", "auth"}, result.Updated)
	assert.Empty(t, result.Failed)

	out, err := run(t, "sync", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "intro")
	assert.Contains(t, out, "unchanged")

	var status service.Status
	runJSON(t, &status, "status", "--config", configPath)
	assert.Equal(t, 2, status.ConfiguredSources)
	assert.Equal(t, 2, status.TrackedSources)
	assert.Equal(t, 2, status.HistoryEntries)

	var page service.HistoryPage
	runJSON(t, &page, "history", "--config", configPath, "--limit", "1")
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Records, 1)
	assert.NotEmpty(t, page.NextCursor)

	runJSON(t, &page, "history", "--config", configPath, "--source", "auth", "--type", "created")
	require.Len(t, page.Records, 1)
	assert.Equal(t, "auth", page.Records[0].SourceID)

	var stale []string
	runJSON(t, &stale, "stale", "--config", configPath, "--max-age", "1h")
	assert.Empty(t, stale)

	var infos []service.SourceInfo
	runJSON(t, &infos, "sources", "--config", configPath)
	require.Len(t, infos, 2)
	assert.NotNil(t, infos[0].Metadata)

	var resp search.Response
	runJSON(t, &resp, "search", "--config", configPath, "bearer", "token")
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "auth", resp.Results[0].SourceID)

	var outcome pkgsync.Outcome
	runJSON(t, &outcome, "sync", "--config", configPath, "--source", "intro")
	assert.Equal(t, "intro", outcome.SourceID)
	assert.False(t, outcome.Changed)
}

func TestExportImport(t *testing.T) {
	t.Parallel()
	configPath := writeTestConfig(t)

	_, err := run(t, "sync", "--config", configPath)
	require.NoError(t, err)

	snapshot := filepath.Join(t.TempDir(), "snapshot.json")
	out, err := run(t, "export", "--config", configPath, "--output", snapshot)
	require.NoError(t, err)
	assert.Contains(t, out, snapshot)

	data, err := os.ReadFile(snapshot)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	out, err = run(t, "import", "--config", configPath, snapshot)
	require.NoError(t, err)
	assert.Contains(t, out, "Snapshot imported")

	invalid := filepath.Join(t.TempDir(), "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"schemaVersion": "one"}`), 0o600))
	_, err = run(t, "import", "--config", configPath, invalid)
	require.Error(t, err)
}

func TestCommandArgumentErrors(t *testing.T) {
	t.Parallel()
	configPath := writeTestConfig(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "source with force",
			args:    []string{"sync", "--config", configPath, "--source", "intro", "--force"},
			wantErr: "--source cannot be combined",
		},
		{
			name:    "unknown category",
			args:    []string{"sync", "--config", configPath, "--category", "blog"},
			wantErr: "no sources in category",
		},
		{
			name:    "bad since",
			args:    []string{"history", "--config", configPath, "--since", "yesterday"},
			wantErr: "invalid --since",
		},
		{
			name:    "unknown change type",
			args:    []string{"history", "--config", configPath, "--type", "renamed"},
			wantErr: "unknown change type",
		},
		{
			name:    "non-positive max age",
			args:    []string{"stale", "--config", configPath, "--max-age", "0s"},
			wantErr: "max age must be positive",
		},
		{
			name:    "non-positive search limit",
			args:    []string{"search", "--config", configPath, "--limit", "0", "token"},
			wantErr: "--limit must be positive",
		},
		{
			name:    "unsupported format",
			args:    []string{"status", "--config", configPath, "--format", "xml"},
			wantErr: "unsupported output format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseSince(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{name: "rfc3339", input: "2026-02-28T08:00:00Z", want: time.Date(2026, 2, 28, 8, 0, 0, 0, time.UTC)},
		{name: "duration", input: "36h", want: now.Add(-36 * time.Hour)},
		{name: "negative duration", input: "-1h", wantErr: true},
		{name: "garbage", input: "last week", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseSince(tt.input, now)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestValidateCommand(t *testing.T) {
	t.Parallel()
	configPath := writeTestConfig(t)

	out, err := run(t, "validate", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "default")
	assert.Contains(t, out, "file")

	broken := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("sources: []\n"), 0o600))
	_, err = run(t, "validate", "--config", broken)
	require.Error(t, err)
}
