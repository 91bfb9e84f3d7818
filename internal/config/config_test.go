package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `sources:
  - id: intro
    path: getting-started/intro.md
    category: guides
upstream:
  type: http
  baseURL: https://docs.example.com/raw`

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name             string
		yamlContent      string
		skipFileCreation bool
		wantConfig       *Config
		wantErr          bool
	}{
		{
			name:        "minimal_config",
			yamlContent: minimalYAML,
			wantConfig: &Config{
				Sources: []SourceEntry{
					{ID: "intro", Path: "getting-started/intro.md", Category: "guides"},
				},
				Upstream: UpstreamConfig{
					Type:    "http",
					BaseURL: "https://docs.example.com/raw",
				},
			},
		},
		{
			name: "full_config",
			yamlContent: `name: team-docs
sources:
  - id: intro
    path: intro.md
    category: guides
    description: Introduction
  - id: api-auth
    path: api/auth.md
    category: api
upstream:
  type: file
  root: /srv/docs
  watch: true
  probe:
    type: git
    repository: https://github.com/example/docs.git
    ref: main
storage:
  type: sqlite
  path: /var/lib/docs/cache.db
scheduler:
  checkInterval: 30m
  forceInterval: 12h
sync:
  concurrency: 8
  historySize: 50
search:
  hostedURL: https://search.example.com
  stalenessThreshold: 48h
logging:
  level: debug`,
			wantConfig: &Config{
				Name: "team-docs",
				Sources: []SourceEntry{
					{ID: "intro", Path: "intro.md", Category: "guides", Description: "Introduction"},
					{ID: "api-auth", Path: "api/auth.md", Category: "api"},
				},
				Upstream: UpstreamConfig{
					Type:  "file",
					Root:  "/srv/docs",
					Watch: true,
					Probe: &ProbeConfig{
						Type:       "git",
						Repository: "https://github.com/example/docs.git",
						Ref:        "main",
					},
				},
				Storage: StorageConfig{
					Type: "sqlite",
					Path: "/var/lib/docs/cache.db",
				},
				Scheduler: SchedulerConfig{
					CheckInterval: "30m",
					ForceInterval: "12h",
				},
				Sync: SyncConfig{
					Concurrency: 8,
					HistorySize: 50,
				},
				Search: SearchConfig{
					HostedURL:          "https://search.example.com",
					StalenessThreshold: "48h",
				},
				Logging: LoggingConfig{
					Level: "debug",
				},
			},
		},
		{
			name:        "invalid_yaml",
			yamlContent: "sources: [unclosed",
			wantErr:     true,
		},
		{
			name: "no_sources",
			yamlContent: `upstream:
  type: http
  baseURL: https://docs.example.com`,
			wantErr: true,
		},
		{
			name:             "file_not_found",
			skipFileCreation: true,
			wantErr:          true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")

			if tt.skipFileCreation {
				configPath = filepath.Join(tmpDir, "non-existent.yaml")
			} else {
				err := os.WriteFile(configPath, []byte(tt.yamlContent), 0600)
				require.NoError(t, err)
			}

			config, err := LoadConfig(WithConfigPath(configPath))

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantConfig, config)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	validSources := []SourceEntry{{ID: "a", Path: "a.md", Category: "guides"}}
	validUpstream := UpstreamConfig{Type: UpstreamTypeHTTP, BaseURL: "https://docs.example.com"}

	tests := []struct {
		name    string
		config  *Config
		wantErr string
	}{
		{
			name:    "nil_config",
			config:  nil,
			wantErr: "config cannot be nil",
		},
		{
			name:   "valid",
			config: &Config{Sources: validSources, Upstream: validUpstream},
		},
		{
			name: "duplicate_source_id",
			config: &Config{
				Sources: []SourceEntry{
					{ID: "a", Path: "a.md", Category: "guides"},
					{ID: "a", Path: "b.md", Category: "guides"},
				},
				Upstream: validUpstream,
			},
			wantErr: "duplicate source id 'a'",
		},
		{
			name: "missing_category",
			config: &Config{
				Sources:  []SourceEntry{{ID: "a", Path: "a.md"}},
				Upstream: validUpstream,
			},
			wantErr: "category is required",
		},
		{
			name:    "missing_upstream_type",
			config:  &Config{Sources: validSources},
			wantErr: "upstream: type is required",
		},
		{
			name: "http_upstream_without_base_url",
			config: &Config{
				Sources:  validSources,
				Upstream: UpstreamConfig{Type: UpstreamTypeHTTP},
			},
			wantErr: "baseURL is required",
		},
		{
			name: "file_upstream_without_root",
			config: &Config{
				Sources:  validSources,
				Upstream: UpstreamConfig{Type: UpstreamTypeFile},
			},
			wantErr: "root is required",
		},
		{
			name: "watch_on_http_upstream",
			config: &Config{
				Sources: validSources,
				Upstream: UpstreamConfig{
					Type:    UpstreamTypeHTTP,
					BaseURL: "https://docs.example.com",
					Watch:   true,
				},
			},
			wantErr: "watch is only supported for file upstream",
		},
		{
			name: "git_probe_without_repository",
			config: &Config{
				Sources: validSources,
				Upstream: UpstreamConfig{
					Type:    UpstreamTypeHTTP,
					BaseURL: "https://docs.example.com",
					Probe:   &ProbeConfig{Type: ProbeTypeGit},
				},
			},
			wantErr: "repository is required",
		},
		{
			name: "s3_without_bucket",
			config: &Config{
				Sources:  validSources,
				Upstream: validUpstream,
				Storage:  StorageConfig{Type: StorageTypeS3},
			},
			wantErr: "s3.bucket is required",
		},
		{
			name: "unsupported_storage",
			config: &Config{
				Sources:  validSources,
				Upstream: validUpstream,
				Storage:  StorageConfig{Type: "redis"},
			},
			wantErr: "unsupported storage type",
		},
		{
			name: "negative_check_interval",
			config: &Config{
				Sources:   validSources,
				Upstream:  validUpstream,
				Scheduler: SchedulerConfig{CheckInterval: "-5m"},
			},
			wantErr: "checkInterval must be positive",
		},
		{
			name: "unparseable_staleness",
			config: &Config{
				Sources:  validSources,
				Upstream: validUpstream,
				Search:   SearchConfig{StalenessThreshold: "soon"},
			},
			wantErr: "invalid stalenessThreshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetters(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		cfg := &Config{}
		assert.Equal(t, "default", cfg.GetName())
		assert.Equal(t, StorageTypeFile, cfg.Storage.GetType())
		assert.Equal(t, DefaultDataDir, cfg.Storage.GetPath())
		assert.True(t, cfg.Scheduler.IsEnabled())
		assert.Equal(t, DefaultCheckInterval, cfg.Scheduler.GetCheckInterval())
		assert.Equal(t, DefaultForceInterval, cfg.Scheduler.GetForceInterval())
		assert.Equal(t, DefaultFetchTimeout, cfg.Upstream.GetTimeout())
		assert.Equal(t, DefaultSyncConcurrency, cfg.Sync.GetConcurrency())
		assert.Equal(t, DefaultHistorySize, cfg.Sync.GetHistorySize())
		assert.Equal(t, DefaultSearchTimeout, cfg.Search.GetTimeout())
		assert.Equal(t, DefaultStalenessThreshold, cfg.Search.GetStalenessThreshold())
	})

	t.Run("configured", func(t *testing.T) {
		t.Parallel()
		disabled := false
		cfg := &Config{
			Name:      "docs",
			Storage:   StorageConfig{Type: "SQLite"},
			Scheduler: SchedulerConfig{Enabled: &disabled, CheckInterval: "15m", ForceInterval: "6h"},
			Sync:      SyncConfig{Concurrency: 2, HistorySize: 10},
		}
		assert.Equal(t, "docs", cfg.GetName())
		assert.Equal(t, StorageTypeSQLite, cfg.Storage.GetType())
		assert.Equal(t, filepath.Join(DefaultDataDir, "docs-cache.db"), cfg.Storage.GetPath())
		assert.False(t, cfg.Scheduler.IsEnabled())
		assert.Equal(t, 15*time.Minute, cfg.Scheduler.GetCheckInterval())
		assert.Equal(t, 6*time.Hour, cfg.Scheduler.GetForceInterval())
		assert.Equal(t, 2, cfg.Sync.GetConcurrency())
		assert.Equal(t, 10, cfg.Sync.GetHistorySize())
	})

	t.Run("invalid_interval_falls_back", func(t *testing.T) {
		t.Parallel()
		cfg := &SchedulerConfig{CheckInterval: "never"}
		assert.Equal(t, DefaultCheckInterval, cfg.GetCheckInterval())
	})
}

func TestWithConfigPath(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(minimalYAML), 0600))

	resolvedDir, err := filepath.EvalSymlinks(tmpDir)
	require.NoError(t, err)

	tests := []struct {
		name     string
		path     string
		wantPath string
		wantErr  bool
	}{
		{
			name:    "empty path",
			path:    "",
			wantErr: true,
		},
		{
			name:    "path traversal at start",
			path:    "../does-not-exist/passwd",
			wantErr: true,
		},
		{
			name:    "missing file",
			path:    filepath.Join(tmpDir, "missing.yaml"),
			wantErr: true,
		},
		{
			name:     "valid absolute path",
			path:     configPath,
			wantPath: filepath.Join(resolvedDir, "config.yaml"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opt := WithConfigPath(tt.path)
			cfg := &loaderConfig{}
			err := opt(cfg)

			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, cfg.path)
		})
	}
}
