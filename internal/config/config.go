// Package config provides configuration loading and management for the docs cache server.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/toolhive-docs-cache/internal/telemetry"
)

// EnvPrefix is the prefix used for environment variable overrides (THV_DOCS_*)
const EnvPrefix = "THV_DOCS"

const (
	// UpstreamTypeHTTP fetches documentation pages over HTTP(S) relative to a base URL
	UpstreamTypeHTTP = "http"

	// UpstreamTypeFile reads documentation pages from a local directory
	UpstreamTypeFile = "file"
)

const (
	// ProbeTypeGit resolves the upstream fingerprint from a git ref (ls-remote)
	ProbeTypeGit = "git"

	// ProbeTypeHTTP resolves the upstream fingerprint by hashing a manifest URL
	ProbeTypeHTTP = "http"
)

const (
	// StorageTypeFile stores blobs as files below a base directory
	StorageTypeFile = "file"

	// StorageTypeS3 stores blobs as objects in an S3 bucket
	StorageTypeS3 = "s3"

	// StorageTypeSQLite stores blobs as rows in a SQLite database
	StorageTypeSQLite = "sqlite"

	// StorageTypeMemory keeps blobs in process memory (tests, dry runs)
	StorageTypeMemory = "memory"
)

const (
	// DefaultCheckInterval is how often the scheduler checks upstream for changes
	DefaultCheckInterval = time.Hour

	// DefaultForceInterval is how often the scheduler re-fetches every source regardless of fingerprints
	DefaultForceInterval = 24 * time.Hour

	// DefaultStalenessThreshold is the age after which query results carry a staleness warning
	DefaultStalenessThreshold = 24 * time.Hour

	// DefaultSearchTimeout bounds a single hosted search request
	DefaultSearchTimeout = 10 * time.Second

	// DefaultFetchTimeout bounds a single upstream fetch
	DefaultFetchTimeout = 30 * time.Second

	// DefaultSyncConcurrency is the number of sources fetched in parallel during a batch sync
	DefaultSyncConcurrency = 4

	// DefaultHistorySize is the number of update records retained in the history log
	DefaultHistorySize = 100

	// DefaultDataDir is where file and sqlite storage keep their data when no path is configured
	DefaultDataDir = "./data"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Name identifies this cache instance in logs and telemetry
	Name string `yaml:"name,omitempty"`

	// Sources is the static list of documentation sources, in sync order
	Sources []SourceEntry `yaml:"sources"`

	Upstream  UpstreamConfig    `yaml:"upstream"`
	Storage   StorageConfig     `yaml:"storage,omitempty"`
	Scheduler SchedulerConfig   `yaml:"scheduler,omitempty"`
	Sync      SyncConfig        `yaml:"sync,omitempty"`
	Search    SearchConfig      `yaml:"search,omitempty"`
	Logging   LoggingConfig     `yaml:"logging,omitempty"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// SourceEntry defines one documentation source
type SourceEntry struct {
	ID          string `yaml:"id"`
	Path        string `yaml:"path"`
	Category    string `yaml:"category"`
	Description string `yaml:"description,omitempty"`
}

// UpstreamConfig defines where source content is fetched from
type UpstreamConfig struct {
	// Type is either "http" or "file"
	Type string `yaml:"type"`

	// BaseURL is prepended to each source path for http upstreams
	BaseURL string `yaml:"baseURL,omitempty"`

	// Root is the directory source paths are resolved against for file upstreams
	Root string `yaml:"root,omitempty"`

	// Timeout bounds a single fetch (e.g., "30s")
	Timeout string `yaml:"timeout,omitempty"`

	// MaxRetries is the number of attempts for transient http failures
	MaxRetries uint `yaml:"maxRetries,omitempty"`

	// Watch enables filesystem notifications for file upstreams
	Watch bool `yaml:"watch,omitempty"`

	// Probe configures the cheap "anything changed" pre-check
	Probe *ProbeConfig `yaml:"probe,omitempty"`
}

// ProbeConfig defines the upstream fingerprint probe
type ProbeConfig struct {
	// Type is either "git" or "http"
	Type string `yaml:"type"`

	// Repository is the git remote URL for git probes
	Repository string `yaml:"repository,omitempty"`

	// Ref is the branch, tag or full ref name for git probes (defaults to HEAD)
	Ref string `yaml:"ref,omitempty"`

	// URL is fetched and hashed for http probes
	URL string `yaml:"url,omitempty"`
}

// StorageConfig defines the durable storage backend
type StorageConfig struct {
	// Type is one of "file", "s3", "sqlite" or "memory" (defaults to "file")
	Type string `yaml:"type,omitempty"`

	// Path is the base directory (file) or database file (sqlite)
	Path string `yaml:"path,omitempty"`

	// S3 holds bucket settings for the s3 backend
	S3 *S3Config `yaml:"s3,omitempty"`
}

// S3Config defines S3 bucket settings
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix,omitempty"`
	Region       string `yaml:"region,omitempty"`
	Endpoint     string `yaml:"endpoint,omitempty"`
	UsePathStyle bool   `yaml:"usePathStyle,omitempty"`

	// AccessKeyID and SecretAccessKeyFile configure static credentials.
	// When empty, the default AWS credential chain is used.
	AccessKeyID         string `yaml:"accessKeyID,omitempty"`
	SecretAccessKeyFile string `yaml:"secretAccessKeyFile,omitempty"`
}

// SchedulerConfig defines periodic sync settings
type SchedulerConfig struct {
	// Enabled starts the scheduler together with the server (defaults to true)
	Enabled *bool `yaml:"enabled,omitempty"`

	// CheckInterval is how often to check for upstream changes (e.g., "1h")
	CheckInterval string `yaml:"checkInterval,omitempty"`

	// ForceInterval is how often to re-fetch all sources regardless of fingerprint (e.g., "24h")
	ForceInterval string `yaml:"forceInterval,omitempty"`
}

// SyncConfig defines sync engine settings
type SyncConfig struct {
	Concurrency int `yaml:"concurrency,omitempty"`
	HistorySize int `yaml:"historySize,omitempty"`
}

// SearchConfig defines the query layer settings
type SearchConfig struct {
	// HostedURL is the hosted search endpoint; when empty only local search is used
	HostedURL string `yaml:"hostedURL,omitempty"`

	// Timeout bounds a hosted search request
	Timeout string `yaml:"timeout,omitempty"`

	// StalenessThreshold is the data age after which results carry a warning
	StalenessThreshold string `yaml:"stalenessThreshold,omitempty"`
}

// LoggingConfig defines logging output
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"maxSizeMB,omitempty"`
	MaxBackups int    `yaml:"maxBackups,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	// #nosec G304 -- path was resolved and validated by WithConfigPath
	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses and validates YAML configuration content
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetName returns the instance name, using "default" if not specified
func (c *Config) GetName() string {
	if c.Name == "" {
		return "default"
	}
	return c.Name
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source must be configured")
	}

	ids := make(map[string]bool)
	for i, src := range c.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if ids[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate source id '%s'", i, src.ID)
		}
		ids[src.ID] = true
		if src.Path == "" {
			return fmt.Errorf("sources[%d] (%s): path is required", i, src.ID)
		}
		if src.Category == "" {
			return fmt.Errorf("sources[%d] (%s): category is required", i, src.ID)
		}
	}

	if err := c.Upstream.validate(); err != nil {
		return fmt.Errorf("upstream: %w", err)
	}
	if err := c.Storage.validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Scheduler.validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	if err := c.Search.validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if c.Sync.Concurrency < 0 {
		return fmt.Errorf("sync: concurrency cannot be negative")
	}
	if c.Sync.HistorySize < 0 {
		return fmt.Errorf("sync: historySize cannot be negative")
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	return nil
}

func (u *UpstreamConfig) validate() error {
	switch u.Type {
	case UpstreamTypeHTTP:
		if u.BaseURL == "" {
			return fmt.Errorf("baseURL is required for http upstream")
		}
	case UpstreamTypeFile:
		if u.Root == "" {
			return fmt.Errorf("root is required for file upstream")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unsupported upstream type: %s", u.Type)
	}

	if u.Watch && u.Type != UpstreamTypeFile {
		return fmt.Errorf("watch is only supported for file upstream")
	}

	if err := validateDuration(u.Timeout, "timeout"); err != nil {
		return err
	}

	if u.Probe != nil {
		switch u.Probe.Type {
		case ProbeTypeGit:
			if u.Probe.Repository == "" {
				return fmt.Errorf("probe: repository is required for git probe")
			}
		case ProbeTypeHTTP:
			if u.Probe.URL == "" {
				return fmt.Errorf("probe: url is required for http probe")
			}
		default:
			return fmt.Errorf("probe: unsupported probe type: %s", u.Probe.Type)
		}
	}
	return nil
}

func (s *StorageConfig) validate() error {
	switch s.GetType() {
	case StorageTypeFile, StorageTypeSQLite, StorageTypeMemory:
		return nil
	case StorageTypeS3:
		if s.S3 == nil || s.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required for s3 storage")
		}
		return nil
	default:
		return fmt.Errorf("unsupported storage type: %s", s.Type)
	}
}

func (s *SchedulerConfig) validate() error {
	if err := validateDuration(s.CheckInterval, "checkInterval"); err != nil {
		return err
	}
	return validateDuration(s.ForceInterval, "forceInterval")
}

func (s *SearchConfig) validate() error {
	if err := validateDuration(s.Timeout, "timeout"); err != nil {
		return err
	}
	return validateDuration(s.StalenessThreshold, "stalenessThreshold")
}

func validateDuration(value, field string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", field, value, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return nil
}

// GetType returns the storage type, defaulting to file storage
func (s *StorageConfig) GetType() string {
	if s.Type == "" {
		return StorageTypeFile
	}
	return strings.ToLower(s.Type)
}

// GetPath returns the storage path, defaulting to the data directory
func (s *StorageConfig) GetPath() string {
	if s.Path != "" {
		return s.Path
	}
	if s.GetType() == StorageTypeSQLite {
		return filepath.Join(DefaultDataDir, "docs-cache.db")
	}
	return DefaultDataDir
}

// IsEnabled reports whether the scheduler should start with the server
func (s *SchedulerConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// GetCheckInterval returns the check interval, falling back to the default
func (s *SchedulerConfig) GetCheckInterval() time.Duration {
	return parseDurationOrDefault(s.CheckInterval, DefaultCheckInterval, "checkInterval")
}

// GetForceInterval returns the force interval, falling back to the default
func (s *SchedulerConfig) GetForceInterval() time.Duration {
	return parseDurationOrDefault(s.ForceInterval, DefaultForceInterval, "forceInterval")
}

// GetTimeout returns the per-fetch timeout
func (u *UpstreamConfig) GetTimeout() time.Duration {
	return parseDurationOrDefault(u.Timeout, DefaultFetchTimeout, "upstream.timeout")
}

// GetConcurrency returns the batch sync concurrency
func (s *SyncConfig) GetConcurrency() int {
	if s.Concurrency <= 0 {
		return DefaultSyncConcurrency
	}
	return s.Concurrency
}

// GetHistorySize returns the history capacity
func (s *SyncConfig) GetHistorySize() int {
	if s.HistorySize <= 0 {
		return DefaultHistorySize
	}
	return s.HistorySize
}

// GetTimeout returns the hosted search timeout
func (s *SearchConfig) GetTimeout() time.Duration {
	return parseDurationOrDefault(s.Timeout, DefaultSearchTimeout, "search.timeout")
}

// GetStalenessThreshold returns the staleness warning threshold
func (s *SearchConfig) GetStalenessThreshold() time.Duration {
	return parseDurationOrDefault(s.StalenessThreshold, DefaultStalenessThreshold, "search.stalenessThreshold")
}

func parseDurationOrDefault(value string, def time.Duration, field string) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		slog.Warn("Invalid duration, using default",
			"field", field,
			"value", value,
			"default", def.String())
		return def
	}
	return d
}
