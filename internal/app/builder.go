package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"

	"github.com/stacklok/toolhive-docs-cache/internal/api"
	"github.com/stacklok/toolhive-docs-cache/internal/config"
	"github.com/stacklok/toolhive-docs-cache/internal/events"
	"github.com/stacklok/toolhive-docs-cache/internal/httpclient"
	"github.com/stacklok/toolhive-docs-cache/internal/metadata"
	"github.com/stacklok/toolhive-docs-cache/internal/search"
	"github.com/stacklok/toolhive-docs-cache/internal/service"
	"github.com/stacklok/toolhive-docs-cache/internal/sources"
	"github.com/stacklok/toolhive-docs-cache/internal/storage"
	pkgsync "github.com/stacklok/toolhive-docs-cache/internal/sync"
	"github.com/stacklok/toolhive-docs-cache/internal/sync/coordinator"
	"github.com/stacklok/toolhive-docs-cache/internal/telemetry"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 60 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 90 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// DocsAppOptions is a function that configures the docs app builder
type DocsAppOptions func(*docsAppConfig) error

// docsAppConfig collects builder options. The overrides exist mainly for tests.
type docsAppConfig struct {
	config *config.Config

	blobStore     storage.BlobStore
	fetcher       sources.ContentFetcher
	syncManager   pkgsync.Manager
	meterProvider metric.MeterProvider

	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	dataDir string
}

func baseConfig(opts ...DocsAppOptions) (*docsAppConfig, error) {
	cfg := &docsAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	return cfg, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) DocsAppOptions {
	return func(cfg *docsAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) DocsAppOptions {
	return func(cfg *docsAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares replaces the default HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) DocsAppOptions {
	return func(cfg *docsAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithDataDirectory sets where file and sqlite storage live when the
// configuration does not name a path
func WithDataDirectory(dir string) DocsAppOptions {
	return func(cfg *docsAppConfig) error {
		if dir == "" {
			return fmt.Errorf("data directory cannot be empty")
		}
		cfg.dataDir = dir
		return nil
	}
}

// WithBlobStore allows injecting a storage backend (for testing)
func WithBlobStore(s storage.BlobStore) DocsAppOptions {
	return func(cfg *docsAppConfig) error {
		cfg.blobStore = s
		return nil
	}
}

// WithFetcher allows injecting a content fetcher (for testing)
func WithFetcher(f sources.ContentFetcher) DocsAppOptions {
	return func(cfg *docsAppConfig) error {
		cfg.fetcher = f
		return nil
	}
}

// WithSyncManager allows injecting a custom sync manager (for testing)
func WithSyncManager(sm pkgsync.Manager) DocsAppOptions {
	return func(cfg *docsAppConfig) error {
		cfg.syncManager = sm
		return nil
	}
}

// WithMeterProvider overrides the meter provider built from the telemetry configuration
func WithMeterProvider(mp metric.MeterProvider) DocsAppOptions {
	return func(cfg *docsAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// NewComponents builds everything except the HTTP server. The CLI uses it for
// one-shot commands; the caller owns the returned components and must Close them.
func NewComponents(ctx context.Context, opts ...DocsAppOptions) (*AppComponents, error) {
	b, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	return buildComponents(ctx, b)
}

// NewDocsApp builds the docs cache server
func NewDocsApp(ctx context.Context, opts ...DocsAppOptions) (*DocsApp, error) {
	b, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	components, err := buildComponents(ctx, b)
	if err != nil {
		return nil, err
	}

	httpServer, err := buildHTTPServer(b, components)
	if err != nil {
		_ = components.Close(ctx)
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	return &DocsApp{
		config:     b.config,
		components: components,
		httpServer: httpServer,
	}, nil
}

func buildComponents(ctx context.Context, b *docsAppConfig) (*AppComponents, error) {
	c := &AppComponents{Config: b.config}

	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			_ = c.Close(ctx)
		}
	}()

	var err error
	c.Telemetry, err = telemetry.New(ctx, telemetry.WithTelemetryConfig(b.config.Telemetry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if err := buildStorageComponents(ctx, b, c); err != nil {
		return nil, fmt.Errorf("failed to build storage components: %w", err)
	}

	if err := buildSyncComponents(b, c); err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	if err := buildServiceComponents(b, c); err != nil {
		return nil, fmt.Errorf("failed to build service components: %w", err)
	}

	cleanupNeeded = false
	return c, nil
}

// buildStorageComponents opens the blob store and loads the persisted state
func buildStorageComponents(ctx context.Context, b *docsAppConfig, c *AppComponents) error {
	slog.Info("Initializing storage components")

	c.Blobs = b.blobStore
	if c.Blobs == nil {
		storageCfg := b.config.Storage
		if storageCfg.Path == "" && b.dataDir != "" {
			storageCfg.Path = b.dataDir
			if storageCfg.GetType() == config.StorageTypeSQLite {
				storageCfg.Path = filepath.Join(b.dataDir, "docs-cache.db")
			}
		}

		var err error
		c.Blobs, err = storage.NewBlobStore(ctx, &storageCfg)
		if err != nil {
			return err
		}
	}

	c.Store = metadata.NewStore(c.Blobs, metadata.WithHistoryCapacity(b.config.Sync.GetHistorySize()))
	state := c.Store.Load(ctx)
	slog.Info("Loaded sync state",
		"sources", len(state.Sources),
		"history", len(state.UpdateHistory),
		"last_check", state.LastCheck)
	return nil
}

// buildSyncComponents builds the registry, fetcher, engine and coordinator
func buildSyncComponents(b *docsAppConfig, c *AppComponents) error {
	slog.Info("Initializing sync components")

	var err error
	c.Registry, err = sources.NewRegistryFromConfig(b.config.Sources)
	if err != nil {
		return err
	}

	upstream := &b.config.Upstream
	client := httpclient.NewDefaultClient(upstream.GetTimeout(), httpclient.WithMaxTries(upstream.MaxRetries))

	fetcher := b.fetcher
	if fetcher == nil {
		fetcher, err = sources.NewFetcher(upstream, client)
		if err != nil {
			return err
		}
	}

	syncMetrics, err := telemetry.NewSyncMetrics(metricsProvider(b, c))
	if err != nil {
		return fmt.Errorf("failed to create sync metrics: %w", err)
	}

	c.Bus = events.NewBus()
	c.Bus.Register(events.NewLogListener(slog.Default()))

	c.Manager = b.syncManager
	if c.Manager == nil {
		probe, err := sources.NewProbe(upstream.Probe, client)
		if err != nil {
			return err
		}

		engineOpts := []pkgsync.Option{
			pkgsync.WithBus(c.Bus),
			pkgsync.WithMetrics(syncMetrics),
			pkgsync.WithTracer(c.Telemetry.Tracer(telemetry.SyncTracerName)),
			pkgsync.WithConcurrency(b.config.Sync.GetConcurrency()),
		}
		if probe != nil {
			engineOpts = append(engineOpts, pkgsync.WithProbe(probe))
		}
		c.Manager = pkgsync.NewEngine(c.Registry, fetcher, c.Store, c.Blobs, engineOpts...)
	}

	if upstream.Watch {
		if err := buildWatcher(fetcher, c); err != nil {
			return err
		}
	}

	c.Coordinator = coordinator.New(c.Manager, coordinator.WithSyncMetrics(syncMetrics))
	slog.Info("Sync components initialized successfully", "sources", c.Registry.Len())
	return nil
}

// buildWatcher resyncs a source whenever its file in a file upstream changes
func buildWatcher(fetcher sources.ContentFetcher, c *AppComponents) error {
	fileFetcher, ok := fetcher.(*sources.FileFetcher)
	if !ok {
		return fmt.Errorf("watch requires a file upstream")
	}

	manager := c.Manager
	watcher, err := sources.NewWatcher(fileFetcher, c.Registry, func(id string) {
		out, err := manager.SyncOne(context.Background(), id)
		switch {
		case err != nil:
			slog.Error("Watched source sync failed", "source", id, "error", err)
		case out.Err != nil:
			slog.Warn("Watched source fetch failed", "source", id, "error", out.Err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	c.Watcher = watcher
	return nil
}

// buildServiceComponents builds the query layer and the docs service
func buildServiceComponents(b *docsAppConfig, c *AppComponents) error {
	slog.Info("Initializing service components")

	searchCfg := &b.config.Search
	searchMetrics, err := telemetry.NewSearchMetrics(metricsProvider(b, c))
	if err != nil {
		return fmt.Errorf("failed to create search metrics: %w", err)
	}

	searchOpts := []search.Option{
		search.WithStalenessThreshold(searchCfg.GetStalenessThreshold()),
		search.WithMetrics(searchMetrics),
		search.WithTracer(c.Telemetry.Tracer(telemetry.SearchTracerName)),
	}
	if searchCfg.HostedURL != "" {
		hostedClient := httpclient.NewDefaultClient(searchCfg.GetTimeout(), httpclient.WithMaxTries(1))
		searchOpts = append(searchOpts, search.WithHosted(search.NewHostedBackend(searchCfg.HostedURL, hostedClient)))
		slog.Info("Hosted search enabled", "url", searchCfg.HostedURL)
	}
	c.Search = search.NewService(c.Registry, c.Store, c.Blobs, searchOpts...)

	c.Service, err = service.New(c.Registry, c.Store, c.Manager, c.Search,
		service.WithScheduler(c.Coordinator, coordinator.ConfigFromSettings(&b.config.Scheduler), schedulerCallbacks()),
		service.WithStalenessThreshold(searchCfg.GetStalenessThreshold()),
	)
	if err != nil {
		return err
	}

	slog.Info("Service components initialized successfully")
	return nil
}

func schedulerCallbacks() coordinator.Callbacks {
	return coordinator.Callbacks{
		OnUpdateDetected: func(records []metadata.UpdateRecord) {
			ids := make([]string, 0, len(records))
			for _, rec := range records {
				ids = append(ids, rec.SourceID)
			}
			slog.Info("Scheduled sync detected changes", "count", len(records), "sources", ids)
		},
		OnError: func(err error) {
			slog.Error("Scheduled sync failed", "error", err)
		},
	}
}

// metricsProvider returns the injected meter provider, then the configured one
func metricsProvider(b *docsAppConfig, c *AppComponents) metric.MeterProvider {
	if b.meterProvider != nil {
		return b.meterProvider
	}
	return c.Telemetry.MeterProvider()
}

// metricsEnabled reports whether HTTP metrics should be recorded
func metricsEnabled(b *docsAppConfig) bool {
	if b.meterProvider != nil {
		return true
	}
	tel := b.config.Telemetry
	return tel != nil && tel.Enabled && tel.Metrics != nil && tel.Metrics.Enabled
}

// tracingEnabled reports whether request spans should be recorded
func tracingEnabled(b *docsAppConfig) bool {
	tel := b.config.Telemetry
	return tel != nil && tel.Enabled && tel.Tracing != nil && tel.Tracing.Enabled
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(b *docsAppConfig, c *AppComponents) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	middlewares := b.middlewares
	if middlewares == nil {
		middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	if tracingEnabled(b) {
		middlewares = append([]func(http.Handler) http.Handler{
			telemetry.TracingMiddleware(c.Telemetry.TracerProvider()),
		}, middlewares...)
	}

	// Metrics go first so requests rejected further down are still counted
	if metricsEnabled(b) {
		httpMetrics, err := telemetry.NewHTTPMetrics(metricsProvider(b, c))
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
		}
		if httpMetrics != nil {
			middlewares = append([]func(http.Handler) http.Handler{httpMetrics.Middleware}, middlewares...)
			slog.Info("HTTP metrics middleware enabled")
		}
	}

	router := api.NewServer(c.Service,
		api.WithMiddlewares(middlewares...),
		api.WithMetricsHandler(c.Telemetry.MetricsHandler()),
	)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
