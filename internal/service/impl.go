package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/stacklok/toolhive-docs-cache/internal/metadata"
	"github.com/stacklok/toolhive-docs-cache/internal/search"
	"github.com/stacklok/toolhive-docs-cache/internal/sources"
	pkgsync "github.com/stacklok/toolhive-docs-cache/internal/sync"
	"github.com/stacklok/toolhive-docs-cache/internal/sync/coordinator"
)

const (
	// DefaultHistoryLimit is the page size when History is called without a limit
	DefaultHistoryLimit = 50

	// DefaultStaleMaxAge is used when StaleSources is called without a max age
	DefaultStaleMaxAge = 24 * time.Hour
)

// docsSvc implements the DocsService interface
type docsSvc struct {
	registry *sources.Registry
	store    *metadata.Store
	manager  pkgsync.Manager
	searcher *search.Service

	coordinator coordinator.Coordinator
	schedule    coordinator.Config
	callbacks   coordinator.Callbacks

	staleAfter time.Duration
}

var _ DocsService = (*docsSvc)(nil)

// ServiceOption is a functional option for configuring the docs service
type ServiceOption func(*docsSvc)

// WithScheduler enables scheduler control through the service
func WithScheduler(c coordinator.Coordinator, cfg coordinator.Config, callbacks coordinator.Callbacks) ServiceOption {
	return func(s *docsSvc) {
		s.coordinator = c
		s.schedule = cfg
		s.callbacks = callbacks
	}
}

// WithStalenessThreshold sets the age after which ListSources marks a source stale
func WithStalenessThreshold(d time.Duration) ServiceOption {
	return func(s *docsSvc) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// New creates the docs service
func New(
	registry *sources.Registry,
	store *metadata.Store,
	manager pkgsync.Manager,
	searcher *search.Service,
	opts ...ServiceOption,
) (DocsService, error) {
	if registry == nil || store == nil || manager == nil || searcher == nil {
		return nil, fmt.Errorf("registry, store, manager and searcher are required")
	}

	s := &docsSvc{
		registry:   registry,
		store:      store,
		manager:    manager,
		searcher:   searcher,
		staleAfter: DefaultStaleMaxAge,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CheckReadiness implements DocsService.CheckReadiness
func (s *docsSvc) CheckReadiness(_ context.Context) error {
	stats := s.store.Stats()
	if stats.LastCheck.IsZero() && stats.TrackedSources == 0 {
		return ErrNotReady
	}
	return nil
}

// Sync implements DocsService.Sync
func (s *docsSvc) Sync(ctx context.Context, opts pkgsync.SyncOptions) (*pkgsync.BatchResult, error) {
	for _, category := range opts.Categories {
		if len(s.registry.Filter([]sources.Category{category})) == 0 {
			return nil, fmt.Errorf("%w: no sources in category %q", ErrInvalidArgument, category)
		}
	}
	return s.manager.SyncAll(ctx, opts)
}

// SyncSource implements DocsService.SyncSource
func (s *docsSvc) SyncSource(ctx context.Context, id string) (*pkgsync.Outcome, error) {
	return s.manager.SyncOne(ctx, id)
}

// Status implements DocsService.Status
func (s *docsSvc) Status(_ context.Context) (*Status, error) {
	stats := s.store.Stats()
	status := &Status{
		LastCheck:           stats.LastCheck,
		LastUpdate:          stats.LastUpdate,
		UpstreamFingerprint: stats.UpstreamFingerprint,
		ConfiguredSources:   s.registry.Len(),
		TrackedSources:      stats.TrackedSources,
		HistoryEntries:      stats.HistoryEntries,
		HistoryCapacity:     stats.HistoryCapacity,
		DataFreshness:       s.searcher.Freshness(),
	}

	if s.coordinator != nil {
		cs := s.coordinator.Status()
		status.Scheduler = &SchedulerStatus{
			Running:       cs.Running,
			CheckInterval: formatInterval(cs.CheckInterval),
			ForceInterval: formatInterval(cs.ForceInterval),
			LastTick:      cs.LastTick,
			LastForce:     cs.LastForce,
			TickCount:     cs.TickCount,
			SkippedTicks:  cs.SkippedTicks,
		}
	}
	return status, nil
}

func formatInterval(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return d.String()
}

// StartScheduler implements DocsService.StartScheduler. The scheduler
// outlives ctx; it runs until StopScheduler or shutdown.
func (s *docsSvc) StartScheduler(ctx context.Context) error {
	if s.coordinator == nil {
		return ErrSchedulerUnavailable
	}
	return s.coordinator.Start(context.WithoutCancel(ctx), s.schedule, s.callbacks)
}

// StopScheduler implements DocsService.StopScheduler
func (s *docsSvc) StopScheduler(_ context.Context) error {
	if s.coordinator == nil {
		return ErrSchedulerUnavailable
	}
	return s.coordinator.Stop()
}

// History implements DocsService.History
func (s *docsSvc) History(_ context.Context, opts ...Option[HistoryOptions]) (*HistoryPage, error) {
	o := HistoryOptions{Limit: DefaultHistoryLimit}
	if err := applyOptions(&o, opts); err != nil {
		return nil, err
	}

	matching := s.store.History(metadata.HistoryFilter{
		SourceID: o.SourceID,
		Type:     o.Type,
		Since:    o.Since,
	})

	page := &HistoryPage{Total: len(matching), Records: []metadata.UpdateRecord{}}
	if o.Offset >= len(matching) {
		return page, nil
	}
	end := min(len(matching), o.Offset+o.Limit)
	page.Records = matching[o.Offset:end]
	if end < len(matching) {
		page.NextCursor = EncodeCursor(end)
	}
	return page, nil
}

// StaleSources implements DocsService.StaleSources
func (s *docsSvc) StaleSources(_ context.Context, opts ...Option[StaleOptions]) ([]string, error) {
	o := StaleOptions{MaxAge: DefaultStaleMaxAge}
	if err := applyOptions(&o, opts); err != nil {
		return nil, err
	}

	known := s.registry.Filter(o.Categories)
	ids := make([]string, 0, len(known))
	for _, src := range known {
		ids = append(ids, src.ID)
	}

	stale := s.store.StaleSources(o.MaxAge, ids)
	if len(o.Categories) == 0 {
		return stale, nil
	}
	// tracked sources outside the requested categories are dropped
	return slices.DeleteFunc(stale, func(id string) bool {
		return !slices.Contains(ids, id)
	}), nil
}

// ListSources implements DocsService.ListSources
func (s *docsSvc) ListSources(_ context.Context) ([]SourceInfo, error) {
	stale := s.store.StaleSources(s.staleAfter, s.registry.IDs())

	all := s.registry.All()
	infos := make([]SourceInfo, 0, len(all))
	for _, src := range all {
		info := SourceInfo{
			Source: src,
			Stale:  slices.Contains(stale, src.ID),
		}
		if md, ok := s.store.GetSource(src.ID); ok {
			info.Metadata = &md
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// GetSource implements DocsService.GetSource
func (s *docsSvc) GetSource(ctx context.Context, id string) (*search.Document, error) {
	return s.searcher.Lookup(ctx, id)
}

// Search implements DocsService.Search
func (s *docsSvc) Search(ctx context.Context, q search.Query) (*search.Response, error) {
	resp, err := s.searcher.Search(ctx, q)
	if errors.Is(err, search.ErrEmptyQuery) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return resp, err
}

// Export implements DocsService.Export
func (s *docsSvc) Export(ctx context.Context) ([]byte, error) {
	return s.store.Export(ctx)
}

// Import implements DocsService.Import
func (s *docsSvc) Import(ctx context.Context, data []byte) error {
	if err := s.store.Import(ctx, data); err != nil {
		if errors.Is(err, metadata.ErrInvalidSnapshot) {
			return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		return err
	}
	stats := s.store.Stats()
	slog.Info("Imported sync state snapshot",
		"tracked_sources", stats.TrackedSources,
		"history_entries", stats.HistoryEntries)
	return nil
}
