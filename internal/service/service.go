// Package service provides the control surface of the docs cache: sync
// triggers, scheduler control, history and staleness queries, snapshot
// transfer, and cached content reads.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/toolhive-docs-cache/internal/metadata"
	"github.com/stacklok/toolhive-docs-cache/internal/search"
	"github.com/stacklok/toolhive-docs-cache/internal/sources"
	pkgsync "github.com/stacklok/toolhive-docs-cache/internal/sync"
)

var (
	// ErrInvalidArgument is returned for malformed caller input
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotReady is returned by CheckReadiness before the first completed check
	ErrNotReady = errors.New("docs cache not ready")
	// ErrSchedulerUnavailable is returned when no scheduler is configured
	ErrSchedulerUnavailable = errors.New("scheduler not configured")
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go DocsService

// DocsService defines the interface for docs cache operations
type DocsService interface {
	// CheckReadiness checks if the cache has completed at least one sync check
	CheckReadiness(ctx context.Context) error

	// Sync runs a batch sync
	Sync(ctx context.Context, opts pkgsync.SyncOptions) (*pkgsync.BatchResult, error)

	// SyncSource syncs a single source by id
	SyncSource(ctx context.Context, id string) (*pkgsync.Outcome, error)

	// Status returns sync and scheduler state
	Status(ctx context.Context) (*Status, error)

	// StartScheduler starts periodic syncing
	StartScheduler(ctx context.Context) error

	// StopScheduler stops periodic syncing, waiting for an in-flight sync
	StopScheduler(ctx context.Context) error

	// History returns a page of update records, most recent first
	History(ctx context.Context, opts ...Option[HistoryOptions]) (*HistoryPage, error)

	// StaleSources returns the ids of sources not fetched within the max age
	StaleSources(ctx context.Context, opts ...Option[StaleOptions]) ([]string, error)

	// ListSources returns every configured source with its cached metadata
	ListSources(ctx context.Context) ([]SourceInfo, error)

	// GetSource returns a source's cached content
	GetSource(ctx context.Context, id string) (*search.Document, error)

	// Search queries the cached documentation
	Search(ctx context.Context, q search.Query) (*search.Response, error)

	// Export returns the sync state as a JSON snapshot
	Export(ctx context.Context) ([]byte, error)

	// Import replaces the sync state with a JSON snapshot
	Import(ctx context.Context, data []byte) error
}

// Status is the combined sync and scheduler state
type Status struct {
	LastCheck           time.Time            `json:"lastCheck,omitzero"`
	LastUpdate          time.Time            `json:"lastUpdate,omitzero"`
	UpstreamFingerprint string               `json:"upstreamFingerprint,omitempty"`
	ConfiguredSources   int                  `json:"configuredSources"`
	TrackedSources      int                  `json:"trackedSources"`
	HistoryEntries      int                  `json:"historyEntries"`
	HistoryCapacity     int                  `json:"historyCapacity"`
	DataFreshness       search.DataFreshness `json:"dataFreshness"`
	Scheduler           *SchedulerStatus     `json:"scheduler,omitempty"`
}

// SchedulerStatus mirrors the coordinator status with readable durations
type SchedulerStatus struct {
	Running       bool      `json:"running"`
	CheckInterval string    `json:"checkInterval"`
	ForceInterval string    `json:"forceInterval,omitempty"`
	LastTick      time.Time `json:"lastTick,omitzero"`
	LastForce     time.Time `json:"lastForce,omitzero"`
	TickCount     int64     `json:"tickCount"`
	SkippedTicks  int64     `json:"skippedTicks"`
}

// SourceInfo is a configured source with its cached metadata, if any
type SourceInfo struct {
	Source   sources.SourceConfig     `json:"source"`
	Metadata *metadata.SourceMetadata `json:"metadata,omitempty"`
	Stale    bool                     `json:"stale"`
}

// HistoryPage is one page of update records
type HistoryPage struct {
	Records    []metadata.UpdateRecord `json:"records"`
	Total      int                     `json:"total"`
	NextCursor string                  `json:"nextCursor,omitempty"`
}

// Option is a function that sets an option for the HistoryOptions or StaleOptions
type Option[T HistoryOptions | StaleOptions] func(*T) error

// HistoryOptions is the options for the History operation
type HistoryOptions struct {
	SourceID string
	Type     metadata.ChangeType
	Since    time.Time
	Limit    int
	Offset   int
}

// StaleOptions is the options for the StaleSources operation
type StaleOptions struct {
	MaxAge     time.Duration
	Categories []sources.Category
}

// WithSourceID restricts history to one source
func WithSourceID(id string) Option[HistoryOptions] {
	return func(o *HistoryOptions) error {
		if id == "" {
			return fmt.Errorf("%w: source id cannot be empty", ErrInvalidArgument)
		}
		o.SourceID = id
		return nil
	}
}

// WithChangeType restricts history to one change type
func WithChangeType(t metadata.ChangeType) Option[HistoryOptions] {
	return func(o *HistoryOptions) error {
		if !t.Valid() {
			return fmt.Errorf("%w: unknown change type: %s", ErrInvalidArgument, t)
		}
		o.Type = t
		return nil
	}
}

// WithSince restricts history to records at or after since
func WithSince(since time.Time) Option[HistoryOptions] {
	return func(o *HistoryOptions) error {
		if since.IsZero() {
			return fmt.Errorf("%w: invalid since: %s", ErrInvalidArgument, since)
		}
		o.Since = since
		return nil
	}
}

// WithLimit sets the page size for the History operation
func WithLimit(limit int) Option[HistoryOptions] {
	return func(o *HistoryOptions) error {
		if limit <= 0 {
			return fmt.Errorf("%w: invalid limit: %d", ErrInvalidArgument, limit)
		}
		o.Limit = limit
		return nil
	}
}

// WithOffset skips the first offset matching records
func WithOffset(offset int) Option[HistoryOptions] {
	return func(o *HistoryOptions) error {
		if offset < 0 {
			return fmt.Errorf("%w: invalid offset: %d", ErrInvalidArgument, offset)
		}
		o.Offset = offset
		return nil
	}
}

// WithCursor resumes history at a cursor returned in a previous page
func WithCursor(cursor string) Option[HistoryOptions] {
	return func(o *HistoryOptions) error {
		offset, err := DecodeCursor(cursor)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		o.Offset = offset
		return nil
	}
}

// WithMaxAge sets the staleness age for the StaleSources operation
func WithMaxAge(maxAge time.Duration) Option[StaleOptions] {
	return func(o *StaleOptions) error {
		if maxAge <= 0 {
			return fmt.Errorf("%w: max age must be positive, got %s", ErrInvalidArgument, maxAge)
		}
		o.MaxAge = maxAge
		return nil
	}
}

// WithCategories restricts the StaleSources operation to the given categories
func WithCategories(categories ...sources.Category) Option[StaleOptions] {
	return func(o *StaleOptions) error {
		o.Categories = append(o.Categories, categories...)
		return nil
	}
}

func applyOptions[T HistoryOptions | StaleOptions](o *T, opts []Option[T]) error {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return err
		}
	}
	return nil
}
