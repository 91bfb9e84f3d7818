package sync

import (
	"context"
	"time"

	"github.com/stacklok/toolhive-docs-cache/internal/metadata"
	"github.com/stacklok/toolhive-docs-cache/internal/sources"
)

// Outcome is the result of syncing one source
type Outcome struct {
	SourceID            string              `json:"sourceId"`
	Changed             bool                `json:"changed"`
	Type                metadata.ChangeType `json:"type,omitempty"`
	Fingerprint         string              `json:"fingerprint,omitempty"`
	PreviousFingerprint string              `json:"previousFingerprint,omitempty"`
	Size                int64               `json:"size"`
	ETag                string              `json:"etag,omitempty"`

	// Record is the history entry written for a change
	Record *metadata.UpdateRecord `json:"record,omitempty"`

	// Err is the fetch or content cache failure, if any
	Err error `json:"-"`
}

// SyncOptions controls a batch sync
type SyncOptions struct {
	// Force bypasses the upstream probe and conditional requests
	Force bool `json:"force"`

	// Categories restricts the batch. Empty means all sources, which also
	// enables deletion reconciliation and the upstream probe.
	Categories []sources.Category `json:"categories,omitempty"`
}

// BatchResult aggregates a batch sync. Id lists follow registry order.
type BatchResult struct {
	SyncID    string                  `json:"syncId"`
	Force     bool                    `json:"force"`
	Skipped   bool                    `json:"skipped"`
	Updated   []string                `json:"updated"`
	Unchanged []string                `json:"unchanged"`
	Failed    []string                `json:"failed"`
	Deleted   []string                `json:"deleted"`
	Errors    map[string]string       `json:"errors"`
	Records   []metadata.UpdateRecord `json:"records"`
	Duration  time.Duration           `json:"duration"`
}

// Changed reports whether the batch produced any UpdateRecord
func (r *BatchResult) Changed() bool {
	return len(r.Records) > 0
}

//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks github.com/stacklok/toolhive-docs-cache/internal/sync Manager

// Manager runs syncs
type Manager interface {
	// SyncOne syncs a single source by id
	SyncOne(ctx context.Context, id string) (*Outcome, error)

	// SyncAll syncs a batch of sources
	SyncAll(ctx context.Context, opts SyncOptions) (*BatchResult, error)
}
