package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacklok/toolhive-docs-cache/internal/config"
	"github.com/stacklok/toolhive-docs-cache/internal/events"
	"github.com/stacklok/toolhive-docs-cache/internal/metadata"
	"github.com/stacklok/toolhive-docs-cache/internal/search"
	"github.com/stacklok/toolhive-docs-cache/internal/service"
	"github.com/stacklok/toolhive-docs-cache/internal/sources"
	"github.com/stacklok/toolhive-docs-cache/internal/storage"
	pkgsync "github.com/stacklok/toolhive-docs-cache/internal/sync"
	"github.com/stacklok/toolhive-docs-cache/internal/sync/coordinator"
	"github.com/stacklok/toolhive-docs-cache/internal/telemetry"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	Config    *config.Config
	Telemetry *telemetry.Telemetry

	// Blobs holds cached content and the persisted sync state
	Blobs storage.BlobStore
	Store *metadata.Store

	Registry *sources.Registry
	Manager  pkgsync.Manager
	Bus      *events.Bus

	// Coordinator manages background synchronization
	Coordinator coordinator.Coordinator

	// Watcher is set only for watched file upstreams
	Watcher *sources.Watcher

	Search  *search.Service
	Service service.DocsService
}

// Close releases the components in reverse dependency order. It is safe to
// call on partially built components.
func (c *AppComponents) Close(ctx context.Context) error {
	var errs []error

	if c.Coordinator != nil {
		if err := c.Coordinator.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop sync coordinator: %w", err))
		}
	}
	if c.Watcher != nil {
		if err := c.Watcher.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Bus != nil {
		if err := c.Bus.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush events: %w", err))
		}
		c.Bus.Close()
	}
	if c.Blobs != nil {
		if err := c.Blobs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
		}
	}
	if c.Telemetry != nil {
		if err := c.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
