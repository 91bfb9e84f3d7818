package events

import (
	"context"
	"log/slog"
)

// NewLogListener returns a listener that writes each event to logger
func NewLogListener(logger *slog.Logger) Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return Hooks{
		OnSyncStart: func(ctx context.Context, ev Event) error {
			logger.DebugContext(ctx, "Sync started", "sync_id", ev.SyncID, "force", ev.Force, "sources", len(ev.Sources))
			return nil
		},
		OnUpdate: func(ctx context.Context, ev Event) error {
			if ev.Record == nil {
				return nil
			}
			logger.InfoContext(ctx, "Source changed",
				"sync_id", ev.SyncID,
				"source", ev.Record.SourceID,
				"type", ev.Record.Type,
				"fingerprint", ev.Record.NewFingerprint)
			return nil
		},
		OnSyncComplete: func(ctx context.Context, ev Event) error {
			if ev.Summary == nil {
				return nil
			}
			logger.InfoContext(ctx, "Sync completed",
				"sync_id", ev.SyncID,
				"updated", ev.Summary.Updated,
				"unchanged", ev.Summary.Unchanged,
				"failed", ev.Summary.Failed,
				"deleted", ev.Summary.Deleted,
				"skipped", ev.Summary.Skipped,
				"duration", ev.Summary.Duration)
			return nil
		},
		OnError: func(ctx context.Context, ev Event) error {
			logger.WarnContext(ctx, "Sync error", "sync_id", ev.SyncID, "source", ev.SourceID, "error", ev.Err)
			return nil
		},
	}
}
