package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stacklok/toolhive-docs-cache/internal/config"
)

// NewBlobStore creates the configured storage backend
func NewBlobStore(ctx context.Context, cfg *config.StorageConfig) (BlobStore, error) {
	storageType := cfg.GetType()
	slog.Info("Initializing blob storage", "type", storageType)

	switch storageType {
	case config.StorageTypeFile:
		return NewFileStore(cfg.GetPath())
	case config.StorageTypeSQLite:
		return NewSQLiteStore(ctx, cfg.GetPath())
	case config.StorageTypeS3:
		if cfg.S3 == nil {
			return nil, fmt.Errorf("s3 storage requires s3 configuration")
		}
		return NewS3Store(ctx, cfg.S3)
	case config.StorageTypeMemory:
		slog.Warn("Using in-memory storage, cached state will not survive a restart")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
