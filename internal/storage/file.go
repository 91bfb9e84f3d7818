package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockFileName      = ".lock"
	lockRetryInterval = 50 * time.Millisecond
)

// FileStore keeps each blob in a file below a base directory. Writes go to a
// temporary file that is renamed into place, and are serialized in-process by
// a mutex and across processes by an advisory lock on <base>/.lock.
type FileStore struct {
	basePath string
	lock     *flock.Flock
	mu       sync.Mutex
}

var _ BlobStore = (*FileStore)(nil)

// NewFileStore creates the base directory if needed and returns a store rooted at it
func NewFileStore(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	return &FileStore{
		basePath: basePath,
		lock:     flock.New(filepath.Join(basePath, lockFileName)),
	}, nil
}

func (s *FileStore) path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(key)), nil
}

// ReadBlob reads the file for key
func (s *FileStore) ReadBlob(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}

	// #nosec G304 -- key is validated to stay below basePath
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	return data, nil
}

// WriteBlob atomically replaces the file for key
func (s *FileStore) WriteBlob(ctx context.Context, key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	unlock, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil {
		return fmt.Errorf("failed to create directory for blob %s: %w", key, err)
	}

	tempPath := p + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary file for blob %s: %w", key, err)
	}
	if err := os.Rename(tempPath, p); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename blob %s: %w", key, err)
	}
	return nil
}

// DeleteBlob removes the file for key
func (s *FileStore) DeleteBlob(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	unlock, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

// Close releases the lock file handle
func (s *FileStore) Close() error {
	return s.lock.Close()
}

func (s *FileStore) acquire(ctx context.Context) (func(), error) {
	s.mu.Lock()

	locked, err := s.lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil || !locked {
		s.mu.Unlock()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("failed to lock storage directory %s: %w", s.basePath, err)
	}

	return func() {
		if err := s.lock.Unlock(); err != nil {
			slog.Warn("Failed to release storage lock", "path", s.basePath, "error", err)
		}
		s.mu.Unlock()
	}, nil
}
