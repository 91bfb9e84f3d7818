// Package storage provides the durable blob storage the metadata store and
// content cache sit on. Backends only promise "last write wins"; callers must
// not rely on cross-key atomicity.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned by ReadBlob when the key has never been written
var ErrNotFound = errors.New("blob not found")

//go:generate mockgen -destination=mocks/mock_storage.go -package=mocks -source=storage.go BlobStore

// BlobStore reads and writes opaque blobs by slash-separated key
type BlobStore interface {
	// ReadBlob returns the blob stored at key, or an error wrapping ErrNotFound
	ReadBlob(ctx context.Context, key string) ([]byte, error)

	// WriteBlob stores data at key, replacing any previous value
	WriteBlob(ctx context.Context, key string, data []byte) error

	// DeleteBlob removes key. Deleting a missing key is not an error.
	DeleteBlob(ctx context.Context, key string) error

	// Close releases backend resources
	Close() error
}

// ContentKey is the key the cached content of a source is stored under
func ContentKey(sourceID string) string {
	return "content/" + sourceID
}

// ValidateKey rejects keys that are empty, absolute, or climb out of the store
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("blob key cannot be empty")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid blob key %q", key)
	}
	clean := path.Clean(key)
	if clean != key || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("invalid blob key %q", key)
	}
	return nil
}
