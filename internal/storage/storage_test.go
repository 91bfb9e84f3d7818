package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-docs-cache/internal/config"
)

func TestValidateKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key     string
		wantErr bool
	}{
		{key: "state.json"},
		{key: "content/docs/intro"},
		{key: "", wantErr: true},
		{key: "/etc/passwd", wantErr: true},
		{key: "../escape", wantErr: true},
		{key: "content/../../escape", wantErr: true},
		{key: "content//double", wantErr: true},
		{key: "win\\path", wantErr: true},
		{key: ".", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Parallel()
			err := ValidateKey(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// fakeS3 is an in-memory stand-in for the S3 API
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func newStores(t *testing.T) map[string]BlobStore {
	t.Helper()

	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)

	sqliteStore, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)

	stores := map[string]BlobStore{
		"file":   fileStore,
		"sqlite": sqliteStore,
		"memory": NewMemoryStore(),
		"s3":     newS3Store(newFakeS3(), "docs-bucket", "/cache/"),
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestBlobStoreContract(t *testing.T) {
	t.Parallel()

	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			_, err := store.ReadBlob(ctx, "state.json")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.WriteBlob(ctx, "state.json", []byte(`{"v":1}`)))
			data, err := store.ReadBlob(ctx, "state.json")
			require.NoError(t, err)
			assert.Equal(t, `{"v":1}`, string(data))

			// Last write wins
			require.NoError(t, store.WriteBlob(ctx, "state.json", []byte(`{"v":2}`)))
			data, err = store.ReadBlob(ctx, "state.json")
			require.NoError(t, err)
			assert.Equal(t, `{"v":2}`, string(data))

			// Nested keys
			require.NoError(t, store.WriteBlob(ctx, "content/docs/intro", []byte("# Intro")))
			data, err = store.ReadBlob(ctx, "content/docs/intro")
			require.NoError(t, err)
			assert.Equal(t, "# Intro", string(data))

			// Empty blobs are distinct from missing ones
			require.NoError(t, store.WriteBlob(ctx, "empty", []byte{}))
			data, err = store.ReadBlob(ctx, "empty")
			require.NoError(t, err)
			assert.Empty(t, data)

			require.NoError(t, store.DeleteBlob(ctx, "content/docs/intro"))
			_, err = store.ReadBlob(ctx, "content/docs/intro")
			require.ErrorIs(t, err, ErrNotFound)
			require.NoError(t, store.DeleteBlob(ctx, "content/docs/intro"), "deleting a missing key is not an error")

			require.Error(t, store.WriteBlob(ctx, "../escape", []byte("x")))
		})
	}
}

func TestFileStoreConcurrentWrites(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.WriteBlob(ctx, "state.json", []byte(fmt.Sprintf(`{"writer":%d}`, i))))
		}()
	}
	wg.Wait()

	data, err := store.ReadBlob(ctx, "state.json")
	require.NoError(t, err)
	assert.Regexp(t, `^\{"writer":\d+\}$`, string(data))
}

func TestFileStoreCancelledContext(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	holder, err := NewFileStore(dir)
	require.NoError(t, err)
	defer func() { _ = holder.Close() }()

	// Hold the advisory lock through a second handle, as another process would
	other, err := NewFileStore(dir)
	require.NoError(t, err)
	defer func() { _ = other.Close() }()
	locked, err := other.lock.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = other.lock.Unlock() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = holder.WriteBlob(ctx, "state.json", []byte("x"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to lock storage directory")
}

func TestS3StorePrefix(t *testing.T) {
	t.Parallel()

	fake := newFakeS3()
	store := newS3Store(fake, "bucket", "/team/docs/")
	require.NoError(t, store.WriteBlob(context.Background(), "state.json", []byte("{}")))

	_, ok := fake.objects["bucket/team/docs/state.json"]
	assert.True(t, ok)
}

func TestIsS3NotFound(t *testing.T) {
	t.Parallel()

	assert.True(t, isS3NotFound(&types.NoSuchKey{}))
	assert.True(t, isS3NotFound(fmt.Errorf("wrapped: %w", &types.NoSuchKey{})))
	assert.False(t, isS3NotFound(errors.New("access denied")))
}

func TestNewBlobStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	s, err := NewBlobStore(ctx, &config.StorageConfig{Type: config.StorageTypeMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = NewBlobStore(ctx, &config.StorageConfig{Type: config.StorageTypeFile, Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)
	_ = s.Close()

	s, err = NewBlobStore(ctx, &config.StorageConfig{Type: config.StorageTypeSQLite, Path: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	_ = s.Close()

	_, err = NewBlobStore(ctx, &config.StorageConfig{Type: config.StorageTypeS3})
	assert.Error(t, err)

	_, err = NewBlobStore(ctx, &config.StorageConfig{Type: "tape"})
	assert.Error(t, err)
}
