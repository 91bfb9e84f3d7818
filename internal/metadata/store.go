// Package metadata is the system of record for synced documentation: per-source
// fingerprints and counters, a bounded update history, and the global check
// timestamps. The whole state is persisted as one JSON blob.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/stacklok/toolhive-docs-cache/internal/clock"
	"github.com/stacklok/toolhive-docs-cache/internal/storage"
)

// ErrSchemaMismatch is returned by Import when the snapshot schema version
// differs from CurrentSchemaVersion
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Option configures a Store
type Option func(*Store)

// WithHistoryCapacity sets the number of retained UpdateRecords
func WithHistoryCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithClock overrides the time source
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithStateKey overrides the blob key the state is persisted under
func WithStateKey(key string) Option {
	return func(s *Store) {
		s.key = key
	}
}

// Store holds the GlobalSyncState in memory and persists it to a BlobStore.
// All methods are safe for concurrent use.
type Store struct {
	blobs    storage.BlobStore
	key      string
	clock    clock.Clock
	capacity int

	mu                  sync.RWMutex
	lastCheck           time.Time
	lastUpdate          time.Time
	upstreamFingerprint string
	sources             map[string]SourceMetadata
	history             *History

	// saveMu serializes writes to the blob store
	saveMu sync.Mutex
}

// NewStore creates a Store with empty state. Call Load to restore persisted state.
func NewStore(blobs storage.BlobStore, opts ...Option) *Store {
	s := &Store{
		blobs:    blobs,
		key:      DefaultStateKey,
		clock:    clock.Real{},
		capacity: DefaultHistoryCapacity,
		sources:  make(map[string]SourceMetadata),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.history = NewHistory(s.capacity)
	return s
}

// Load replaces the in-memory state with the persisted one. Missing, unreadable,
// corrupt, or version-mismatched data leaves a fresh empty state; these
// conditions are logged, never returned.
func (s *Store) Load(ctx context.Context) *GlobalSyncState {
	state := s.readPersisted(ctx)

	s.mu.Lock()
	s.apply(state)
	s.mu.Unlock()

	return s.Snapshot()
}

func (s *Store) readPersisted(ctx context.Context) *GlobalSyncState {
	data, err := s.blobs.ReadBlob(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		slog.Info("No persisted sync state, starting fresh", "key", s.key)
		return NewGlobalSyncState()
	}
	if err != nil {
		slog.Warn("Failed to read sync state, starting fresh", "key", s.key, "error", err)
		return NewGlobalSyncState()
	}

	version, err := schemaVersionOf(data)
	if err != nil {
		slog.Warn("Persisted sync state is corrupt, starting fresh", "key", s.key, "error", err)
		return NewGlobalSyncState()
	}
	if version != CurrentSchemaVersion {
		slog.Warn("Persisted sync state has a different schema version, starting fresh",
			"key", s.key, "version", version, "expected", CurrentSchemaVersion)
		return NewGlobalSyncState()
	}

	var state GlobalSyncState
	if err := json.Unmarshal(data, &state); err != nil {
		slog.Warn("Persisted sync state is corrupt, starting fresh", "key", s.key, "error", err)
		return NewGlobalSyncState()
	}

	slog.Info("Loaded sync state", "key", s.key,
		"sources", len(state.Sources), "history", len(state.UpdateHistory))
	return &state
}

// apply replaces in-memory state. Caller must hold mu.
func (s *Store) apply(state *GlobalSyncState) {
	s.lastCheck = state.LastCheck
	s.lastUpdate = state.LastUpdate
	s.upstreamFingerprint = state.UpstreamFingerprint
	s.sources = make(map[string]SourceMetadata, len(state.Sources))
	maps.Copy(s.sources, state.Sources)
	s.history.Reset(state.UpdateHistory)
}

// Save writes the full state. Concurrent saves are serialized; the last one wins.
func (s *Store) Save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.write(ctx, s.Snapshot())
}

func (s *Store) write(ctx context.Context, state *GlobalSyncState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal sync state: %w", err)
	}
	if err := s.blobs.WriteBlob(ctx, s.key, data); err != nil {
		return fmt.Errorf("failed to persist sync state: %w", err)
	}
	return nil
}

// Snapshot returns a deep copy of the current state
func (s *Store) Snapshot() *GlobalSyncState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sources := make(map[string]SourceMetadata, len(s.sources))
	maps.Copy(sources, s.sources)
	return &GlobalSyncState{
		SchemaVersion:       CurrentSchemaVersion,
		LastCheck:           s.lastCheck,
		LastUpdate:          s.lastUpdate,
		UpstreamFingerprint: s.upstreamFingerprint,
		Sources:             sources,
		UpdateHistory:       s.history.Records(),
	}
}

// RecordChange appends an UpdateRecord and applies it to the source metadata.
// A created record starts UpdateCount at zero, an updated record increments
// it, and a deleted record removes the source.
func (s *Store) RecordChange(
	id, path, previous, next string, changeType ChangeType, info FetchInfo,
) UpdateRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordChangeLocked(id, path, previous, next, changeType, info)
}

func (s *Store) recordChangeLocked(
	id, path, previous, next string, changeType ChangeType, info FetchInfo,
) UpdateRecord {
	now := s.clock.Now()
	rec := UpdateRecord{
		Timestamp:           now,
		SourceID:            id,
		PreviousFingerprint: previous,
		NewFingerprint:      next,
		Type:                changeType,
	}
	s.history.Push(rec)

	switch changeType {
	case ChangeCreated:
		s.sources[id] = SourceMetadata{
			ID:          id,
			Path:        path,
			Fingerprint: next,
			Size:        info.Size,
			ETag:        info.ETag,
			LastFetched: now,
			FirstSeen:   now,
		}
	case ChangeUpdated:
		md, ok := s.sources[id]
		if !ok {
			md = SourceMetadata{ID: id, FirstSeen: now}
		}
		md.Path = path
		md.Fingerprint = next
		md.Size = info.Size
		md.ETag = info.ETag
		md.LastFetched = now
		md.UpdateCount++
		s.sources[id] = md
	case ChangeDeleted:
		delete(s.sources, id)
	}
	return rec
}

// Touch marks an unchanged source as fetched now. It reports false if the
// source is not tracked.
func (s *Store) Touch(id string, info FetchInfo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	md, ok := s.sources[id]
	if !ok {
		return false
	}
	md.LastFetched = s.clock.Now()
	md.Size = info.Size
	md.ETag = info.ETag
	s.sources[id] = md
	return true
}

// ReconcileDeletions records a deleted change for every tracked source that is
// not in currentIDs. Records are produced in source id order.
func (s *Store) ReconcileDeletions(currentIDs []string) []UpdateRecord {
	current := make(map[string]struct{}, len(currentIDs))
	for _, id := range currentIDs {
		current[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var records []UpdateRecord
	for _, id := range slices.Sorted(maps.Keys(s.sources)) {
		if _, ok := current[id]; ok {
			continue
		}
		md := s.sources[id]
		records = append(records, s.recordChangeLocked(id, md.Path, md.Fingerprint, "", ChangeDeleted, FetchInfo{}))
	}
	return records
}

// MarkChecked sets LastCheck to now, and LastUpdate too when changed is true
func (s *Store) MarkChecked(changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	s.lastCheck = now
	if changed {
		s.lastUpdate = now
	}
}

// SetUpstreamFingerprint stores the repository-level fingerprint
func (s *Store) SetUpstreamFingerprint(fp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upstreamFingerprint = fp
}

// UpstreamFingerprint returns the repository-level fingerprint
func (s *Store) UpstreamFingerprint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upstreamFingerprint
}

// GetSource returns the metadata for id
func (s *Store) GetSource(id string) (SourceMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	md, ok := s.sources[id]
	return md, ok
}

// ListSources returns all tracked sources sorted by id
func (s *Store) ListSources() []SourceMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SourceMetadata, 0, len(s.sources))
	for _, id := range slices.Sorted(maps.Keys(s.sources)) {
		out = append(out, s.sources[id])
	}
	return out
}

// History returns the records matching filter, most recent first
func (s *Store) History(filter HistoryFilter) []UpdateRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []UpdateRecord{}
	skipped := 0
	for i := range s.history.Len() {
		rec := s.history.At(i)
		if !filter.matches(rec) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, rec)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out
}

// HistoryCount returns the number of retained records
func (s *Store) HistoryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Len()
}

// StaleSources returns the sorted ids of tracked sources last fetched more
// than maxAge ago, plus any id in knownIDs that has never been fetched.
func (s *Store) StaleSources(maxAge time.Duration, knownIDs []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.clock.Now().Add(-maxAge)
	stale := make(map[string]struct{})
	for id, md := range s.sources {
		if md.LastFetched.Before(cutoff) {
			stale[id] = struct{}{}
		}
	}
	for _, id := range knownIDs {
		if _, ok := s.sources[id]; !ok {
			stale[id] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(stale))
}

// LastFetched returns the most recent LastFetched across sources, or the
// zero time when nothing has been fetched
func (s *Store) LastFetched() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFetchedLocked()
}

func (s *Store) lastFetchedLocked() time.Time {
	var latest time.Time
	for _, md := range s.sources {
		if md.LastFetched.After(latest) {
			latest = md.LastFetched
		}
	}
	return latest
}

// LastUpdate returns the time of the last check that produced a change
func (s *Store) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// Stats summarizes the store
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		SchemaVersion:       CurrentSchemaVersion,
		LastCheck:           s.lastCheck,
		LastUpdate:          s.lastUpdate,
		LastFetched:         s.lastFetchedLocked(),
		UpstreamFingerprint: s.upstreamFingerprint,
		TrackedSources:      len(s.sources),
		HistoryEntries:      s.history.Len(),
		HistoryCapacity:     s.history.Cap(),
	}
}
