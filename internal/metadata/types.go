package metadata

import "time"

// CurrentSchemaVersion is the version of the persisted GlobalSyncState layout.
// State with any other version is discarded on load and rejected on import.
const CurrentSchemaVersion = 1

// DefaultHistoryCapacity is the default number of UpdateRecords retained
const DefaultHistoryCapacity = 100

// DefaultStateKey is the blob key the state is persisted under
const DefaultStateKey = "state/sync-state.json"

// ChangeType classifies an UpdateRecord
type ChangeType string

const (
	// ChangeCreated means the source was seen for the first time
	ChangeCreated ChangeType = "created"

	// ChangeUpdated means the source fingerprint changed
	ChangeUpdated ChangeType = "updated"

	// ChangeDeleted means the source disappeared from upstream
	ChangeDeleted ChangeType = "deleted"
)

// Valid reports whether t is a known change type
func (t ChangeType) Valid() bool {
	switch t {
	case ChangeCreated, ChangeUpdated, ChangeDeleted:
		return true
	}
	return false
}

// SourceMetadata is the tracked state of one source
type SourceMetadata struct {
	ID   string `json:"id"`
	Path string `json:"path"`

	// Fingerprint is the sha256 of the last fetched content
	Fingerprint string `json:"fingerprint"`

	Size int64  `json:"size"`
	ETag string `json:"etag,omitempty"`

	// LastFetched is the last time the source was confirmed against upstream
	LastFetched time.Time `json:"lastFetched"`

	// FirstSeen is when the source was first created in the store
	FirstSeen time.Time `json:"firstSeen"`

	// UpdateCount counts fingerprint changes since creation.
	// It is not adjusted when history entries are evicted.
	UpdateCount int `json:"updateCount"`
}

// UpdateRecord is an immutable history entry
type UpdateRecord struct {
	Timestamp           time.Time  `json:"timestamp"`
	SourceID            string     `json:"sourceId"`
	PreviousFingerprint string     `json:"previousFingerprint,omitempty"`
	NewFingerprint      string     `json:"newFingerprint,omitempty"`
	Type                ChangeType `json:"type"`
}

// GlobalSyncState is the unit of persistence
type GlobalSyncState struct {
	SchemaVersion int `json:"schemaVersion"`

	// LastCheck is the time of the last check, whether or not it found changes
	LastCheck time.Time `json:"lastCheck,omitzero"`

	// LastUpdate is the time of the last check that produced at least one change
	LastUpdate time.Time `json:"lastUpdate,omitzero"`

	// UpstreamFingerprint is the repository-level fingerprint of the last clean full sync
	UpstreamFingerprint string `json:"upstreamFingerprint,omitempty"`

	Sources map[string]SourceMetadata `json:"sources"`

	// UpdateHistory is ordered most-recent-first
	UpdateHistory []UpdateRecord `json:"updateHistory"`
}

// NewGlobalSyncState returns an empty state at the current schema version
func NewGlobalSyncState() *GlobalSyncState {
	return &GlobalSyncState{
		SchemaVersion: CurrentSchemaVersion,
		Sources:       make(map[string]SourceMetadata),
		UpdateHistory: []UpdateRecord{},
	}
}

// FetchInfo carries the fetch attributes stored alongside a fingerprint
type FetchInfo struct {
	Size int64
	ETag string
}

// HistoryFilter narrows a history query. Zero fields do not filter;
// all set fields are AND-combined.
type HistoryFilter struct {
	SourceID string
	Type     ChangeType
	Since    time.Time
	Limit    int
	Offset   int
}

func (f HistoryFilter) matches(rec UpdateRecord) bool {
	if f.SourceID != "" && rec.SourceID != f.SourceID {
		return false
	}
	if f.Type != "" && rec.Type != f.Type {
		return false
	}
	if !f.Since.IsZero() && rec.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// Stats summarizes the store
type Stats struct {
	SchemaVersion       int       `json:"schemaVersion"`
	LastCheck           time.Time `json:"lastCheck,omitzero"`
	LastUpdate          time.Time `json:"lastUpdate,omitzero"`
	LastFetched         time.Time `json:"lastFetched,omitzero"`
	UpstreamFingerprint string    `json:"upstreamFingerprint,omitempty"`
	TrackedSources      int       `json:"trackedSources"`
	HistoryEntries      int       `json:"historyEntries"`
	HistoryCapacity     int       `json:"historyCapacity"`
}
