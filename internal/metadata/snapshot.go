package metadata

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema.json
var stateSchemaJSON []byte

// ErrInvalidSnapshot is returned by Import for data that cannot be applied
var ErrInvalidSnapshot = errors.New("invalid snapshot")

const stateSchemaURL = "https://stacklok.com/schemas/thv-docs-cache/sync-state.json"

var (
	stateSchemaOnce sync.Once
	stateSchema     *jsonschema.Schema
	stateSchemaErr  error
)

func compiledStateSchema() (*jsonschema.Schema, error) {
	stateSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(stateSchemaJSON))
		if err != nil {
			stateSchemaErr = fmt.Errorf("failed to parse state schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat()
		if err := compiler.AddResource(stateSchemaURL, doc); err != nil {
			stateSchemaErr = fmt.Errorf("failed to add state schema: %w", err)
			return
		}
		stateSchema, stateSchemaErr = compiler.Compile(stateSchemaURL)
	})
	return stateSchema, stateSchemaErr
}

// ValidateSnapshot checks data against the sync state JSON schema
func ValidateSnapshot(data []byte) error {
	schema, err := compiledStateSchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: not valid JSON: %w", ErrInvalidSnapshot, err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("%w: does not match schema: %w", ErrInvalidSnapshot, err)
	}
	return nil
}

func schemaVersionOf(data []byte) (int, error) {
	var probe struct {
		SchemaVersion int `json:"schemaVersion"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, err
	}
	return probe.SchemaVersion, nil
}

// Export returns the full state as indented JSON
func (s *Store) Export(_ context.Context) ([]byte, error) {
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// Import replaces the state with the snapshot in data and persists it.
// A schema version other than CurrentSchemaVersion yields ErrSchemaMismatch.
// On any error the store is left as it was.
func (s *Store) Import(ctx context.Context, data []byte) error {
	version, err := schemaVersionOf(data)
	if err != nil {
		return fmt.Errorf("%w: not valid JSON: %w", ErrInvalidSnapshot, err)
	}
	if version != CurrentSchemaVersion {
		return fmt.Errorf("%w: %w: snapshot has version %d, expected %d",
			ErrInvalidSnapshot, ErrSchemaMismatch, version, CurrentSchemaVersion)
	}
	if err := ValidateSnapshot(data); err != nil {
		return err
	}

	var state GlobalSyncState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("%w: failed to decode: %w", ErrInvalidSnapshot, err)
	}
	for key, md := range state.Sources {
		if key != md.ID {
			return fmt.Errorf("%w: source key %q does not match id %q", ErrInvalidSnapshot, key, md.ID)
		}
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	previous := s.Snapshot()
	s.mu.Lock()
	s.apply(&state)
	s.mu.Unlock()

	if err := s.write(ctx, s.Snapshot()); err != nil {
		s.mu.Lock()
		s.apply(previous)
		s.mu.Unlock()
		return err
	}
	return nil
}
