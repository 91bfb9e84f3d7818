// Package events fans sync notifications out to independent listeners.
// A failing or panicking listener never affects other listeners or the
// publisher.
package events

import (
	"context"
	"time"

	"github.com/stacklok/toolhive-docs-cache/internal/metadata"
)

// Kind identifies the type of an Event
type Kind string

const (
	// KindSyncStart is published before a batch sync fetches anything
	KindSyncStart Kind = "sync_start"

	// KindUpdate is published once per UpdateRecord a sync produced
	KindUpdate Kind = "update"

	// KindSyncComplete is published after a batch sync persisted its state
	KindSyncComplete Kind = "sync_complete"

	// KindError is published for per-source fetch failures and store errors
	KindError Kind = "error"
)

// Summary is the aggregate carried by sync_complete events
type Summary struct {
	Updated   int           `json:"updated"`
	Unchanged int           `json:"unchanged"`
	Failed    int           `json:"failed"`
	Deleted   int           `json:"deleted"`
	Skipped   bool          `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

// Event is one notification. Which optional fields are set depends on Kind.
type Event struct {
	Kind Kind

	// SyncID correlates all events of one batch sync
	SyncID string

	Time  time.Time
	Force bool

	// Sources lists the source ids a sync_start covers
	Sources []string

	// Record is set on update events
	Record *metadata.UpdateRecord

	// Summary is set on sync_complete events
	Summary *Summary

	// SourceID and Err are set on error events. SourceID is empty for store errors.
	SourceID string
	Err      error
}

// Listener receives events
type Listener interface {
	HandleEvent(ctx context.Context, ev Event) error
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(ctx context.Context, ev Event) error

// HandleEvent implements Listener
func (f ListenerFunc) HandleEvent(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Hooks adapts per-kind callbacks to Listener. Nil callbacks are skipped.
type Hooks struct {
	OnSyncStart    func(ctx context.Context, ev Event) error
	OnUpdate       func(ctx context.Context, ev Event) error
	OnSyncComplete func(ctx context.Context, ev Event) error
	OnError        func(ctx context.Context, ev Event) error
}

// HandleEvent implements Listener
func (h Hooks) HandleEvent(ctx context.Context, ev Event) error {
	var fn func(context.Context, Event) error
	switch ev.Kind {
	case KindSyncStart:
		fn = h.OnSyncStart
	case KindUpdate:
		fn = h.OnUpdate
	case KindSyncComplete:
		fn = h.OnSyncComplete
	case KindError:
		fn = h.OnError
	}
	if fn == nil {
		return nil
	}
	return fn(ctx, ev)
}
