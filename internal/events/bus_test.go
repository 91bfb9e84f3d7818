package events

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-docs-cache/internal/metadata"
)

// recorder collects the events it receives
type recorder struct {
	name   string
	log    *[]string
	shared *sync.Mutex
}

func (r *recorder) HandleEvent(_ context.Context, ev Event) error {
	r.shared.Lock()
	defer r.shared.Unlock()
	*r.log = append(*r.log, r.name+":"+string(ev.Kind))
	return nil
}

func newRecorders(names ...string) ([]*recorder, func() []string) {
	var mu sync.Mutex
	var log []string
	out := make([]*recorder, 0, len(names))
	for _, n := range names {
		out = append(out, &recorder{name: n, log: &log, shared: &mu})
	}
	return out, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), log...)
	}
}

func TestBusDeliveryOrder(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	defer bus.Close()

	recs, got := newRecorders("first", "second")
	for _, r := range recs {
		bus.Register(r)
	}

	bus.Publish(Event{Kind: KindSyncStart})
	bus.Publish(Event{Kind: KindUpdate})
	bus.Publish(Event{Kind: KindSyncComplete})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, bus.Flush(ctx))

	assert.Equal(t, []string{
		"first:sync_start", "second:sync_start",
		"first:update", "second:update",
		"first:sync_complete", "second:sync_complete",
	}, got())
}

func TestBusListenerIsolation(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	defer bus.Close()

	recs, got := newRecorders("healthy")

	bus.Register(ListenerFunc(func(context.Context, Event) error {
		panic("listener bug")
	}))
	bus.Register(ListenerFunc(func(context.Context, Event) error {
		return errors.New("listener failed")
	}))
	bus.Register(recs[0])

	bus.Publish(Event{Kind: KindUpdate})
	bus.Publish(Event{Kind: KindError, Err: errors.New("fetch failed")})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, bus.Flush(ctx))

	assert.Equal(t, []string{"healthy:update", "healthy:error"}, got())
}

func TestBusUnregister(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	defer bus.Close()

	recs, got := newRecorders("a", "b")
	unregisterA := bus.Register(recs[0])
	bus.Register(recs[1])
	require.Equal(t, 2, bus.Len())

	unregisterA()
	unregisterA()
	assert.Equal(t, 1, bus.Len())

	bus.Publish(Event{Kind: KindSyncStart})
	require.NoError(t, bus.Flush(context.Background()))
	assert.Equal(t, []string{"b:sync_start"}, got())

	bus.UnregisterAll()
	assert.Equal(t, 0, bus.Len())
	bus.Publish(Event{Kind: KindSyncComplete})
	require.NoError(t, bus.Flush(context.Background()))
	assert.Equal(t, []string{"b:sync_start"}, got())
}

func TestBusPublishDoesNotBlockOnSlowListener(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	defer bus.Close()

	release := make(chan struct{})
	bus.Register(ListenerFunc(func(context.Context, Event) error {
		<-release
		return nil
	}))

	published := make(chan struct{})
	go func() {
		for range 1000 {
			bus.Publish(Event{Kind: KindUpdate})
		}
		close(published)
	}()

	select {
	case <-published:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a slow listener")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Flush(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, bus.Flush(context.Background()))
}

func TestBusCloseDrainsQueue(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	recs, got := newRecorders("l")
	bus.Register(recs[0])

	for range 10 {
		bus.Publish(Event{Kind: KindUpdate})
	}
	bus.Close()
	assert.Len(t, got(), 10)

	bus.Publish(Event{Kind: KindUpdate})
	bus.Close()
	assert.Len(t, got(), 10)
	assert.NoError(t, bus.Flush(context.Background()))
}

func TestHooks(t *testing.T) {
	t.Parallel()

	var calls []Kind
	hooks := Hooks{
		OnSyncStart: func(_ context.Context, ev Event) error {
			calls = append(calls, ev.Kind)
			return nil
		},
		OnError: func(_ context.Context, ev Event) error {
			calls = append(calls, ev.Kind)
			return ev.Err
		},
	}

	ctx := context.Background()
	require.NoError(t, hooks.HandleEvent(ctx, Event{Kind: KindSyncStart}))
	require.NoError(t, hooks.HandleEvent(ctx, Event{Kind: KindUpdate}))
	require.NoError(t, hooks.HandleEvent(ctx, Event{Kind: KindSyncComplete}))
	assert.Error(t, hooks.HandleEvent(ctx, Event{Kind: KindError, Err: errors.New("boom")}))
	require.NoError(t, hooks.HandleEvent(ctx, Event{Kind: "unknown"}))

	assert.Equal(t, []Kind{KindSyncStart, KindError}, calls)
}

func TestLogListener(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l := NewLogListener(logger)

	ctx := context.Background()
	require.NoError(t, l.HandleEvent(ctx, Event{Kind: KindSyncStart, SyncID: "s1", Sources: []string{"a"}}))
	require.NoError(t, l.HandleEvent(ctx, Event{Kind: KindUpdate, SyncID: "s1", Record: &metadata.UpdateRecord{
		SourceID: "a", Type: metadata.ChangeCreated, NewFingerprint: "abc",
	}}))
	require.NoError(t, l.HandleEvent(ctx, Event{Kind: KindSyncComplete, SyncID: "s1", Summary: &Summary{Updated: 1}}))
	require.NoError(t, l.HandleEvent(ctx, Event{Kind: KindError, SyncID: "s1", SourceID: "b", Err: errors.New("404")}))

	out := buf.String()
	assert.Contains(t, out, "Sync started")
	assert.Contains(t, out, "source=a")
	assert.Contains(t, out, "Sync completed")
	assert.Contains(t, out, "Sync error")
}
