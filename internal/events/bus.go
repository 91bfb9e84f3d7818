package events

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
)

type registration struct {
	id       uint64
	listener Listener
}

// Bus delivers events to registered listeners on a single dispatcher
// goroutine. Events are delivered in publish order, and each event reaches
// listeners in registration order. Publish never blocks on listeners.
type Bus struct {
	mu        sync.Mutex
	cond      *sync.Cond
	listeners []registration
	nextID    uint64
	queue     []Event
	pending   int
	idle      chan struct{} // closed when pending drops to zero
	closed    bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewBus creates a Bus and starts its dispatcher
func NewBus() *Bus {
	b := &Bus{done: make(chan struct{})}
	b.cond = sync.NewCond(&b.mu)
	go b.run()
	return b
}

// Register adds l and returns a function that removes it again
func (b *Bus) Register(l Listener) (unregister func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, registration{id: id, listener: l})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.listeners = slices.DeleteFunc(b.listeners, func(r registration) bool {
				return r.id == id
			})
		})
	}
}

// UnregisterAll removes every listener
func (b *Bus) UnregisterAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = nil
}

// Len returns the number of registered listeners
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

// Publish queues ev for delivery. Events published after Close are dropped.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		slog.Debug("Dropping event published after bus close", "kind", ev.Kind)
		return
	}
	b.queue = append(b.queue, ev)
	b.pending++
	if b.idle == nil {
		b.idle = make(chan struct{})
	}
	b.cond.Signal()
}

// Flush waits until every event published so far has been delivered
func (b *Bus) Flush(ctx context.Context) error {
	b.mu.Lock()
	idle := b.idle
	b.mu.Unlock()

	if idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close delivers queued events and stops the dispatcher
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	<-b.done
}

func (b *Bus) run() {
	defer close(b.done)

	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return
		}
		ev := b.queue[0]
		b.queue[0] = Event{}
		b.queue = b.queue[1:]
		listeners := slices.Clone(b.listeners)
		b.mu.Unlock()

		for _, r := range listeners {
			deliver(r.listener, ev)
		}

		b.mu.Lock()
		b.pending--
		if b.pending == 0 && b.idle != nil {
			close(b.idle)
			b.idle = nil
		}
		b.mu.Unlock()
	}
}

func deliver(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Sync listener panicked",
				"kind", ev.Kind,
				"sync_id", ev.SyncID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()

	if err := l.HandleEvent(context.Background(), ev); err != nil {
		slog.Warn("Sync listener failed", "kind", ev.Kind, "sync_id", ev.SyncID, "error", err)
	}
}
