package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stacklok/toolhive-docs-cache/internal/clock"
	pkgsync "github.com/stacklok/toolhive-docs-cache/internal/sync"
	"github.com/stacklok/toolhive-docs-cache/internal/telemetry"
)

// ErrDestroyed is returned by Start after Destroy
var ErrDestroyed = errors.New("coordinator destroyed")

// Coordinator schedules background syncs
type Coordinator interface {
	// Start begins the tick loop and returns immediately. Calling Start while
	// running is a no-op.
	Start(ctx context.Context, cfg Config, callbacks Callbacks) error

	// Stop cancels the pending tick and waits for an in-flight sync
	Stop() error

	// Destroy stops the coordinator and releases its callbacks for good
	Destroy() error

	// Status returns a snapshot of the scheduler state
	Status() Status
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithSyncMetrics sets the metrics recorder for skipped ticks
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(c *defaultCoordinator) {
		c.syncMetrics = metrics
	}
}

// WithClock overrides the time source used for force decisions
func WithClock(clk clock.Clock) Option {
	return func(c *defaultCoordinator) {
		c.clock = clk
	}
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	manager     pkgsync.Manager
	syncMetrics *telemetry.SyncMetrics
	clock       clock.Clock

	// lifecycle serializes Start, Stop and Destroy
	lifecycle sync.Mutex

	mu        sync.Mutex
	running   bool
	destroyed bool
	cfg       Config
	callbacks Callbacks
	cancel    context.CancelFunc
	done      chan struct{}
	lastTick  time.Time
	lastForce time.Time
	tickCount int64
	skipped   int64
}

// New creates a new coordinator
func New(manager pkgsync.Manager, opts ...Option) Coordinator {
	c := &defaultCoordinator{
		manager: manager,
		clock:   clock.Real{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins background sync coordination
func (c *defaultCoordinator) Start(ctx context.Context, cfg Config, callbacks Callbacks) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return ErrDestroyed
	}
	if c.running {
		slog.Debug("Sync coordinator already running")
		return nil
	}
	if cfg.CheckInterval <= 0 {
		return fmt.Errorf("check interval must be positive, got %s", cfg.CheckInterval)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cfg = cfg
	c.callbacks = callbacks
	c.cancel = cancel
	c.done = make(chan struct{})
	c.lastForce = c.clock.Now()

	slog.Info("Starting background sync coordinator",
		"check_interval", cfg.CheckInterval,
		"force_interval", cfg.ForceInterval,
		"categories", cfg.Categories)

	go c.run(loopCtx, context.WithoutCancel(ctx), cfg, c.done)
	return nil
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.stop()
	return nil
}

func (c *defaultCoordinator) stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	slog.Info("Stopping sync coordinator")
	cancel()
	<-done
}

// Destroy stops the coordinator and drops its callbacks
func (c *defaultCoordinator) Destroy() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed = true
	c.callbacks = Callbacks{}
	return nil
}

// Status returns a snapshot of the scheduler state
func (c *defaultCoordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Status{
		Running:       c.running,
		CheckInterval: c.cfg.CheckInterval,
		ForceInterval: c.cfg.ForceInterval,
		LastTick:      c.lastTick,
		LastForce:     c.lastForce,
		TickCount:     c.tickCount,
		SkippedTicks:  c.skipped,
	}
}

// run is the scheduler loop. Syncs run on tickCtx, which outlives loopCtx so
// that an in-flight sync completes its metadata write on shutdown.
func (c *defaultCoordinator) run(loopCtx, tickCtx context.Context, cfg Config, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		close(done)
		slog.Info("Background sync coordinator stopped")
	}()

	tickDone := make(chan struct{}, 1)
	inFlight := true
	go c.tick(tickCtx, cfg, tickDone)

	timer := time.NewTimer(cfg.CheckInterval)
	defer timer.Stop()

	for {
		select {
		case <-loopCtx.Done():
			if inFlight {
				<-tickDone
			}
			return

		case <-timer.C:
			if inFlight {
				c.mu.Lock()
				c.skipped++
				c.mu.Unlock()
				c.syncMetrics.RecordSkippedTick(tickCtx)
				slog.Warn("Skipping sync tick, previous sync still running", "check_interval", cfg.CheckInterval)
				timer.Reset(cfg.CheckInterval)
				continue
			}
			inFlight = true
			go c.tick(tickCtx, cfg, tickDone)
			timer.Reset(cfg.CheckInterval)

		case <-tickDone:
			inFlight = false
			timer.Reset(cfg.CheckInterval)
		}
	}
}

// tick performs one scheduled sync and reports the outcome to the callbacks
func (c *defaultCoordinator) tick(ctx context.Context, cfg Config, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	now := c.clock.Now()
	c.mu.Lock()
	force := cfg.ForceInterval > 0 && now.Sub(c.lastForce) >= cfg.ForceInterval
	if force {
		c.lastForce = now
	}
	c.lastTick = now
	c.tickCount++
	callbacks := c.callbacks
	c.mu.Unlock()

	result, err := c.syncAll(ctx, pkgsync.SyncOptions{Force: force, Categories: cfg.Categories})
	if err != nil {
		slog.Error("Scheduled sync failed", "force", force, "error", err)
		notify("OnError", func() {
			if callbacks.OnError != nil {
				callbacks.OnError(err)
			}
		})
		return
	}

	if result.Changed() {
		notify("OnUpdateDetected", func() {
			if callbacks.OnUpdateDetected != nil {
				callbacks.OnUpdateDetected(result.Records)
			}
		})
	}
}

// syncAll calls the manager, converting a panic into an error
func (c *defaultCoordinator) syncAll(ctx context.Context, opts pkgsync.SyncOptions) (result *pkgsync.BatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("sync panicked: %v", r)
		}
	}()

	result, err = c.manager.SyncAll(ctx, opts)
	if err == nil && result == nil {
		err = errors.New("sync returned no result")
	}
	return result, err
}

func notify(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Sync coordinator callback panicked", "callback", name, "panic", fmt.Sprint(r))
		}
	}()
	fn()
}
