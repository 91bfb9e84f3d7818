// Package coordinator drives periodic documentation syncs.
//
// The coordinator sits on top of sync.Manager and only decides when SyncAll
// runs and with which force flag:
//
//   - A tick runs immediately on Start, then every CheckInterval.
//   - Ticks never overlap. A tick that comes due while a sync is still running
//     is skipped, not queued, and counted in Status.SkippedTicks. The next tick
//     is scheduled CheckInterval after the running sync completes.
//   - A tick forces the sync when ForceInterval has elapsed since the last
//     forced sync. The clock for this starts when the coordinator starts.
//
// # Lifecycle
//
//	c := coordinator.New(engine)
//	if err := c.Start(ctx, coordinator.Config{CheckInterval: time.Hour, ForceInterval: 24 * time.Hour},
//	    coordinator.Callbacks{OnUpdateDetected: notify}); err != nil {
//	    return err
//	}
//	defer c.Destroy()
//
// Start is idempotent while running. Stop cancels the pending timer and waits
// for an in-flight sync to finish, so shutdown never races a metadata write.
// Destroy additionally drops the callbacks; a destroyed coordinator cannot be
// started again.
//
// # Error Handling
//
// Errors returned by SyncAll, and panics raised by it, are reported through
// Callbacks.OnError. The coordinator keeps ticking after failures.
package coordinator
