package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/stacklok/toolhive-docs-cache/internal/events"
	"github.com/stacklok/toolhive-docs-cache/internal/metadata"
	"github.com/stacklok/toolhive-docs-cache/internal/otel"
	"github.com/stacklok/toolhive-docs-cache/internal/sources"
	"github.com/stacklok/toolhive-docs-cache/internal/storage"
	"github.com/stacklok/toolhive-docs-cache/internal/telemetry"
)

// DefaultConcurrency is the default number of parallel fetches in a batch
const DefaultConcurrency = 4

// Option configures an Engine
type Option func(*Engine)

// WithProbe sets the upstream probe used to skip unchanged batches
func WithProbe(p sources.UpstreamProbe) Option {
	return func(e *Engine) {
		e.probe = p
	}
}

// WithBus sets the bus sync events are published on
func WithBus(b *events.Bus) Option {
	return func(e *Engine) {
		e.bus = b
	}
}

// WithMetrics sets the sync metrics recorder
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracer sets the tracer for sync spans
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithConcurrency bounds the parallel fetches of a batch
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// Engine is the default Manager
type Engine struct {
	registry    *sources.Registry
	fetcher     sources.ContentFetcher
	store       *metadata.Store
	content     storage.BlobStore
	probe       sources.UpstreamProbe
	bus         *events.Bus
	metrics     *telemetry.SyncMetrics
	tracer      trace.Tracer
	concurrency int

	// flights holds the in-flight fetch per source id
	flights singleflight.Group
}

var _ Manager = (*Engine)(nil)

// NewEngine creates an Engine
func NewEngine(
	registry *sources.Registry,
	fetcher sources.ContentFetcher,
	store *metadata.Store,
	content storage.BlobStore,
	opts ...Option,
) *Engine {
	e := &Engine{
		registry:    registry,
		fetcher:     fetcher,
		store:       store,
		content:     content,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SyncOne syncs the source with the given id and persists the store. Fetch
// failures are reported in Outcome.Err; the returned error is reserved for
// unknown ids and persistence failures.
func (e *Engine) SyncOne(ctx context.Context, id string) (*Outcome, error) {
	src, ok := e.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", sources.ErrUnknownSource, id)
	}

	ctx, span := otel.StartSpan(ctx, e.tracer, "sync.SyncOne",
		trace.WithAttributes(otel.AttrSourceID.String(id)))
	defer span.End()

	syncID := uuid.NewString()
	out := e.syncShared(ctx, src, false, syncID)
	e.metrics.RecordSourceOutcome(ctx, id, outcomeLabel(out))

	e.store.MarkChecked(out.Changed)
	saveErr := e.store.Save(ctx)

	if out.Err != nil {
		otel.RecordError(span, out.Err)
		e.publish(events.Event{Kind: events.KindError, SyncID: syncID, SourceID: id, Err: out.Err})
	}
	if saveErr != nil {
		otel.RecordError(span, saveErr)
		e.publish(events.Event{Kind: events.KindError, SyncID: syncID, Err: saveErr})
		return out, storageError(saveErr)
	}
	return out, nil
}

// SyncAll syncs a batch of sources. The result is returned even when
// persisting the store fails, together with the error.
func (e *Engine) SyncAll(ctx context.Context, opts SyncOptions) (*BatchResult, error) {
	start := time.Now()
	full := len(opts.Categories) == 0
	batch := e.registry.Filter(opts.Categories)
	ids := sourceIDs(batch)

	result := &BatchResult{
		SyncID:    uuid.NewString(),
		Force:     opts.Force,
		Updated:   []string{},
		Unchanged: []string{},
		Failed:    []string{},
		Deleted:   []string{},
		Errors:    map[string]string{},
		Records:   []metadata.UpdateRecord{},
	}

	ctx, span := otel.StartSpan(ctx, e.tracer, "sync.SyncAll", trace.WithAttributes(
		otel.AttrSyncID.String(result.SyncID),
		otel.AttrSyncForce.Bool(opts.Force),
		otel.AttrSourceCount.Int(len(batch)),
	))
	defer span.End()

	e.publish(events.Event{
		Kind:    events.KindSyncStart,
		SyncID:  result.SyncID,
		Time:    start,
		Force:   opts.Force,
		Sources: ids,
	})

	upstream := ""
	if full && e.probe != nil {
		upstream = e.probeUpstream(ctx)
		if upstream != "" && !opts.Force && upstream == e.store.UpstreamFingerprint() && e.allTracked(batch) {
			slog.Info("Upstream fingerprint unchanged, skipping source fetches",
				"sync_id", result.SyncID, "fingerprint", upstream)
			result.Skipped = true
			result.Unchanged = ids
		}
	}

	if !result.Skipped {
		for _, out := range e.fetchBatch(ctx, batch, opts.Force, result.SyncID) {
			result.add(out)
			e.metrics.RecordSourceOutcome(ctx, out.SourceID, outcomeLabel(out))
		}
		if full {
			e.reconcileDeletions(ctx, result)
		}
		if upstream != "" && len(result.Failed) == 0 {
			e.store.SetUpstreamFingerprint(upstream)
		}
	}

	e.store.MarkChecked(result.Changed())
	saveErr := e.store.Save(ctx)
	result.Duration = time.Since(start)

	span.SetAttributes(
		otel.AttrSyncSkipped.Bool(result.Skipped),
		otel.AttrChangeCount.Int(len(result.Records)),
		otel.AttrFailureCount.Int(len(result.Failed)),
	)
	e.metrics.RecordSyncDuration(ctx, result.Duration, opts.Force, saveErr == nil && len(result.Failed) == 0)
	e.metrics.RecordSourcesTotal(ctx, int64(e.store.Stats().TrackedSources))

	e.publishBatch(result, saveErr)

	slog.Info("Sync completed",
		"sync_id", result.SyncID,
		"force", opts.Force,
		"skipped", result.Skipped,
		"updated", len(result.Updated),
		"unchanged", len(result.Unchanged),
		"failed", len(result.Failed),
		"deleted", len(result.Deleted),
		"duration", result.Duration)

	if saveErr != nil {
		otel.RecordError(span, saveErr)
		return result, storageError(saveErr)
	}
	return result, nil
}

func (e *Engine) probeUpstream(ctx context.Context) string {
	fp, err := e.probe.Fingerprint(ctx)
	if err != nil {
		slog.Warn("Upstream probe failed, syncing every source", "error", err)
		return ""
	}
	return fp
}

func (e *Engine) allTracked(batch []sources.SourceConfig) bool {
	for _, src := range batch {
		if _, ok := e.store.GetSource(src.ID); !ok {
			return false
		}
	}
	return true
}

// fetchBatch syncs batch with bounded parallelism. Outcomes are in batch order.
func (e *Engine) fetchBatch(ctx context.Context, batch []sources.SourceConfig, force bool, syncID string) []*Outcome {
	outcomes := make([]*Outcome, len(batch))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, src := range batch {
		g.Go(func() error {
			outcomes[i] = e.syncShared(ctx, src, force, syncID)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (e *Engine) reconcileDeletions(ctx context.Context, result *BatchResult) {
	for _, rec := range e.store.ReconcileDeletions(e.registry.IDs()) {
		if err := e.content.DeleteBlob(ctx, storage.ContentKey(rec.SourceID)); err != nil {
			slog.Warn("Failed to remove cached content of deleted source", "source", rec.SourceID, "error", err)
		}
		result.Deleted = append(result.Deleted, rec.SourceID)
		result.Records = append(result.Records, rec)
		e.metrics.RecordSourceOutcome(ctx, rec.SourceID, string(metadata.ChangeDeleted))
		e.publish(events.Event{Kind: events.KindUpdate, SyncID: result.SyncID, Record: &rec})
	}
}

// syncShared joins the in-flight sync of src or starts one. The flight is
// detached from the caller's cancellation and publishes the update event for
// its record exactly once, under the sync id of the caller that started it.
// A caller whose ctx is done stops waiting and gets a failed Outcome while
// the flight runs to completion. The returned Outcome is a private copy.
func (e *Engine) syncShared(ctx context.Context, src sources.SourceConfig, force bool, syncID string) *Outcome {
	flightCtx := context.WithoutCancel(ctx)
	ch := e.flights.DoChan(src.ID, func() (any, error) {
		out := e.syncSource(flightCtx, src, force)
		if out.Record != nil {
			e.publish(events.Event{Kind: events.KindUpdate, SyncID: syncID, Record: out.Record})
		}
		return out, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			slog.Debug("Shared in-flight sync", "source", src.ID)
		}
		out := *res.Val.(*Outcome)
		return &out
	case <-ctx.Done():
		return &Outcome{
			SourceID: src.ID,
			Err: &Error{
				Err:      ctx.Err(),
				Message:  fmt.Sprintf("stopped waiting for sync of source '%s': %v", src.ID, ctx.Err()),
				SourceID: src.ID,
				Reason:   ReasonFetchFailed,
			},
		}
	}
}

func (e *Engine) syncSource(ctx context.Context, src sources.SourceConfig, force bool) *Outcome {
	prev, tracked := e.store.GetSource(src.ID)
	out := &Outcome{SourceID: src.ID, PreviousFingerprint: prev.Fingerprint}

	etag := ""
	if tracked && !force {
		etag = prev.ETag
	}

	res, err := e.fetcher.Fetch(ctx, src, etag)
	switch {
	case err != nil && errors.Is(err, sources.ErrSourceNotFound) && tracked:
		return e.removeSource(ctx, src, prev, out)
	case err != nil:
		reason := ReasonFetchFailed
		if errors.Is(err, sources.ErrSourceNotFound) {
			reason = ReasonNotFoundUpstream
		}
		slog.Warn("Failed to fetch source", "source", src.ID, "error", err)
		out.Err = &Error{
			Err:      err,
			Message:  fmt.Sprintf("fetch failed for source '%s': %v", src.ID, err),
			SourceID: src.ID,
			Reason:   reason,
		}
		return out
	case res.NotModified && !tracked:
		out.Err = &Error{
			Message:  fmt.Sprintf("upstream reported no change for untracked source '%s'", src.ID),
			SourceID: src.ID,
			Reason:   ReasonFetchFailed,
		}
		return out
	case res.NotModified:
		keptETag := res.ETag
		if keptETag == "" {
			keptETag = prev.ETag
		}
		e.store.Touch(src.ID, metadata.FetchInfo{Size: prev.Size, ETag: keptETag})
		out.Fingerprint, out.Size, out.ETag = prev.Fingerprint, prev.Size, keptETag
		return out
	}

	out.Fingerprint, out.Size, out.ETag = res.Fingerprint, res.Size, res.ETag
	info := metadata.FetchInfo{Size: res.Size, ETag: res.ETag}

	if tracked && prev.Fingerprint == res.Fingerprint {
		e.store.Touch(src.ID, info)
		return out
	}

	if err := e.content.WriteBlob(ctx, storage.ContentKey(src.ID), res.Content); err != nil {
		slog.Error("Failed to cache source content", "source", src.ID, "error", err)
		out.Err = &Error{
			Err:      err,
			Message:  fmt.Sprintf("failed to cache content for source '%s': %v", src.ID, err),
			SourceID: src.ID,
			Reason:   ReasonStorageFailed,
		}
		return out
	}

	changeType := metadata.ChangeUpdated
	if !tracked {
		changeType = metadata.ChangeCreated
	}
	rec := e.store.RecordChange(src.ID, src.Path, prev.Fingerprint, res.Fingerprint, changeType, info)
	out.Changed = true
	out.Type = changeType
	out.Record = &rec

	slog.Debug("Source changed", "source", src.ID, "type", changeType, "fingerprint", res.Fingerprint)
	return out
}

func (e *Engine) removeSource(
	ctx context.Context, src sources.SourceConfig, prev metadata.SourceMetadata, out *Outcome,
) *Outcome {
	if err := e.content.DeleteBlob(ctx, storage.ContentKey(src.ID)); err != nil {
		slog.Warn("Failed to remove cached content of deleted source", "source", src.ID, "error", err)
	}
	rec := e.store.RecordChange(src.ID, src.Path, prev.Fingerprint, "", metadata.ChangeDeleted, metadata.FetchInfo{})
	out.Changed = true
	out.Type = metadata.ChangeDeleted
	out.Record = &rec

	slog.Info("Source removed upstream", "source", src.ID)
	return out
}

func (e *Engine) publish(ev events.Event) {
	if e.bus == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	e.bus.Publish(ev)
}

// publishBatch publishes the failures and the completion of a batch. Update
// events are published as records are written.
func (e *Engine) publishBatch(result *BatchResult, saveErr error) {
	for _, id := range result.Failed {
		e.publish(events.Event{
			Kind:     events.KindError,
			SyncID:   result.SyncID,
			SourceID: id,
			Err:      errors.New(result.Errors[id]),
		})
	}
	if saveErr != nil {
		e.publish(events.Event{Kind: events.KindError, SyncID: result.SyncID, Err: saveErr})
	}
	e.publish(events.Event{
		Kind:   events.KindSyncComplete,
		SyncID: result.SyncID,
		Force:  result.Force,
		Summary: &events.Summary{
			Updated:   len(result.Updated),
			Unchanged: len(result.Unchanged),
			Failed:    len(result.Failed),
			Deleted:   len(result.Deleted),
			Skipped:   result.Skipped,
			Duration:  result.Duration,
		},
	})
}

func (r *BatchResult) add(out *Outcome) {
	switch {
	case out.Err != nil:
		r.Failed = append(r.Failed, out.SourceID)
		r.Errors[out.SourceID] = out.Err.Error()
	case out.Type == metadata.ChangeDeleted:
		r.Deleted = append(r.Deleted, out.SourceID)
	case out.Changed:
		r.Updated = append(r.Updated, out.SourceID)
	default:
		r.Unchanged = append(r.Unchanged, out.SourceID)
	}
	if out.Record != nil {
		r.Records = append(r.Records, *out.Record)
	}
}

func outcomeLabel(out *Outcome) string {
	switch {
	case out.Err != nil:
		return "failed"
	case out.Changed:
		return string(out.Type)
	default:
		return "unchanged"
	}
}

func storageError(err error) *Error {
	return &Error{
		Err:     err,
		Message: fmt.Sprintf("failed to persist sync state: %v", err),
		Reason:  ReasonStorageFailed,
	}
}

func sourceIDs(srcs []sources.SourceConfig) []string {
	ids := make([]string, len(srcs))
	for i, src := range srcs {
		ids[i] = src.ID
	}
	return ids
}
