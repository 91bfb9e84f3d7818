package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/stacklok/toolhive-docs-cache/sync"

	// SearchMetricsMeterName is the name used for the search metrics meter
	SearchMetricsMeterName = "github.com/stacklok/toolhive-docs-cache/search"
)

// SyncMetrics holds the OpenTelemetry instruments for sync operations.
// All Record methods are no-ops on a nil receiver.
type SyncMetrics struct {
	syncDuration   metric.Float64Histogram
	sourceOutcomes metric.Int64Counter
	sourcesTotal   metric.Int64Gauge
	skippedTicks   metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"thv_docs_sync_duration_seconds",
		metric.WithDescription("Duration of batch sync operations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	sourceOutcomes, err := meter.Int64Counter(
		"thv_docs_sync_source_outcomes_total",
		metric.WithDescription("Per-source sync outcomes by change type"),
		metric.WithUnit("{source}"),
	)
	if err != nil {
		return nil, err
	}

	sourcesTotal, err := meter.Int64Gauge(
		"thv_docs_sources_total",
		metric.WithDescription("Number of sources with cached metadata"),
		metric.WithUnit("{source}"),
	)
	if err != nil {
		return nil, err
	}

	skippedTicks, err := meter.Int64Counter(
		"thv_docs_scheduler_skipped_ticks_total",
		metric.WithDescription("Scheduler ticks skipped because a sync was still running"),
		metric.WithUnit("{tick}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration:   syncDuration,
		sourceOutcomes: sourceOutcomes,
		sourcesTotal:   sourcesTotal,
		skippedTicks:   skippedTicks,
	}, nil
}

// RecordSyncDuration records the duration of a batch sync
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, duration time.Duration, force, success bool) {
	if m == nil || m.syncDuration == nil {
		return
	}

	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.Bool("force", force),
		attribute.Bool("success", success),
	))
}

// RecordSourceOutcome counts one per-source sync result.
// outcome is a change type ("created", "updated", "deleted"), "unchanged" or "failed".
func (m *SyncMetrics) RecordSourceOutcome(ctx context.Context, sourceID, outcome string) {
	if m == nil || m.sourceOutcomes == nil {
		return
	}

	m.sourceOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", sourceID),
		attribute.String("outcome", outcome),
	))
}

// RecordSourcesTotal records the number of sources currently tracked
func (m *SyncMetrics) RecordSourcesTotal(ctx context.Context, count int64) {
	if m == nil || m.sourcesTotal == nil {
		return
	}

	m.sourcesTotal.Record(ctx, count)
}

// RecordSkippedTick counts a scheduler tick skipped due to overlap
func (m *SyncMetrics) RecordSkippedTick(ctx context.Context) {
	if m == nil || m.skippedTicks == nil {
		return
	}

	m.skippedTicks.Add(ctx, 1)
}

// SearchMetrics holds the OpenTelemetry instruments for the query layer
type SearchMetrics struct {
	queries metric.Int64Counter
}

// NewSearchMetrics creates a new SearchMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSearchMetrics(provider metric.MeterProvider) (*SearchMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	queries, err := provider.Meter(SearchMetricsMeterName).Int64Counter(
		"thv_docs_search_queries_total",
		metric.WithDescription("Search queries by serving backend and cache outcome"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, err
	}

	return &SearchMetrics{queries: queries}, nil
}

// RecordQuery counts a served search query
func (m *SearchMetrics) RecordQuery(ctx context.Context, backend string, cacheHit bool) {
	if m == nil || m.queries == nil {
		return
	}

	m.queries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.Bool("cache_hit", cacheHit),
	))
}
