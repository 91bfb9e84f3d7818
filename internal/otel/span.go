// Package otel holds the span helpers and attribute keys shared by the sync
// engine, the query layer, and the HTTP API.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on docs cache spans
const (
	AttrSyncID        = attribute.Key("docs.sync.id")
	AttrSyncForce     = attribute.Key("docs.sync.force")
	AttrSyncSkipped   = attribute.Key("docs.sync.skipped")
	AttrSourceID      = attribute.Key("docs.source.id")
	AttrSourceCount   = attribute.Key("docs.source.count")
	AttrChangeCount   = attribute.Key("docs.change.count")
	AttrFailureCount  = attribute.Key("docs.failure.count")
	AttrSearchBackend = attribute.Key("docs.search.backend")
	AttrCacheHit      = attribute.Key("docs.search.cache_hit")
	AttrResultCount   = attribute.Key("result.count")
)

// StartSpan starts a span on tracer, or returns the span already in ctx when
// tracer is nil
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError marks span as failed. The status description stays generic;
// the error itself is attached as a span event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
