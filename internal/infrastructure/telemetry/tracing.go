package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the tracer the application services record spans under.
const TracerName = "storefleet-backend"

// Attribute keys for service spans. The HTTP and database keys live with
// the instruments in instruments.go; these cover the aggregation spans.
var (
	AttrPage          = attribute.Key("page")
	AttrPageSize      = attribute.Key("page_size")
	AttrStoresQueried = attribute.Key("stores_queried")
	AttrStoresFailed  = attribute.Key("stores_failed")
	AttrRowCount      = attribute.Key("row_count")
)

// StartSpan opens an internal span on the globally registered tracer. otelgin
// and the GORM plugins produce the HTTP and database spans; StartSpan covers
// the service operations between them. Pair it with EndSpan so failures
// always reach the span status.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan finishes span. A non-nil err is recorded on it first and flips the
// span status to error with the message preserved.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// AddSpanEvent annotates the span in ctx, if one is recording.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
