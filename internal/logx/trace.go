package logx

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// SpanFields returns trace_id and span_id of the span in ctx, or nothing
// when ctx carries no sampled span.
func SpanFields(ctx context.Context) []Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []Field{
		String("trace_id", sc.TraceID().String()),
		String("span_id", sc.SpanID().String()),
	}
}
