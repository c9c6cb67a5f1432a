package detector

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("fellegiholt.detector")

// startLocateSpan creates a span for one row solve.
func startLocateSpan(ctx context.Context, fields int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Detector.Locate",
		trace.WithAttributes(
			attribute.Int("row.fields", fields),
		),
	)
}

// setLocateSpanResult sets the result attributes on a row span.
func setLocateSpanResult(span trace.Span, res RowResult, err error) {
	span.SetAttributes(
		attribute.String("solve.status", res.Status.String()),
		attribute.Int("solve.nodes", res.Nodes),
		attribute.Int("row.flagged", len(res.Flagged())),
		attribute.Int("row.violated", len(res.Violated)),
		attribute.Bool("row.consistent", res.Consistent),
		attribute.Bool("solve.degraded", res.Degraded),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
