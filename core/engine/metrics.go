package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// startMetricsAndTrace begins the telemetry recording for an engine operation.
// It returns a new context, the trace span, and the start time.
func (e *Engine) startMetricsAndTrace(ctx context.Context, op string) (context.Context, trace.Span, time.Time) {
	startTime := time.Now()

	e.metrics.ActiveOperationsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("engine.service", e.serviceName),
		attribute.String("engine.operation", op),
	))

	ctx, span := e.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("engine.service", e.serviceName),
		attribute.String("engine.operation", op),
		attribute.String("engine.id", e.id),
	))
	return ctx, span, startTime
}

// endMetricsAndTrace completes the telemetry recording for an engine operation.
func (e *Engine) endMetricsAndTrace(ctx context.Context, span trace.Span, startTime time.Time, op string, statusCode otelcodes.Code) {
	latency := time.Since(startTime).Microseconds()

	if statusCode != otelcodes.Ok {
		span.SetStatus(otelcodes.Error, statusCode.String())
	} else {
		span.SetStatus(otelcodes.Ok, "Success")
	}
	span.End()

	e.metrics.ActiveOperationsCounter.Add(ctx, -1, metric.WithAttributes(
		attribute.String("engine.service", e.serviceName),
		attribute.String("engine.operation", op),
	))

	attrs := attribute.NewSet(
		attribute.String("engine.service", e.serviceName),
		attribute.String("engine.operation", op),
		attribute.String("engine.code", statusCode.String()),
	)
	e.metrics.OperationLatency.Record(ctx, latency, metric.WithAttributeSet(attrs))
	e.metrics.OperationsCounter.Add(ctx, 1, metric.WithAttributeSet(attrs))
}

// recordAccess records the index and heap cost of a query.
func (e *Engine) recordAccess(ctx context.Context, res QueryResult) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("index.nodes_accessed", res.Index.NodesAccessed),
		attribute.Int("heap.blocks_accessed", res.DataBlocksAccessed),
		attribute.Int("records", len(res.Records)),
	)
	e.metrics.IndexNodesHistogram.Record(ctx, int64(res.Index.NodesAccessed))
	e.metrics.DataBlocksHistogram.Record(ctx, int64(res.DataBlocksAccessed))
}
