package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TraceCarrier travels inside a dispatch message so the worker's spans join
// the trace of whoever enqueued the job.
type TraceCarrier struct {
	TraceParent string `json:"trace_parent,omitempty"`
	TraceState  string `json:"trace_state,omitempty"`
}

func InjectTraceContext(ctx context.Context) TraceCarrier {
	m := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, m)

	return TraceCarrier{
		TraceParent: m.Get("traceparent"),
		TraceState:  m.Get("tracestate"),
	}
}

func ExtractTraceContext(ctx context.Context, carrier TraceCarrier) context.Context {
	if carrier.TraceParent == "" {
		return ctx
	}

	m := propagation.MapCarrier{"traceparent": carrier.TraceParent}
	if carrier.TraceState != "" {
		m["tracestate"] = carrier.TraceState
	}
	return propagation.TraceContext{}.Extract(ctx, m)
}

func StartAttemptSpan(ctx context.Context, videoID int64, attempt int) (context.Context, trace.Span) {
	ctx, span := StartSpan(ctx, "video.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	span.SetAttributes(
		attribute.Int64("video.id", videoID),
		attribute.Int("video.attempt", attempt),
	)
	return ctx, span
}

func StartStepSpan(ctx context.Context, step string) (context.Context, trace.Span) {
	ctx, span := StartSpan(ctx, "pipeline."+step)
	span.SetAttributes(attribute.String("pipeline.step", step))
	return ctx, span
}

func StartEnqueueSpan(ctx context.Context, videoID int64, attempt int) (context.Context, trace.Span) {
	ctx, span := StartSpan(ctx, "video.enqueue",
		trace.WithSpanKind(trace.SpanKindProducer),
	)
	span.SetAttributes(
		attribute.Int64("video.id", videoID),
		attribute.Int("video.attempt", attempt),
	)
	return ctx, span
}
