package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer uses the global OTel tracer provider.
var tracer = otel.Tracer("flowcompose")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartRunSpan starts a span for an outermost invocation.
	StartRunSpan(ctx context.Context, container, runID string) (context.Context, trace.Span)

	// StartNodeSpan starts a span for a node invocation.
	// The node span is a child of whatever span ctx carries.
	StartNodeSpan(ctx context.Context, container, nodeID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) StartRunSpan(ctx context.Context, container, runID string) (context.Context, trace.Span) {
	return StartRunSpan(ctx, container, runID)
}

func (m *otelSpanManager) StartNodeSpan(ctx context.Context, container, nodeID string) (context.Context, trace.Span) {
	return StartNodeSpan(ctx, container, nodeID)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

// StartRunSpan starts a span for an outermost invocation.
// Uses the global OTel tracer.
func StartRunSpan(ctx context.Context, container, runID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "flowcompose.run",
		trace.WithAttributes(
			attribute.String("container", container),
			attribute.String("run.id", runID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartNodeSpan starts a span for a node invocation.
// Uses the global OTel tracer.
func StartNodeSpan(ctx context.Context, container, nodeID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "flowcompose.node."+nodeID,
		trace.WithAttributes(
			attribute.String("container", container),
			attribute.String("node.id", nodeID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
