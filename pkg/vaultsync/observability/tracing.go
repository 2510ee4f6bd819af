package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the vaultsync tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("vaultsync")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartPassSpan starts a span for an entire reconciliation pass.
	StartPassSpan(ctx context.Context, passID string) (context.Context, trace.Span)

	// StartCallSpan starts a span for one wrapped remote call.
	// The call span should be a child of the pass span.
	StartCallSpan(ctx context.Context, operation, recordID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the
// provider before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartPassSpan starts a span for an entire reconciliation pass.
func (m *otelSpanManager) StartPassSpan(ctx context.Context, passID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "vaultsync.pass",
		trace.WithAttributes(
			attribute.String("pass.id", passID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartCallSpan starts a span for one wrapped remote call.
func (m *otelSpanManager) StartCallSpan(ctx context.Context, operation, recordID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("call.operation", operation),
	}
	if recordID != "" {
		attrs = append(attrs, attribute.String("record.id", recordID))
	}
	return tracer.Start(ctx, "vaultsync.remote."+operation,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
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

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
