package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// StartGatewaySpan opens a client span around a call to an external gateway
// (LiveKit, Twilio). The returned func ends the span and records err.
func StartGatewaySpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	tracer := otel.Tracer(tracerName)

	ctx, span := tracer.Start(ctx, service+"."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs,
			semconv.PeerServiceKey.String(service),
			attribute.String("gateway.operation", operation),
		)...),
	)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
