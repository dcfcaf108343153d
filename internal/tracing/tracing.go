// Package tracing wires OpenTelemetry spans around protocol round trips.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/rmacdonaldsmith/seqbroker"

// Setup installs a global tracer provider exporting to stdout when enable is
// true. The returned shutdown function flushes pending spans and should be
// deferred. With enable false spans are recorded by the no-op provider.
func Setup(enable bool) (func(context.Context) error, error) {
	if !enable {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// StartSpan starts a span on the global tracer provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// Topic and Sequence are the attributes every protocol span carries.
func Topic(topic string) attribute.KeyValue { return attribute.String("seqbroker.topic", topic) }

func Sequence(seq uint32) attribute.KeyValue {
	return attribute.Int64("seqbroker.sequence", int64(seq))
}

// Outcome records how a round trip ended ("acked", "timeout", "recovered", "lost").
func Outcome(span trace.Span, outcome string) {
	span.SetAttributes(attribute.String("seqbroker.outcome", outcome))
}
