// Package tracing starts an OpenTelemetry span around every invocation of a
// composed handler.
package tracing

import (
	"context"
	"fmt"

	lambdamiddlewareutils "github.com/niko-dunixi/lambdamiddleware-utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/niko-dunixi/lambdamiddleware-utils/tracing"

const (
	InvocationIDKey = attribute.Key("faas.invocation_id")
	FunctionNameKey = attribute.Key("faas.name")
)

type config struct {
	tracerProvider trace.TracerProvider
	attributes     []attribute.KeyValue
}

// Option configures TracingMiddleware.
type Option func(*config)

// WithTracerProvider sets the provider spans are created from. Defaults to
// the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		c.tracerProvider = tp
	}
}

// WithAttributes adds static attributes to every span.
func WithAttributes(attrs ...attribute.KeyValue) Option {
	return func(c *config) {
		c.attributes = append(c.attributes, attrs...)
	}
}

// Middleware that wraps the rest of the chain in a span named spanName. The
// span carries the invocation id and function name from the invocation
// context, and is marked as failed when the chain returns an error or
// panics. The error is returned untouched and a panic keeps unwinding.
func TracingMiddleware[E, R any](spanName string, opts ...Option) lambdamiddlewareutils.Middleware[E, R] {
	cfg := config{
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	tracer := cfg.tracerProvider.Tracer(instrumentationName)
	return func(ctx context.Context, event E, lc lambdamiddlewareutils.Context, next lambdamiddlewareutils.Handler[E, R]) (R, error) {
		attrs := append([]attribute.KeyValue{}, cfg.attributes...)
		if id := lambdamiddlewareutils.RequestID(lc); id != "" {
			attrs = append(attrs, InvocationIDKey.String(id))
		}
		if name := lambdamiddlewareutils.FunctionName(lc); name != "" {
			attrs = append(attrs, FunctionNameKey.String(name))
		}
		ctx, span := tracer.Start(ctx, spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()
		defer func() {
			if value := recover(); value != nil {
				span.SetStatus(codes.Error, fmt.Sprintf("panic: %v", value))
				panic(value)
			}
		}()
		result, err := next(ctx, event, lc)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return result, err
	}
}
