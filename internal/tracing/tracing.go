// Package tracing wires the Session Runner's OTEL spans to a real exporter.
// Without a configured collector endpoint, otel.Tracer calls throughout the
// codebase fall back to the no-op provider, so Init is strictly optional.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Init configures the global TracerProvider to batch-export spans to an OTLP
// HTTP collector at endpoint (host:port, no scheme). It returns a shutdown
// func that flushes pending spans; callers should defer it.
func Init(ctx context.Context, endpoint string) (shutdown func(context.Context) error, err error) {
	exp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: build otlp exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
