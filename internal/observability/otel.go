// Package observability wires Prometheus metrics and in-process
// OpenTelemetry tracing for the daemon. Adapted from the
// teacher's pkg/engine/metrics.go (promauto counters/gauges) and from
// its internal/observability OTLP bootstrap, stripped of the network
// exporters: spec's Non-goals exclude a networked transport, so the
// tracer provider here keeps spans in-process (useful for local
// debugging and for attaching a stdouttrace exporter during
// development) instead of shipping them to a collector.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InitTracing installs an in-process TracerProvider whose resource
// carries serviceName as the service name. It returns a shutdown func
// draining any buffered spans; callers should defer it.
func InitTracing(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Tracer is the package-level tracer named "cistern". No package in this
// module starts spans with it; the dispatcher records only Prometheus
// metrics.
var Tracer = otel.Tracer("cistern")
