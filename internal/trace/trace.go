package trace

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "pullback-trading-bot"

var (
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	enabled  bool
)

// Init sets up the stdout trace exporter. Tracing is on unless
// LOG_TRACING_ENABLED=false; LOG_TRACING_PRETTY=false switches the exporter
// to compact one-line JSON for log shippers.
func Init() error {
	enabled = os.Getenv("LOG_TRACING_ENABLED") != "false"
	if !enabled {
		return nil
	}

	var expOpts []stdouttrace.Option
	if os.Getenv("LOG_TRACING_PRETTY") != "false" {
		expOpts = append(expOpts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(expOpts...)
	if err != nil {
		return err
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return err
	}

	provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	tracer = otel.Tracer(serviceName)
	return nil
}

// Shutdown flushes pending spans. Safe to call when tracing never started.
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}

// StartSpan opens a span when tracing is on; otherwise it hands back the
// current span so callers never need to branch.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if !enabled || tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

func Enabled() bool { return enabled }

// GetTraceFields extracts the active trace and span IDs for log correlation.
func GetTraceFields(ctx context.Context) (traceID, spanID string, ok bool) {
	if !enabled {
		return "", "", false
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return "", "", false
	}
	return sc.TraceID().String(), sc.SpanID().String(), true
}
