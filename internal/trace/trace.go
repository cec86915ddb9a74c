// Package trace sets up OpenTelemetry tracing for the record pipeline.
package trace

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name spans are recorded under.
const TracerName = "github.com/roach88/samplerec"

// Exporter names.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

var (
	mu       sync.RWMutex
	provider *sdktrace.TracerProvider
)

// Config selects the exporter and describes the service.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Exporter       string
	// Endpoint is the OTLP gRPC collector address.
	Endpoint string
	// SamplingRate is the fraction of root spans kept, 0 to 1.
	SamplingRate float64
	// Writer receives stdout exporter output. Nil means os.Stdout.
	Writer io.Writer
}

// DefaultConfig returns a config with tracing disabled.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "samplerec",
		ServiceVersion: "0.1.0",
		Exporter:       ExporterNone,
		Endpoint:       "localhost:4317",
		SamplingRate:   1.0,
	}
}

// Initialize installs the global tracer provider. It fails if one is
// already installed.
func Initialize(ctx context.Context, cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	if provider != nil {
		return fmt.Errorf("tracer provider already initialized")
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return err
	}

	res := resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	provider = sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.Info("tracing initialized", "exporter", cfg.Exporter)
	return nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterStdout:
		opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		if cfg.Writer != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.Writer))
		}
		exporter, err := stdouttrace.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		return exporter, nil
	case ExporterOTLP:
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
		exporter, err := otlptrace.New(ctx, client)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		return exporter, nil
	case ExporterNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported trace exporter %q", cfg.Exporter)
	}
}

// Shutdown flushes pending spans and removes the global provider.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	defer mu.Unlock()

	if provider == nil {
		return nil
	}
	err := provider.Shutdown(ctx)
	provider = nil
	if err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	return nil
}

// Tracer returns the tracer for a component. Before Initialize it is the
// global no-op tracer.
func Tracer(component string) trace.Tracer {
	mu.RLock()
	defer mu.RUnlock()

	if provider == nil {
		return otel.Tracer(TracerName + "/" + component)
	}
	return provider.Tracer(TracerName + "/" + component)
}

// RecordError marks span as failed with err.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// WithSpan runs fn inside a new span, recording its error.
func WithSpan(ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	defer span.End()

	if err := fn(ctx); err != nil {
		RecordError(span, err)
		return err
	}
	return nil
}

// TraceID returns the trace id of the span in ctx, or "".
func TraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
