// Package telemetry wires OpenTelemetry tracing and Prometheus metrics.
// Tracing is disabled by default and enabled with --otel.
package telemetry

import (
	"context"
	"errors"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
)

// Protocol constants for OTLP exporters.
const (
	ProtocolHTTP = "otlphttp"
	ProtocolGRPC = "otlpgrpc"
)

// TracerName is the instrumentation scope for egresswatch spans.
const TracerName = "egresswatch"

// TraceConfig holds tracing initialization options.
type TraceConfig struct {
	Enabled        bool
	Endpoint       string // host:port or URL; falls back to OTEL_EXPORTER_OTLP_ENDPOINT
	Protocol       string
	Insecure       bool
	SampleRatio    float64
	ServiceVersion string
}

// DefaultTraceConfig returns a config with tracing disabled.
func DefaultTraceConfig() TraceConfig {
	return TraceConfig{Protocol: ProtocolHTTP, SampleRatio: 1.0}
}

// Validate checks the configuration when tracing is enabled.
func (c TraceConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.Protocol {
	case ProtocolHTTP, ProtocolGRPC:
	default:
		return errors.New("telemetry: protocol must be 'otlphttp' or 'otlpgrpc'")
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return errors.New("telemetry: sample ratio must be between 0 and 1")
	}
	return nil
}

// Handle wraps a tracer and its shutdown.
type Handle struct {
	Tracer   trace.Tracer
	Shutdown func(context.Context) error
}

// InitTracing builds the tracer provider. A disabled config yields a no-op
// tracer so callers never nil-check.
func InitTracing(ctx context.Context, cfg TraceConfig) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return NewHandle(noop.NewTracerProvider()), nil
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}

	res, err := serviceResource(cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}

	exporter, err := newExporter(ctx, cfg, endpoint)
	if err != nil {
		return nil, err
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRatio >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRatio <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &Handle{Tracer: tp.Tracer(TracerName), Shutdown: tp.Shutdown}, nil
}

// serviceResource merges the service attributes into the SDK default
// resource. Merge fails on differing schema URLs, so the service attributes
// stay schemaless.
func serviceResource(version string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(TracerName),
			semconv.ServiceVersion(version),
		),
	)
}

func newExporter(ctx context.Context, cfg TraceConfig, endpoint string) (sdktrace.SpanExporter, error) {
	isURL := strings.Contains(endpoint, "://")
	switch cfg.Protocol {
	case ProtocolGRPC:
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithDialOption(grpc.WithUserAgent(TracerName + "/" + cfg.ServiceVersion)),
		}
		switch {
		case isURL:
			opts = append(opts, otlptracegrpc.WithEndpointURL(endpoint))
		case endpoint != "":
			opts = append(opts, otlptracegrpc.WithEndpoint(endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		var opts []otlptracehttp.Option
		switch {
		case isURL:
			opts = append(opts, otlptracehttp.WithEndpointURL(endpoint))
		case endpoint != "":
			opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	}
}

// NewHandle wraps an existing provider. Used by tests with a span recorder.
func NewHandle(tp trace.TracerProvider) *Handle {
	return &Handle{
		Tracer:   tp.Tracer(TracerName),
		Shutdown: func(context.Context) error { return nil },
	}
}
