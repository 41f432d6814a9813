package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

var tracingEnabled atomic.Bool

// TracingConfig selects the OTLP exporter. An empty Endpoint disables tracing.
type TracingConfig struct {
	Endpoint string
	Insecure bool
	// SampleRatio is the fraction of root spans kept; children follow their parent.
	SampleRatio float64
}

// TracingConfigFromEnv reads OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
// and OTEL_TRACES_SAMPLER_ARG.
func TracingConfigFromEnv() TracingConfig {
	cfg := TracingConfig{Endpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), SampleRatio: 1}
	if v, err := strconv.ParseBool(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); err == nil {
		cfg.Insecure = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("OTEL_TRACES_SAMPLER_ARG"), 64); err == nil && v >= 0 && v <= 1 {
		cfg.SampleRatio = v
	}
	return cfg
}

// InitTracing installs a global tracer provider exporting to cfg.Endpoint and
// returns its shutdown func. Without an endpoint spans stay no-ops.
func InitTracing(ctx context.Context, cfg TracingConfig, service, version string) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		slog.Info("tracing disabled", slog.String("component", "telemetry"))
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(service),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, fmt.Errorf("trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	tracingEnabled.Store(true)
	slog.Info("tracing enabled", slog.String("endpoint", cfg.Endpoint), slog.Float64("sample_ratio", cfg.SampleRatio), slog.String("component", "telemetry"))

	return func(ctx context.Context) error {
		tracingEnabled.Store(false)
		return tp.Shutdown(ctx)
	}, nil
}

// IsTracingEnabled reports whether spans are exported.
func IsTracingEnabled() bool { return tracingEnabled.Load() }

// StartSpan starts a span tagged with the correlation id carried by ctx.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if corr := GetCorrelation(ctx); corr != "" {
		attrs = append(attrs, attribute.String("correlation_id", corr))
	}
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError marks span failed with err. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks span OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// MatchIDAttr tags a span with a match id.
func MatchIDAttr(id int64) attribute.KeyValue { return attribute.Int64("dota.match_id", id) }

// SteamIDAttr tags a span with a Steam32 account id.
func SteamIDAttr(id string) attribute.KeyValue { return attribute.String("dota.steam_id", id) }

// HTTPMethodAttr tags a span with the HTTP request method.
func HTTPMethodAttr(method string) attribute.KeyValue { return semconv.HTTPMethod(method) }

// HTTPRouteAttr tags a span with the matched route.
func HTTPRouteAttr(route string) attribute.KeyValue { return semconv.HTTPRoute(route) }

// SetSpanHTTPStatus records the response status code and marks 5xx responses as errors.
func SetSpanHTTPStatus(span trace.Span, status int) {
	span.SetAttributes(semconv.HTTPStatusCode(status))
	if status >= 500 {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
	}
}
