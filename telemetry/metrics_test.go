package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsInitialized(t *testing.T) {
	Init()
	Init() // idempotent

	if PollCycles == nil || NewMatches == nil || DeliveryFailures == nil {
		t.Error("counters not initialized")
	}
	if CycleDuration == nil || UpstreamDuration == nil {
		t.Error("histograms not initialized")
	}
	if RegisteredUsers == nil {
		t.Error("gauge not initialized")
	}
}

func TestLabelledHelpers(t *testing.T) {
	Init()

	IncUpstreamError("recent_matches")
	ObserveUpstream("match", 150*time.Millisecond)
	IncReport("combined")
	IncCommand("register")
	Inc(ParseRequests)
	Inc(nil)
	SetRegisteredUsers(3)
	MarkCycleDone(time.Unix(1700000000, 0))

	metric := &dto.Metric{}
	if err := RegisteredUsers.Write(metric); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if got := metric.GetGauge().GetValue(); got != 3 {
		t.Errorf("registry_users = %v, want 3", got)
	}

	metric = &dto.Metric{}
	if err := ReportsDelivered.WithLabelValues("combined").Write(metric); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	if metric.GetCounter().GetValue() < 1 {
		t.Error("combined report counter not incremented")
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})

	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram == nil || metric.Histogram.GetSampleCount() == 0 {
		t.Error("TimeFunc did not record observation in histogram")
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if GetCorrelation(ctx) != "" {
		t.Fatal("empty context should have no correlation id")
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation = %q", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}

func TestStartSpanWithoutProvider(t *testing.T) {
	ctx, span := StartSpan(WithCorrelation(context.Background(), "x"), "test", "op", MatchIDAttr(1), SteamIDAttr("12345678"))
	defer span.End()
	if ctx == nil {
		t.Fatal("nil context")
	}
	SetSpanHTTPStatus(span, 503)
	RecordError(span, nil)
	if IsTracingEnabled() {
		t.Error("tracing should be disabled without an exporter endpoint")
	}
}

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")
	cfg := TracingConfigFromEnv()
	if cfg.Endpoint != "collector:4317" || !cfg.Insecure || cfg.SampleRatio != 0.25 {
		t.Errorf("cfg = %+v", cfg)
	}

	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "7")
	if got := TracingConfigFromEnv().SampleRatio; got != 1 {
		t.Errorf("out of range ratio = %v, want default 1", got)
	}
}

func TestInitTracingWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, "svc", "test")
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if IsTracingEnabled() {
		t.Error("tracing enabled without an endpoint")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
