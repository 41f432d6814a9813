// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PollCycles         prometheus.Counter
	NewMatches         prometheus.Counter
	CommitFailures     prometheus.Counter
	DeliveryFailures   prometheus.Counter
	ParseRequests      prometheus.Counter
	UpstreamErrors     *prometheus.CounterVec // by op
	ReportsDelivered   *prometheus.CounterVec // by kind
	CommandsHandled    *prometheus.CounterVec // by command
	AICompletionErrors prometheus.Counter

	// Histograms (seconds)
	CycleDuration    prometheus.Observer
	UpstreamDuration *prometheus.HistogramVec

	// Gauges
	RegisteredUsers  prometheus.Gauge
	LastCycleSuccess prometheus.Gauge // unix seconds
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "tracker_poll_cycles_total", Help: "Number of completed poll cycles"})
		NewMatches = promauto.NewCounter(prometheus.CounterOpts{Name: "tracker_new_matches_total", Help: "Number of (user, match) observations committed as new"})
		CommitFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "tracker_commit_failures_total", Help: "Number of new observations dropped because the registry write failed"})
		DeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "tracker_delivery_failures_total", Help: "Number of reports or notices that failed to render or deliver"})
		ParseRequests = promauto.NewCounter(prometheus.CounterOpts{Name: "tracker_parse_requests_total", Help: "Number of parse requests sent for unparsed matches"})
		UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "opendota_errors_total", Help: "Failed OpenDota calls by operation"}, []string{"op"})
		ReportsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{Name: "tracker_reports_delivered_total", Help: "Reports delivered by kind"}, []string{"kind"})
		CommandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bot_commands_total", Help: "Chat commands handled by command name"}, []string{"command"})
		AICompletionErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "ai_completion_errors_total", Help: "Failed text-generation calls"})
		CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "tracker_cycle_duration_seconds", Help: "Poll cycle duration seconds", Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300}})
		UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "opendota_request_duration_seconds", Help: "OpenDota request duration seconds by operation", Buckets: prometheus.DefBuckets}, []string{"op"})
		RegisteredUsers = promauto.NewGauge(prometheus.GaugeOpts{Name: "registry_users", Help: "Current number of registered users"})
		LastCycleSuccess = promauto.NewGauge(prometheus.GaugeOpts{Name: "tracker_last_cycle_timestamp_seconds", Help: "Unix time the last poll cycle finished"})
	})
}

// IncUpstreamError counts a failed OpenDota call for op.
func IncUpstreamError(op string) {
	if UpstreamErrors != nil {
		UpstreamErrors.WithLabelValues(op).Inc()
	}
}

// ObserveUpstream records the duration of an OpenDota call for op.
func ObserveUpstream(op string, d time.Duration) {
	if UpstreamDuration != nil {
		UpstreamDuration.WithLabelValues(op).Observe(d.Seconds())
	}
}

// IncReport counts a delivered report of kind (individual, combined, summary, notice).
func IncReport(kind string) {
	if ReportsDelivered != nil {
		ReportsDelivered.WithLabelValues(kind).Inc()
	}
}

// IncCommand counts a handled chat command.
func IncCommand(name string) {
	if CommandsHandled != nil {
		CommandsHandled.WithLabelValues(name).Inc()
	}
}

// Inc increments c if it has been registered.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// SetRegisteredUsers records the registry size.
func SetRegisteredUsers(n int) {
	if RegisteredUsers != nil {
		RegisteredUsers.Set(float64(n))
	}
}

// MarkCycleDone records the completion time of a poll cycle.
func MarkCycleDone(t time.Time) {
	if LastCycleSuccess != nil {
		LastCycleSuccess.Set(float64(t.Unix()))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
