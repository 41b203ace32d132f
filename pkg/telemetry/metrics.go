package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for resolution sessions.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	config MetricsConfig

	// Session metrics
	sessionsStarted   prometheus.Counter
	sessionsCompleted *prometheus.CounterVec
	sessionDuration   prometheus.Histogram

	// Unit metrics
	unitsEvaluated *prometheus.CounterVec
	unitDuration   *prometheus.HistogramVec
	edgesRecorded  *prometheus.CounterVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		sessionsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_started_total",
				Help:      "Total number of resolution sessions started",
			},
		),
		sessionsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_completed_total",
				Help:      "Total number of resolution sessions completed, by outcome",
			},
			[]string{"outcome"},
		),
		sessionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "Duration of resolution sessions in seconds",
				Buckets:   buckets,
			},
		),
		unitsEvaluated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "units_evaluated_total",
				Help:      "Total number of config units evaluated, by evaluator",
			},
			[]string{"evaluator"},
		),
		unitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "unit_evaluation_duration_seconds",
				Help:      "Duration of single unit evaluations in seconds",
				Buckets:   buckets,
			},
			[]string{"evaluator"},
		),
		edgesRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "edges_recorded_total",
				Help:      "Total number of inclusion edges recorded, by merge helper",
			},
			[]string{"helper"},
		),
		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of failed sessions, by error kind",
			},
			[]string{"kind"},
		),
	}

	collectors := []prometheus.Collector{
		m.sessionsStarted,
		m.sessionsCompleted,
		m.sessionDuration,
		m.unitsEvaluated,
		m.unitDuration,
		m.edgesRecorded,
		m.errorsByKind,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return m, nil
}

// RecordSessionStarted records the start of a session.
func (m *Metrics) RecordSessionStarted() {
	if m == nil || m.sessionsStarted == nil {
		return
	}
	m.sessionsStarted.Inc()
}

// RecordSessionCompleted records the end of a session with its outcome.
func (m *Metrics) RecordSessionCompleted(outcome string, duration time.Duration) {
	if m == nil || m.sessionsCompleted == nil {
		return
	}
	m.sessionsCompleted.WithLabelValues(outcome).Inc()
	m.sessionDuration.Observe(duration.Seconds())
}

// RecordUnitEvaluated records one unit evaluation.
func (m *Metrics) RecordUnitEvaluated(evaluator string, duration time.Duration) {
	if m == nil || m.unitsEvaluated == nil {
		return
	}
	m.unitsEvaluated.WithLabelValues(evaluator).Inc()
	m.unitDuration.WithLabelValues(evaluator).Observe(duration.Seconds())
}

// RecordEdge records one inclusion edge.
func (m *Metrics) RecordEdge(helper string) {
	if m == nil || m.edgesRecorded == nil {
		return
	}
	m.edgesRecorded.WithLabelValues(helper).Inc()
}

// RecordError records a failed session by error kind.
func (m *Metrics) RecordError(kind string) {
	if m == nil || m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// Registry returns the registry backing the metrics, or nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server exposing metrics and returns it so
// the caller can shut it down.
func (m *Metrics) StartMetricsServer(logger *Logger) (*http.Server, error) {
	if m == nil || !m.config.Enabled || m.config.ListenAddress == "" {
		return nil, nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("metrics server stopped")
		}
	}()

	return server, nil
}
