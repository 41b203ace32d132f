package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles the logger, tracer, metrics and event publisher of one
// process. Every component except Logger may be nil.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config

	server *http.Server
}

type telemetryContextKey struct{}

// NewTelemetry validates cfg and builds every component from it.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	return NewTelemetryWithLogger(cfg, nil)
}

// NewTelemetryWithLogger is NewTelemetry with an existing logger. A nil logger
// is built from cfg.Logging.
func NewTelemetryWithLogger(cfg *Config, logger *Logger) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		var err error
		if logger, err = NewLogger(cfg.Logging); err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	var tracer *Tracer
	if cfg.Tracing.Enabled {
		if tracer, err = NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion); err != nil {
			return nil, fmt.Errorf("failed to create tracer: %w", err)
		}
	}

	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, fmt.Errorf("failed to create event publisher: %w", err)
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext stores t and its logger in ctx.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.logger().WithContext(ctx)
}

// FromTelemetryContext returns the bundle stored in ctx, or nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

func (t *Telemetry) logger() *Logger {
	if t == nil || t.Logger == nil {
		return NewNopLogger()
	}
	return t.Logger
}

// StartMetricsServer serves metrics when a listen address is configured. The
// server is stopped by Shutdown. It reports whether a server was started.
func (t *Telemetry) StartMetricsServer() (bool, error) {
	if t == nil || t.server != nil {
		return false, nil
	}
	srv, err := t.Metrics.StartMetricsServer(t.logger())
	if err != nil || srv == nil {
		return false, err
	}
	t.server = srv
	return true, nil
}

// Flush exports pending spans.
func (t *Telemetry) Flush(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.Tracer.ForceFlush(ctx)
}

// Shutdown drains events, stops the metrics server and flushes the tracer.
// Every component is shut down even when an earlier one fails.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if err := t.Events.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if t.server != nil {
		if err := t.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
		t.server = nil
	}
	if err := t.Tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// Session instruments one resolution session: its span, a logger tagged with
// the session id, and the metrics and events recorded at both ends.
type Session struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	ID     string
	Ref    string

	tel   *Telemetry
	timer *Timer
}

// BeginSession starts the session span and records the session start.
func (t *Telemetry) BeginSession(ctx context.Context, id, ref string) *Session {
	if t == nil {
		t = &Telemetry{}
	}
	ctx, span := t.Tracer.StartSessionSpan(ctx, id, ref)

	logger := t.logger().WithSession(id)
	if sc := span.SpanContext(); sc.IsValid() {
		logger = logger.WithField("trace_id", sc.TraceID().String())
	}

	t.Metrics.RecordSessionStarted()
	if err := t.Events.PublishSessionStarted(id, ref); err != nil {
		logger.WithError(err).Warn("failed to publish event")
	}

	return &Session{
		Ctx:    logger.WithContext(ctx),
		Span:   span,
		Logger: logger,
		ID:     id,
		Ref:    ref,
		tel:    t,
		timer:  NewTimer(),
	}
}

// UnitEvaluated records one unit evaluation of the session.
func (s *Session) UnitEvaluated(path, evaluator string, duration time.Duration, err error) {
	s.tel.Metrics.RecordUnitEvaluated(evaluator, duration)
	if perr := s.tel.Events.PublishUnitEvaluated(s.ID, path, evaluator, duration, err); perr != nil {
		s.Logger.WithError(perr).Warn("failed to publish event")
	}
}

// End closes the session. A failed session is recorded with its error kind;
// keys is the size of a successful result.
func (s *Session) End(err error, kind string, keys int) {
	duration := s.timer.Duration()
	outcome := "success"
	var perr error
	if err != nil {
		outcome = "failure"
		s.tel.Metrics.RecordError(kind)
		s.Logger.WithError(err).Debug("session failed")
		perr = s.tel.Events.PublishSessionFailed(s.ID, s.Ref, kind, err)
	} else {
		perr = s.tel.Events.PublishSessionCompleted(s.ID, s.Ref, keys, duration)
	}
	if perr != nil {
		s.Logger.WithError(perr).Warn("failed to publish event")
	}
	EndSession(s.Span, err, kind)
	s.tel.Metrics.RecordSessionCompleted(outcome, duration)
}
