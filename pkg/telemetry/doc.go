// Package telemetry provides observability instrumentation for execconf.
//
// The package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus) and lifecycle events for resolution
// sessions.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with OTLP or stdout exporters
//  3. Metrics Collection - Prometheus counters and histograms on a private registry
//  4. Event Publishing - Session and reload events fanned out to subscribers
//
// Every type is optional for its callers: a nil *Metrics records nothing, a
// nil *EventPublisher drops events and a nil *Tracer starts spans on the
// global provider.
//
// # Bundle
//
// A Telemetry value owns one instance of each pillar and shuts them down
// together:
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	session := tel.BeginSession(ctx, sessionID, "conf/app")
//	session.UnitEvaluated("conf/app.py", "starlark", elapsed, nil)
//	session.End(err, kind, keys)
//
// BeginSession opens the session span, tags the logger with the session id and
// records the session start; End records the outcome in all four pillars.
//
// # Structured Logging
//
// Create a logger and derive component loggers from it:
//
//	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
//	    Level:  "debug",
//	    Format: "console",
//	    Output: "stderr",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engineLog := logger.NewComponentLogger("engine")
//	engineLog.WithSession(id).WithUnit("conf/app.py").Debug("evaluated")
//
// Console output is colored only when the destination is a terminal.
//
// # Distributed Tracing
//
// Each session runs in a "session.resolve" span and each unit evaluation in a
// child "unit.evaluate" span:
//
//	tracer, err := telemetry.NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.StartSessionSpan(ctx, sessionID, "conf/app")
//	defer span.End()
//
// # Metrics
//
// Available metrics, prefixed by the configured namespace:
//
//   - sessions_started_total: sessions started
//   - sessions_completed_total{outcome}: sessions completed by outcome
//   - session_duration_seconds: session latency
//   - units_evaluated_total{evaluator}: unit evaluations by evaluator
//   - unit_evaluation_duration_seconds{evaluator}: unit evaluation latency
//   - edges_recorded_total{helper}: inclusion edges by merge helper
//   - errors_total{kind}: failed sessions by error kind
//
// Metrics are served over HTTP only when a listen address is configured. The
// bundle stops the server in Shutdown:
//
//	if _, err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Events
//
// Events are disabled by default. Subscribers receive them in publish order,
// synchronously or from one delivery goroutine when EnableAsync is set:
//
//	tel.Events.Subscribe(telemetry.JSONLinesSubscriber(os.Stderr, nil),
//	    telemetry.FilterByLevel(telemetry.EventLevelError))
//
// Shutdown delivers every queued event before it returns.
package telemetry
