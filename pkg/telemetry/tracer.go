package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const instrumentationName = "github.com/execconf/execconf"

// Span names.
const (
	SpanSession = "session.resolve"
	SpanUnit    = "unit.evaluate"
	EventEdge   = "include.edge"
)

// Attribute keys set on session and unit spans.
var (
	AttrSessionID = attribute.Key("session.id")
	AttrUnitRef   = attribute.Key("unit.ref")
	AttrUnitPath  = attribute.Key("unit.path")
	AttrEvaluator = attribute.Key("unit.evaluator")
	AttrEdgeFrom  = attribute.Key("edge.parent")
	AttrEdgeTo    = attribute.Key("edge.target")
	AttrHelper    = attribute.Key("edge.helper")
	AttrErrorKind = attribute.Key("error.kind")
)

// Tracer starts the session and unit spans of the engine.
// A nil *Tracer uses the global tracer provider.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer builds a tracer from cfg and installs it as the global provider
// when tracing is enabled.
func NewTracer(cfg TracingConfig, serviceName, serviceVersion string) (*Tracer, error) {
	if !cfg.Enabled {
		return &Tracer{tracer: otel.Tracer(serviceName)}, nil
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(serviceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
	}
	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithExportTimeout(cfg.ExportTimeout)))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{provider: provider, tracer: provider.Tracer(serviceName)}, nil
}

// newExporter returns nil for the "none" exporter: spans are sampled but
// never leave the process.
func newExporter(cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "otlp":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithDialOption(grpc.WithUserAgent("execconf")),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		if cfg.ExportTimeout > 0 {
			opts = append(opts, otlptracegrpc.WithTimeout(cfg.ExportTimeout))
		}
		return otlptracegrpc.New(context.Background(), opts...)
	case "stdout":
		// stdout carries rendered configuration.
		return stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}
}

func (t *Tracer) otelTracer() trace.Tracer {
	if t == nil || t.tracer == nil {
		return otel.Tracer(instrumentationName)
	}
	return t.tracer
}

// StartSessionSpan starts the root span of one resolution session.
func (t *Tracer) StartSessionSpan(ctx context.Context, sessionID, ref string) (context.Context, trace.Span) {
	return t.otelTracer().Start(ctx, SpanSession, trace.WithAttributes(
		AttrSessionID.String(sessionID),
		AttrUnitRef.String(ref),
	))
}

// StartUnitSpan starts a span for one unit evaluation.
func (t *Tracer) StartUnitSpan(ctx context.Context, path, evaluator string) (context.Context, trace.Span) {
	return t.otelTracer().Start(ctx, SpanUnit, trace.WithAttributes(
		AttrUnitPath.String(path),
		AttrEvaluator.String(evaluator),
	))
}

// RecordEdge adds an inclusion edge event to the span active in ctx.
func RecordEdge(ctx context.Context, parent, target, helper string) {
	trace.SpanFromContext(ctx).AddEvent(EventEdge, trace.WithAttributes(
		AttrEdgeFrom.String(parent),
		AttrEdgeTo.String(target),
		AttrHelper.String(helper),
	))
}

// RecordError marks span as failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordSuccess marks span as successful.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// EndSession sets the final status of a session span, tagging failures with
// their error kind.
func EndSession(span trace.Span, err error, kind string) {
	if err != nil {
		span.SetAttributes(AttrErrorKind.String(kind))
		RecordError(span, err)
	} else {
		RecordSuccess(span)
	}
	span.End()
}

// Shutdown flushes pending spans and stops the provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// ForceFlush exports all pending spans.
func (t *Tracer) ForceFlush(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.ForceFlush(ctx)
}

// TraceID returns the trace id of the span in ctx, or "".
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// SpanID returns the span id of the span in ctx, or "".
func SpanID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.SpanID().String()
}
