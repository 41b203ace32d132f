package engine

import (
	"io/fs"

	"github.com/execconf/execconf/pkg/config"
	"github.com/execconf/execconf/pkg/telemetry"
)

// Option mutates Options before the Loader is created.
type Option func(*Options)

// NewLoader creates a Loader rooted at rootDir with the given options applied.
func NewLoader(rootDir string, opts ...Option) (*Loader, error) {
	o := Options{RootDir: rootDir}
	for _, opt := range opts {
		opt(&o)
	}
	return New(o)
}

// WithFS reads units from fsys instead of the root directory.
func WithFS(fsys fs.FS) Option {
	return func(o *Options) { o.FS = fsys }
}

// WithExtensions sets the extension allow-list.
func WithExtensions(exts ...string) Option {
	return func(o *Options) { o.Extensions = exts }
}

// WithDefaults sets the defaults source.
func WithDefaults(src DefaultsSource) Option {
	return func(o *Options) { o.Defaults = src }
}

// WithBuilder sets the builder hook.
func WithBuilder(b Builder) Option {
	return func(o *Options) { o.Builder = b }
}

// WithValidator sets the validator hook.
func WithValidator(v Validator) Option {
	return func(o *Options) { o.Validator = v }
}

// WithHelpers replaces the default directive registry.
func WithHelpers(r *Registry) Option {
	return func(o *Options) { o.Helpers = r }
}

// WithEvaluators replaces the default evaluator selection.
func WithEvaluators(e *config.Evaluators) Option {
	return func(o *Options) { o.Evaluators = e }
}

// WithTelemetry attaches a logger, metrics and tracer. Any of them may be nil.
func WithTelemetry(logger *telemetry.Logger, metrics *telemetry.Metrics, tracer *telemetry.Tracer) Option {
	return func(o *Options) {
		o.Logger = logger
		o.Metrics = metrics
		o.Tracer = tracer
	}
}

// WithEvents publishes session and unit lifecycle events to ep.
func WithEvents(ep *telemetry.EventPublisher) Option {
	return func(o *Options) { o.Events = ep }
}
