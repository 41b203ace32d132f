package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/execconf/execconf/pkg/config"
	"github.com/execconf/execconf/pkg/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// DefaultExtensions is used when Options.Extensions is empty.
var DefaultExtensions = []string{"py"}

// StdinName is the base name of a root unit supplied as bytes.
const StdinName = "<stdin>"

// Builder transforms the merged mapping once per session, before validation.
type Builder interface {
	Build(ctx context.Context, data map[string]any) (map[string]any, error)
}

// BuilderFunc adapts a function to the Builder interface.
type BuilderFunc func(ctx context.Context, data map[string]any) (map[string]any, error)

// Build implements Builder.
func (f BuilderFunc) Build(ctx context.Context, data map[string]any) (map[string]any, error) {
	return f(ctx, data)
}

// Validator checks and converts the built mapping once per session.
type Validator interface {
	Validate(data map[string]any) (map[string]any, error)
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(data map[string]any) (map[string]any, error)

// Validate implements Validator.
func (f ValidatorFunc) Validate(data map[string]any) (map[string]any, error) {
	return f(data)
}

// Options configures a Loader.
type Options struct {
	// RootDir is the directory every unit is read from. Ignored when FS is set.
	RootDir string `validate:"required_without=FS,omitempty,dir"`

	// FS overrides RootDir with an arbitrary root filesystem.
	FS fs.FS

	// Extensions is the extension allow-list, in lookup priority order.
	Extensions []string `validate:"omitempty,dive,required,excludesall=/"`

	// Defaults is folded in as the first edge of every session.
	Defaults DefaultsSource

	// Builder runs once after the merge.
	Builder Builder

	// Validator runs once after the builder and the extra overlay.
	Validator Validator

	// Helpers are the directives available to script units.
	Helpers *Registry

	// Evaluators select how units are evaluated by extension.
	Evaluators *config.Evaluators

	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer
	Events  *telemetry.EventPublisher
}

// Loader resolves root units into immutable configurations. Each Load call is
// an independent session: caches, the resolving stack and the inclusion tree
// are created at session start and discarded at session end.
type Loader struct {
	opts Options
	root fs.FS
	tel  *telemetry.Telemetry
}

// New validates opts and creates a Loader.
func New(opts Options) (*Loader, error) {
	if err := validator.New().Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid loader options: %w", err)
	}

	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	exts := make([]string, len(opts.Extensions))
	for i, ext := range opts.Extensions {
		exts[i] = strings.TrimPrefix(ext, ".")
	}
	opts.Extensions = exts
	if opts.Helpers == nil {
		opts.Helpers = DefaultRegistry()
	}
	if opts.Evaluators == nil {
		opts.Evaluators = config.DefaultEvaluators()
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NewNopLogger()
	}

	root := opts.FS
	if root == nil {
		root = os.DirFS(opts.RootDir)
	}

	return &Loader{
		opts: opts,
		root: root,
		tel: &telemetry.Telemetry{
			Logger:  opts.Logger.NewComponentLogger("engine"),
			Tracer:  opts.Tracer,
			Metrics: opts.Metrics,
			Events:  opts.Events,
		},
	}, nil
}

// Extensions returns the extension allow-list.
func (l *Loader) Extensions() []string {
	out := make([]string, len(l.opts.Extensions))
	copy(out, l.opts.Extensions)
	return out
}

// Load runs one session for the unit referenced by ref. extra, when non-nil,
// is applied as a final shallow update after the builder.
func (l *Loader) Load(ctx context.Context, ref string, extra map[string]any) (*config.Config, error) {
	return l.run(ctx, ref, extra, func(s *session) (string, error) {
		return s.resolver.Resolve(ref, "")
	})
}

// LoadSource runs one session for a root unit given as bytes. The unit is
// evaluated as if it were a file named "<stdin>.<first extension>" in the
// root directory.
func (l *Loader) LoadSource(ctx context.Context, src []byte, extra map[string]any) (*config.Config, error) {
	name := StdinName + "." + l.opts.Extensions[0]
	return l.run(ctx, name, extra, func(s *session) (string, error) {
		s.tree.sources[name] = src
		return name, nil
	})
}

// session holds the state of one resolution pass.
type session struct {
	id       string
	resolver *PathResolver
	tree     *treeBuilder
	scope    *telemetry.Session
}

func (l *Loader) newSession(ctx context.Context, ref string) *session {
	id := uuid.NewString()
	scope := l.tel.BeginSession(ctx, id, ref)
	resolver := NewPathResolver(l.root, l.opts.Extensions)
	return &session{
		id:       id,
		resolver: resolver,
		tree:     newTreeBuilder(resolver, l.opts.Evaluators, l.opts.Helpers, scope, l.opts.Metrics, l.opts.Tracer),
		scope:    scope,
	}
}

func (l *Loader) run(ctx context.Context, ref string, extra map[string]any,
	rootIdentityFn func(*session) (string, error)) (cfg *config.Config, err error) {
	s := l.newSession(ctx, ref)
	ctx = s.scope.Ctx

	defer func() {
		kind, keys := "", 0
		if err != nil {
			kind = string(errorKind(err))
		} else {
			keys = cfg.Len()
		}
		s.scope.End(err, kind, keys)
	}()

	if err := l.loadDefaults(ctx, s); err != nil {
		return nil, err
	}

	identity, err := rootIdentityFn(s)
	if err != nil {
		return nil, err
	}
	if err := s.tree.handleResolved(ctx, s.tree.root, identity, dummyHelper{}, Args{}); err != nil {
		return nil, err
	}

	data, err := s.tree.root.Effective()
	if err != nil {
		return nil, err
	}

	data, err = l.finish(ctx, data, extra)
	if err != nil {
		return nil, err
	}

	s.scope.Logger.WithUnit(identity).Infof("resolved %d keys from %d units", len(data), len(s.tree.branches)-1)
	return config.NewConfig(data), nil
}

// finish applies the builder, the extra overlay, the validator and the
// string replacement, in that order.
func (l *Loader) finish(ctx context.Context, data map[string]any, extra map[string]any) (map[string]any, error) {
	var err error
	if l.opts.Builder != nil {
		data, err = l.opts.Builder.Build(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("builder failed: %w", err)
		}
		if data == nil {
			return nil, newError(ErrorKindTypeMismatch, nil, "builder returned no mapping")
		}
	}

	if len(extra) > 0 {
		normalized, nerr := config.Normalize(extra)
		if nerr != nil {
			return nil, newError(ErrorKindTypeMismatch, nerr, "unsupported extra data")
		}
		data = overwrite(data, normalized.(map[string]any))
	}

	if l.opts.Validator != nil {
		data, err = l.opts.Validator.Validate(data)
		if err != nil {
			return nil, err
		}
		if data == nil {
			return nil, newError(ErrorKindTypeMismatch, nil, "validator returned no mapping")
		}
	}

	data, err = config.ApplyReplacement(data)
	if err != nil {
		return nil, fmt.Errorf("replacement failed: %w", err)
	}

	if _, err := config.Normalize(data); err != nil {
		return nil, newError(ErrorKindTypeMismatch, err, "result is not plain data")
	}
	return data, nil
}

// loadDefaults resolves the defaults source once and inserts it as edge zero.
func (l *Loader) loadDefaults(ctx context.Context, s *session) error {
	if l.opts.Defaults == nil {
		return nil
	}

	var data map[string]any
	switch src := l.opts.Defaults.(type) {
	case DefaultsMap:
		data = config.FilterBindings(src.Data)
	case *DefaultsMap:
		data = config.FilterBindings(src.Data)
	case DefaultsFile:
		d, err := l.loadDefaultsFile(ctx, s, src.Path)
		if err != nil {
			return err
		}
		data = d
	case *DefaultsFile:
		d, err := l.loadDefaultsFile(ctx, s, src.Path)
		if err != nil {
			return err
		}
		data = d
	default:
		return NewTypeMismatchError("defaults", l.opts.Defaults)
	}

	s.tree.addDefaults(data)
	return nil
}

func (l *Loader) loadDefaultsFile(ctx context.Context, s *session, ref string) (map[string]any, error) {
	p, err := s.resolver.Resolve(ref, "")
	if err != nil {
		return nil, err
	}
	src, err := s.resolver.ReadUnit(p)
	if err != nil {
		return nil, err
	}
	data, err := l.opts.Evaluators.For(p).Evaluate(ctx, config.Unit{Path: p, Source: src})
	if err != nil {
		return nil, unitError(p, err)
	}
	return data, nil
}

func errorKind(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return "other"
}
