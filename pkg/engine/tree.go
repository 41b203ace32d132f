package engine

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"

	"github.com/execconf/execconf/pkg/config"
	"github.com/execconf/execconf/pkg/telemetry"
	"go.starlark.net/starlark"
)

// Synthetic branch identities. Neither can collide with a resolved unit path.
const (
	rootIdentity     = ":root:"
	defaultsIdentity = ":defaults:"
)

// UnitState tracks the evaluation of one unit within a session.
type UnitState int

const (
	UnitUnresolved UnitState = iota
	UnitResolving
	UnitResolved
)

// String implements fmt.Stringer.
func (s UnitState) String() string {
	switch s {
	case UnitUnresolved:
		return "unresolved"
	case UnitResolving:
		return "resolving"
	case UnitResolved:
		return "resolved"
	default:
		return fmt.Sprintf("UnitState(%d)", int(s))
	}
}

// Branch is one unit in the inclusion tree. A unit included from several
// sites has a single Branch shared by every edge pointing at it.
type Branch struct {
	// Path is the unit identity.
	Path string

	// Edges are the inclusion sites declared by this unit, in call order.
	Edges []*Edge

	// Bindings are the unit's own filtered bindings.
	Bindings map[string]any

	// State is the evaluation state of the unit.
	State UnitState

	merged map[string]any
}

// Edge is one directive invocation.
type Edge struct {
	Parent *Branch
	Target *Branch
	Helper MergeHelper
	Args   Args
	Index  int
}

// dir returns the directory relative references inside the branch resolve against.
func (b *Branch) dir() string {
	if b.Path == rootIdentity || b.Path == defaultsIdentity {
		return ""
	}
	d := path.Dir(b.Path)
	if d == "." {
		return ""
	}
	return d
}

// Effective returns the branch's own bindings folded with the effective data
// of every child edge, in declaration order. The result is memoized.
func (b *Branch) Effective() (map[string]any, error) {
	if b.merged != nil {
		return b.merged, nil
	}

	acc := b.Bindings
	for _, e := range b.Edges {
		child, err := e.Target.Effective()
		if err != nil {
			return nil, err
		}
		if len(acc) == 0 {
			acc = deepCopyMap(child)
			continue
		}
		acc, err = e.Helper.Merge(acc, child, e.Args)
		if err != nil {
			return nil, fmt.Errorf("merge %s into %s with %s: %w", e.Target.Path, b.Path, e.Helper.Name(), err)
		}
	}
	if acc == nil {
		acc = map[string]any{}
	}

	b.merged = acc
	return acc, nil
}

// treeBuilder drives unit evaluation for one session.
type treeBuilder struct {
	resolver   *PathResolver
	evaluators *config.Evaluators
	registry   *Registry
	scope      *telemetry.Session
	logger     *telemetry.Logger
	metrics    *telemetry.Metrics
	tracer     *telemetry.Tracer

	root     *Branch
	branches map[string]*Branch
	stack    []string
	sources  map[string][]byte
}

func newTreeBuilder(resolver *PathResolver, evaluators *config.Evaluators, registry *Registry,
	scope *telemetry.Session, metrics *telemetry.Metrics, tracer *telemetry.Tracer) *treeBuilder {
	tb := &treeBuilder{
		resolver:   resolver,
		evaluators: evaluators,
		registry:   registry,
		scope:      scope,
		logger:     scope.Logger,
		metrics:    metrics,
		tracer:     tracer,
		branches:   make(map[string]*Branch),
		sources:    make(map[string][]byte),
	}
	tb.root = tb.branch(rootIdentity)
	tb.root.State = UnitResolved
	return tb
}

// branch returns the branch for identity, creating it on first use.
func (tb *treeBuilder) branch(identity string) *Branch {
	if b, ok := tb.branches[identity]; ok {
		return b
	}
	b := &Branch{Path: identity}
	tb.branches[identity] = b
	return b
}

// addDefaults inserts the defaults edge as the first child of the root branch.
func (tb *treeBuilder) addDefaults(data map[string]any) {
	b := tb.branch(defaultsIdentity)
	b.Bindings = data
	b.State = UnitResolved
	edge := &Edge{Parent: tb.root, Target: b, Helper: dummyHelper{}}
	tb.root.Edges = slices.Insert(tb.root.Edges, 0, edge)
	for i, e := range tb.root.Edges {
		e.Index = i
	}
}

// handle resolves ref from the including branch and processes it.
func (tb *treeBuilder) handle(ctx context.Context, parent *Branch, ref string, helper MergeHelper, args Args) error {
	resolved, err := tb.resolver.Resolve(ref, parent.dir())
	if err != nil {
		return err
	}
	return tb.handleResolved(ctx, parent, resolved, helper, args)
}

// handleResolved records an edge from parent to the unit identity and
// evaluates the unit if this session has not seen it yet.
func (tb *treeBuilder) handleResolved(ctx context.Context, parent *Branch, identity string, helper MergeHelper, args Args) error {
	if slices.Contains(tb.stack, identity) {
		return NewCircularIncludeError(append(slices.Clone(tb.stack), identity))
	}

	target := tb.branch(identity)
	parent.Edges = append(parent.Edges, &Edge{
		Parent: parent,
		Target: target,
		Helper: helper,
		Args:   args,
		Index:  len(parent.Edges),
	})
	tb.metrics.RecordEdge(helper.Name())
	telemetry.RecordEdge(ctx, parent.Path, identity, helper.Name())
	tb.logger.WithEdge(parent.Path, identity, helper.Name()).Debug("edge recorded")

	if target.State == UnitResolved {
		return nil
	}

	tb.stack = append(tb.stack, identity)
	target.State = UnitResolving
	bindings, err := tb.evaluate(ctx, target)
	tb.stack = tb.stack[:len(tb.stack)-1]
	if err != nil {
		return err
	}
	target.Bindings = bindings
	target.State = UnitResolved
	return nil
}

// evaluate runs the unit body of b with directives bound to b.
func (tb *treeBuilder) evaluate(ctx context.Context, b *Branch) (map[string]any, error) {
	src, ok := tb.sources[b.Path]
	if !ok {
		var err error
		src, err = tb.resolver.ReadUnit(b.Path)
		if err != nil {
			return nil, err
		}
	}

	ev := tb.evaluators.For(b.Path)
	evName := config.EvaluatorName(ev)
	ctx, span := tb.tracer.StartUnitSpan(ctx, b.Path, evName)
	defer span.End()
	timer := telemetry.NewTimer()

	bindings, err := ev.Evaluate(ctx, config.Unit{
		Path:       b.Path,
		Source:     src,
		Directives: tb.directives(ctx, b),
		Logger:     tb.logger,
	})
	tb.scope.UnitEvaluated(b.Path, evName, timer.Duration(), err)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, unitError(b.Path, err)
	}

	telemetry.RecordSuccess(span)
	tb.logger.WithUnit(b.Path).Debugf("evaluated %d bindings", len(bindings))
	return bindings, nil
}

// directives binds every registered helper to branch b.
func (tb *treeBuilder) directives(ctx context.Context, b *Branch) starlark.StringDict {
	d := make(starlark.StringDict)
	for _, name := range tb.registry.Names() {
		helper, _ := tb.registry.Lookup(name)
		d[name] = starlark.NewBuiltin(name, func(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			ref, hargs, err := helper.Bind(fn, args, kwargs)
			if err != nil {
				return nil, err
			}
			if err := tb.handle(ctx, b, ref, helper, hargs); err != nil {
				return nil, err
			}
			return starlark.None, nil
		})
	}
	return d
}

// unitError keeps engine errors raised by nested directives intact and
// classifies everything else as an evaluation failure of path.
func unitError(path string, err error) error {
	var ee *Error
	if errors.As(err, &ee) {
		return ee
	}
	return NewEvaluationError(path, err)
}
