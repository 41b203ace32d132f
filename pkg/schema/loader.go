package schema

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync/atomic"

	"github.com/execconf/execconf/pkg/config"
	"github.com/execconf/execconf/pkg/engine"
	"github.com/execconf/execconf/pkg/telemetry"
	"go.starlark.net/starlark"
)

// Bindings with a special meaning in schema units.
const (
	ValidationKey   = "EXEC_VALIDATION"
	OnlyDeclaredKey = "EXEC_ONLY_DECLARED"
)

// Loader builds Validators from schema units. A schema unit is a Starlark
// script whose predeclared names are the node constructors.
type Loader struct {
	root       fs.FS
	extensions []string
	evaluator  *config.StarlarkEvaluator
	logger     *telemetry.Logger
}

// NewLoader creates a schema loader reading units below rootDir.
func NewLoader(rootDir string, extensions ...string) *Loader {
	return NewLoaderFS(os.DirFS(rootDir), extensions...)
}

// NewLoaderFS creates a schema loader reading units from fsys.
func NewLoaderFS(fsys fs.FS, extensions ...string) *Loader {
	if len(extensions) == 0 {
		extensions = engine.DefaultExtensions
	}
	return &Loader{
		root:       fsys,
		extensions: extensions,
		evaluator:  config.NewStarlarkEvaluator(),
		logger:     telemetry.NewNopLogger(),
	}
}

// WithLogger sets the logger used for load diagnostics.
func (l *Loader) WithLogger(logger *telemetry.Logger) *Loader {
	l.logger = logger.NewComponentLogger("schema")
	return l
}

// Load resolves ref and builds a Validator from it.
func (l *Loader) Load(ctx context.Context, ref string) (*Validator, error) {
	resolver := engine.NewPathResolver(l.root, l.extensions)
	p, err := resolver.Resolve(ref, "")
	if err != nil {
		return nil, err
	}
	src, err := resolver.ReadUnit(p)
	if err != nil {
		return nil, err
	}
	return l.LoadSource(ctx, p, src)
}

// LoadSource builds a Validator from a schema unit body. name is used in
// error positions only.
func (l *Loader) LoadSource(ctx context.Context, name string, src []byte) (*Validator, error) {
	data, err := l.evaluator.Evaluate(ctx, config.Unit{
		Path:       name,
		Source:     src,
		Directives: Builtins(),
		Convert:    convertNode,
		Logger:     l.logger,
	})
	if err != nil {
		var ne *NodeError
		if errors.As(err, &ne) {
			return nil, ne
		}
		return nil, engine.NewEvaluationError(name, err)
	}

	v, err := validatorFromBindings(data)
	if err != nil {
		return nil, err
	}
	l.logger.WithUnit(name).Debugf("loaded %s schema", v.Root().Kind())
	return v, nil
}

// validatorFromBindings selects the validation root: EXEC_VALIDATION when
// bound, otherwise every binding of the unit.
func validatorFromBindings(data map[string]any) (*Validator, error) {
	onlyDeclared := false
	if raw, ok := data[OnlyDeclaredKey]; ok {
		b, ok := toBool(raw)
		if !ok {
			return nil, nodeErrorf("Validator", "%s must be a boolean, got %T", OnlyDeclaredKey, raw)
		}
		onlyDeclared = b
		delete(data, OnlyDeclaredKey)
	}

	var (
		root Node
		err  error
	)
	if raw, ok := data[ValidationKey]; ok {
		switch v := raw.(type) {
		case *Dict:
			root = v
		case map[string]any:
			root, err = dictFromBindings(v)
		default:
			err = nodeErrorf("Validator", "%s must be a Dict node or a mapping of nodes, got %T", ValidationKey, raw)
		}
	} else {
		root, err = dictFromBindings(data)
	}
	if err != nil {
		return nil, err
	}
	return NewValidator(root, onlyDeclared)
}

// dictFromBindings wraps a mapping of nodes into a Dict. Nested mappings are
// wrapped recursively.
func dictFromBindings(m map[string]any) (*Dict, error) {
	decl := make([]DictEntry, 0, len(m))
	for _, k := range config.SortedKeys(m) {
		switch v := m[k].(type) {
		case Node:
			decl = append(decl, DictEntry{Key: k, Value: v})
		case map[string]any:
			d, err := dictFromBindings(v)
			if err != nil {
				return nil, err
			}
			decl = append(decl, DictEntry{Key: k, Value: d})
		default:
			return nil, nodeErrorf("Dict", "binding %s is not a schema node: %T", k, v)
		}
	}
	return NewDict(DictOptions{Decl: decl})
}

// nodeValue is the Starlark representation of a schema node.
type nodeValue struct {
	node Node
	id   uint32
}

var nodeIDs atomic.Uint32

var _ starlark.HasAttrs = (*nodeValue)(nil)

func newNodeValue(n Node) *nodeValue {
	return &nodeValue{node: n, id: nodeIDs.Add(1)}
}

func (v *nodeValue) String() string        { return v.node.Kind().String() + "()" }
func (v *nodeValue) Type() string          { return "schema_node" }
func (v *nodeValue) Freeze()               {}
func (v *nodeValue) Truth() starlark.Bool  { return starlark.True }
func (v *nodeValue) Hash() (uint32, error) { return v.id, nil }

// Attr exposes the node kind to scripts.
func (v *nodeValue) Attr(name string) (starlark.Value, error) {
	if name == "kind" {
		return starlark.String(v.node.Kind().String()), nil
	}
	return nil, nil
}

// AttrNames implements starlark.HasAttrs.
func (v *nodeValue) AttrNames() []string {
	return []string{"kind"}
}

// convertNode turns node values, and dicts keyed by nodes, into Go nodes.
func convertNode(v starlark.Value) (any, bool, error) {
	switch val := v.(type) {
	case *nodeValue:
		return val.node, true, nil
	case *starlark.Dict:
		for _, k := range val.Keys() {
			if _, ok := k.(*nodeValue); ok {
				d, err := dictFromStarlark(val, DictOptions{})
				return d, true, err
			}
		}
	}
	return nil, false, nil
}

// Builtins returns the node constructors predeclared in schema units.
func Builtins() starlark.StringDict {
	return starlark.StringDict{
		"Pass":        starlark.NewBuiltin("Pass", builtinPass),
		"Boolean":     starlark.NewBuiltin("Boolean", builtinBoolean),
		"Integer":     starlark.NewBuiltin("Integer", builtinInteger),
		"Float":       starlark.NewBuiltin("Float", builtinFloat),
		"String":      starlark.NewBuiltin("String", builtinString),
		"Option":      starlark.NewBuiltin("Option", builtinOption),
		"List":        starlark.NewBuiltin("List", builtinList),
		"ListBoolean": starlark.NewBuiltin("ListBoolean", listShorthand(NewListBoolean)),
		"ListInteger": starlark.NewBuiltin("ListInteger", listShorthand(NewListInteger)),
		"ListFloat":   starlark.NewBuiltin("ListFloat", listShorthand(NewListFloat)),
		"ListString":  starlark.NewBuiltin("ListString", listShorthand(NewListString)),
		"ListDict":    starlark.NewBuiltin("ListDict", listShorthand(NewListDict)),
		"Dict":        starlark.NewBuiltin("Dict", builtinDict),
	}
}

func builtinPass(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return newNodeValue(NewPass()), nil
}

func builtinBoolean(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var eq starlark.Value = starlark.None
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "eq?", &eq); err != nil {
		return nil, err
	}
	var opts BooleanOptions
	if eq != starlark.None {
		b, ok := eq.(starlark.Bool)
		if !ok {
			return nil, fmt.Errorf("%s: eq must be a bool, got %s", fn.Name(), eq.Type())
		}
		opts.Eq = Ptr(bool(b))
	}
	return newNodeValue(NewBoolean(opts)), nil
}

// boundArgs are the comparison keywords shared by Integer and Float.
type boundArgs struct {
	eq, lt, gt, lte, gte, min, max starlark.Value
}

func (b *boundArgs) pairs() []any {
	return []any{
		"eq?", &b.eq, "lt?", &b.lt, "gt?", &b.gt,
		"lte?", &b.lte, "gte?", &b.gte, "min?", &b.min, "max?", &b.max,
	}
}

func builtinInteger(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var b boundArgs
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, b.pairs()...); err != nil {
		return nil, err
	}

	var opts IntegerOptions
	targets := []struct {
		name string
		v    starlark.Value
		dst  **int64
	}{
		{"eq", b.eq, &opts.Eq}, {"lt", b.lt, &opts.Lt}, {"gt", b.gt, &opts.Gt},
		{"lte", b.lte, &opts.Lte}, {"gte", b.gte, &opts.Gte},
		{"min", b.min, &opts.Min}, {"max", b.max, &opts.Max},
	}
	for _, t := range targets {
		i, err := optInt64(fn.Name(), t.name, t.v)
		if err != nil {
			return nil, err
		}
		*t.dst = i
	}

	n, err := NewInteger(opts)
	if err != nil {
		return nil, err
	}
	return newNodeValue(n), nil
}

func builtinFloat(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		b         boundArgs
		precision starlark.Value
	)
	pairs := append(b.pairs(), "precision?", &precision)
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, pairs...); err != nil {
		return nil, err
	}

	var opts FloatOptions
	targets := []struct {
		name string
		v    starlark.Value
		dst  **float64
	}{
		{"eq", b.eq, &opts.Eq}, {"lt", b.lt, &opts.Lt}, {"gt", b.gt, &opts.Gt},
		{"lte", b.lte, &opts.Lte}, {"gte", b.gte, &opts.Gte},
		{"min", b.min, &opts.Min}, {"max", b.max, &opts.Max},
	}
	for _, t := range targets {
		f, err := optFloat64(fn.Name(), t.name, t.v)
		if err != nil {
			return nil, err
		}
		*t.dst = f
	}
	p, err := optInt(fn.Name(), "precision", precision)
	if err != nil {
		return nil, err
	}
	opts.Precision = p

	n, err := NewFloat(opts)
	if err != nil {
		return nil, err
	}
	return newNodeValue(n), nil
}

func builtinString(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var eq, lo, hi starlark.Value
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "eq?", &eq, "min?", &lo, "max?", &hi); err != nil {
		return nil, err
	}

	var opts StringOptions
	if eq != nil && eq != starlark.None {
		s, ok := starlark.AsString(eq)
		if !ok {
			return nil, fmt.Errorf("%s: eq must be a string, got %s", fn.Name(), eq.Type())
		}
		opts.Eq = Ptr(s)
	}
	var err error
	if opts.Min, err = optInt(fn.Name(), "min", lo); err != nil {
		return nil, err
	}
	if opts.Max, err = optInt(fn.Name(), "max", hi); err != nil {
		return nil, err
	}

	n, err := NewString(opts)
	if err != nil {
		return nil, err
	}
	return newNodeValue(n), nil
}

func builtinOption(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", fn.Name())
	}
	options := make([]any, 0, len(args))
	for _, a := range args {
		v, err := config.FromStarlark(a, convertNode)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn.Name(), err)
		}
		options = append(options, v)
	}
	return newNodeValue(NewOption(options...)), nil
}

// listArgs are the keywords shared by List and its shorthands.
type listArgs struct {
	force    bool
	min, max starlark.Value
}

func (a *listArgs) options(fname string) (ListOptions, error) {
	opts := ListOptions{Force: a.force}
	var err error
	if opts.Min, err = optInt(fname, "min", a.min); err != nil {
		return opts, err
	}
	if opts.Max, err = optInt(fname, "max", a.max); err != nil {
		return opts, err
	}
	return opts, nil
}

func builtinList(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		decl starlark.Value
		la   listArgs
		loop = true
	)
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs,
		"decl?", &decl, "force?", &la.force, "min?", &la.min, "max?", &la.max, "loop?", &loop); err != nil {
		return nil, err
	}

	opts, err := la.options(fn.Name())
	if err != nil {
		return nil, err
	}
	opts.NoLoop = !loop
	if decl != nil && decl != starlark.None {
		seq, ok := decl.(starlark.Indexable)
		if !ok {
			return nil, fmt.Errorf("%s: decl must be a list of nodes, got %s", fn.Name(), decl.Type())
		}
		opts.Decl = make([]Node, 0, seq.Len())
		for i := 0; i < seq.Len(); i++ {
			nv, ok := seq.Index(i).(*nodeValue)
			if !ok {
				return nil, fmt.Errorf("%s: decl item %d must be a node, got %s", fn.Name(), i, seq.Index(i).Type())
			}
			opts.Decl = append(opts.Decl, nv.node)
		}
	}

	n, err := NewList(opts)
	if err != nil {
		return nil, err
	}
	return newNodeValue(n), nil
}

func listShorthand(ctor func(ListOptions) (*List, error)) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var la listArgs
		if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "force?", &la.force, "min?", &la.min, "max?", &la.max); err != nil {
			return nil, err
		}
		opts, err := la.options(fn.Name())
		if err != nil {
			return nil, err
		}
		n, err := ctor(opts)
		if err != nil {
			return nil, err
		}
		return newNodeValue(n), nil
	}
}

func builtinDict(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var decl, lo, hi, required starlark.Value
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs,
		"decl?", &decl, "min?", &lo, "max?", &hi, "required?", &required); err != nil {
		return nil, err
	}

	var (
		opts DictOptions
		err  error
	)
	if opts.Min, err = optInt(fn.Name(), "min", lo); err != nil {
		return nil, err
	}
	if opts.Max, err = optInt(fn.Name(), "max", hi); err != nil {
		return nil, err
	}
	if required != nil && required != starlark.None {
		names, err := stringList(required)
		if err != nil {
			return nil, fmt.Errorf("%s: required: %w", fn.Name(), err)
		}
		opts.Required = names
	}

	if decl == nil || decl == starlark.None {
		n, err := NewDict(opts)
		if err != nil {
			return nil, err
		}
		return newNodeValue(n), nil
	}

	d, ok := decl.(*starlark.Dict)
	if !ok {
		return nil, nodeErrorf("Dict", "decl must be dict, not %s", decl.Type())
	}
	n, err := dictFromStarlark(d, opts)
	if err != nil {
		return nil, err
	}
	return newNodeValue(n), nil
}

// dictFromStarlark builds a Dict node from a Starlark dict whose keys are
// names or key nodes and whose values are nodes or nested dicts.
func dictFromStarlark(d *starlark.Dict, opts DictOptions) (*Dict, error) {
	opts.Decl = make([]DictEntry, 0, d.Len())
	for _, item := range d.Items() {
		var key any
		switch k := item[0].(type) {
		case *nodeValue:
			key = k.node
		default:
			s, ok := starlark.AsString(k)
			if !ok {
				return nil, nodeErrorf("Dict", "key %s must be a string or a node", k)
			}
			key = s
		}

		var value Node
		switch v := item[1].(type) {
		case *nodeValue:
			value = v.node
		case *starlark.Dict:
			nested, err := dictFromStarlark(v, DictOptions{})
			if err != nil {
				return nil, err
			}
			value = nested
		default:
			return nil, nodeErrorf("Dict", "value for key %s must be a node, got %s", item[0], v.Type())
		}
		opts.Decl = append(opts.Decl, DictEntry{Key: key, Value: value})
	}
	return NewDict(opts)
}

func optInt64(fname, arg string, v starlark.Value) (*int64, error) {
	if v == nil || v == starlark.None {
		return nil, nil
	}
	i, ok := v.(starlark.Int)
	if !ok {
		return nil, fmt.Errorf("%s: %s must be an int, got %s", fname, arg, v.Type())
	}
	n, ok := i.Int64()
	if !ok {
		return nil, fmt.Errorf("%s: %s out of range", fname, arg)
	}
	return &n, nil
}

func optInt(fname, arg string, v starlark.Value) (*int, error) {
	i, err := optInt64(fname, arg, v)
	if err != nil || i == nil {
		return nil, err
	}
	n := int(*i)
	return &n, nil
}

func optFloat64(fname, arg string, v starlark.Value) (*float64, error) {
	if v == nil || v == starlark.None {
		return nil, nil
	}
	f, ok := starlark.AsFloat(v)
	if !ok {
		return nil, fmt.Errorf("%s: %s must be a number, got %s", fname, arg, v.Type())
	}
	return &f, nil
}

func stringList(v starlark.Value) ([]string, error) {
	if s, ok := starlark.AsString(v); ok {
		return []string{s}, nil
	}
	iterable, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("expected a list of strings, got %s", v.Type())
	}
	var out []string
	iter := iterable.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		s, ok := starlark.AsString(x)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %s", x.Type())
		}
		out = append(out, s)
	}
	return out, nil
}
