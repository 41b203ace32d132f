package engine

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
)

// Helper names understood by the default registry.
const (
	HelperDummy       = "dummy"
	HelperInclude     = "include"
	HelperMerge       = "merge"
	HelperMergeOption = "merge_option"
)

// Args are the positional and named arguments recorded on an inclusion edge.
type Args struct {
	Positional []any
	Named      map[string]any
}

// MergeHelper is a named strategy combining the accumulated data of a branch
// with the effective data of one child edge.
type MergeHelper interface {
	// Name is the directive name the helper is bound to inside script units.
	Name() string

	// Bind parses a directive call into the unit reference and the edge arguments.
	Bind(fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (string, Args, error)

	// Merge combines left and right. Neither input may be modified.
	Merge(left, right map[string]any, args Args) (map[string]any, error)
}

// Registry is an immutable set of merge helpers keyed by name.
type Registry struct {
	helpers map[string]MergeHelper
	names   []string
}

// NewRegistry creates a registry holding helpers. Names must be unique.
func NewRegistry(helpers ...MergeHelper) (*Registry, error) {
	r := &Registry{helpers: make(map[string]MergeHelper, len(helpers))}
	for _, h := range helpers {
		if h == nil {
			return nil, fmt.Errorf("nil merge helper")
		}
		name := h.Name()
		if name == "" {
			return nil, fmt.Errorf("merge helper %T has no name", h)
		}
		if _, dup := r.helpers[name]; dup {
			return nil, fmt.Errorf("merge helper %s registered twice", name)
		}
		r.helpers[name] = h
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// DefaultRegistry returns the built-in include, merge and merge_option helpers.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(IncludeHelper{}, MergeDeepHelper{}, MergeOptionHelper{})
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the helper registered under name.
func (r *Registry) Lookup(name string) (MergeHelper, bool) {
	h, ok := r.helpers[name]
	return h, ok
}

// Names returns the registered helper names in lexical order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// dummyHelper overwrites top-level keys. It backs the synthetic root and
// defaults edges and is never exposed as a directive.
type dummyHelper struct{}

func (dummyHelper) Name() string { return HelperDummy }

func (dummyHelper) Bind(fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (string, Args, error) {
	return bindRef(fn, args, kwargs)
}

func (dummyHelper) Merge(left, right map[string]any, _ Args) (map[string]any, error) {
	return overwrite(left, right), nil
}

// IncludeHelper implements include(ref): right's top-level keys overwrite left's.
type IncludeHelper struct{}

// Name implements MergeHelper.
func (IncludeHelper) Name() string { return HelperInclude }

// Bind implements MergeHelper.
func (IncludeHelper) Bind(fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (string, Args, error) {
	return bindRef(fn, args, kwargs)
}

// Merge implements MergeHelper.
func (IncludeHelper) Merge(left, right map[string]any, _ Args) (map[string]any, error) {
	return overwrite(left, right), nil
}

// MergeDeepHelper implements merge(ref): a recursive key-wise union where
// right wins unless both sides hold mappings.
type MergeDeepHelper struct{}

// Name implements MergeHelper.
func (MergeDeepHelper) Name() string { return HelperMerge }

// Bind implements MergeHelper.
func (MergeDeepHelper) Bind(fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (string, Args, error) {
	return bindRef(fn, args, kwargs)
}

// Merge implements MergeHelper.
func (MergeDeepHelper) Merge(left, right map[string]any, _ Args) (map[string]any, error) {
	return deepMerge(left, right, -1), nil
}

// MergeOptionHelper implements merge_option(ref, keys, depth=-1): a deep merge
// restricted to the selected top-level keys. depth 0 replaces a selected key
// wholesale; depth N merges N nested mapping levels key-wise before replacing;
// a negative depth is unlimited.
type MergeOptionHelper struct{}

// Name implements MergeHelper.
func (MergeOptionHelper) Name() string { return HelperMergeOption }

// Bind implements MergeHelper.
func (MergeOptionHelper) Bind(fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (string, Args, error) {
	var (
		ref   string
		keys  starlark.Value
		depth = -1
	)
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "ref", &ref, "keys", &keys, "depth?", &depth); err != nil {
		return "", Args{}, err
	}

	selected, err := selectionKeys(keys)
	if err != nil {
		return "", Args{}, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	return ref, Args{
		Positional: []any{selected},
		Named:      map[string]any{"depth": int64(depth)},
	}, nil
}

// Merge implements MergeHelper.
func (MergeOptionHelper) Merge(left, right map[string]any, args Args) (map[string]any, error) {
	keys, depth, err := mergeOptionArgs(args)
	if err != nil {
		return nil, err
	}

	out := deepCopyMap(left)
	for _, key := range keys {
		rv, ok := right[key]
		if !ok {
			continue
		}
		out[key] = mergeDepth(left[key], rv, depth)
	}
	return out, nil
}

func mergeOptionArgs(args Args) ([]string, int, error) {
	if len(args.Positional) != 1 {
		return nil, 0, fmt.Errorf("%s expects the selected keys as its only positional argument", HelperMergeOption)
	}

	var keys []string
	switch v := args.Positional[0].(type) {
	case []string:
		keys = v
	case string:
		keys = []string{v}
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, 0, fmt.Errorf("%s key must be a string, got %T", HelperMergeOption, item)
			}
			keys = append(keys, s)
		}
	default:
		return nil, 0, fmt.Errorf("%s keys must be a string or a list of strings, got %T", HelperMergeOption, v)
	}

	depth := -1
	if raw, ok := args.Named["depth"]; ok {
		switch d := raw.(type) {
		case int64:
			depth = int(d)
		case int:
			depth = d
		default:
			return nil, 0, fmt.Errorf("%s depth must be an integer, got %T", HelperMergeOption, raw)
		}
	}
	return keys, depth, nil
}

func selectionKeys(v starlark.Value) ([]string, error) {
	if s, ok := starlark.AsString(v); ok {
		return []string{s}, nil
	}
	iterable, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("keys must be a string or a list of strings, got %s", v.Type())
	}
	var keys []string
	iter := iterable.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		s, ok := starlark.AsString(x)
		if !ok {
			return nil, fmt.Errorf("key must be a string, got %s", x.Type())
		}
		keys = append(keys, s)
	}
	return keys, nil
}

func bindRef(fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (string, Args, error) {
	var ref string
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "ref", &ref); err != nil {
		return "", Args{}, err
	}
	return ref, Args{}, nil
}

// overwrite returns a shallow copy of left updated by right's top-level keys.
func overwrite(left, right map[string]any) map[string]any {
	out := make(map[string]any, len(left)+len(right))
	for k, v := range left {
		out[k] = v
	}
	for k, v := range right {
		out[k] = v
	}
	return out
}

// mergeDepth merges right into left for one selected value.
func mergeDepth(left, right any, depth int) any {
	lm, lok := left.(map[string]any)
	rm, rok := right.(map[string]any)
	if depth == 0 || !lok || !rok {
		return deepCopy(right)
	}
	return deepMerge(lm, rm, depth-1)
}

// deepMerge recursively unions right into a copy of left. Nested mappings
// present on both sides are merged while depth has not reached zero.
func deepMerge(left, right map[string]any, depth int) map[string]any {
	out := deepCopyMap(left)
	for k, rv := range right {
		lm, lok := out[k].(map[string]any)
		rm, rok := rv.(map[string]any)
		if depth != 0 && lok && rok {
			out[k] = deepMerge(lm, rm, depth-1)
			continue
		}
		out[k] = deepCopy(rv)
	}
	return out
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return val
	}
}
