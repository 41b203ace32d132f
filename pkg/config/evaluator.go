package config

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"path"
	"sort"
	"strings"

	"github.com/execconf/execconf/pkg/telemetry"
	"go.starlark.net/starlark"
)

// Unit is one config unit handed to an evaluator.
type Unit struct {
	// Path is the resolved unit identity, relative to the root directory.
	Path string

	// Source is the raw unit body.
	Source []byte

	// Directives are the only names predeclared for script units.
	Directives starlark.StringDict

	// Convert is consulted before the built-in conversion of every produced
	// value. A nil Convert accepts plain data only.
	Convert ValueConverter

	// Logger receives print() output of script units. Nil discards it.
	Logger *telemetry.Logger
}

// ValueConverter converts values the built-in data conversion does not know.
// It returns handled=false to fall back to the default conversion.
type ValueConverter func(v starlark.Value) (out any, handled bool, err error)

// UnitEvaluator evaluates a unit body into its filtered data bindings.
type UnitEvaluator interface {
	Evaluate(ctx context.Context, unit Unit) (map[string]any, error)
}

// NamedEvaluator is implemented by evaluators that report a short name for
// logs and metrics.
type NamedEvaluator interface {
	Name() string
}

// EvaluatorName returns the short name of ev.
func EvaluatorName(ev UnitEvaluator) string {
	if n, ok := ev.(NamedEvaluator); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", ev)
}

// Evaluators selects a UnitEvaluator by unit extension.
type Evaluators struct {
	byExt    map[string]UnitEvaluator
	fallback UnitEvaluator
}

// DefaultEvaluators returns the standard set: YAML for yaml/yml/json, CUE for
// cue, and Starlark for every other extension.
func DefaultEvaluators() *Evaluators {
	data := NewYAMLEvaluator()
	return &Evaluators{
		byExt: map[string]UnitEvaluator{
			"yaml": data,
			"yml":  data,
			"json": data,
			"cue":  NewCUEEvaluator(),
		},
		fallback: NewStarlarkEvaluator(),
	}
}

// With returns a copy of e that uses ev for units with extension ext.
func (e *Evaluators) With(ext string, ev UnitEvaluator) *Evaluators {
	byExt := make(map[string]UnitEvaluator, len(e.byExt)+1)
	for k, v := range e.byExt {
		byExt[k] = v
	}
	byExt[strings.TrimPrefix(ext, ".")] = ev
	return &Evaluators{byExt: byExt, fallback: e.fallback}
}

// For returns the evaluator responsible for the unit at p.
func (e *Evaluators) For(p string) UnitEvaluator {
	ext := strings.TrimPrefix(path.Ext(p), ".")
	if ev, ok := e.byExt[ext]; ok {
		return ev
	}
	return e.fallback
}

// Normalize converts decoded data into the canonical representation used by
// the engine: bool, int64, float64, string, nil, []any and map[string]any.
func Normalize(v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, int64, float64, string:
		return val, nil
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case uint:
		return normalizeUint(uint64(val))
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		return normalizeUint(val)
	case float32:
		return float64(val), nil
	case *big.Int:
		if !val.IsInt64() {
			return nil, fmt.Errorf("integer too large: %s", val.String())
		}
		return val.Int64(), nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			n, err := Normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			n, err := Normalize(item)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = n
		}
		return out, nil
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out, nil
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = item
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			n, err := Normalize(item)
			if err != nil {
				return nil, fmt.Errorf("key %v: %w", k, err)
			}
			out[fmt.Sprint(k)] = n
		}
		return out, nil
	case *Map:
		return val.ToMap(), nil
	case *List:
		return val.ToSlice(), nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

func normalizeUint(u uint64) (any, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("integer too large: %d", u)
	}
	return int64(u), nil
}

// FilterBindings drops private names and normalizes the remaining values of
// an inline mapping. Values that are not plain data are dropped.
func FilterBindings(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if isPrivate(k) {
			continue
		}
		n, err := Normalize(v)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isPrivate(name string) bool {
	return strings.HasPrefix(name, "_")
}
