package config

import (
	"context"
	"fmt"

	"github.com/execconf/execconf/pkg/telemetry"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// StarlarkEvaluator executes script units with only their directives predeclared.
type StarlarkEvaluator struct{}

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator() *StarlarkEvaluator {
	return &StarlarkEvaluator{}
}

// Name implements NamedEvaluator.
func (se *StarlarkEvaluator) Name() string {
	return "starlark"
}

// Evaluate executes the unit and returns its filtered global bindings.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, unit Unit) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := unit.Logger
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	printLog := logger.WithUnit(unit.Path).WithField("source", "print")

	thread := &starlark.Thread{
		Name: unit.Path,
		Print: func(_ *starlark.Thread, msg string) {
			printLog.Info(msg)
		},
	}
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(context.Cause(ctx).Error())
	})
	defer stop()

	predeclared := unit.Directives
	if predeclared == nil {
		predeclared = starlark.StringDict{}
	}

	globals, err := starlark.ExecFile(thread, unit.Path, unit.Source, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	return filterGlobals(globals, unit.Convert)
}

// filterGlobals keeps the public data bindings of an executed unit.
func filterGlobals(globals starlark.StringDict, convert ValueConverter) (map[string]any, error) {
	output := make(map[string]any, len(globals))
	for name, val := range globals {
		if isPrivate(name) || !isDataValue(val, convert) {
			continue
		}
		goVal, err := FromStarlark(val, convert)
		if err != nil {
			return nil, fmt.Errorf("failed to convert binding %s: %w", name, err)
		}
		output[name] = goVal
	}
	return output, nil
}

// isDataValue reports whether a top-level binding survives filtering.
func isDataValue(v starlark.Value, convert ValueConverter) bool {
	if convert != nil {
		if _, handled, err := convert(v); handled || err != nil {
			return true
		}
	}
	switch v.(type) {
	case starlark.Callable, *starlarkstruct.Module:
		return false
	case starlark.NoneType, starlark.Bool, starlark.Int, starlark.Float, starlark.String,
		*starlark.List, starlark.Tuple, *starlark.Dict, *starlark.Set:
		return true
	default:
		return false
	}
}

// FromStarlark converts a Starlark value to its canonical Go value.
func FromStarlark(v starlark.Value, convert ValueConverter) (any, error) {
	if convert != nil {
		out, handled, err := convert(v)
		if err != nil {
			return nil, err
		}
		if handled {
			return out, nil
		}
	}

	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large: %s", val.String())
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		return fromIterable(val, val.Len(), convert)
	case starlark.Tuple:
		return fromIterable(val, val.Len(), convert)
	case *starlark.Set:
		return fromIterable(val, val.Len(), convert)
	case *starlark.Dict:
		dict := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			value, err := FromStarlark(item[1], convert)
			if err != nil {
				return nil, err
			}
			dict[KeyString(item[0])] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}

func fromIterable(it starlark.Iterable, n int, convert ValueConverter) ([]any, error) {
	list := make([]any, 0, n)
	iter := it.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		item, err := FromStarlark(x, convert)
		if err != nil {
			return nil, err
		}
		list = append(list, item)
	}
	return list, nil
}

// KeyString renders a mapping key. Strings are used verbatim, other scalars
// by their Starlark representation.
func KeyString(k starlark.Value) string {
	if s, ok := starlark.AsString(k); ok {
		return s
	}
	return k.String()
}
