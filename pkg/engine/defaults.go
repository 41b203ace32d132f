package engine

import (
	"github.com/execconf/execconf/pkg/config"
)

// DefaultsSource supplies the mapping folded in as edge zero of the root branch.
// It is either a DefaultsFile or a DefaultsMap.
type DefaultsSource interface {
	defaultsSource()
}

// DefaultsFile reads defaults from a unit under the root directory. The unit
// is evaluated without directives.
type DefaultsFile struct {
	Path string
}

// DefaultsMap supplies defaults inline. Private names and non-data values are dropped.
type DefaultsMap struct {
	Data map[string]any
}

func (DefaultsFile) defaultsSource() {}
func (DefaultsMap) defaultsSource()  {}

// ParseDefaults converts a loosely typed value into a DefaultsSource: a string
// is a file path, a mapping is inline data. Anything else is a type mismatch.
func ParseDefaults(v any) (DefaultsSource, error) {
	switch val := v.(type) {
	case DefaultsSource:
		return val, nil
	case string:
		return DefaultsFile{Path: val}, nil
	case map[string]any:
		return DefaultsMap{Data: val}, nil
	case *config.Config:
		return DefaultsMap{Data: val.ToMap()}, nil
	default:
		return nil, NewTypeMismatchError("defaults", v)
	}
}
