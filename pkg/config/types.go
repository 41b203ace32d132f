package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Map is a read-only mapping. Nested mappings are *Map and nested
// sequences are *List.
type Map struct {
	entries map[string]any
	keys    []string
}

// List is a read-only ordered sequence.
type List struct {
	items []any
}

// Freeze deep-copies data into an immutable Map.
func Freeze(data map[string]any) *Map {
	entries := make(map[string]any, len(data))
	for k, v := range data {
		entries[k] = freezeValue(v)
	}
	return &Map{entries: entries, keys: SortedKeys(data)}
}

func freezeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return Freeze(val)
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = freezeValue(item)
		}
		return &List{items: items}
	default:
		return val
	}
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (any, bool) {
	v, ok := m.entries[key]
	return v, ok
}

// Lookup resolves a dotted path ("a.b.c") through nested mappings.
func (m *Map) Lookup(dotted string) (any, bool) {
	var cur any = m
	for _, part := range strings.Split(dotted, ".") {
		mm, ok := cur.(*Map)
		if !ok {
			return nil, false
		}
		cur, ok = mm.entries[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.entries[key]
	return ok
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return len(m.entries)
}

// Keys returns the keys in lexical order.
func (m *Map) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Range calls fn for every entry in key order until fn returns false.
func (m *Map) Range(fn func(key string, value any) bool) {
	for _, k := range m.keys {
		if !fn(k, m.entries[k]) {
			return
		}
	}
}

// ToMap returns a deep mutable copy.
func (m *Map) ToMap() map[string]any {
	out := make(map[string]any, len(m.entries))
	for k, v := range m.entries {
		out[k] = thawValue(v)
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (m *Map) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.ToMap())
}

// MarshalYAML implements yaml.Marshaler.
func (m *Map) MarshalYAML() (any, error) {
	return m.ToMap(), nil
}

// String implements fmt.Stringer.
func (m *Map) String() string {
	return fmt.Sprint(m.ToMap())
}

// Len returns the number of items.
func (l *List) Len() int {
	return len(l.items)
}

// Index returns the item at position i.
func (l *List) Index(i int) any {
	return l.items[i]
}

// Range calls fn for every item in order until fn returns false.
func (l *List) Range(fn func(i int, value any) bool) {
	for i, v := range l.items {
		if !fn(i, v) {
			return
		}
	}
}

// ToSlice returns a deep mutable copy.
func (l *List) ToSlice() []any {
	out := make([]any, len(l.items))
	for i, v := range l.items {
		out[i] = thawValue(v)
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (l *List) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.ToSlice())
}

// MarshalYAML implements yaml.Marshaler.
func (l *List) MarshalYAML() (any, error) {
	return l.ToSlice(), nil
}

// String implements fmt.Stringer.
func (l *List) String() string {
	return fmt.Sprint(l.ToSlice())
}

func thawValue(v any) any {
	switch val := v.(type) {
	case *Map:
		return val.ToMap()
	case *List:
		return val.ToSlice()
	default:
		return val
	}
}

// Config is the final resolved configuration. It is never modified after
// a session returns it.
type Config struct {
	data *Map
}

// NewConfig freezes data into a Config.
func NewConfig(data map[string]any) *Config {
	return &Config{data: Freeze(data)}
}

// Map returns the root mapping.
func (c *Config) Map() *Map {
	return c.data
}

// Get returns the top-level value stored under key.
func (c *Config) Get(key string) (any, bool) {
	return c.data.Get(key)
}

// Lookup resolves a dotted path.
func (c *Config) Lookup(dotted string) (any, bool) {
	return c.data.Lookup(dotted)
}

// Len returns the number of top-level entries.
func (c *Config) Len() int {
	return c.data.Len()
}

// Keys returns the top-level keys in lexical order.
func (c *Config) Keys() []string {
	return c.data.Keys()
}

// ToMap returns a deep mutable copy of the configuration.
func (c *Config) ToMap() map[string]any {
	return c.data.ToMap()
}

// Decode decodes the configuration into target using mapstructure tags.
func (c *Config) Decode(target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(c.data.ToMap()); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c *Config) MarshalJSON() ([]byte, error) {
	return c.data.MarshalJSON()
}

// MarshalYAML implements yaml.Marshaler.
func (c *Config) MarshalYAML() (any, error) {
	return c.data.MarshalYAML()
}
