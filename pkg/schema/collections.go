package schema

import (
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/execconf/execconf/pkg/config"
)

// List checks sequences, optionally against a per-position node sequence.
type List struct {
	decl     []Node
	force    bool
	min, max *int
	loop     bool
}

// ListOptions configures a List node.
type ListOptions struct {
	// Decl are the per-position nodes. Nil accepts items unchecked.
	Decl []Node

	// Force wraps a non-sequence value into a one-element list.
	Force bool

	// Min and Max bound the list length.
	Min, Max *int

	// NoLoop fails lists longer than Decl instead of cycling Decl.
	NoLoop bool
}

// NewList creates a List node.
func NewList(opts ListOptions) (*List, error) {
	if err := validateSize("List", opts.Min, opts.Max); err != nil {
		return nil, err
	}
	if opts.Decl != nil && len(opts.Decl) == 0 {
		return nil, nodeErrorf("List", "declared nodes must not be empty")
	}
	for i, n := range opts.Decl {
		if n == nil {
			return nil, nodeErrorf("List", "declared node %d is nil", i)
		}
	}
	return &List{
		decl:  opts.Decl,
		force: opts.Force,
		min:   opts.Min,
		max:   opts.Max,
		loop:  !opts.NoLoop,
	}, nil
}

func newRepeatedList(elem Node, opts ListOptions) (*List, error) {
	opts.Decl = []Node{elem}
	opts.NoLoop = false
	return NewList(opts)
}

// NewListBoolean creates a List whose every item is a Boolean.
func NewListBoolean(opts ListOptions) (*List, error) {
	return newRepeatedList(NewBoolean(BooleanOptions{}), opts)
}

// NewListInteger creates a List whose every item is an Integer.
func NewListInteger(opts ListOptions) (*List, error) {
	return newRepeatedList(&Integer{}, opts)
}

// NewListFloat creates a List whose every item is a Float.
func NewListFloat(opts ListOptions) (*List, error) {
	return newRepeatedList(&Float{}, opts)
}

// NewListString creates a List whose every item is a String.
func NewListString(opts ListOptions) (*List, error) {
	return newRepeatedList(&String{}, opts)
}

// NewListDict creates a List whose every item is a Dict.
func NewListDict(opts ListOptions) (*List, error) {
	return newRepeatedList(&Dict{}, opts)
}

// Kind implements Node.
func (*List) Kind() Kind { return KindList }

// Check implements Node.
func (n *List) Check(value any) (any, error) {
	items, ok := asSlice(value)
	if !ok {
		if !n.force {
			return nil, &ConversionError{Node: "List", Value: value}
		}
		items = []any{value}
	}

	size := len(items)
	if n.min != nil && size < *n.min {
		return nil, checkErrorf("list size %d less than %d", size, *n.min)
	}
	if n.max != nil && size > *n.max {
		return nil, checkErrorf("list size %d greater than %d", size, *n.max)
	}

	if n.decl == nil {
		return items, nil
	}
	if !n.loop && size > len(n.decl) {
		return nil, checkErrorf("list size %d greater than declared checks %d", size, len(n.decl))
	}

	out := make([]any, size)
	for i, item := range items {
		v, err := n.decl[i%len(n.decl)].Check(item)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// asSlice returns a fresh []any for any sequence value.
func asSlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		out := make([]any, len(v))
		copy(out, v)
		return out, true
	case *config.List:
		return v.ToSlice(), true
	case string, []byte, nil:
		return nil, false
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// DictEntry is one declared Dict entry. Key is either a literal string name or
// a key Node validating every undeclared key.
type DictEntry struct {
	Key   any
	Value Node
}

// Dict checks mappings against literal entries and at most one key node.
type Dict struct {
	declared bool
	fields   map[string]Node
	keyNode  Node
	keyValue Node
	min, max *int
	required []string
}

// DictOptions configures a Dict node.
type DictOptions struct {
	// Decl are the declared entries. Nil passes every entry through.
	Decl []DictEntry

	// Min and Max bound the number of entries.
	Min, Max *int

	// Required names keys that must be present after conversion.
	Required []string
}

// NewDict creates a Dict node. The key node, if any, must be a Pass, Boolean,
// Integer, Float, String or Option node and may be declared once.
func NewDict(opts DictOptions) (*Dict, error) {
	if err := validateSize("Dict", opts.Min, opts.Max); err != nil {
		return nil, err
	}

	d := &Dict{
		declared: opts.Decl != nil,
		fields:   make(map[string]Node, len(opts.Decl)),
		min:      opts.Min,
		max:      opts.Max,
		required: opts.Required,
	}
	for _, e := range opts.Decl {
		if e.Value == nil {
			return nil, nodeErrorf("Dict", "entry %v has no value node", e.Key)
		}
		switch k := e.Key.(type) {
		case string:
			d.fields[k] = e.Value
		case Node:
			if d.keyNode != nil {
				return nil, nodeErrorf("Dict", "dict validation node key must declared once")
			}
			if !isKeyKind(k.Kind()) {
				return nil, nodeErrorf("Dict", "dict validation node key must be one of Pass, Boolean, Integer, Float, String, Option, not %s", k.Kind())
			}
			d.keyNode = k
			d.keyValue = e.Value
		default:
			return nil, nodeErrorf("Dict", "entry key must be a string or a node, not %T", e.Key)
		}
	}
	return d, nil
}

// NewDictOf creates a Dict with literal entries only.
func NewDictOf(fields map[string]Node) (*Dict, error) {
	decl := make([]DictEntry, 0, len(fields))
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		decl = append(decl, DictEntry{Key: name, Value: fields[name]})
	}
	return NewDict(DictOptions{Decl: decl})
}

func isKeyKind(k Kind) bool {
	switch k {
	case KindPass, KindBoolean, KindInteger, KindFloat, KindString, KindOption:
		return true
	}
	return false
}

// Kind implements Node.
func (*Dict) Kind() Kind { return KindDict }

// Check implements Node.
func (n *Dict) Check(value any) (any, error) {
	in, ok := asMap(value)
	if !ok {
		return nil, &ConversionError{Node: "Dict", Value: value}
	}

	size := len(in)
	if n.min != nil && size < *n.min {
		return nil, checkErrorf("dict size %d less than %d", size, *n.min)
	}
	if n.max != nil && size > *n.max {
		return nil, checkErrorf("dict size %d greater than %d", size, *n.max)
	}

	out := make(map[string]any, size)
	for _, k := range config.SortedKeys(in) {
		v := in[k]
		if !n.declared {
			out[k] = v
			continue
		}
		if node, ok := n.fields[k]; ok {
			cv, err := node.Check(v)
			if err != nil {
				return nil, err
			}
			out[k] = cv
			continue
		}
		if n.keyNode == nil {
			out[k] = v
			continue
		}
		ck, err := n.keyNode.Check(k)
		if err != nil {
			return nil, err
		}
		cv, err := n.keyValue.Check(v)
		if err != nil {
			return nil, err
		}
		out[keyString(ck)] = cv
	}

	for _, name := range n.required {
		if _, ok := out[name]; !ok {
			return nil, checkErrorf("required item '%s' not found", name)
		}
	}
	return out, nil
}

func asMap(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case *config.Map:
		return v.ToMap(), true
	case *config.Config:
		return v.ToMap(), true
	}
	return nil, false
}

func keyString(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprint(k)
}
