package schema

import (
	"cmp"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/execconf/execconf/pkg/config"
)

// Kind identifies a node variant.
type Kind int

const (
	KindPass Kind = iota
	KindBoolean
	KindInteger
	KindFloat
	KindString
	KindOption
	KindList
	KindDict
)

var kindNames = map[Kind]string{
	KindPass:    "Pass",
	KindBoolean: "Boolean",
	KindInteger: "Integer",
	KindFloat:   "Float",
	KindString:  "String",
	KindOption:  "Option",
	KindList:    "List",
	KindDict:    "Dict",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Node checks a value and returns its converted form.
type Node interface {
	Kind() Kind
	Check(value any) (any, error)
}

// Ptr returns a pointer to v. It is a shorthand for optional node settings.
func Ptr[T any](v T) *T {
	return &v
}

// Pass accepts every value unchanged.
type Pass struct{}

// NewPass creates a Pass node.
func NewPass() *Pass { return &Pass{} }

// Kind implements Node.
func (*Pass) Kind() Kind { return KindPass }

// Check implements Node.
func (*Pass) Check(value any) (any, error) { return value, nil }

// Boolean converts booleans, yes/no style strings and the numbers 1 and 0.
type Boolean struct {
	eq *bool
}

// BooleanOptions configures a Boolean node.
type BooleanOptions struct {
	Eq *bool
}

// NewBoolean creates a Boolean node.
func NewBoolean(opts BooleanOptions) *Boolean {
	return &Boolean{eq: opts.Eq}
}

// Kind implements Node.
func (*Boolean) Kind() Kind { return KindBoolean }

// Check implements Node.
func (b *Boolean) Check(value any) (any, error) {
	v, ok := toBool(value)
	if !ok {
		return nil, &ConversionError{Node: "Boolean", Value: value}
	}
	if b.eq != nil && *b.eq != v {
		return nil, checkErrorf("value %v not equal %v", value, *b.eq)
	}
	return v, nil
}

func toBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(v) {
		case "true", "on", "yes":
			return true, true
		case "false", "off", "no":
			return false, true
		}
		return false, false
	}
	if f, ok := asFloat(value); ok {
		switch f {
		case 1:
			return true, true
		case 0:
			return false, true
		}
	}
	return false, false
}

// bounds holds the comparison constraints shared by Integer and Float.
type bounds[T cmp.Ordered] struct {
	Eq, Lt, Gt, Lte, Gte, Min, Max *T
}

func (b bounds[T]) validate(node string) error {
	if b.Eq != nil && (b.Lt != nil || b.Gt != nil || b.Lte != nil || b.Gte != nil) {
		return nodeErrorf(node, "eq can't be combined with lt, gt, lte or gte")
	}
	if b.Lt != nil && b.Lte != nil {
		return nodeErrorf(node, "lt can't be combined with lte")
	}
	if b.Gt != nil && b.Gte != nil {
		return nodeErrorf(node, "gt can't be combined with gte")
	}
	if b.Min != nil && b.Max != nil && *b.Min > *b.Max {
		return nodeErrorf(node, "min %v greater than max %v", *b.Min, *b.Max)
	}
	return nil
}

func (b bounds[T]) check(orig any, v T) error {
	switch {
	case b.Eq != nil && v != *b.Eq:
		return checkErrorf("value %v not equal %v", orig, *b.Eq)
	case b.Lt != nil && v >= *b.Lt:
		return checkErrorf("value %v not less than %v", orig, *b.Lt)
	case b.Lte != nil && v > *b.Lte:
		return checkErrorf("value %v not less and not equal than %v", orig, *b.Lte)
	case b.Gt != nil && v <= *b.Gt:
		return checkErrorf("value %v not greater than %v", orig, *b.Gt)
	case b.Gte != nil && v < *b.Gte:
		return checkErrorf("value %v not greater and not equal than %v", orig, *b.Gte)
	case b.Min != nil && v < *b.Min:
		return checkErrorf("value %v less than %v", orig, *b.Min)
	case b.Max != nil && v > *b.Max:
		return checkErrorf("value %v greater than %v", orig, *b.Max)
	}
	return nil
}

// Integer converts numbers and numeric strings to int64. Floats truncate
// toward zero.
type Integer struct {
	bounds bounds[int64]
}

// IntegerOptions configures an Integer node. Eq excludes every comparison
// bound, Lt excludes Lte and Gt excludes Gte.
type IntegerOptions struct {
	Eq, Lt, Gt, Lte, Gte, Min, Max *int64
}

// NewInteger creates an Integer node.
func NewInteger(opts IntegerOptions) (*Integer, error) {
	b := bounds[int64]{opts.Eq, opts.Lt, opts.Gt, opts.Lte, opts.Gte, opts.Min, opts.Max}
	if err := b.validate("Integer"); err != nil {
		return nil, err
	}
	return &Integer{bounds: b}, nil
}

// Kind implements Node.
func (*Integer) Kind() Kind { return KindInteger }

// Check implements Node.
func (n *Integer) Check(value any) (any, error) {
	v, err := toInt64(value)
	if err != nil {
		return nil, err
	}
	if err := n.bounds.check(value, v); err != nil {
		return nil, err
	}
	return v, nil
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, &ConversionError{Node: "Integer", Value: value, Err: err}
		}
		return i, nil
	case float32, float64:
		f, _ := asFloat(v)
		if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
			return 0, &ConversionError{Node: "Integer", Value: value}
		}
		return int64(f), nil
	}
	if i, ok := asInt(value); ok {
		return i, nil
	}
	return 0, &ConversionError{Node: "Integer", Value: value}
}

// Float converts numbers and numeric strings to float64 and optionally
// truncates them to a number of decimal digits.
type Float struct {
	bounds    bounds[float64]
	precision *int
}

// FloatOptions configures a Float node. The bound rules match IntegerOptions;
// Precision must not be negative.
type FloatOptions struct {
	Eq, Lt, Gt, Lte, Gte, Min, Max *float64
	Precision                      *int
}

// NewFloat creates a Float node.
func NewFloat(opts FloatOptions) (*Float, error) {
	b := bounds[float64]{opts.Eq, opts.Lt, opts.Gt, opts.Lte, opts.Gte, opts.Min, opts.Max}
	if err := b.validate("Float"); err != nil {
		return nil, err
	}
	if opts.Precision != nil && *opts.Precision < 0 {
		return nil, nodeErrorf("Float", "precision %d is negative", *opts.Precision)
	}
	return &Float{bounds: b, precision: opts.Precision}, nil
}

// Kind implements Node.
func (*Float) Kind() Kind { return KindFloat }

// Check implements Node. Precision is applied after the bound checks and
// truncates rather than rounds.
func (n *Float) Check(value any) (any, error) {
	v, err := toFloat64(value)
	if err != nil {
		return nil, err
	}
	if err := n.bounds.check(value, v); err != nil {
		return nil, err
	}
	if n.precision != nil {
		v = truncate(v, *n.precision)
	}
	return v, nil
}

// truncate drops digits beyond precision. Values whose scaled form does not
// fit a float64 already carry fewer digits than requested and are returned
// unchanged.
func truncate(v float64, precision int) float64 {
	pow := math.Pow10(precision)
	scaled := v * pow
	if math.IsInf(pow, 0) || math.IsInf(scaled, 0) || math.IsNaN(scaled) {
		return v
	}
	return math.Trunc(scaled) / pow
}

func toFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, &ConversionError{Node: "Float", Value: value, Err: err}
		}
		return f, nil
	}
	if f, ok := asFloat(value); ok {
		return f, nil
	}
	return 0, &ConversionError{Node: "Float", Value: value}
}

// String accepts text with optional equality and length constraints.
// Lengths count characters, not bytes.
type String struct {
	eq       *string
	min, max *int
}

// StringOptions configures a String node. Min must not be negative, Max must
// be at least 1 and Min must not exceed Max.
type StringOptions struct {
	Eq       *string
	Min, Max *int
}

// NewString creates a String node.
func NewString(opts StringOptions) (*String, error) {
	if err := validateSize("String", opts.Min, opts.Max); err != nil {
		return nil, err
	}
	return &String{eq: opts.Eq, min: opts.Min, max: opts.Max}, nil
}

// Kind implements Node.
func (*String) Kind() Kind { return KindString }

// Check implements Node.
func (n *String) Check(value any) (any, error) {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		if !utf8.Valid(v) {
			return nil, &ConversionError{Node: "String", Value: value, Err: fmt.Errorf("invalid UTF-8")}
		}
		s = string(v)
	default:
		return nil, &ConversionError{Node: "String", Value: value}
	}

	length := utf8.RuneCountInString(s)
	ranges := fmt.Sprintf("minlen=%s, maxlen=%s, len=%d", optString(n.min), optString(n.max), length)
	switch {
	case n.eq != nil && s != *n.eq:
		return nil, checkErrorf("value '%s' not equal '%s'", s, *n.eq)
	case n.min != nil && length < *n.min:
		return nil, checkErrorf("value '%s' too short. %s", s, ranges)
	case n.max != nil && length > *n.max:
		return nil, checkErrorf("value '%s' too long. %s", s, ranges)
	}
	return s, nil
}

// Option accepts the first matching literal or the result of the first
// nested node that accepts the value.
type Option struct {
	options []any
}

// NewOption creates an Option node. Each option is either a Node or a
// literal value.
func NewOption(options ...any) *Option {
	return &Option{options: options}
}

// Kind implements Node.
func (*Option) Kind() Kind { return KindOption }

// Check implements Node. Errors from nested nodes are discarded while
// scanning.
func (n *Option) Check(value any) (any, error) {
	for _, o := range n.options {
		if node, ok := o.(Node); ok {
			if out, err := node.Check(value); err == nil {
				return out, nil
			}
			continue
		}
		if equalValues(value, o) {
			return o, nil
		}
	}
	return nil, checkErrorf("value %v not contains in options", value)
}

// equalValues compares literals with numeric kinds compared by value.
func equalValues(a, b any) bool {
	if _, isBool := a.(bool); !isBool {
		if _, isBool := b.(bool); !isBool {
			af, aok := asFloat(a)
			bf, bok := asFloat(b)
			if aok && bok {
				return af == bf
			}
		}
	}
	na, errA := config.Normalize(a)
	nb, errB := config.Normalize(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return reflect.DeepEqual(na, nb)
}

func asInt(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), v <= math.MaxInt64
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), v <= math.MaxInt64
	}
	return 0, false
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	if i, ok := asInt(value); ok {
		return float64(i), true
	}
	return 0, false
}

func validateSize(node string, lo, hi *int) error {
	if lo != nil && *lo < 0 {
		return nodeErrorf(node, "min %d is negative", *lo)
	}
	if hi != nil && *hi < 1 {
		return nodeErrorf(node, "max %d is less than 1", *hi)
	}
	if lo != nil && hi != nil && *lo > *hi {
		return nodeErrorf(node, "min %d greater than max %d", *lo, *hi)
	}
	return nil
}

func optString(v *int) string {
	if v == nil {
		return "None"
	}
	return strconv.Itoa(*v)
}
