package schema

import (
	"testing"

	"github.com/execconf/execconf/pkg/config"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustInteger(t *testing.T, opts IntegerOptions) *Integer {
	t.Helper()
	n, err := NewInteger(opts)
	require.NoError(t, err)
	return n
}

func mustString(t *testing.T, opts StringOptions) *String {
	t.Helper()
	n, err := NewString(opts)
	require.NoError(t, err)
	return n
}

func TestList_Loop(t *testing.T) {
	n, err := NewList(ListOptions{Decl: []Node{NewBoolean(BooleanOptions{}), mustString(t, StringOptions{})}})
	require.NoError(t, err)

	got, err := n.Check([]any{"true", "x", "false", "y"})
	require.NoError(t, err)
	assert.Equal(t, []any{true, "x", false, "y"}, got)

	strict, err := NewList(ListOptions{
		Decl:   []Node{NewBoolean(BooleanOptions{}), mustString(t, StringOptions{})},
		NoLoop: true,
	})
	require.NoError(t, err)

	got, err = strict.Check([]any{"on", "x"})
	require.NoError(t, err)
	assert.Equal(t, []any{true, "x"}, got)

	_, err = strict.Check([]any{"on", "x", "off"})
	assert.EqualError(t, err, "list size 3 greater than declared checks 2")
}

func TestList_Check(t *testing.T) {
	n, err := NewList(ListOptions{})
	require.NoError(t, err)

	tests := []struct {
		name string
		in   any
		want []any
	}{
		{name: "slice", in: []any{"foo", "bar", int64(3)}, want: []any{"foo", "bar", int64(3)}},
		{name: "typed slice", in: []string{"a", "b"}, want: []any{"a", "b"}},
		{name: "array", in: [2]int{1, 2}, want: []any{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Check(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	frozen, ok := config.Freeze(map[string]any{"l": []any{"x"}}).Get("l")
	require.True(t, ok)
	got, err := n.Check(frozen)
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, got)

	for _, in := range []any{"abc", []byte("abc"), nil, int64(1), map[string]any{}} {
		_, err := n.Check(in)
		assert.True(t, IsConversionError(err), "%#v: %v", in, err)
	}
}

func TestList_ForceAndSize(t *testing.T) {
	forced, err := NewListInteger(ListOptions{Force: true, Max: Ptr(2)})
	require.NoError(t, err)

	got, err := forced.Check("7")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(7)}, got)

	_, err = forced.Check([]any{1, 2, 3})
	assert.EqualError(t, err, "list size 3 greater than 2")

	sized, err := NewListString(ListOptions{Min: Ptr(1)})
	require.NoError(t, err)
	_, err = sized.Check([]any{})
	assert.EqualError(t, err, "list size 0 less than 1")

	_, err = sized.Check([]any{"ok", 1})
	assert.True(t, IsConversionError(err))
}

func TestList_Shorthands(t *testing.T) {
	tests := []struct {
		name string
		ctor func(ListOptions) (*List, error)
		in   []any
		want []any
	}{
		{name: "boolean", ctor: NewListBoolean, in: []any{true, "yes", 1, false, "no", 0}, want: []any{true, true, true, false, false, false}},
		{name: "integer", ctor: NewListInteger, in: []any{1, 2.3}, want: []any{int64(1), int64(2)}},
		{name: "float", ctor: NewListFloat, in: []any{1, 2.3}, want: []any{1.0, 2.3}},
		{name: "string", ctor: NewListString, in: []any{"foo", "bar"}, want: []any{"foo", "bar"}},
		{name: "dict", ctor: NewListDict, in: []any{map[string]any{"a": 1}}, want: []any{map[string]any{"a": 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := tt.ctor(ListOptions{})
			require.NoError(t, err)
			got, err := n.Check(tt.in)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("unexpected result (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewList_Errors(t *testing.T) {
	for name, opts := range map[string]ListOptions{
		"empty decl":    {Decl: []Node{}},
		"nil decl item": {Decl: []Node{nil}},
		"negative min":  {Min: Ptr(-1)},
		"max below one": {Max: Ptr(0)},
		"min above max": {Min: Ptr(3), Max: Ptr(1)},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewList(opts)
			assert.True(t, IsNodeError(err), "unexpected error: %v", err)
		})
	}
}

func TestDict_KeyNode(t *testing.T) {
	n, err := NewDict(DictOptions{Decl: []DictEntry{
		{Key: "a", Value: mustInteger(t, IntegerOptions{})},
		{Key: mustString(t, StringOptions{}), Value: NewBoolean(BooleanOptions{})},
	}})
	require.NoError(t, err)

	got, err := n.Check(map[string]any{"a": "5", "other": "on"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(5), "other": true}, got)

	_, err = n.Check(map[string]any{"a": "5", "other": "maybe"})
	assert.True(t, IsConversionError(err))
}

func TestDict_ConvertedKeys(t *testing.T) {
	n, err := NewDict(DictOptions{
		Decl:     []DictEntry{{Key: mustInteger(t, IntegerOptions{}), Value: NewPass()}},
		Required: []string{"2"},
	})
	require.NoError(t, err)

	got, err := n.Check(map[string]any{"01": "x", " 2": "y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"1": "x", "2": "y"}, got)

	_, err = n.Check(map[string]any{"1": "x"})
	assert.EqualError(t, err, "required item '2' not found")

	_, err = n.Check(map[string]any{"one": "x"})
	assert.True(t, IsConversionError(err))
}

func TestDict_Check(t *testing.T) {
	n, err := NewDictOf(map[string]Node{
		"BOOL":  NewBoolean(BooleanOptions{}),
		"INT":   mustInteger(t, IntegerOptions{}),
		"INNER": mustDict(t, DictOptions{Decl: []DictEntry{{Key: "PORT", Value: mustInteger(t, IntegerOptions{})}}}),
	})
	require.NoError(t, err)

	in := config.Freeze(map[string]any{
		"BOOL":  int64(1),
		"INT":   123.456,
		"INNER": map[string]any{"PORT": "80"},
		"OTHER": "kept",
	})
	got, err := n.Check(in)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"BOOL":  true,
		"INT":   int64(123),
		"INNER": map[string]any{"PORT": int64(80)},
		"OTHER": "kept",
	}, got)

	_, err = n.Check([]any{})
	assert.True(t, IsConversionError(err))

	open, err := NewDict(DictOptions{Min: Ptr(1), Max: Ptr(2)})
	require.NoError(t, err)
	got, err = open.Check(map[string]any{"x": "1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": "1"}, got)

	_, err = open.Check(map[string]any{})
	assert.EqualError(t, err, "dict size 0 less than 1")
	_, err = open.Check(map[string]any{"a": 1, "b": 2, "c": 3})
	assert.EqualError(t, err, "dict size 3 greater than 2")
}

func mustDict(t *testing.T, opts DictOptions) *Dict {
	t.Helper()
	n, err := NewDict(opts)
	require.NoError(t, err)
	return n
}

func TestNewDict_Errors(t *testing.T) {
	list, err := NewList(ListOptions{})
	require.NoError(t, err)

	tests := []struct {
		name string
		opts DictOptions
		msg  string
	}{
		{
			name: "two key nodes",
			opts: DictOptions{Decl: []DictEntry{
				{Key: mustString(t, StringOptions{}), Value: NewPass()},
				{Key: mustInteger(t, IntegerOptions{}), Value: NewPass()},
			}},
			msg: "declared once",
		},
		{
			name: "collection key node",
			opts: DictOptions{Decl: []DictEntry{{Key: list, Value: NewPass()}}},
			msg:  "not List",
		},
		{
			name: "missing value node",
			opts: DictOptions{Decl: []DictEntry{{Key: "a"}}},
			msg:  "no value node",
		},
		{
			name: "unsupported key",
			opts: DictOptions{Decl: []DictEntry{{Key: 1, Value: NewPass()}}},
			msg:  "string or a node",
		},
		{
			name: "min above max",
			opts: DictOptions{Min: Ptr(2), Max: Ptr(1)},
			msg:  "greater than max",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDict(tt.opts)
			require.Error(t, err)
			assert.True(t, IsNodeError(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
