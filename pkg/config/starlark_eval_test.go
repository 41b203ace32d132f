package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/execconf/execconf/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func evalScript(t *testing.T, src string, directives starlark.StringDict) (map[string]any, error) {
	t.Helper()
	return NewStarlarkEvaluator().Evaluate(context.Background(), Unit{
		Path:       "unit.py",
		Source:     []byte(src),
		Directives: directives,
	})
}

func TestStarlarkEvaluator_Evaluate(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		want    map[string]any
		wantErr string
	}{
		{
			name:   "primitive bindings",
			script: "FOO = 'BAR'\nBAZ = 123\nPI = 3.5\nON = True\nNOTHING = None\n",
			want: map[string]any{
				"FOO": "BAR", "BAZ": int64(123), "PI": 3.5, "ON": true, "NOTHING": nil,
			},
		},
		{
			name:   "composite bindings",
			script: "QUX = ['Hello']\nPAIR = (1, 2)\nNESTED = {'a': {'b': [1]}}\n",
			want: map[string]any{
				"QUX":    []any{"Hello"},
				"PAIR":   []any{int64(1), int64(2)},
				"NESTED": map[string]any{"a": map[string]any{"b": []any{int64(1)}}},
			},
		},
		{
			name:   "private names dropped",
			script: "_hidden = 1\n__also = 2\nVISIBLE = _hidden + __also\n",
			want:   map[string]any{"VISIBLE": int64(3)},
		},
		{
			name: "functions dropped",
			script: `
def double(n):
    return n * 2

RESULT = double(21)
`,
			want: map[string]any{"RESULT": int64(42)},
		},
		{
			name:   "non-string dict keys rendered",
			script: "M = {1: 'one', True: 'yes'}\n",
			want:   map[string]any{"M": map[string]any{"1": "one", "True": "yes"}},
		},
		{
			name:    "syntax error",
			script:  "FOO = \n",
			wantErr: "starlark execution failed",
		},
		{
			name:    "surrounding environment not exposed",
			script:  "X = include('other')\n",
			wantErr: "undefined: include",
		},
		{
			name:    "integer overflow",
			script:  "BIG = 1 << 80\n",
			wantErr: "integer too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evalScript(t, tt.script, nil)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStarlarkEvaluator_Directives(t *testing.T) {
	var calls []string
	include := starlark.NewBuiltin("include", func(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var ref string
		if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "ref", &ref); err != nil {
			return nil, err
		}
		calls = append(calls, ref)
		return starlark.None, nil
	})

	got, err := evalScript(t, "include('a')\ninclude('b/c')\nFOO = 1\n", starlark.StringDict{"include": include})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b/c"}, calls)
	assert.Equal(t, map[string]any{"FOO": int64(1)}, got)
}

func TestStarlarkEvaluator_Convert(t *testing.T) {
	marker := starlark.NewBuiltin("marker", func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
		return starlark.String("unused"), nil
	})
	convert := func(v starlark.Value) (any, bool, error) {
		if b, ok := v.(*starlark.Builtin); ok && b.Name() == "marker" {
			return "converted", true, nil
		}
		return nil, false, nil
	}

	got, err := NewStarlarkEvaluator().Evaluate(context.Background(), Unit{
		Path:       "unit.py",
		Source:     []byte("M = marker\nL = [marker]\nS = 'plain'\n"),
		Directives: starlark.StringDict{"marker": marker},
		Convert:    convert,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"M": "converted",
		"L": []any{"converted"},
		"S": "plain",
	}, got)
}

func TestStarlarkEvaluator_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	script := `
def spin():
    total = 0
    for i in range(1000000000):
        total += i
    return total

RESULT = spin()
`
	start := time.Now()
	_, err := NewStarlarkEvaluator().Evaluate(ctx, Unit{Path: "slow.py", Source: []byte(script)})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, strings.Contains(err.Error(), "deadline") || strings.Contains(err.Error(), "cancel"),
		"unexpected error: %v", err)
}

func TestStarlarkEvaluator_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStarlarkEvaluator().Evaluate(ctx, Unit{Path: "unit.py", Source: []byte("FOO = 1\n")})
	require.ErrorIs(t, err, context.Canceled)
}

func TestStarlarkEvaluator_Security(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{name: "no load statement", script: "load('os.star', 'system')\n"},
		{name: "no file access", script: "DATA = open('/etc/passwd')\n"},
		{name: "no import", script: "import os\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := evalScript(t, tt.script, nil)
			assert.Error(t, err)
		})
	}
}

func TestStarlarkEvaluator_Print(t *testing.T) {
	out := filepath.Join(t.TempDir(), "print.log")
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "info", Format: "json", Output: out})
	require.NoError(t, err)

	got, err := NewStarlarkEvaluator().Evaluate(context.Background(), Unit{
		Path:   "conf/app.py",
		Source: []byte("print('hello from', 'app')\nFOO = 1\n"),
		Logger: logger.WithSession("s-9"),
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"FOO": int64(1)}, got)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	line := string(data)
	assert.Contains(t, line, `"session_id":"s-9"`)
	assert.Contains(t, line, `"unit":"conf/app.py"`)
	assert.Contains(t, line, `"source":"print"`)
	assert.Contains(t, line, `"message":"hello from app"`)

	_, err = evalScript(t, "print('discarded')\n", nil)
	assert.NoError(t, err, "a unit without a logger prints nowhere")
}
