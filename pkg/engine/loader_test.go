package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/execconf/execconf/pkg/config"
	"github.com/execconf/execconf/pkg/telemetry"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoader(t *testing.T, files map[string]string, opts ...Option) *Loader {
	t.Helper()
	l, err := NewLoader("", append([]Option{WithFS(unitFS(files))}, opts...)...)
	require.NoError(t, err)
	return l
}

// countingEvaluator counts evaluations per unit path.
type countingEvaluator struct {
	next  config.UnitEvaluator
	calls map[string]*atomic.Int32
}

func newCountingEvaluator() *countingEvaluator {
	return &countingEvaluator{next: config.NewStarlarkEvaluator(), calls: make(map[string]*atomic.Int32)}
}

func (c *countingEvaluator) Evaluate(ctx context.Context, unit config.Unit) (map[string]any, error) {
	n, ok := c.calls[unit.Path]
	if !ok {
		n = new(atomic.Int32)
		c.calls[unit.Path] = n
	}
	n.Add(1)
	return c.next.Evaluate(ctx, unit)
}

func (c *countingEvaluator) count(path string) int {
	if n, ok := c.calls[path]; ok {
		return int(n.Load())
	}
	return 0
}

func TestLoader_EndToEnd(t *testing.T) {
	l := newTestLoader(t, map[string]string{
		"app.py": "FOO = 'BAR'\nBAZ = 123\nQUX = ['Hello']\n",
	})

	cfg, err := l.Load(context.Background(), "app", nil)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Len())
	assert.Equal(t, map[string]any{
		"FOO": "BAR",
		"BAZ": int64(123),
		"QUX": []any{"Hello"},
	}, cfg.ToMap())

	qux, ok := cfg.Get("QUX")
	require.True(t, ok)
	assert.IsType(t, &config.List{}, qux)
}

func TestLoader_IncludeOrder(t *testing.T) {
	l := newTestLoader(t, map[string]string{
		"base.py":  "FOO = 'base'\nBASE_ONLY = 1\nNESTED = {'a': 1, 'b': 1}\n",
		"local.py": "NESTED = {'b': 2}\n",
		"app.py": `
include('base')
merge('local')
FOO = 'app'
APP_ONLY = True
`,
	})

	cfg, err := l.Load(context.Background(), "app.py", nil)
	require.NoError(t, err)

	want := map[string]any{
		"FOO":       "base",
		"BASE_ONLY": int64(1),
		"APP_ONLY":  true,
		"NESTED":    map[string]any{"a": int64(1), "b": int64(2)},
	}
	if diff := cmp.Diff(want, cfg.ToMap()); diff != "" {
		t.Errorf("unexpected config (-want +got):\n%s", diff)
	}
}

func TestLoader_MergeOption(t *testing.T) {
	l := newTestLoader(t, map[string]string{
		"merge_option-merging.py": `
MERGE = True
OPT1 = {"BAR": {"BAZZ": 22}, "QUX": 33}
OPT2 = {"LVL1_KEY2": True, "LVL1": {"LVL2_KEY2": True}}
OPT3 = {
    "LVL1_KEY2": True,
    "LVL1": {
        "LVL2_KEY2": True,
        "LVL2": {
            "LVL3_KEY2": True,
            "LVL3": {"LVL4_KEY2": True},
        },
    },
}
`,
		"merge_option-merging2.py": "OPT4 = {'BAR': 222}\nOPT6 = 12321\nOPT8 = 'x'\n",
		"merge_option.py": `
MERGE = False
OPT1 = {"FOO": 1, "BAR": {"BAZ": 2}, "QUX": 3}
OPT2 = {
    "LVL1_KEY1": True,
    "LVL1": {"LVL2_KEY1": True, "LVL2": {"LVL3_KEY1": True}},
}
OPT3 = {
    "LVL1_KEY1": True,
    "LVL1": {
        "LVL2_KEY1": True,
        "LVL2": {
            "LVL3_KEY1": True,
            "LVL3": {"LVL4_KEY1": True},
        },
    },
}
OPT4 = {"FOO": 1}
OPT5 = "FOO"
OPT7 = True

merge_option("merge_option-merging", ["MERGE", "OPT1"])
merge_option("merge_option-merging", "OPT2", depth=1)
merge_option("merge_option-merging", "OPT3", depth=3)
merge_option("merge_option-merging2", "OPT4")
merge_option("merge_option-merging2", "OPT6")
merge_option("merge_option-merging2", "OPT7")
`,
	})

	cfg, err := l.Load(context.Background(), "merge_option", nil)
	require.NoError(t, err)
	got := cfg.ToMap()

	assert.Equal(t, true, got["MERGE"])
	assert.Equal(t, map[string]any{
		"FOO": int64(1),
		"BAR": map[string]any{"BAZ": int64(2), "BAZZ": int64(22)},
		"QUX": int64(33),
	}, got["OPT1"])

	opt2 := got["OPT2"].(map[string]any)
	assert.Contains(t, opt2, "LVL1_KEY1")
	assert.Contains(t, opt2, "LVL1_KEY2")
	assert.NotContains(t, opt2["LVL1"], "LVL2_KEY1")
	assert.Contains(t, opt2["LVL1"], "LVL2_KEY2")

	lvl2 := got["OPT3"].(map[string]any)["LVL1"].(map[string]any)["LVL2"].(map[string]any)
	assert.Contains(t, lvl2, "LVL3_KEY1")
	assert.Contains(t, lvl2, "LVL3_KEY2")
	assert.Equal(t, map[string]any{"LVL4_KEY2": true}, lvl2["LVL3"])

	assert.Equal(t, map[string]any{"FOO": int64(1), "BAR": int64(222)}, got["OPT4"])
	assert.Equal(t, "FOO", got["OPT5"])
	assert.Equal(t, int64(12321), got["OPT6"])
	assert.Equal(t, true, got["OPT7"])
	assert.NotContains(t, got, "OPT8")
}

func TestLoader_EvaluatesEachUnitOnce(t *testing.T) {
	counter := newCountingEvaluator()
	l := newTestLoader(t, map[string]string{
		"common.py": "SHARED = [1]\n",
		"sub.py":    "include('common')\nSUB = 1\n",
		"app.py":    "include('common')\ninclude('sub')\nmerge('common')\n",
	}, WithEvaluators(config.DefaultEvaluators().With(".py", counter)))

	cfg, err := l.Load(context.Background(), "app", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, counter.count("common.py"))
	assert.Equal(t, 1, counter.count("sub.py"))
	assert.Equal(t, 1, counter.count("app.py"))
	assert.Equal(t, []string{"SHARED", "SUB"}, cfg.Keys())

	_, err = l.Load(context.Background(), "app", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, counter.count("common.py"), "each session starts with an empty cache")
}

func TestTreeBuilder_SharedBranch(t *testing.T) {
	fsys := unitFS(map[string]string{
		"common.py": "SHARED = {'k': 1}\n",
		"app.py":    "include('common')\nmerge('./common.py')\n",
	})
	resolver := NewPathResolver(fsys, []string{"py"})
	scope := (&telemetry.Telemetry{Logger: telemetry.NewNopLogger()}).BeginSession(context.Background(), "s-1", "app")
	tb := newTreeBuilder(resolver, config.DefaultEvaluators(), DefaultRegistry(), scope, nil, nil)

	require.NoError(t, tb.handleResolved(context.Background(), tb.root, "app.py", dummyHelper{}, Args{}))

	app := tb.branches["app.py"]
	require.NotNil(t, app)
	require.Len(t, app.Edges, 2)
	assert.Same(t, app.Edges[0].Target, app.Edges[1].Target)
	assert.Equal(t, HelperInclude, app.Edges[0].Helper.Name())
	assert.Equal(t, HelperMerge, app.Edges[1].Helper.Name())
	assert.Equal(t, 1, app.Edges[1].Index)

	common := app.Edges[0].Target
	assert.Equal(t, UnitResolved, common.State)
	assert.Equal(t, reflect.ValueOf(common.Bindings).Pointer(), reflect.ValueOf(app.Edges[1].Target.Bindings).Pointer())
	assert.Empty(t, tb.stack)
}

func TestLoader_CircularInclude(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		ref   string
		chain []string
	}{
		{
			name:  "two units",
			files: map[string]string{"a.py": "include('b')\n", "b.py": "include('a')\n"},
			ref:   "a",
			chain: []string{"a.py", "b.py", "a.py"},
		},
		{
			name:  "self include",
			files: map[string]string{"a.py": "merge('a.py')\n"},
			ref:   "a",
			chain: []string{"a.py", "a.py"},
		},
		{
			name: "nested cycle",
			files: map[string]string{
				"root.py": "include('a')\n",
				"a.py":    "include('b')\n",
				"b.py":    "include('c')\n",
				"c.py":    "include('a')\n",
			},
			ref:   "root",
			chain: []string{"root.py", "a.py", "b.py", "c.py", "a.py"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestLoader(t, tt.files).Load(context.Background(), tt.ref, nil)
			require.Error(t, err)

			chain, ok := IsCircularInclude(err)
			require.True(t, ok, "unexpected error: %v", err)
			assert.Equal(t, tt.chain, chain)

			var ee *Error
			require.True(t, errors.As(err, &ee))
			assert.Equal(t, formatChain(tt.chain), ee.FormatChain())
		})
	}
}

func TestLoader_RelativeIncludes(t *testing.T) {
	l := newTestLoader(t, map[string]string{
		"base.py":        "LEVEL = 'base'\nBASE = True\n",
		"conf/common.py": "include('../base')\nLEVEL = 'common'\n",
		"conf/app.py":    "include('common')\n",
	})

	cfg, err := l.Load(context.Background(), "conf/app", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"LEVEL": "base", "BASE": true}, cfg.ToMap())
}

func TestLoader_DataUnits(t *testing.T) {
	l := newTestLoader(t, map[string]string{
		"base.yaml": "PORT: 8080\nHOSTS: [a, b]\n",
		"app.py":    "include('base.yaml')\nNAME = 'svc'\n",
	}, WithExtensions("py", ".yaml"))

	cfg, err := l.Load(context.Background(), "app", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"PORT":  int64(8080),
		"HOSTS": []any{"a", "b"},
		"NAME":  "svc",
	}, cfg.ToMap())
	assert.Equal(t, []string{"py", "yaml"}, l.Extensions())
}

func TestLoader_Defaults(t *testing.T) {
	files := map[string]string{
		"defaults.py": "FOO = 'default'\nONLY_DEFAULT = 1\n_private = 2\n",
		"app.py":      "FOO = 'app'\n",
	}

	t.Run("file", func(t *testing.T) {
		l := newTestLoader(t, files, WithDefaults(DefaultsFile{Path: "defaults"}))
		cfg, err := l.Load(context.Background(), "app", nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"FOO": "app", "ONLY_DEFAULT": int64(1)}, cfg.ToMap())
	})

	t.Run("map", func(t *testing.T) {
		l := newTestLoader(t, files, WithDefaults(&DefaultsMap{Data: map[string]any{
			"FOO":    "default",
			"PORT":   8080,
			"_skip":  true,
			"helper": func() {},
		}}))
		cfg, err := l.Load(context.Background(), "app", nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"FOO": "app", "PORT": int64(8080)}, cfg.ToMap())
	})

	t.Run("file has no directives", func(t *testing.T) {
		l := newTestLoader(t, map[string]string{
			"defaults.py": "include('app')\n",
			"app.py":      "FOO = 1\n",
		}, WithDefaults(DefaultsFile{Path: "defaults.py"}))
		_, err := l.Load(context.Background(), "app", nil)
		assert.True(t, IsKind(err, ErrorKindEvaluation), "unexpected error: %v", err)
		assert.ErrorContains(t, err, "undefined: include")
	})

	t.Run("missing file", func(t *testing.T) {
		l := newTestLoader(t, files, WithDefaults(DefaultsFile{Path: "nope"}))
		_, err := l.Load(context.Background(), "app", nil)
		assert.True(t, IsKind(err, ErrorKindNotFoundWithExtensions))
	})

	t.Run("unsupported source", func(t *testing.T) {
		l := newTestLoader(t, files, WithDefaults(unknownDefaults{}))
		_, err := l.Load(context.Background(), "app", nil)
		assert.True(t, IsKind(err, ErrorKindTypeMismatch))
		assert.ErrorContains(t, err, "engine.unknownDefaults")
	})
}

type unknownDefaults struct{}

func (unknownDefaults) defaultsSource() {}

func TestParseDefaults(t *testing.T) {
	src, err := ParseDefaults("defaults.py")
	require.NoError(t, err)
	assert.Equal(t, DefaultsFile{Path: "defaults.py"}, src)

	src, err = ParseDefaults(map[string]any{"A": 1})
	require.NoError(t, err)
	assert.Equal(t, DefaultsMap{Data: map[string]any{"A": 1}}, src)

	src, err = ParseDefaults(config.NewConfig(map[string]any{"A": int64(1)}))
	require.NoError(t, err)
	assert.Equal(t, DefaultsMap{Data: map[string]any{"A": int64(1)}}, src)

	_, err = ParseDefaults(42)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrorKindTypeMismatch))
	assert.Contains(t, err.Error(), "int")
}

func TestLoader_Hooks(t *testing.T) {
	var order []string
	builder := BuilderFunc(func(_ context.Context, data map[string]any) (map[string]any, error) {
		order = append(order, "build")
		assert.NotContains(t, data, "EXTRA", "extras are applied after the builder")
		out := make(map[string]any, len(data)+1)
		for k, v := range data {
			out[k] = v
		}
		out["BUILT"] = true
		out["FOO"] = "built"
		return out, nil
	})
	validator := ValidatorFunc(func(data map[string]any) (map[string]any, error) {
		order = append(order, "validate")
		assert.Equal(t, int64(7), data["EXTRA"], "extras are validated")
		assert.Equal(t, true, data["BUILT"])
		return data, nil
	})

	l := newTestLoader(t, map[string]string{"app.py": "FOO = 'app'\n"},
		WithBuilder(builder), WithValidator(validator))

	cfg, err := l.Load(context.Background(), "app", map[string]any{"EXTRA": 7, "FOO": "extra"})
	require.NoError(t, err)
	assert.Equal(t, []string{"build", "validate"}, order)
	assert.Equal(t, map[string]any{"FOO": "extra", "BUILT": true, "EXTRA": int64(7)}, cfg.ToMap())
}

func TestLoader_HookErrors(t *testing.T) {
	files := map[string]string{"app.py": "FOO = 1\n"}
	boom := errors.New("boom")

	tests := []struct {
		name  string
		opts  []Option
		extra map[string]any
		check func(t *testing.T, err error)
	}{
		{
			name: "builder error",
			opts: []Option{WithBuilder(BuilderFunc(func(context.Context, map[string]any) (map[string]any, error) {
				return nil, boom
			}))},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, boom) },
		},
		{
			name: "builder returns nothing",
			opts: []Option{WithBuilder(BuilderFunc(func(context.Context, map[string]any) (map[string]any, error) {
				return nil, nil
			}))},
			check: func(t *testing.T, err error) { assert.True(t, IsKind(err, ErrorKindTypeMismatch)) },
		},
		{
			name: "validator error",
			opts: []Option{WithValidator(ValidatorFunc(func(map[string]any) (map[string]any, error) {
				return nil, boom
			}))},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, boom) },
		},
		{
			name: "validator returns nothing",
			opts: []Option{WithValidator(ValidatorFunc(func(map[string]any) (map[string]any, error) {
				return nil, nil
			}))},
			check: func(t *testing.T, err error) { assert.True(t, IsKind(err, ErrorKindTypeMismatch)) },
		},
		{
			name:  "extra is not data",
			extra: map[string]any{"FN": func() {}},
			check: func(t *testing.T, err error) { assert.True(t, IsKind(err, ErrorKindTypeMismatch)) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestLoader(t, files, tt.opts...).Load(context.Background(), "app", tt.extra)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestLoader_UnitErrors(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		kind ErrorKind
		path string
	}{
		{name: "missing root", ref: "nope", kind: ErrorKindNotFoundWithExtensions},
		{name: "missing include", ref: "broken_include", kind: ErrorKindNotFound, path: "missing.py"},
		{name: "syntax error in include", ref: "includes_bad", kind: ErrorKindEvaluation, path: "bad.py"},
		{name: "include escapes root", ref: "escapes", kind: ErrorKindOutsideRoot},
		{name: "empty include", ref: "empty_include", kind: ErrorKindNotFound},
	}

	l := newTestLoader(t, map[string]string{
		"broken_include.py": "include('missing.py')\n",
		"includes_bad.py":   "include('bad')\n",
		"bad.py":            "FOO = \n",
		"escapes.py":        "include('../etc/passwd.py')\n",
		"empty_include.py":  "include('')\n",
		".py":               "X = 1\n",
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Load(context.Background(), tt.ref, nil)
			require.Error(t, err)
			assert.True(t, IsKind(err, tt.kind), "want %s, got %v", tt.kind, err)
			if tt.path != "" {
				var ee *Error
				require.True(t, errors.As(err, &ee))
				assert.Equal(t, tt.path, ee.Path)
			}
		})
	}
}

func TestLoader_PrintCarriesSession(t *testing.T) {
	out := filepath.Join(t.TempDir(), "engine.log")
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "info", Format: "json", Output: out})
	require.NoError(t, err)

	l := newTestLoader(t, map[string]string{
		"app.py":  "include('base')\nprint('app loaded')\n",
		"base.py": "print('base loaded')\nFOO = 1\n",
	}, WithTelemetry(logger, nil, nil))

	_, err = l.Load(context.Background(), "app", nil)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var printed []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if strings.Contains(line, `"source":"print"`) {
			printed = append(printed, line)
		}
	}
	require.Len(t, printed, 2)
	assert.Contains(t, printed[0], `"unit":"base.py"`)
	assert.Contains(t, printed[0], `"component":"engine"`)
	assert.Contains(t, printed[0], `"session_id":`)
	assert.Contains(t, printed[1], `"message":"app loaded"`)
}

func TestLoader_LoadSource(t *testing.T) {
	l := newTestLoader(t, map[string]string{
		"base.py": "FOO = 'base'\nBAR = 1\n",
	})

	cfg, err := l.LoadSource(context.Background(), []byte("include('base')\nBAR = 2\nOWN = True\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"FOO": "base", "BAR": int64(1), "OWN": true}, cfg.ToMap())

	_, err = l.LoadSource(context.Background(), []byte("FOO = \n"), nil)
	var ee *Error
	require.True(t, errors.As(err, &ee), "unexpected error: %v", err)
	assert.Equal(t, ErrorKindEvaluation, ee.Kind)
	assert.Equal(t, "<stdin>.py", ee.Path)
}

func TestLoader_Replacement(t *testing.T) {
	l := newTestLoader(t, map[string]string{
		"app.py": "EXEC_REPLACEMENT = {'env': 'prod'}\nURL = 'http://%(env)s.local'\n",
	})

	cfg, err := l.Load(context.Background(), "app", map[string]any{"EXEC_REPLACEMENT": map[string]any{"env": "stage"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"URL": "http://stage.local"}, cfg.ToMap())
}

func TestLoader_RootDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "conf"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conf", "app.py"), []byte("include('../base')\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.py"), []byte("FOO = 'BAR'\n"), 0o644))

	l, err := NewLoader(dir)
	require.NoError(t, err)

	cfg, err := l.Load(context.Background(), "conf/app", nil)
	require.NoError(t, err)
	v, ok := cfg.Get("FOO")
	require.True(t, ok)
	assert.Equal(t, "BAR", v)
}

func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "no root", opts: Options{}},
		{name: "root is not a directory", opts: Options{RootDir: filepath.Join(t.TempDir(), "missing")}},
		{name: "empty extension", opts: Options{FS: unitFS(nil), Extensions: []string{""}}},
		{name: "extension with separator", opts: Options{FS: unitFS(nil), Extensions: []string{"a/b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			assert.ErrorContains(t, err, "invalid loader options")
		})
	}
}

func TestLoader_Metrics(t *testing.T) {
	metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: true, Namespace: "test"})
	require.NoError(t, err)

	l := newTestLoader(t, map[string]string{
		"app.py":  "include('base')\n",
		"base.py": "FOO = 1\n",
	}, WithTelemetry(telemetry.NewNopLogger(), metrics, nil))

	_, err = l.Load(context.Background(), "app", nil)
	require.NoError(t, err)
	_, err = l.Load(context.Background(), "missing", nil)
	require.Error(t, err)

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["test_sessions_started_total"], "families: %v", names)
	assert.True(t, names["test_errors_total"], "families: %v", names)
}

func TestLoader_Events(t *testing.T) {
	ep, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	require.NoError(t, err)
	var events []telemetry.Event
	ep.Subscribe(func(e telemetry.Event) { events = append(events, e) }, nil)

	l := newTestLoader(t, map[string]string{
		"app.py":    "include('base')\n",
		"base.py":   "FOO = 1\n",
		"broken.py": "include('base')\nFOO = 1 // 0\n",
	}, WithEvents(ep))

	_, err = l.Load(context.Background(), "app", nil)
	require.NoError(t, err)

	type summary struct{ Type, Unit string }
	var got []summary
	for _, e := range events {
		got = append(got, summary{e.Type, e.Unit})
	}
	if diff := cmp.Diff([]summary{
		{telemetry.EventTypeSessionStarted, "app"},
		{telemetry.EventTypeUnitEvaluated, "base.py"},
		{telemetry.EventTypeUnitEvaluated, "app.py"},
		{telemetry.EventTypeSessionCompleted, "app"},
	}, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, events[3].Data["keys"])
	for _, e := range events {
		assert.Equal(t, events[0].SessionID, e.SessionID)
	}

	events = nil
	_, err = l.Load(context.Background(), "broken", nil)
	require.Error(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, telemetry.EventTypeUnitFailed, events[2].Type)
	assert.Equal(t, "broken.py", events[2].Unit)
	last := events[3]
	assert.Equal(t, telemetry.EventTypeSessionFailed, last.Type)
	assert.Equal(t, telemetry.EventLevelError, last.Level)
	assert.Equal(t, string(ErrorKindEvaluation), last.Data["kind"])
}
