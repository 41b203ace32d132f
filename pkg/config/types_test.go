package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfig_Immutable(t *testing.T) {
	src := map[string]any{
		"FOO": "BAR",
		"QUX": []any{"Hello"},
		"DB":  map[string]any{"host": "localhost", "ports": []any{int64(5432)}},
	}
	cfg := NewConfig(src)

	src["FOO"] = "changed"
	src["QUX"].([]any)[0] = "changed"
	src["DB"].(map[string]any)["host"] = "changed"

	v, _ := cfg.Get("FOO")
	assert.Equal(t, "BAR", v)

	qux, ok := cfg.Get("QUX")
	require.True(t, ok)
	list, ok := qux.(*List)
	require.True(t, ok, "sequences must be frozen into *List, got %T", qux)
	assert.Equal(t, "Hello", list.Index(0))

	host, ok := cfg.Lookup("DB.host")
	require.True(t, ok)
	assert.Equal(t, "localhost", host)

	out := cfg.ToMap()
	out["FOO"] = "mutated copy"
	v, _ = cfg.Get("FOO")
	assert.Equal(t, "BAR", v)
}

func TestConfig_Accessors(t *testing.T) {
	cfg := NewConfig(map[string]any{
		"b": int64(2),
		"a": map[string]any{"c": map[string]any{"d": true}},
	})

	assert.Equal(t, 2, cfg.Len())
	assert.Equal(t, []string{"a", "b"}, cfg.Keys())

	d, ok := cfg.Lookup("a.c.d")
	require.True(t, ok)
	assert.Equal(t, true, d)

	_, ok = cfg.Lookup("a.missing")
	assert.False(t, ok)
	_, ok = cfg.Lookup("b.deeper")
	assert.False(t, ok)

	var keys []string
	cfg.Map().Range(func(k string, _ any) bool {
		keys = append(keys, k)
		return false
	})
	assert.Equal(t, []string{"a"}, keys)
	assert.True(t, cfg.Map().Has("b"))
}

func TestConfig_Marshal(t *testing.T) {
	cfg := NewConfig(map[string]any{
		"FOO": "BAR",
		"BAZ": int64(123),
		"QUX": []any{"Hello"},
	})

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"FOO":"BAR","BAZ":123,"QUX":["Hello"]}`, string(data))

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	var back map[string]any
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, "BAR", back["FOO"])
	assert.Equal(t, []any{"Hello"}, back["QUX"])
}

func TestConfig_Decode(t *testing.T) {
	type database struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	}
	type settings struct {
		Debug    bool     `mapstructure:"DEBUG"`
		Hosts    []string `mapstructure:"HOSTS"`
		Database database `mapstructure:"DATABASE"`
	}

	cfg := NewConfig(map[string]any{
		"DEBUG": "true",
		"HOSTS": []any{"a", "b"},
		"DATABASE": map[string]any{
			"host": "db",
			"port": int64(5432),
		},
	})

	var s settings
	require.NoError(t, cfg.Decode(&s))
	assert.True(t, s.Debug)
	assert.Equal(t, []string{"a", "b"}, s.Hosts)
	assert.Equal(t, database{Host: "db", Port: 5432}, s.Database)

	err := cfg.Decode(settings{})
	assert.Error(t, err, "decoding into a non-pointer must fail")
}
