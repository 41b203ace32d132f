package engine_test

import (
	"context"
	"fmt"
	"testing/fstest"

	"github.com/execconf/execconf/pkg/engine"
)

// Example_session resolves a small unit tree held in memory.
func Example_session() {
	units := fstest.MapFS{
		"base.py": &fstest.MapFile{Data: []byte(`
DATABASE = {"host": "localhost", "port": 5432}
DEBUG = False
`)},
		"app.py": &fstest.MapFile{Data: []byte(`
include("base")
merge("local")
NAME = "billing"
`)},
		"local.py": &fstest.MapFile{Data: []byte(`
DATABASE = {"host": "db.internal"}
`)},
	}

	loader, err := engine.NewLoader("",
		engine.WithFS(units),
		engine.WithDefaults(engine.DefaultsMap{Data: map[string]any{"DEBUG": true, "REGION": "eu"}}),
	)
	if err != nil {
		fmt.Println(err)
		return
	}

	cfg, err := loader.Load(context.Background(), "app", map[string]any{"NAME": "billing-canary"})
	if err != nil {
		fmt.Println(err)
		return
	}

	for _, key := range cfg.Keys() {
		v, _ := cfg.Get(key)
		fmt.Printf("%s = %v\n", key, v)
	}
	// Output:
	// DATABASE = map[host:db.internal port:5432]
	// DEBUG = false
	// NAME = billing-canary
	// REGION = eu
}

// Example_circularInclude shows how an inclusion cycle is reported.
func Example_circularInclude() {
	units := fstest.MapFS{
		"a.py": &fstest.MapFile{Data: []byte(`include("b")`)},
		"b.py": &fstest.MapFile{Data: []byte(`include("a")`)},
	}

	loader, _ := engine.NewLoader("", engine.WithFS(units))
	_, err := loader.Load(context.Background(), "a", nil)

	if chain, ok := engine.IsCircularInclude(err); ok {
		fmt.Println(chain)
	}
	// Output:
	// [a.py b.py a.py]
}
