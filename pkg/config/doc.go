// Package config evaluates configuration units and holds the immutable
// configuration they resolve to.
//
// # Overview
//
// A unit is one file below the root directory. The engine decides which units
// take part in a session; this package only turns a single unit body into a
// mapping of bindings, and freezes the final merged mapping.
//
// # Components
//
// StarlarkEvaluator: Executes script units in a sandboxed Starlark thread. The
// only predeclared names are the directives the caller passes in Unit.Directives.
// The thread is cancelled when the context is done.
//
// YAMLEvaluator: Decodes .yaml, .yml and .json units into a mapping.
//
// CUEEvaluator: Compiles .cue units and exports their concrete value.
//
// Evaluators: Selects an evaluator by file extension. Extensions without a
// dedicated evaluator are Starlark units.
//
// Config, Map, List: Read-only views over the final mapping. Nested mappings
// become *Map and sequences become *List.
//
// # Bindings
//
// Every evaluator filters its result the same way. Names starting with an
// underscore are private and dropped. Functions, modules and other non-data
// values are dropped. What remains is normalized to:
//
//	nil, bool, int64, float64, string, []any, map[string]any
//
// Integers outside the int64 range are an error.
//
// # Usage Example
//
//	ev := config.DefaultEvaluators().For("conf/app.py")
//	bindings, err := ev.Evaluate(ctx, config.Unit{
//	    Path:   "conf/app.py",
//	    Source: src,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cfg := config.NewConfig(bindings)
//	host, _ := cfg.Lookup("DATABASE.host")
//
//	var settings struct {
//	    Debug bool `mapstructure:"DEBUG"`
//	}
//	if err := cfg.Decode(&settings); err != nil {
//	    log.Fatal(err)
//	}
//
// # String Replacement
//
// ApplyReplacement removes a top-level EXEC_REPLACEMENT mapping and formats
// every string key and value with it:
//
//	EXEC_REPLACEMENT = {"env": "prod"}
//	URL = "https://%(env)s.example.com"  # https://prod.example.com
//
// Supported verbs are s, r, d, i and f. A literal percent sign is
// written as %%.
package config
