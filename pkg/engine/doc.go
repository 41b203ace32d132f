// Package engine resolves a root configuration unit into one merged mapping.
//
// # Overview
//
// A unit is a file under a single root directory. Script units may call
// directives (include, merge, merge_option) that pull other units into the
// current one. Every directive call records an Edge on the including Branch;
// the Branches together form the inclusion tree of one session.
//
// A session runs in this order:
//
//  1. Defaults are resolved once and inserted as the first edge of the root.
//  2. The root unit is evaluated depth-first. Each distinct unit is evaluated
//     at most once per session and re-entering a unit that is still being
//     evaluated fails with a circular include error.
//  3. The tree is merged post-order, each edge folded with its helper in
//     declaration order.
//  4. The Builder hook runs, then the extra overlay, then the Validator hook.
//  5. EXEC_REPLACEMENT placeholders are expanded and the result is frozen
//     into a config.Config.
//
// # Usage
//
//	loader, err := engine.NewLoader("conf",
//	    engine.WithExtensions("py", "yaml"),
//	    engine.WithDefaults(engine.DefaultsFile{Path: "defaults"}),
//	)
//	if err != nil {
//	    return err
//	}
//	cfg, err := loader.Load(ctx, "prod", nil)
//
// # Errors
//
// Every failure is an *Error carrying an ErrorKind. Use IsKind, IsPathError
// and IsCircularInclude to classify them.
//
// # Concurrency
//
// A Loader holds no per-session state, but sessions are not designed to share
// Builder or Validator values that keep state of their own.
package engine
