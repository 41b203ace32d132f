// Package schema validates and converts configuration data against a tree of
// typed nodes.
//
// Nodes are Pass, Boolean, Integer, Float, String, Option, List and Dict.
// Each node converts a value to its canonical kind and then applies its
// constraints. Constructors reject invalid configurations with a *NodeError;
// Check fails with a *ConversionError for values of the wrong kind and with a
// *CheckError for constraint violations.
//
// Schema trees can be written in Go:
//
//	port, _ := schema.NewInteger(schema.IntegerOptions{Gt: schema.Ptr[int64](0)})
//	root, _ := schema.NewDictOf(map[string]schema.Node{"PORT": port})
//	v, _ := schema.NewValidator(root, false)
//
// or as Starlark units loaded with a Loader, where the constructors are
// predeclared under the same names:
//
//	EXEC_VALIDATION = Dict({
//	    "PORT": Integer(gt=0),
//	    String(): Boolean(),
//	})
//
// A *Validator satisfies engine.Validator and can be passed to the engine.
package schema
