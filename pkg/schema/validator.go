package schema

import (
	"fmt"

	"github.com/execconf/execconf/pkg/engine"
)

// Validator checks whole mappings against an abstract validation tree.
// It satisfies engine.Validator.
type Validator struct {
	root         Node
	onlyDeclared bool
}

var _ engine.Validator = (*Validator)(nil)

// NewValidator wraps root. onlyDeclared is recorded but does not change
// validation.
func NewValidator(root Node, onlyDeclared bool) (*Validator, error) {
	if root == nil {
		return nil, fmt.Errorf("validator root node is nil")
	}
	return &Validator{root: root, onlyDeclared: onlyDeclared}, nil
}

// Root returns the abstract validation tree.
func (v *Validator) Root() Node {
	return v.root
}

// OnlyDeclared reports the strictness flag the validator was built with.
func (v *Validator) OnlyDeclared() bool {
	return v.onlyDeclared
}

// Validate checks data and returns the converted mapping.
func (v *Validator) Validate(data map[string]any) (map[string]any, error) {
	out, err := v.root.Check(data)
	if err != nil {
		return nil, err
	}
	m, ok := out.(map[string]any)
	if !ok {
		return nil, engine.NewTypeMismatchError("validated data", out)
	}
	return m, nil
}
