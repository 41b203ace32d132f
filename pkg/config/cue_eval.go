package config

import (
	"context"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// CUEEvaluator evaluates data-only units written in CUE. The unit must be
// concrete after evaluation.
type CUEEvaluator struct{}

// NewCUEEvaluator creates a new CUE evaluator.
func NewCUEEvaluator() *CUEEvaluator {
	return &CUEEvaluator{}
}

// Name implements NamedEvaluator.
func (ce *CUEEvaluator) Name() string {
	return "cue"
}

// Evaluate compiles the unit and decodes its concrete top-level struct.
func (ce *CUEEvaluator) Evaluate(ctx context.Context, unit Unit) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cctx := cuecontext.New()
	val := cctx.CompileBytes(unit.Source, cue.Filename(unit.Path))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile %s: %s", unit.Path, errors.Details(err, nil))
	}
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("unit %s is not concrete: %s", unit.Path, errors.Details(err, nil))
	}

	var raw map[string]any
	if err := val.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", unit.Path, err)
	}

	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if isPrivate(k) {
			continue
		}
		n, err := Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("failed to convert binding %s: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}
