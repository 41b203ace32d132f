package config

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAMLEvaluator evaluates data-only units written in YAML or JSON.
// Data units cannot include other units.
type YAMLEvaluator struct{}

// NewYAMLEvaluator creates a new YAML evaluator.
func NewYAMLEvaluator() *YAMLEvaluator {
	return &YAMLEvaluator{}
}

// Name implements NamedEvaluator.
func (ye *YAMLEvaluator) Name() string {
	return "yaml"
}

// Evaluate decodes the unit body as a top-level mapping.
func (ye *YAMLEvaluator) Evaluate(ctx context.Context, unit Unit) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(unit.Source, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", unit.Path, err)
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
