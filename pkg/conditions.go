package pkg

import (
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/rs/zerolog/log"
)

// Flags maps input flag names to their typed values for condition evaluation.
type Flags map[string]any

// MergeFlags layers pipeline-level input defaults over the base flags.
// Values that parse as booleans become booleans, everything else stays a
// string.
func MergeFlags(base Flags, overrides map[string]string) Flags {
	merged := make(Flags, len(base)+len(overrides))
	for name, value := range base {
		merged[name] = value
	}

	for name, raw := range overrides {
		// an explicitly empty override means unset, not the empty string
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if value, err := boolInput(name, raw, false); err == nil {
			merged[name] = value
			continue
		}
		merged[name] = raw
	}

	return merged
}

// ValidateCondition checks the expression syntax without evaluating it.
func ValidateCondition(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}

	if _, err := govaluate.NewEvaluableExpression(expr); err != nil {
		return &ConfigError{Field: "if", Reason: fmt.Sprintf("has invalid condition %q: %v", expr, err)}
	}

	return nil
}

// EvaluateCondition resolves a step condition against the flags. An empty
// condition is true. Flags the expression references but the caller never
// provided default to false with a warning rather than failing the run.
func EvaluateCondition(expr string, flags Flags) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}

	parsed, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return false, &ConfigError{Field: "if", Reason: fmt.Sprintf("has invalid condition %q: %v", expr, err)}
	}

	params := make(map[string]any, len(flags))
	for name, value := range flags {
		params[name] = value
	}
	for _, name := range parsed.Vars() {
		if _, fnd := params[name]; !fnd {
			log.Warn().Str("flag", name).Str("condition", expr).Msg("unknown flag, defaulting to false")
			params[name] = false
		}
	}

	value, err := parsed.Evaluate(params)
	if err != nil {
		return false, fmt.Errorf("unable to evaluate condition %q: %w", expr, err)
	}

	result, fnd := value.(bool)
	if !fnd {
		return false, &ConfigError{Field: "if", Reason: fmt.Sprintf("condition %q does not evaluate to a boolean", expr)}
	}

	return result, nil
}
