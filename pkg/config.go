package pkg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	envPrefix = "CONVEYOR_"

	DefaultBranch = "main"
)

// Inputs are the typed invocation inputs. RepositoryToken is opaque: it is
// handed to the executed steps and never inspected or logged.
type Inputs struct {
	RepositoryToken   string
	Branch            string
	EnableCI          bool
	EnableCodeQuality bool
}

// ConfigError is fatal and reported before any step executes.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}

func LoadInputs() (Inputs, error) {
	return NewInputs(
		os.Getenv(envPrefix+"REPOSITORY_TOKEN"),
		os.Getenv(envPrefix+"BRANCH"),
		os.Getenv(envPrefix+"ENABLE_CI"),
		os.Getenv(envPrefix+"ENABLE_CODE_QUALITY"),
	)
}

// NewInputs validates and coerces the raw input strings. Empty values take
// their defaults; a missing token or a malformed boolean is a ConfigError.
func NewInputs(token, branch, enableCI, enableCodeQuality string) (Inputs, error) {
	result := Inputs{}

	result.RepositoryToken = strings.TrimSpace(token)
	if len(result.RepositoryToken) == 0 {
		return Inputs{}, &ConfigError{Field: "repository_token", Reason: "is required"}
	}

	result.Branch = strings.TrimSpace(branch)
	if result.Branch == "" {
		result.Branch = DefaultBranch
	}

	var err error
	result.EnableCI, err = boolInput("enable_ci", enableCI, true)
	if err != nil {
		return Inputs{}, err
	}

	result.EnableCodeQuality, err = boolInput("enable_code_quality", enableCodeQuality, true)
	if err != nil {
		return Inputs{}, err
	}

	return result, nil
}

func boolInput(field, raw string, fallback bool) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &ConfigError{Field: field, Reason: fmt.Sprintf("has invalid boolean %q", raw)}
	}

	return value, nil
}

// Flags exposes the inputs the condition evaluator may reference. The token
// is deliberately absent.
func (i Inputs) Flags() Flags {
	return Flags{
		"branch":              i.Branch,
		"enable_ci":           i.EnableCI,
		"enable_code_quality": i.EnableCodeQuality,
	}
}
