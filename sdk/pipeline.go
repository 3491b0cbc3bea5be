package sdk

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Pipeline struct {
	PipelineHeader `yaml:",inline"`

	Inputs map[string]string `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Steps  []Step            `yaml:"steps" json:"steps"`
}

type PipelineHeader struct {
	Key         string `yaml:"key" json:"key"`
	Name        string `yaml:"name,omitempty" json:"name,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

type Step struct {
	Name            string   `yaml:"name" json:"name"`
	Command         string   `yaml:"command" json:"command"`
	Image           string   `yaml:"image,omitempty" json:"image,omitempty"`
	Workdir         string   `yaml:"workdir,omitempty" json:"workdir,omitempty"`
	If              string   `yaml:"if,omitempty" json:"if,omitempty"`
	ContinueOnError bool     `yaml:"continue_on_error,omitempty" json:"continue_on_error,omitempty"`
	Timeout         Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Duration carries per-step timeouts in the "30s" / "10m" notation.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}

	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func ParsePipeline(data []byte) (*Pipeline, error) {
	var pipeline Pipeline
	if err := yaml.Unmarshal(data, &pipeline); err != nil {
		return nil, fmt.Errorf("unable to parse pipeline: %w", err)
	}

	if err := pipeline.Validate(); err != nil {
		return nil, err
	}

	return &pipeline, nil
}

func LoadPipeline(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read pipeline file: %w", err)
	}

	return ParsePipeline(data)
}

func (p *Pipeline) Validate() error {
	if strings.TrimSpace(p.Key) == "" {
		p.Key = "default"
	}

	for i, step := range p.Steps {
		if strings.TrimSpace(step.Name) == "" {
			return fmt.Errorf("step %d has no name", i)
		}
		if strings.TrimSpace(step.Command) == "" {
			return fmt.Errorf("step %q has no command", step.Name)
		}
	}

	return nil
}

// DefaultPipeline is the pipeline used when no definition file is given:
// install dependencies, run the verification suite, run the linters.
func DefaultPipeline() *Pipeline {
	return &Pipeline{
		PipelineHeader: PipelineHeader{
			Key:         "default",
			Name:        "default",
			Description: "install dependencies, verify and lint the working tree",
		},
		Steps: []Step{
			{Name: "install", Command: "npm ci"},
			{Name: "ci", Command: "npm run ci", If: "enable_ci"},
			{Name: "lint", Command: "npm run lint", If: "enable_code_quality"},
		},
	}
}
