package pkg

import (
	"github.com/rs/zerolog/log"

	"github.com/conveyci/conveyor/sdk"
)

func NewRegistry() *Registry {
	return &Registry{
		seen: make(map[string]bool),
	}
}

// Registry holds the steps of a pipeline in declaration order. Execution
// follows insertion order exactly; steps are never reordered.
type Registry struct {
	steps []sdk.Step
	seen  map[string]bool
}

func (r *Registry) Register(step sdk.Step) {
	if r.seen[step.Name] {
		log.Warn().Str("step", step.Name).Msg("duplicate step name")
	}
	r.seen[step.Name] = true
	r.steps = append(r.steps, step)
}

func (r *Registry) All() []sdk.Step {
	return append([]sdk.Step(nil), r.steps...)
}

func (r *Registry) Len() int {
	return len(r.steps)
}

func RegistryFor(pipeline *sdk.Pipeline) *Registry {
	registry := NewRegistry()
	for _, step := range pipeline.Steps {
		registry.Register(step)
	}
	return registry
}
