package pkg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/conveyci/conveyor/exec"
	"github.com/conveyci/conveyor/sdk"
)

// Controller drives one run through the registered steps, strictly
// sequentially and in declaration order. It owns the only mutable state of a
// run, the append-only result list.
type Controller struct {
	registry *Registry
	executor exec.Executor
	flags    Flags
	runId    string
	clock    func() time.Time
}

type ControllerOption func(*Controller)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) ControllerOption {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithRunId pins the run id instead of deriving one from the pipeline key.
func WithRunId(runId string) ControllerOption {
	return func(c *Controller) {
		c.runId = runId
	}
}

func NewController(registry *Registry, executor exec.Executor, flags Flags, opts ...ControllerOption) (*Controller, error) {
	if registry == nil {
		return nil, fmt.Errorf("controller: step registry is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("controller: executor is required")
	}

	controller := &Controller{
		registry: registry,
		executor: executor,
		flags:    flags,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(controller)
	}

	return controller, nil
}

// Run processes every registered step. Steps whose condition is false are
// recorded as skipped. A failing step aborts the run unless it is marked
// continue-on-error; either way the failure surfaces in the final status.
// Configuration problems abort before any step executes.
func (c *Controller) Run(ctx context.Context, pipelineKey string) (*sdk.Run, error) {
	steps := c.registry.All()
	for _, step := range steps {
		if err := ValidateCondition(step.If); err != nil {
			return nil, fmt.Errorf("step %q: %w", step.Name, err)
		}
	}

	runId := c.runId
	if runId == "" {
		runId = NewRunId(pipelineKey, c.clock())
	}

	run := &sdk.Run{
		Id:          runId,
		PipelineKey: pipelineKey,
		State:       sdk.RunningState,
		StartedAt:   c.clock(),
	}

	for _, step := range steps {
		enabled, err := EvaluateCondition(step.If, c.flags)
		if err != nil {
			run.State = sdk.AbortedState
			run.FinishedAt = c.clock()
			return run, fmt.Errorf("step %q: %w", step.Name, err)
		}

		if !enabled {
			log.Info().Str("run_id", run.Id).Str("step", step.Name).Msg("step skipped")
			run.Results = append(run.Results, sdk.StepResult{
				Name:   step.Name,
				Status: sdk.StepSkipped,
			})
			continue
		}

		log.Info().Str("run_id", run.Id).Str("step", step.Name).Msg("step started")
		result, err := c.executor.Run(ctx, step)
		if err != nil {
			// the step could not be run at all; treated like any failure
			result = &exec.Result{
				StepName: step.Name,
				ExitCode: -1,
				Stderr:   err.Error(),
			}
		}

		record := sdk.StepResult{
			Name:     step.Name,
			Status:   sdk.StepSucceeded,
			ExitCode: result.ExitCode,
			Duration: result.Duration,
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
			TimedOut: result.TimedOut,
		}
		if result.ExitCode != 0 {
			record.Status = sdk.StepFailed
		}
		run.Results = append(run.Results, record)

		if record.Status == sdk.StepFailed {
			if step.ContinueOnError {
				log.Warn().Str("run_id", run.Id).Str("step", step.Name).Int("exit_code", record.ExitCode).Bool("timed_out", record.TimedOut).Msg("step failed, continuing")
				continue
			}

			log.Error().Str("run_id", run.Id).Str("step", step.Name).Int("exit_code", record.ExitCode).Bool("timed_out", record.TimedOut).Msg("step failed, aborting run")
			run.State = sdk.AbortedState
			run.FinishedAt = c.clock()
			return run, nil
		}

		log.Info().Str("run_id", run.Id).Str("step", step.Name).Dur("duration", record.Duration).Msg("step completed")
	}

	run.State = sdk.CompletedState
	run.FinishedAt = c.clock()
	return run, nil
}

func NewRunId(pipelineKey string, now time.Time) string {
	base := strings.TrimSpace(pipelineKey)
	if base == "" {
		base = "run"
	}
	base = strings.ToLower(strings.ReplaceAll(base, " ", "-"))
	return fmt.Sprintf("%s-%d", base, now.UnixNano())
}
