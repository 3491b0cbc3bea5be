package sdk

import "time"

type RunState string

var (
	PendingState   RunState = "pending"
	RunningState   RunState = "running"
	CompletedState RunState = "completed"
	AbortedState   RunState = "aborted"
)

type RunStatus string

var (
	SuccessStatus RunStatus = "success"
	FailureStatus RunStatus = "failure"
)

type StepStatus string

var (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepResult is recorded once per processed step and never mutated afterwards.
type StepResult struct {
	Name     string        `json:"name"`
	Status   StepStatus    `json:"status"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	TimedOut bool          `json:"timed_out,omitempty"`
}

type Run struct {
	Id          string       `json:"id"`
	PipelineKey string       `json:"pipeline_key"`
	State       RunState     `json:"state"`
	Results     []StepResult `json:"results,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at,omitempty"`
}

// Status derives the aggregate outcome: success only when the run completed
// and every processed step either succeeded or was skipped.
func (r *Run) Status() RunStatus {
	if r.State != CompletedState {
		return FailureStatus
	}

	for _, result := range r.Results {
		if result.Status == StepFailed {
			return FailureStatus
		}
	}

	return SuccessStatus
}
