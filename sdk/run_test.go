package sdk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunStatus(t *testing.T) {
	cases := []struct {
		name     string
		run      Run
		expected RunStatus
	}{
		{
			name:     "empty completed run succeeds",
			run:      Run{State: CompletedState},
			expected: SuccessStatus,
		},
		{
			name: "succeeded and skipped steps succeed",
			run: Run{State: CompletedState, Results: []StepResult{
				{Name: "a", Status: StepSucceeded},
				{Name: "b", Status: StepSkipped},
			}},
			expected: SuccessStatus,
		},
		{
			name: "continue-on-error failure still fails the run",
			run: Run{State: CompletedState, Results: []StepResult{
				{Name: "a", Status: StepFailed},
				{Name: "b", Status: StepSucceeded},
			}},
			expected: FailureStatus,
		},
		{
			name:     "aborted run fails",
			run:      Run{State: AbortedState},
			expected: FailureStatus,
		},
		{
			name:     "pending run is not a success",
			run:      Run{State: PendingState},
			expected: FailureStatus,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.run.Status())
		})
	}
}
