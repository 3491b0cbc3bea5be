package pkg

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/conveyci/conveyor/sdk"
)

// Reporter delivers the terminal status of a run to the invoking
// environment. The run itself is already complete and immutable by the time
// a reporter sees it.
type Reporter interface {
	Report(ctx context.Context, run *sdk.Run) error
}

// OutputFileReporter appends the final status as a key=value line, the
// contract used by CI output files such as $GITHUB_OUTPUT.
type OutputFileReporter struct {
	Path string
}

func (r OutputFileReporter) Report(ctx context.Context, run *sdk.Run) error {
	f, err := os.OpenFile(r.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("unable to open output file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "status=%s\n", run.Status()); err != nil {
		return fmt.Errorf("unable to write status: %w", err)
	}

	return nil
}

type LogReporter struct{}

func (LogReporter) Report(ctx context.Context, run *sdk.Run) error {
	var succeeded, failed, skipped int
	for _, result := range run.Results {
		switch result.Status {
		case sdk.StepSucceeded:
			succeeded++
		case sdk.StepFailed:
			failed++
		case sdk.StepSkipped:
			skipped++
		}
	}

	evt := log.Info()
	if run.Status() == sdk.FailureStatus {
		evt = log.Error()
	}

	evt.Str("run_id", run.Id).
		Str("pipeline", run.PipelineKey).
		Str("status", string(run.Status())).
		Int("succeeded", succeeded).
		Int("failed", failed).
		Int("skipped", skipped).
		Msg("run finished")

	return nil
}

type MultiReporter []Reporter

func (m MultiReporter) Report(ctx context.Context, run *sdk.Run) error {
	for _, reporter := range m {
		if err := reporter.Report(ctx, run); err != nil {
			return err
		}
	}

	return nil
}
