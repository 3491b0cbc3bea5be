package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"syscall"
	"time"

	"github.com/conveyci/conveyor/sdk"
)

func NewLocalExecutor(cfg Config) Executor {
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &local{
		workdir: cfg.Workdir,
		env:     cfg.Env,
		timeout: timeout,
	}
}

type local struct {
	workdir string
	env     []string
	timeout time.Duration
}

func (l *local) Run(ctx context.Context, step sdk.Step) (*Result, error) {
	timeout := l.timeout
	if step.Timeout > 0 {
		timeout = time.Duration(step.Timeout)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := osexec.CommandContext(ctx, "sh", "-c", step.Command)
	// the step runs in its own process group so a timeout takes down the
	// whole tree; children inherit the output pipes and keep Wait blocked
	// until the last of them exits
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second
	cmd.Dir = l.workdir
	if step.Workdir != "" {
		cmd.Dir = step.Workdir
	}
	if len(l.env) > 0 {
		cmd.Env = append(os.Environ(), l.env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	result := &Result{
		StepName: step.Name,
		Duration: time.Since(start),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}

	if ctx.Err() == context.DeadlineExceeded {
		result.ExitCode = TimeoutExitCode
		result.TimedOut = true
		return result, nil
	}

	var exitErr *osexec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("unable to run step %q: %w", step.Name, err)
	}

	return result, nil
}

func (l *local) Close() {
}
