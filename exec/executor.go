package exec

import (
	"context"
	"fmt"
	"time"

	"github.com/conveyci/conveyor/sdk"
)

type (
	Config struct {
		Backend        string
		FromEnv        bool
		Url            string
		Image          string
		Workdir        string
		Env            []string
		DefaultTimeout time.Duration
	}

	// Executor runs a single step to completion. A non-zero exit code is not
	// an error: it is returned as data and policy stays with the caller. The
	// error return is reserved for failures to run the step at all.
	Executor interface {
		Run(ctx context.Context, step sdk.Step) (*Result, error)
		Close()
	}

	Result struct {
		StepName string
		ExitCode int
		Duration time.Duration
		Stdout   string
		Stderr   string
		TimedOut bool
	}
)

const (
	LocalBackend  = "local"
	DockerBackend = "docker"

	// TimeoutExitCode is the sentinel reported when a step had to be killed.
	TimeoutExitCode = -1

	DefaultTimeout = 10 * time.Minute
)

func New(cfg Config) (Executor, error) {
	switch cfg.Backend {
	case "", LocalBackend:
		return NewLocalExecutor(cfg), nil
	case DockerBackend:
		return NewDockerExecutor(cfg)
	default:
		return nil, fmt.Errorf("unknown executor backend %q", cfg.Backend)
	}
}
