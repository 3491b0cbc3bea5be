package exec

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog/log"

	"github.com/conveyci/conveyor/sdk"
)

const (
	DefaultImage = "alpine:3.19"

	stopGraceSeconds = 10
)

// NewDockerExecutor runs every step in its own container. The image comes
// from the executor config and can be overridden per step.
func NewDockerExecutor(cfg Config) (Executor, error) {
	d := &docker{
		image:   DefaultImage,
		env:     cfg.Env,
		workdir: cfg.Workdir,
		timeout: cfg.DefaultTimeout,
		clientOpts: []client.Opt{
			client.WithAPIVersionNegotiation(),
		},
	}

	if cfg.Image != "" {
		d.image = cfg.Image
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}

	if cfg.FromEnv {
		d.clientOpts = append(d.clientOpts, client.FromEnv)
	} else {
		if cfg.Url != "" {
			d.clientOpts = append(d.clientOpts, client.WithHost(cfg.Url))
		}
	}

	dc, err := client.NewClientWithOpts(d.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create docker client: %w", err)
	}
	d.dc = dc

	return d, nil
}

type docker struct {
	image   string
	env     []string
	workdir string
	timeout time.Duration

	clientOpts []client.Opt
	dc         client.APIClient
}

func (d *docker) Run(ctx context.Context, step sdk.Step) (*Result, error) {
	timeout := d.timeout
	if step.Timeout > 0 {
		timeout = time.Duration(step.Timeout)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execId, err := d.createExecution(ctx, step)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := d.removeExecution(context.Background(), execId); err != nil {
			log.Warn().Err(err).Str("step", step.Name).Msg("unable to remove execution")
		}
	}()

	start := time.Now()
	if err := d.startExecution(ctx, execId); err != nil {
		return nil, err
	}

	result := &Result{StepName: step.Name}

	statusCh, errCh := d.dc.ContainerWait(ctx, execId, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if ctx.Err() == context.DeadlineExceeded {
			if err := d.stopExecution(context.Background(), execId, stopGraceSeconds); err != nil {
				log.Warn().Err(err).Str("step", step.Name).Msg("unable to stop execution")
			}
			result.ExitCode = TimeoutExitCode
			result.TimedOut = true
		} else if err != nil {
			return nil, fmt.Errorf("unable to wait for execution: %w", err)
		}
	case status := <-statusCh:
		result.ExitCode = int(status.StatusCode)
	}

	result.Duration = time.Since(start)

	// the container is kept around until the deferred remove so its logs
	// stay retrievable even after a timeout
	stdout, stderr, err := d.collectLogs(context.Background(), execId)
	if err != nil {
		log.Warn().Err(err).Str("step", step.Name).Msg("unable to collect execution logs")
	} else {
		result.Stdout = stdout
		result.Stderr = stderr
	}

	return result, nil
}

func (d *docker) Close() {
	if err := d.dc.Close(); err != nil {
		log.Warn().Err(err).Msg("unable to close docker client")
	}
}

func executionName(step sdk.Step, now time.Time) string {
	name := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(step.Name), " ", "-"))
	return fmt.Sprintf("conveyor-%s-%d", name, now.UnixNano())
}
