package exec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/conveyci/conveyor/sdk"
)

func (d *docker) createExecution(ctx context.Context, step sdk.Step) (string, error) {
	img := d.image
	if step.Image != "" {
		img = step.Image
	}

	popts := image.PullOptions{}
	out, err := d.dc.ImagePull(ctx, img, popts)
	if err != nil {
		return "", fmt.Errorf("unable to pull image %q: %w", img, err)
	}
	defer out.Close()
	if _, err := io.Copy(io.Discard, out); err != nil {
		return "", fmt.Errorf("unable to pull image %q: %w", img, err)
	}

	workdir := d.workdir
	if step.Workdir != "" {
		workdir = step.Workdir
	}

	resp, err := d.dc.ContainerCreate(ctx, &container.Config{
		Image:      img,
		Cmd:        []string{"sh", "-c", step.Command},
		Env:        d.env,
		WorkingDir: workdir,
		Labels: map[string]string{
			"conveyor_step": step.Name,
		},
	}, nil, nil, nil, executionName(step, time.Now()))
	if err != nil {
		return "", fmt.Errorf("unable to create execution: %w", err)
	}

	return resp.ID, nil
}

func (d *docker) startExecution(ctx context.Context, execId string) error {
	if err := d.dc.ContainerStart(ctx, execId, container.StartOptions{}); err != nil {
		return fmt.Errorf("unable to start execution: %w", err)
	}

	return nil
}

func (d *docker) stopExecution(ctx context.Context, execId string, timeout int) error {
	if err := d.dc.ContainerStop(ctx, execId, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("unable to stop execution: %w", err)
	}

	return nil
}

func (d *docker) removeExecution(ctx context.Context, execId string) error {
	if err := d.dc.ContainerRemove(ctx, execId, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("unable to remove execution: %w", err)
	}

	return nil
}

func (d *docker) collectLogs(ctx context.Context, execId string) (string, string, error) {
	out, err := d.dc.ContainerLogs(ctx, execId, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", fmt.Errorf("unable to read execution logs: %w", err)
	}
	defer out.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, out); err != nil {
		return "", "", fmt.Errorf("unable to demultiplex execution logs: %w", err)
	}

	return stdout.String(), stderr.String(), nil
}
