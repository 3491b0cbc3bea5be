package exec

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyci/conveyor/sdk"
)

func TestLocalRun(t *testing.T) {
	executor := NewLocalExecutor(Config{})
	defer executor.Close()

	result, err := executor.Run(context.Background(), sdk.Step{Name: "echo", Command: "echo hello"})
	require.NoError(t, err)

	assert.Equal(t, "echo", result.StepName)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hello\n", result.Stdout)
	assert.False(t, result.TimedOut)
	assert.Greater(t, result.Duration, time.Duration(0))
}

func TestLocalRunExitCodeIsData(t *testing.T) {
	executor := NewLocalExecutor(Config{})
	defer executor.Close()

	result, err := executor.Run(context.Background(), sdk.Step{Name: "fail", Command: "exit 3"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
}

func TestLocalRunCapturesStderr(t *testing.T) {
	executor := NewLocalExecutor(Config{})
	defer executor.Close()

	result, err := executor.Run(context.Background(), sdk.Step{Name: "noisy", Command: "echo boom 1>&2"})
	require.NoError(t, err)

	assert.Equal(t, 0, result.ExitCode)
	assert.Empty(t, result.Stdout)
	assert.Equal(t, "boom\n", result.Stderr)
}

func TestLocalRunTimeout(t *testing.T) {
	executor := NewLocalExecutor(Config{})
	defer executor.Close()

	step := sdk.Step{Name: "slow", Command: "sleep 5", Timeout: sdk.Duration(100 * time.Millisecond)}

	start := time.Now()
	result, err := executor.Run(context.Background(), step)
	require.NoError(t, err)

	assert.True(t, result.TimedOut)
	assert.Equal(t, TimeoutExitCode, result.ExitCode)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestLocalRunTimeoutKillsChildProcesses(t *testing.T) {
	executor := NewLocalExecutor(Config{})
	defer executor.Close()

	// background children inherit the output pipes and outlive the shell
	step := sdk.Step{Name: "daemonized", Command: "sleep 5 & sleep 5 & wait", Timeout: sdk.Duration(100 * time.Millisecond)}

	start := time.Now()
	result, err := executor.Run(context.Background(), step)
	require.NoError(t, err)

	assert.True(t, result.TimedOut)
	assert.Equal(t, TimeoutExitCode, result.ExitCode)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestLocalRunEnvPassthrough(t *testing.T) {
	executor := NewLocalExecutor(Config{Env: []string{"CONVEYOR_TEST_TOKEN=sekrit"}})
	defer executor.Close()

	result, err := executor.Run(context.Background(), sdk.Step{
		Name:    "env",
		Command: `printf '%s' "$CONVEYOR_TEST_TOKEN"`,
	})
	require.NoError(t, err)
	assert.Equal(t, "sekrit", result.Stdout)
}

func TestLocalRunWorkdir(t *testing.T) {
	dir := t.TempDir()
	executor := NewLocalExecutor(Config{})
	defer executor.Close()

	result, err := executor.Run(context.Background(), sdk.Step{
		Name:    "pwd",
		Command: "pwd",
		Workdir: dir,
	})
	require.NoError(t, err)
	assert.Contains(t, result.Stdout, filepath.Base(dir))
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New(Config{Backend: "lambda"})
	require.Error(t, err)

	executor, err := New(Config{})
	require.NoError(t, err)
	defer executor.Close()
	assert.IsType(t, &local{}, executor)
}
