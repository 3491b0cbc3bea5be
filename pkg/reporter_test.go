package pkg

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyci/conveyor/sdk"
)

func TestOutputFileReporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output")
	reporter := OutputFileReporter{Path: path}

	ok := &sdk.Run{Id: "r1", State: sdk.CompletedState}
	require.NoError(t, reporter.Report(context.Background(), ok))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "status=success\n", string(data))
}

func TestOutputFileReporterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output")
	reporter := OutputFileReporter{Path: path}

	require.NoError(t, reporter.Report(context.Background(), &sdk.Run{State: sdk.CompletedState}))
	require.NoError(t, reporter.Report(context.Background(), &sdk.Run{State: sdk.AbortedState}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "status=success\nstatus=failure\n", string(data))
}

func TestLogReporter(t *testing.T) {
	run := &sdk.Run{Id: "r1", State: sdk.CompletedState, Results: []sdk.StepResult{
		{Name: "a", Status: sdk.StepSucceeded},
		{Name: "b", Status: sdk.StepSkipped},
	}}

	require.NoError(t, LogReporter{}.Report(context.Background(), run))
}

func TestMultiReporter(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first")
	second := filepath.Join(dir, "second")

	reporter := MultiReporter{
		OutputFileReporter{Path: first},
		OutputFileReporter{Path: second},
	}

	require.NoError(t, reporter.Report(context.Background(), &sdk.Run{State: sdk.CompletedState}))

	for _, path := range []string{first, second} {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "status=success\n", string(data))
	}
}

func TestMultiReporterStopsOnError(t *testing.T) {
	dir := t.TempDir()
	late := filepath.Join(dir, "late")

	reporter := MultiReporter{
		OutputFileReporter{Path: filepath.Join(dir, "missing", "nested", "output")},
		OutputFileReporter{Path: late},
	}

	require.Error(t, reporter.Report(context.Background(), &sdk.Run{State: sdk.CompletedState}))
	_, err := os.Stat(late)
	assert.True(t, os.IsNotExist(err))
}
