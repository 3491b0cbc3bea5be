package cmd

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyci/conveyor/exec"
	"github.com/conveyci/conveyor/pkg"
	"github.com/conveyci/conveyor/sdk"
)

func newTestServer(t *testing.T) *server {
	t.Helper()

	executor, err := exec.New(exec.Config{Backend: exec.LocalBackend})
	require.NoError(t, err)
	t.Cleanup(executor.Close)

	return &server{
		runs:     make(map[string]*sdk.Run),
		inputs:   pkg.Inputs{RepositoryToken: "tok", Branch: "main", EnableCI: true, EnableCodeQuality: true},
		executor: executor,
	}
}

func TestServeRunLifecycle(t *testing.T) {
	srv := newTestServer(t)
	router := srv.routes()

	body := "key: demo\nsteps:\n  - name: ok\n    command: \"true\"\n"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/pipelines", strings.NewReader(body)))
	require.Equal(t, 202, rec.Code)

	var submitted map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&submitted))
	require.NotEmpty(t, submitted["id"])
	assert.Equal(t, "demo", submitted["pipeline"])

	deadline := time.Now().Add(5 * time.Second)
	var run sdk.Run
	for {
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/runs/"+submitted["id"], nil))
		require.Equal(t, 200, rec.Code)
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&run))

		if run.State != sdk.PendingState && run.State != sdk.RunningState {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run still in state %s", run.State)
		}
		time.Sleep(50 * time.Millisecond)
	}

	assert.Equal(t, sdk.CompletedState, run.State)
	assert.Equal(t, sdk.SuccessStatus, run.Status())
}

func TestServeGetRunUnknownId(t *testing.T) {
	srv := newTestServer(t)
	router := srv.routes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/runs/nope", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestServeGetRunConcurrentAbort(t *testing.T) {
	srv := newTestServer(t)
	router := srv.routes()

	runId := "demo-1"
	srv.runs[runId] = &sdk.Run{
		Id:          runId,
		PipelineKey: "demo",
		State:       sdk.PendingState,
		StartedAt:   time.Now(),
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			srv.abort(runId)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest("GET", "/runs/"+runId, nil))
			assert.Equal(t, 200, rec.Code)
		}
	}()
	wg.Wait()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/runs/"+runId, nil))

	var run sdk.Run
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&run))
	assert.Equal(t, sdk.AbortedState, run.State)
}
