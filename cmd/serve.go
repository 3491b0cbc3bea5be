package cmd

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conveyci/conveyor/exec"
	"github.com/conveyci/conveyor/pkg"
	"github.com/conveyci/conveyor/repo"
	"github.com/conveyci/conveyor/sdk"
	sdknats "github.com/conveyci/conveyor/sdk/nats"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "expose pipeline triggering over HTTP",
	Long: `Accepts pipeline definitions over HTTP, runs them asynchronously and
serves the resulting run records. When a NATS url is configured the runs are
also recorded in the repository.`,
	Run: func(cmd *cobra.Command, args []string) {
		inputs, err := loadRunInputs()
		if err != nil {
			log.Fatal().Err(err).Msg("invalid inputs")
		}

		executor, err := exec.New(executorConfig(inputs))
		if err != nil {
			log.Fatal().Err(err).Msg("unable to create executor")
		}
		defer executor.Close()

		srv := &server{
			runs:     make(map[string]*sdk.Run),
			inputs:   inputs,
			executor: executor,
		}

		if sdknats.GetUrl("CONVEYOR") != "" {
			nc, err := sdknats.Connect("conveyor-serve", "CONVEYOR")
			if err != nil {
				log.Fatal().Err(err).Msg("unable to connect to the data cluster")
			}
			defer nc.Close()

			srv.repository, err = repo.NewNatsRepository(nc, repoConfig())
			if err != nil {
				log.Fatal().Err(err).Msg("unable to create repository")
			}
		}

		addr := viper.GetString("listen")
		log.Info().Str("addr", addr).Msg("listening for pipeline submissions")
		if err := http.ListenAndServe(addr, srv.routes()); err != nil {
			log.Fatal().Err(err).Msg("server error")
		}
	},
}

func init() {
	serveCmd.Flags().String("listen", ":8080", "address the HTTP server listens on")

	if err := viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen")); err != nil {
		log.Panic().Err(err).Msg("failed to bind flags")
	}

	rootCmd.AddCommand(serveCmd)
}

func repoConfig() repo.Config {
	cfg := repo.Config{
		KeyValueBucket:    viper.GetString("kv_bucket"),
		ObjectStoreBucket: viper.GetString("object_bucket"),
		Prefix:            viper.GetString("prefix"),
	}

	if cfg.KeyValueBucket == "" {
		cfg.KeyValueBucket = "pipelines"
	}
	if cfg.ObjectStoreBucket == "" {
		cfg.ObjectStoreBucket = "pipeline_logs"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "conveyor"
	}

	return cfg
}

type server struct {
	mu         sync.Mutex
	runs       map[string]*sdk.Run
	inputs     pkg.Inputs
	executor   exec.Executor
	repository repo.Repository
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Post("/pipelines", s.handleSubmit)
	r.Get("/runs/{id}", s.handleGetRun)
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleSubmit accepts a pipeline YAML document, kicks off an asynchronous
// run and immediately returns the run id to poll.
func (s *server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	pipeline, err := sdk.ParsePipeline(data)
	if err != nil {
		http.Error(w, "invalid pipeline: "+err.Error(), http.StatusBadRequest)
		return
	}

	runId := pkg.NewRunId(pipeline.Key, time.Now())

	s.mu.Lock()
	s.runs[runId] = &sdk.Run{
		Id:          runId,
		PipelineKey: pipeline.Key,
		State:       sdk.PendingState,
		StartedAt:   time.Now(),
	}
	s.mu.Unlock()

	go s.perform(runId, pipeline)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"id":       runId,
		"pipeline": pipeline.Key,
		"state":    string(sdk.PendingState),
	})
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// snapshot the record while holding the lock; abort mutates pending
	// runs in place
	s.mu.Lock()
	run, fnd := s.runs[id]
	var snapshot sdk.Run
	if fnd {
		snapshot = *run
	}
	s.mu.Unlock()

	if !fnd {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(&snapshot)
}

func (s *server) perform(runId string, pipeline *sdk.Pipeline) {
	ctx := context.Background()
	flags := pkg.MergeFlags(s.inputs.Flags(), pipeline.Inputs)

	controller, err := pkg.NewController(pkg.RegistryFor(pipeline), s.executor, flags, pkg.WithRunId(runId))
	if err != nil {
		log.Err(err).Str("run_id", runId).Msg("unable to create controller")
		s.abort(runId)
		return
	}

	run, err := controller.Run(ctx, pipeline.Key)
	if err != nil {
		log.Err(err).Str("run_id", runId).Msg("unable to run pipeline")
		if run == nil {
			s.abort(runId)
			return
		}
	}

	s.mu.Lock()
	s.runs[runId] = run
	s.mu.Unlock()

	if s.repository != nil {
		if err := s.repository.PutRun(ctx, run); err != nil {
			log.Warn().Err(err).Str("run_id", runId).Msg("unable to record run")
		}
	}

	log.Info().Str("run_id", runId).Str("status", string(run.Status())).Msg("run finished")
}

func (s *server) abort(runId string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run, fnd := s.runs[runId]; fnd {
		run.State = sdk.AbortedState
		run.FinishedAt = time.Now()
	}
}
