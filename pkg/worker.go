package pkg

import (
	"context"
	"encoding/json"
	"github.com/shono-io/mini"

	"github.com/conveyci/conveyor/exec"
	"github.com/conveyci/conveyor/repo"
	"github.com/conveyci/conveyor/sdk"
)

type Config struct {
	Repository repo.Config
	Executor   exec.Config
}

func NewWorker() *Worker {
	return &Worker{}
}

// Worker is the agent-mode loop: it watches the repository for published
// pipelines, runs each one, and records the run back into the repository.
type Worker struct {
	service    *mini.Service
	configChan <-chan []byte
}

func (w *Worker) Init(service *mini.Service, configChan <-chan []byte) error {
	w.service = service
	w.configChan = configChan
	return nil
}

func (w *Worker) Run(ctx context.Context) error {
	var workerCancel context.CancelFunc
	var workerContext context.Context
	var err error

	for {
		select {
		case <-ctx.Done():
			if workerCancel != nil {
				workerCancel()
			}

			return nil

		case b := <-w.configChan:
			if b == nil {
				if workerCancel != nil {
					workerCancel()
				}

				return nil
			}

			var cfg Config
			err = json.Unmarshal(b, &cfg)
			if err != nil {
				if workerCancel != nil {
					workerCancel()
				}

				return err
			}

			// -- close the worker execution
			if workerCancel != nil {
				workerCancel()
			}

			// -- create a new worker execution
			workerContext, workerCancel = context.WithCancel(ctx)
			go w.perform(workerContext, cfg)
		}
	}
}

func (w *Worker) Close() {
}

func (w *Worker) perform(ctx context.Context, cfg Config) {
	inputs, err := LoadInputs()
	if err != nil {
		w.service.Log.Err(err).Msg("unable to load inputs")
		return
	}

	w.service.Log.Debug().Msg("initializing repository")
	r, err := repo.NewNatsRepository(w.service.Nats(), cfg.Repository)
	if err != nil {
		w.service.Log.Err(err).Msg("unable to create repository")
		return
	}

	w.service.Log.Debug().Msg("initializing executor")
	e, err := exec.New(cfg.Executor)
	if err != nil {
		w.service.Log.Err(err).Msg("unable to create executor")
		return
	}

	go r.Watch(ctx)

	w.service.Log.Info().Msg("ready to receive pipeline updates")
	for {
		select {
		case <-ctx.Done():
			w.service.Log.Info().Msg("worker execution stopped")

			if err := r.Close(); err != nil {
				w.service.Log.Warn().Err(err).Msg("unable to close repository")
			}

			e.Close()
			return

		case ru := <-r.Updates():
			if ru == nil {
				continue
			}

			w.service.Log.Debug().Str("p_key", ru.PipelineKey).Uint64("revision", ru.Revision).Msg("pipeline update received")

			w.handleUpdate(context.Background(), r, e, inputs, ru)
		}
	}
}

func (w *Worker) handleUpdate(ctx context.Context, r repo.Repository, e exec.Executor, inputs Inputs, ru *repo.Change) {
	switch ru.Operation {
	case repo.PutOperation:
		w.service.Log.Info().Str("p_key", ru.PipelineKey).Msg("pipeline published")

		run, err := w.execute(ctx, e, inputs, &ru.Pipeline)
		if err != nil {
			w.service.Log.Err(err).Str("p_key", ru.PipelineKey).Msg("unable to run pipeline")
			return
		}

		if err := r.PutRun(ctx, run); err != nil {
			w.service.Log.Warn().Err(err).Str("run_id", run.Id).Msg("unable to record run")
		}

		w.service.Log.Info().
			Str("p_key", ru.PipelineKey).
			Str("run_id", run.Id).
			Str("status", string(run.Status())).
			Msg("run recorded")

	case repo.DeleteOperation:
		w.service.Log.Info().Str("p_key", ru.PipelineKey).Msg("pipeline removed")
	}
}

func (w *Worker) execute(ctx context.Context, e exec.Executor, inputs Inputs, pipeline *sdk.Pipeline) (*sdk.Run, error) {
	if err := pipeline.Validate(); err != nil {
		return nil, err
	}

	flags := MergeFlags(inputs.Flags(), pipeline.Inputs)

	controller, err := NewController(RegistryFor(pipeline), e, flags)
	if err != nil {
		return nil, err
	}

	return controller.Run(ctx, pipeline.Key)
}
