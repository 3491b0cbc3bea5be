package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/conveyci/conveyor/sdk"
)

func NewNatsRepository(nc *nats.Conn, cfg Config) (Repository, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to jetstream: %w", err)
	}

	ctx := context.Background()
	kv, err := js.KeyValue(ctx, cfg.KeyValueBucket)
	if err != nil {
		return nil, fmt.Errorf("unable to get key value store: %w", err)
	}

	obs, err := js.ObjectStore(ctx, cfg.ObjectStoreBucket)
	if err != nil {
		return nil, fmt.Errorf("unable to get object store: %w", err)
	}

	repo := &natsRepository{
		kv:      kv,
		obs:     obs,
		prefix:  cfg.Prefix,
		updates: make(chan *Change),
		done:    make(chan struct{}),
	}

	return repo, nil
}

type natsRepository struct {
	kv      jetstream.KeyValue
	obs     jetstream.ObjectStore
	prefix  string
	updates chan *Change
	done    chan struct{}
}

func (n *natsRepository) Watch(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	subject := fmt.Sprintf("%s.pipeline.*", n.prefix)
	log.Info().Msgf("watching for pipeline updates at %q", subject)
	kw, err := n.kv.Watch(ctx, subject)
	if err != nil {
		log.Error().Err(err).Msg("unable to watch for pipeline updates")
		return
	}

	stop := func() {
		if err := kw.Stop(); err != nil {
			log.Warn().Err(err).Msg("unable to stop watching for pipeline updates")
		}
	}

	for {
		select {
		case <-ctx.Done():
			stop()
			return
		case <-n.done:
			stop()
			return
		case msg := <-kw.Updates():
			if msg == nil {
				continue
			}

			var op Operation
			switch msg.Operation() {
			case jetstream.KeyValuePut:
				op = PutOperation
			case jetstream.KeyValuePurge:
				continue
			case jetstream.KeyValueDelete:
				op = DeleteOperation
			}

			kp := strings.Split(msg.Key(), ".")
			pipelineKey := kp[len(kp)-1]

			change := &Change{
				Operation:   op,
				PipelineKey: pipelineKey,
				Revision:    msg.Revision(),
			}

			if op == PutOperation {
				var pipeline sdk.Pipeline
				if err := json.Unmarshal(msg.Value(), &pipeline); err != nil {
					log.Error().Err(err).Msg("unable to unmarshal stored pipeline")
					continue
				}
				change.Pipeline = pipeline
			}

			// never block on a consumer that already went away
			select {
			case n.updates <- change:
			case <-ctx.Done():
				stop()
				return
			case <-n.done:
				stop()
				return
			}
		}
	}
}

func (n *natsRepository) Updates() <-chan *Change {
	return n.updates
}

func (n *natsRepository) PutPipeline(ctx context.Context, pipeline *sdk.Pipeline) error {
	data, err := json.Marshal(pipeline)
	if err != nil {
		return fmt.Errorf("unable to marshal pipeline: %w", err)
	}

	if _, err := n.kv.Put(ctx, n.pipelineKey(pipeline.Key), data); err != nil {
		return fmt.Errorf("unable to store pipeline: %w", err)
	}

	return nil
}

func (n *natsRepository) GetPipeline(ctx context.Context, key string) (*sdk.Pipeline, error) {
	e, err := n.kv.Get(ctx, n.pipelineKey(key))
	if err != nil {
		return nil, fmt.Errorf("unable to get pipeline %q: %w", key, err)
	}

	var pipeline sdk.Pipeline
	if err := json.Unmarshal(e.Value(), &pipeline); err != nil {
		return nil, fmt.Errorf("unable to unmarshal stored pipeline: %w", err)
	}

	return &pipeline, nil
}

// PutRun uploads the step logs to the object store and keeps the run record
// itself small in the key value store.
func (n *natsRepository) PutRun(ctx context.Context, run *sdk.Run) error {
	for _, result := range run.Results {
		if result.Stdout == "" && result.Stderr == "" {
			continue
		}

		fqn := n.logKey(run.Id, result.Name)
		if _, err := n.obs.PutString(ctx, fqn, result.Stdout+result.Stderr); err != nil {
			return fmt.Errorf("unable to store step log: %w", err)
		}
	}

	record := *run
	record.Results = make([]sdk.StepResult, len(run.Results))
	for i, result := range run.Results {
		result.Stdout = ""
		result.Stderr = ""
		record.Results[i] = result
	}

	data, err := json.Marshal(&record)
	if err != nil {
		return fmt.Errorf("unable to marshal run: %w", err)
	}

	if _, err := n.kv.Put(ctx, n.runKey(run.Id), data); err != nil {
		return fmt.Errorf("unable to store run: %w", err)
	}

	return nil
}

func (n *natsRepository) GetRun(ctx context.Context, id string) (*sdk.Run, error) {
	e, err := n.kv.Get(ctx, n.runKey(id))
	if err != nil {
		return nil, fmt.Errorf("unable to get run %q: %w", id, err)
	}

	var run sdk.Run
	if err := json.Unmarshal(e.Value(), &run); err != nil {
		return nil, fmt.Errorf("unable to unmarshal stored run: %w", err)
	}

	return &run, nil
}

func (n *natsRepository) Close() error {
	close(n.done)
	return nil
}

func (n *natsRepository) pipelineKey(key string) string {
	return fmt.Sprintf("%s.pipeline.%s", n.prefix, key)
}

func (n *natsRepository) runKey(id string) string {
	return fmt.Sprintf("%s.run.%s", n.prefix, id)
}

func (n *natsRepository) logKey(runId string, stepName string) string {
	return fmt.Sprintf("/%s/%s.log", runId, stepName)
}
