package repo

import (
	"context"

	"github.com/conveyci/conveyor/sdk"
)

type (
	Config struct {
		KeyValueBucket    string
		ObjectStoreBucket string
		Prefix            string
	}

	// Repository stores pipeline documents and run records, and feeds a
	// change channel while watching for newly published pipelines.
	Repository interface {
		Watch(ctx context.Context)
		Updates() <-chan *Change

		PutPipeline(ctx context.Context, pipeline *sdk.Pipeline) error
		GetPipeline(ctx context.Context, key string) (*sdk.Pipeline, error)

		PutRun(ctx context.Context, run *sdk.Run) error
		GetRun(ctx context.Context, id string) (*sdk.Run, error)

		Close() error
	}

	Operation string
	Change    struct {
		Operation   Operation
		PipelineKey string
		Pipeline    sdk.Pipeline
		Revision    uint64
	}
)

var (
	PutOperation    Operation = "put"
	DeleteOperation Operation = "del"
)
