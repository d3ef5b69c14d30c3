package async

import (
	"context"
	"errors"
	"time"

	"github.com/joseph-ayodele/exam-grader/internal/entity"
	"github.com/joseph-ayodele/exam-grader/internal/pipeline"
)

// ErrClosed is returned by Enqueue once Shutdown has started.
var ErrClosed = errors.New("queue is shutting down")

// Job is one queued pipeline run.
type Job struct {
	Request     pipeline.Request
	SubmittedAt time.Time
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// JobRunner executes a pipeline request. *pipeline.Orchestrator satisfies it.
type JobRunner interface {
	Run(ctx context.Context, req pipeline.Request) (entity.FinalResult, error)
}
