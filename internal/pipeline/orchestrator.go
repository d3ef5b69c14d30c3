// Package pipeline drives a job through extraction, evaluation and
// aggregation, committing a checkpoint after each stage so a failed or
// interrupted job resumes where it stopped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/aggregate"
	"github.com/joseph-ayodele/exam-grader/internal/checkpoint"
	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
	"github.com/joseph-ayodele/exam-grader/internal/events"
	"github.com/joseph-ayodele/exam-grader/internal/examcache"
	"github.com/joseph-ayodele/exam-grader/internal/jobs"
)

// TextExtractor turns one PDF into text.
type TextExtractor interface {
	ExtractText(ctx context.Context, path string, handwritten bool) (string, error)
}

// Evaluator scores the extracted texts.
type Evaluator interface {
	Evaluate(ctx context.Context, texts entity.OCRTexts) (entity.Evaluation, error)
}

// ResultSink persists the final artifact for a job.
type ResultSink interface {
	SaveResult(ctx context.Context, jobID string, result entity.FinalResult) error
}

// Request is everything needed to (re)run a job.
type Request struct {
	JobID     string
	StudentID string
	Mode      constants.ExamMode
	Documents entity.Documents
}

// Deps are the orchestrator's collaborators. Events and Sink are optional.
type Deps struct {
	Checkpoints checkpoint.Store
	ExamCache   examcache.Cache
	Extractor   TextExtractor
	Evaluator   Evaluator
	Jobs        jobs.Registry
	Events      events.Publisher
	Sink        ResultSink
	Rules       aggregate.Rules
	Logger      *slog.Logger

	// CleanupOnSuccess deletes the checkpoint once the result is saved.
	CleanupOnSuccess bool
}

type Orchestrator struct {
	Deps
	metrics *Metrics

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewOrchestrator(d Deps) *Orchestrator {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Events == nil {
		d.Events = events.Discard{}
	}
	if len(d.Rules.Sections) == 0 {
		d.Rules = aggregate.DefaultRules()
	}
	return &Orchestrator{Deps: d, metrics: NewMetrics(), inFlight: make(map[string]struct{})}
}

// claim marks jobID as running in this process. Checkpoints allow a single
// writer per job, so a second concurrent Run for the same id is refused.
func (o *Orchestrator) claim(jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[jobID]; busy {
		return false
	}
	o.inFlight[jobID] = struct{}{}
	return true
}

func (o *Orchestrator) release(jobID string) {
	o.mu.Lock()
	delete(o.inFlight, jobID)
	o.mu.Unlock()
}

// Run executes every stage the job's checkpoint has not completed yet.
// On failure the job is marked failed, the error is noted on the checkpoint
// and the last completed stage is kept for a later resume.
func (o *Orchestrator) Run(ctx context.Context, req Request) (entity.FinalResult, error) {
	if err := checkpoint.ValidateJobID(req.JobID); err != nil {
		return entity.FinalResult{}, err
	}
	if req.Mode == "" {
		req.Mode = constants.DefaultExamMode
	}
	logger := o.Logger.With("job_id", req.JobID)
	if !o.claim(req.JobID) {
		logger.Warn("pipeline.already_running")
		return entity.FinalResult{}, common.NewAppError("JOB_ACTIVE", "job "+req.JobID+" is already running", common.ErrConflict)
	}
	defer o.release(req.JobID)
	ctx = common.WithLogger(common.WithJobID(ctx, req.JobID), logger)

	o.metrics.JobsInFlight.Inc()
	defer o.metrics.JobsInFlight.Dec()

	if err := o.markRunning(ctx, req); err != nil {
		return entity.FinalResult{}, err
	}

	cp, err := checkpoint.Begin(ctx, o.Checkpoints, req.JobID, entity.CheckpointMeta{
		Mode:      req.Mode,
		StudentID: req.StudentID,
		Documents: req.Documents,
	})
	if err != nil {
		return entity.FinalResult{}, o.fail(ctx, nil, req.JobID, err)
	}
	logger.Info("pipeline.start", "stage", cp.Stage.String(), "exam_mode", string(req.Mode))

	for cp.Stage < constants.StageAggregationComplete {
		stage := cp.Stage
		start := time.Now()
		switch stage {
		case constants.StageStarted:
			cp, err = o.extract(ctx, cp, req)
		case constants.StageOCRComplete:
			cp, err = o.evaluate(ctx, cp)
		case constants.StageEvaluationComplete:
			cp, err = o.aggregate(ctx, cp, req)
		default:
			err = fmt.Errorf("%w: cannot run from %s", entity.ErrStageOrder, stage)
		}
		o.metrics.StageDuration.WithLabelValues(stage.String()).Observe(time.Since(start).Seconds())
		if err != nil {
			return entity.FinalResult{}, o.fail(ctx, &cp, req.JobID, err)
		}
		logger.Info("pipeline.stage_complete", "from", stage.String(), "to", cp.Stage.String(), "elapsed_ms", time.Since(start).Milliseconds())
	}

	result := *cp.Result
	if o.Sink != nil {
		if err := o.Sink.SaveResult(ctx, req.JobID, result); err != nil {
			return entity.FinalResult{}, o.fail(ctx, &cp, req.JobID, fmt.Errorf("save result: %w", err))
		}
	}
	if _, err := o.Jobs.Update(ctx, req.JobID, func(j *entity.Job) {
		j.Status = constants.JobStatusCompleted
		j.Error = ""
		r := result
		j.Result = &r
	}); err != nil {
		return entity.FinalResult{}, err
	}
	if o.CleanupOnSuccess {
		if err := o.Checkpoints.Delete(ctx, req.JobID); err != nil {
			logger.Warn("pipeline.checkpoint_cleanup_failed", "error", err)
		}
	}

	ev := events.NewEvent(constants.JobEventCompleted, req.JobID)
	ev.Stage = constants.StageAggregationComplete.String()
	ev.Result = &result
	o.publish(ctx, ev)
	o.metrics.JobsTotal.WithLabelValues("completed").Inc()
	logger.Info("pipeline.completed",
		"grand_total", result.GrandTotal,
		"percentage", result.Percentage,
		"grade", result.Grade,
		"result", result.Result,
	)
	return result, nil
}

func (o *Orchestrator) markRunning(ctx context.Context, req Request) error {
	_, err := o.Jobs.Update(ctx, req.JobID, func(j *entity.Job) {
		j.Status = constants.JobStatusRunning
		j.Mode = req.Mode
		j.StudentID = req.StudentID
		j.Documents = req.Documents
		j.Error = ""
	})
	if errors.Is(err, common.ErrNotFound) {
		_, err = o.Jobs.Create(ctx, entity.Job{
			ID:        req.JobID,
			Status:    constants.JobStatusRunning,
			Mode:      req.Mode,
			StudentID: req.StudentID,
			Documents: req.Documents,
		})
	}
	if err != nil {
		return err
	}
	o.publish(ctx, events.NewEvent(constants.JobEventRunning, req.JobID))
	return nil
}

// fail records err on the checkpoint (when one exists) and the registry.
func (o *Orchestrator) fail(ctx context.Context, cp *entity.Checkpoint, jobID string, cause error) error {
	logger := common.LoggerFromContext(ctx, o.Logger)
	stage := ""
	if cp != nil {
		stage = cp.Stage.String()
		if _, err := checkpoint.RecordFailure(ctx, o.Checkpoints, *cp, cause); err != nil {
			logger.Error("pipeline.record_failure_failed", "error", err)
		}
	}
	if _, err := o.Jobs.Update(ctx, jobID, func(j *entity.Job) {
		j.Status = constants.JobStatusFailed
		j.Error = cause.Error()
	}); err != nil {
		logger.Error("pipeline.registry_update_failed", "error", err)
	}

	ev := events.NewEvent(constants.JobEventFailed, jobID)
	ev.Stage = stage
	ev.Error = cause.Error()
	o.publish(ctx, ev)
	o.metrics.JobsTotal.WithLabelValues("failed").Inc()
	logger.Error("pipeline.failed", "last_stage", stage, "error", cause)
	return cause
}

func (o *Orchestrator) publish(ctx context.Context, ev entity.JobEvent) {
	if err := o.Events.Publish(ctx, ev); err != nil {
		common.LoggerFromContext(ctx, o.Logger).Warn("pipeline.publish_failed", "type", string(ev.Type), "error", err)
	}
}
