// Package checkpoint persists per-job stage progress so an interrupted job
// resumes after its last completed stage.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
)

// Store is the durable checkpoint backend. Load reports found=false for a
// missing or unreadable checkpoint; Save replaces the record atomically.
type Store interface {
	Load(ctx context.Context, jobID string) (entity.Checkpoint, bool, error)
	Save(ctx context.Context, cp entity.Checkpoint) error
	Delete(ctx context.Context, jobID string) error
	List(ctx context.Context) ([]string, error)
}

// Begin loads the checkpoint for jobID or creates and saves a fresh one.
// A stored checkpoint keeps its payloads; meta is refreshed.
func Begin(ctx context.Context, s Store, jobID string, meta entity.CheckpointMeta) (entity.Checkpoint, error) {
	cp, found, err := s.Load(ctx, jobID)
	if err != nil {
		return entity.Checkpoint{}, err
	}
	if !found {
		cp = entity.NewCheckpoint(jobID, meta)
		cp.CreatedAt = now()
	} else {
		if meta.ExamID == "" {
			meta.ExamID = cp.Meta.ExamID
		}
		cp.Meta = meta
	}
	return cp, save(ctx, s, cp)
}

// RecordOCR stores stage-one texts and advances to OCR_COMPLETE.
func RecordOCR(ctx context.Context, s Store, cp entity.Checkpoint, texts entity.OCRTexts) (entity.Checkpoint, error) {
	next, err := cp.WithOCR(texts)
	if err != nil {
		return cp, err
	}
	return next, save(ctx, s, next)
}

// RecordEvaluation stores the structured evaluation and advances to EVALUATION_COMPLETE.
func RecordEvaluation(ctx context.Context, s Store, cp entity.Checkpoint, eval entity.Evaluation) (entity.Checkpoint, error) {
	next, err := cp.WithEvaluation(eval)
	if err != nil {
		return cp, err
	}
	return next, save(ctx, s, next)
}

// RecordResult stores the final result and advances to AGGREGATION_COMPLETE.
func RecordResult(ctx context.Context, s Store, cp entity.Checkpoint, result entity.FinalResult) (entity.Checkpoint, error) {
	next, err := cp.WithResult(result)
	if err != nil {
		return cp, err
	}
	return next, save(ctx, s, next)
}

// RecordFailure keeps the last completed stage and notes the error.
func RecordFailure(ctx context.Context, s Store, cp entity.Checkpoint, cause error) (entity.Checkpoint, error) {
	if cause != nil {
		cp.LastError = cause.Error()
	}
	return cp, save(ctx, s, cp)
}

func save(ctx context.Context, s Store, cp entity.Checkpoint) error {
	cp.UpdatedAt = now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	if err := s.Save(ctx, cp); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.JobID, err)
	}
	return nil
}

// ValidateJobID rejects ids that could escape the checkpoint directory.
func ValidateJobID(id string) error {
	if strings.TrimSpace(id) == "" {
		return common.NewAppError("INVALID_JOB_ID", "job id is required", common.ErrInvalidInput)
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return common.NewAppError("INVALID_JOB_ID", fmt.Sprintf("job id %q contains a path element", id), common.ErrInvalidInput)
	}
	return nil
}

// IsStageOrder reports whether err is a stage ordering violation.
func IsStageOrder(err error) bool {
	return errors.Is(err, entity.ErrStageOrder)
}

var now = func() time.Time { return time.Now().UTC() }
