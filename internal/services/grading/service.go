// Package grading is the use-case layer behind the CLI and the gRPC server:
// submit a job, resume it, and read its progress and result.
package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/async"
	"github.com/joseph-ayodele/exam-grader/internal/checkpoint"
	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
	"github.com/joseph-ayodele/exam-grader/internal/events"
	"github.com/joseph-ayodele/exam-grader/internal/examcache"
	"github.com/joseph-ayodele/exam-grader/internal/ingest"
	"github.com/joseph-ayodele/exam-grader/internal/jobs"
	"github.com/joseph-ayodele/exam-grader/internal/pipeline"
)

// ResultReader loads a persisted final result.
type ResultReader interface {
	LoadResult(ctx context.Context, jobID string) (entity.FinalResult, bool, error)
}

// Deps wires the service. Results and Events are optional.
type Deps struct {
	Stager      *ingest.Stager
	Jobs        jobs.Registry
	Checkpoints checkpoint.Store
	ExamCache   examcache.Cache
	Queue       async.Queue
	Results     ResultReader
	Events      events.Publisher
	DefaultMode constants.ExamMode
	Logger      *slog.Logger
}

// Service handles grading business logic.
type Service struct {
	Deps
}

func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Events == nil {
		d.Events = events.Discard{}
	}
	if d.DefaultMode == "" {
		d.DefaultMode = constants.DefaultExamMode
	}
	return &Service{Deps: d}
}

// SubmitRequest names the caller's three input files.
type SubmitRequest struct {
	QuestionPaper string
	AnswerKey     string
	StudentScript string
	StudentID     string
	Mode          string
}

// Submit stages the inputs, registers a pending job and queues it.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (entity.Job, error) {
	v := common.NewValidator()
	v.Field("question_paper", req.QuestionPaper, common.Required, common.PDFPath)
	v.Field("answer_key", req.AnswerKey, common.Required, common.PDFPath)
	v.Field("student_script", req.StudentScript, common.Required, common.PDFPath)
	v.Field("exam_mode", req.Mode, common.ExamMode)
	if err := v.Error(); err != nil {
		return entity.Job{}, err
	}
	mode := s.mode(req.Mode, "")

	jobID, docs, err := s.Stager.Stage(ctx, ingest.Sources{
		QuestionPaper: req.QuestionPaper,
		AnswerKey:     req.AnswerKey,
		StudentScript: req.StudentScript,
	})
	if err != nil {
		return entity.Job{}, err
	}

	job, err := s.Jobs.Create(ctx, entity.Job{
		ID:        jobID,
		Status:    constants.JobStatusPending,
		Mode:      mode,
		StudentID: strings.TrimSpace(req.StudentID),
		Documents: docs,
	})
	if err != nil {
		return entity.Job{}, err
	}
	s.publish(ctx, events.NewEvent(constants.JobEventCreated, jobID))
	s.Logger.Info("grading.submit.ok", "job_id", jobID, "exam_mode", string(mode))

	return s.enqueue(ctx, job)
}

// Resume re-queues a failed or interrupted job. A non-empty mode replaces
// the stored exam mode for this and later runs.
func (s *Service) Resume(ctx context.Context, jobID, mode string) (entity.Job, error) {
	if err := checkpoint.ValidateJobID(jobID); err != nil {
		return entity.Job{}, err
	}
	v := common.NewValidator()
	v.Field("exam_mode", mode, common.ExamMode)
	if err := v.Error(); err != nil {
		return entity.Job{}, err
	}

	job, known, err := s.Jobs.Get(ctx, jobID)
	if err != nil {
		return entity.Job{}, err
	}
	if known {
		if err := resumable(job); err != nil {
			return entity.Job{}, err
		}
	}

	cp, found, err := s.Checkpoints.Load(ctx, jobID)
	if err != nil {
		return entity.Job{}, err
	}
	if !found {
		return entity.Job{}, notFound(jobID)
	}
	if !known {
		rebuilt := jobFromCheckpoint(cp)
		switch job, err = s.Jobs.Create(ctx, rebuilt); {
		case err == nil:
			s.Logger.Info("grading.resume.rebuilt", "job_id", jobID, "stage", cp.Stage.String())
		case errors.Is(err, common.ErrConflict):
			// another resume registered it first; the transition below decides
			job = rebuilt
		default:
			return entity.Job{}, err
		}
		if err := resumable(job); err != nil {
			return entity.Job{}, err
		}
	}

	docs, err := s.documents(jobID, cp.Meta.Documents)
	if err != nil {
		return entity.Job{}, err
	}
	resolved := s.mode(mode, firstMode(cp.Meta.Mode, job.Mode))
	studentID := cp.Meta.StudentID
	if studentID == "" {
		studentID = job.StudentID
	}

	// The claim: only a failed job moves to pending, and only once.
	current, err := s.Jobs.Transition(ctx, jobID, []constants.JobStatus{constants.JobStatusFailed}, func(j *entity.Job) {
		j.Status = constants.JobStatusPending
		j.Mode = resolved
		j.StudentID = studentID
		j.Documents = docs
		j.Error = ""
	})
	if err != nil {
		if errors.Is(err, common.ErrConflict) {
			if rerr := resumable(current); rerr != nil {
				return entity.Job{}, rerr
			}
		}
		return entity.Job{}, err
	}
	job = current
	s.Logger.Info("grading.resume.ok", "job_id", jobID, "stage", cp.Stage.String(), "exam_mode", string(resolved))
	return s.enqueue(ctx, job)
}

// resumable rejects jobs that are finished or already queued or running.
func resumable(job entity.Job) error {
	switch job.Status {
	case constants.JobStatusCompleted:
		return common.NewAppError("JOB_COMPLETED", "job "+job.ID+" is already completed", common.ErrConflict)
	case constants.JobStatusRunning, constants.JobStatusPending:
		return common.NewAppError("JOB_ACTIVE", "job "+job.ID+" is already "+string(job.Status), common.ErrConflict)
	}
	return nil
}

// StatusView is the progress view of one job.
type StatusView struct {
	JobID             string
	Status            constants.JobStatus
	Stage             string
	ExamMode          constants.ExamMode
	CompletedSections []string
	Error             string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Status reports a job's lifecycle status and checkpoint stage. Failed jobs
// report the FAILED stage.
func (s *Service) Status(ctx context.Context, jobID string) (StatusView, error) {
	job, cp, hasCP, err := s.lookup(ctx, jobID)
	if err != nil {
		return StatusView{}, err
	}
	view := StatusView{
		JobID:             job.ID,
		Status:            job.Status,
		ExamMode:          job.Mode,
		Error:             job.Error,
		CompletedSections: []string{},
		CreatedAt:         job.CreatedAt,
		UpdatedAt:         job.UpdatedAt,
	}
	stage := constants.StageStarted
	if hasCP {
		stage = cp.Stage
		view.CompletedSections = cp.CompletedSections()
	}
	if job.Status == constants.JobStatusFailed {
		stage = constants.StageFailed
	}
	view.Stage = stage.String()
	return view, nil
}

// Result returns the final result of a completed job.
func (s *Service) Result(ctx context.Context, jobID string) (entity.FinalResult, error) {
	job, cp, hasCP, err := s.lookup(ctx, jobID)
	if err != nil {
		return entity.FinalResult{}, err
	}
	switch job.Status {
	case constants.JobStatusCompleted:
	case constants.JobStatusFailed:
		return entity.FinalResult{}, common.NewAppError("JOB_FAILED", "job "+jobID+" failed: "+job.Error, common.ErrConflict)
	default:
		return entity.FinalResult{}, common.NewAppError("JOB_NOT_READY", "job "+jobID+" is "+string(job.Status), common.ErrConflict)
	}

	if job.Result != nil {
		return *job.Result, nil
	}
	if hasCP && cp.Result != nil {
		return *cp.Result, nil
	}
	if s.Results != nil {
		r, found, err := s.Results.LoadResult(ctx, jobID)
		if err != nil {
			return entity.FinalResult{}, err
		}
		if found {
			return r, nil
		}
	}
	return entity.FinalResult{}, notFound(jobID)
}

// CheckpointView summarizes a checkpoint without its extracted texts.
type CheckpointView struct {
	JobID             string
	Stage             string
	ExamMode          constants.ExamMode
	ExamID            string
	CompletedSections []string
	HasOCR            bool
	SectionsAvailable []string
	LastError         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (s *Service) Checkpoint(ctx context.Context, jobID string) (CheckpointView, error) {
	if err := checkpoint.ValidateJobID(jobID); err != nil {
		return CheckpointView{}, err
	}
	cp, found, err := s.Checkpoints.Load(ctx, jobID)
	if err != nil {
		return CheckpointView{}, err
	}
	if !found {
		return CheckpointView{}, notFound(jobID)
	}
	sections := cp.CompletedSections()
	return CheckpointView{
		JobID:             cp.JobID,
		Stage:             cp.Stage.String(),
		ExamMode:          cp.Meta.Mode,
		ExamID:            cp.Meta.ExamID,
		CompletedSections: sections,
		HasOCR:            cp.OCR != nil,
		SectionsAvailable: sections,
		LastError:         cp.LastError,
		CreatedAt:         cp.CreatedAt,
		UpdatedAt:         cp.UpdatedAt,
	}, nil
}

// List returns registry jobs plus jobs known only from a checkpoint.
func (s *Service) List(ctx context.Context) ([]entity.Job, error) {
	out, err := s.Jobs.List(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(out))
	for _, j := range out {
		known[j.ID] = struct{}{}
	}
	ids, err := s.Checkpoints.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := known[id]; ok {
			continue
		}
		cp, found, err := s.Checkpoints.Load(ctx, id)
		if err != nil || !found {
			continue
		}
		out = append(out, jobFromCheckpoint(cp))
	}
	return out, nil
}

// InvalidateExamCache drops the shared extraction for a question paper and
// answer key so the next job re-extracts them. examID may be given directly
// or derived from the two files.
func (s *Service) InvalidateExamCache(ctx context.Context, examID, questionPaper, answerKey string) (string, error) {
	if examID == "" {
		if questionPaper == "" || answerKey == "" {
			return "", fmt.Errorf("%w: exam_id or both document paths are required", common.ErrInvalidInput)
		}
		id, err := examcache.Fingerprint(questionPaper, answerKey)
		if err != nil {
			return "", err
		}
		examID = id
	}
	if err := s.ExamCache.Invalidate(ctx, examID); err != nil {
		return "", err
	}
	s.Logger.Info("grading.cache.invalidated", "exam_id", examID)
	return examID, nil
}

func (s *Service) enqueue(ctx context.Context, job entity.Job) (entity.Job, error) {
	err := s.Queue.Enqueue(ctx, async.Job{
		Request: pipeline.Request{
			JobID:     job.ID,
			StudentID: job.StudentID,
			Mode:      job.Mode,
			Documents: job.Documents,
		},
		SubmittedAt: time.Now(),
	})
	if err == nil {
		return job, nil
	}
	s.Logger.Error("grading.enqueue_failed", "job_id", job.ID, "error", err)
	if _, uerr := s.Jobs.Update(ctx, job.ID, func(j *entity.Job) {
		j.Status = constants.JobStatusFailed
		j.Error = err.Error()
	}); uerr != nil {
		s.Logger.Error("grading.registry_update_failed", "job_id", job.ID, "error", uerr)
	}
	return entity.Job{}, fmt.Errorf("enqueue %s: %w", job.ID, err)
}

// lookup finds a job in the registry, falling back to a view rebuilt from
// its checkpoint after a restart.
func (s *Service) lookup(ctx context.Context, jobID string) (entity.Job, entity.Checkpoint, bool, error) {
	if err := checkpoint.ValidateJobID(jobID); err != nil {
		return entity.Job{}, entity.Checkpoint{}, false, err
	}
	job, known, err := s.Jobs.Get(ctx, jobID)
	if err != nil {
		return entity.Job{}, entity.Checkpoint{}, false, err
	}
	cp, found, err := s.Checkpoints.Load(ctx, jobID)
	if err != nil {
		return entity.Job{}, entity.Checkpoint{}, false, err
	}
	if !known {
		if !found {
			return entity.Job{}, entity.Checkpoint{}, false, notFound(jobID)
		}
		job = jobFromCheckpoint(cp)
	}
	return job, cp, found, nil
}

// documents prefers the checkpoint's recorded paths and falls back to the
// staged upload directory. Every file must still exist.
func (s *Service) documents(jobID string, recorded entity.Documents) (entity.Documents, error) {
	if recorded.QuestionPaper != "" && recorded.AnswerKey != "" && recorded.StudentScript != "" {
		for _, p := range recorded.Paths() {
			if _, err := os.Stat(p); err != nil {
				return entity.Documents{}, &common.MissingInputError{Path: p}
			}
		}
		return recorded, nil
	}
	if s.Stager == nil {
		return entity.Documents{}, errors.New("no staged documents recorded for " + jobID)
	}
	return s.Stager.Documents(jobID)
}

func (s *Service) mode(requested string, stored constants.ExamMode) constants.ExamMode {
	if m, ok := constants.ParseExamMode(requested); ok {
		return m
	}
	if stored != "" {
		return stored
	}
	return s.DefaultMode
}

func (s *Service) publish(ctx context.Context, ev entity.JobEvent) {
	if err := s.Events.Publish(ctx, ev); err != nil {
		s.Logger.Warn("grading.publish_failed", "type", string(ev.Type), "error", err)
	}
}

// jobFromCheckpoint rebuilds a registry entry after a restart. A checkpoint
// short of the last stage belongs to a job that failed or was interrupted.
func jobFromCheckpoint(cp entity.Checkpoint) entity.Job {
	job := entity.Job{
		ID:        cp.JobID,
		Mode:      cp.Meta.Mode,
		StudentID: cp.Meta.StudentID,
		Documents: cp.Meta.Documents,
		CreatedAt: cp.CreatedAt,
		UpdatedAt: cp.UpdatedAt,
	}
	if cp.Stage == constants.StageAggregationComplete && cp.Result != nil {
		job.Status = constants.JobStatusCompleted
		r := *cp.Result
		job.Result = &r
		return job
	}
	job.Status = constants.JobStatusFailed
	job.Error = cp.LastError
	if job.Error == "" {
		job.Error = "interrupted at " + cp.Stage.String()
	}
	return job
}

func firstMode(modes ...constants.ExamMode) constants.ExamMode {
	for _, m := range modes {
		if m != "" {
			return m
		}
	}
	return ""
}

func notFound(jobID string) error {
	return common.NewAppError("NOT_FOUND", "job "+jobID+" not found", common.ErrNotFound)
}
