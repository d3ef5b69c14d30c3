package entity

import (
	"errors"
	"fmt"
	"time"

	"github.com/joseph-ayodele/exam-grader/constants"
)

// ErrStageOrder is returned when a stage payload is recorded out of order.
var ErrStageOrder = errors.New("checkpoint stage order violated")

// OCRTexts is the stage-one payload.
type OCRTexts struct {
	QuestionPaper  string `json:"question_paper"`
	AnswerKey      string `json:"answer_key"`
	StudentAnswers string `json:"student_answers"`
}

// CheckpointMeta records what a job was started with so a resume can
// rebuild the request without the caller.
type CheckpointMeta struct {
	Mode      constants.ExamMode `json:"exam_mode"`
	StudentID string             `json:"student_id,omitempty"`
	Documents Documents          `json:"documents"`
	ExamID    string             `json:"exam_id,omitempty"`
}

// Checkpoint is the durable per-job progress record. Each stage owns one
// tagged payload; a later payload is only ever present with all earlier ones.
type Checkpoint struct {
	JobID      string          `json:"job_id"`
	Stage      constants.Stage `json:"stage"`
	Meta       CheckpointMeta  `json:"meta"`
	OCR        *OCRTexts       `json:"ocr_texts,omitempty"`
	Evaluation *Evaluation     `json:"evaluation,omitempty"`
	Result     *FinalResult    `json:"final_result,omitempty"`
	LastError  string          `json:"last_error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewCheckpoint starts a checkpoint at STARTED.
func NewCheckpoint(jobID string, meta CheckpointMeta) Checkpoint {
	return Checkpoint{JobID: jobID, Stage: constants.StageStarted, Meta: meta}
}

// WithOCR returns the next state after text extraction.
func (c Checkpoint) WithOCR(texts OCRTexts) (Checkpoint, error) {
	if c.Stage > constants.StageOCRComplete {
		return c, fmt.Errorf("%w: ocr texts recorded at %s", ErrStageOrder, c.Stage)
	}
	c.OCR = &texts
	c.Stage = constants.StageOCRComplete
	c.LastError = ""
	return c, nil
}

// WithEvaluation returns the next state after the reasoning call.
func (c Checkpoint) WithEvaluation(eval Evaluation) (Checkpoint, error) {
	if c.OCR == nil {
		return c, fmt.Errorf("%w: evaluation recorded without ocr texts", ErrStageOrder)
	}
	if c.Stage > constants.StageEvaluationComplete {
		return c, fmt.Errorf("%w: evaluation recorded at %s", ErrStageOrder, c.Stage)
	}
	c.Evaluation = &eval
	c.Stage = constants.StageEvaluationComplete
	c.LastError = ""
	return c, nil
}

// WithResult returns the final state after aggregation.
func (c Checkpoint) WithResult(result FinalResult) (Checkpoint, error) {
	if c.Evaluation == nil {
		return c, fmt.Errorf("%w: result recorded without evaluation", ErrStageOrder)
	}
	c.Result = &result
	c.Stage = constants.StageAggregationComplete
	c.LastError = ""
	return c, nil
}

// Validate checks the payload-presence invariant for the recorded stage.
func (c Checkpoint) Validate() error {
	if c.JobID == "" {
		return errors.New("checkpoint has no job id")
	}
	if c.Stage == constants.StageFailed {
		return fmt.Errorf("%w: failed is not a storable stage", ErrStageOrder)
	}
	if c.Stage >= constants.StageOCRComplete && c.OCR == nil {
		return fmt.Errorf("%w: %s without ocr texts", ErrStageOrder, c.Stage)
	}
	if c.Stage >= constants.StageEvaluationComplete && c.Evaluation == nil {
		return fmt.Errorf("%w: %s without evaluation", ErrStageOrder, c.Stage)
	}
	if c.Stage >= constants.StageAggregationComplete && c.Result == nil {
		return fmt.Errorf("%w: %s without result", ErrStageOrder, c.Stage)
	}
	return nil
}

// CompletedSections lists the sections the stored evaluation covers.
func (c Checkpoint) CompletedSections() []string {
	if c.Evaluation == nil {
		return []string{}
	}
	out := make([]string, 0, len(constants.Sections))
	for _, rule := range constants.Sections {
		if _, ok := c.Evaluation.Sections[rule.ID]; ok {
			out = append(out, rule.ID)
		}
	}
	return out
}

// ExamCacheEntry is the shared extraction result for one question paper and
// answer key pair.
type ExamCacheEntry struct {
	ExamID            string    `json:"exam_id"`
	QuestionPaperText string    `json:"question_paper_text"`
	AnswerKeyText     string    `json:"answer_key_text"`
	OCRCompletedAt    time.Time `json:"ocr_completed_at"`
}

// Complete reports whether both texts are present; complete entries are immutable.
func (e ExamCacheEntry) Complete() bool {
	return e.QuestionPaperText != "" && e.AnswerKeyText != ""
}
