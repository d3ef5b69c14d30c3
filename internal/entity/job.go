package entity

import (
	"time"

	"github.com/joseph-ayodele/exam-grader/constants"
)

// Documents holds the on-disk paths of a job's three inputs.
type Documents struct {
	QuestionPaper string `json:"question_paper"`
	AnswerKey     string `json:"answer_key"`
	StudentScript string `json:"student_sheet"`
}

// Paths returns the input paths in pipeline order.
func (d Documents) Paths() []string {
	return []string{d.QuestionPaper, d.AnswerKey, d.StudentScript}
}

// Job is the in-memory bookkeeping record for one evaluation request.
type Job struct {
	ID        string              `json:"job_id"`
	Status    constants.JobStatus `json:"status"`
	Mode      constants.ExamMode  `json:"exam_mode"`
	StudentID string              `json:"student_id,omitempty"`
	Documents Documents           `json:"documents"`
	Error     string              `json:"error,omitempty"`
	Result    *FinalResult        `json:"result,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// JobEvent is a job state transition surfaced to the status layer.
type JobEvent struct {
	ID     string                 `json:"id"`
	Type   constants.JobEventType `json:"type"`
	JobID  string                 `json:"job_id"`
	Stage  string                 `json:"stage,omitempty"`
	Error  string                 `json:"error,omitempty"`
	Result *FinalResult           `json:"result,omitempty"`
	At     time.Time              `json:"at"`
}
