package entity

// QuestionScore is one answered question after aggregation.
type QuestionScore struct {
	ID       string  `json:"id"`
	Awarded  float64 `json:"awarded"`
	Max      float64 `json:"max"`
	Feedback string  `json:"feedback,omitempty"`
	Retained bool    `json:"retained"`
}

// SectionScore is the scored record for one section.
// Subtotal never exceeds Cap.
type SectionScore struct {
	Section   string          `json:"section"`
	Questions []QuestionScore `json:"questions"`
	Retained  []string        `json:"retained_questions"`
	Discarded []string        `json:"discarded_questions"`
	Subtotal  float64         `json:"section_total"`
	Cap       float64         `json:"section_max"`
}

// FinalResult is produced once at the end of aggregation and never mutated.
type FinalResult struct {
	StudentID         string         `json:"student_id"`
	ExamMode          string         `json:"exam_mode"`
	Sections          []SectionScore `json:"sections"`
	GrandTotal        float64        `json:"grand_total"`
	MaxPossible       float64        `json:"max_possible"`
	Percentage        float64        `json:"percentage"`
	Grade             string         `json:"grade"`
	Result            string         `json:"result"`
	OverallFeedback   string         `json:"overall_feedback"`
	ExaminerComment   string         `json:"examiner_comment,omitempty"`
	EvaluationSummary []string       `json:"evaluation_summary"`
	AuditLog          []string       `json:"audit_log"`
}

// Section returns the record for id, if present.
func (r FinalResult) Section(id string) (SectionScore, bool) {
	for _, s := range r.Sections {
		if s.Section == id {
			return s, true
		}
	}
	return SectionScore{}, false
}
