package constants

import "strings"

// ExamMode selects the exam pattern a job is graded under.
type ExamMode string

const (
	ExamModePT1 ExamMode = "PT-1"
	ExamModePT2 ExamMode = "PT-2"

	DefaultExamMode = ExamModePT2
)

// ParseExamMode accepts the canonical names plus the roman-numeral spelling
// used on printed papers ("PT-II").
func ParseExamMode(s string) (ExamMode, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PT-1", "PT-I", "PT1":
		return ExamModePT1, true
	case "PT-2", "PT-II", "PT2":
		return ExamModePT2, true
	}
	return "", false
}

// Title is the human-readable exam name used in feedback text.
func (m ExamMode) Title() string {
	switch m {
	case ExamModePT1:
		return "Periodical Test - I"
	default:
		return "Periodical Test - II"
	}
}

// SectionRule describes how one exam section is scored.
type SectionRule struct {
	ID          string
	Cap         float64 // maximum credited marks for the section
	RetainBest  int     // best N answered questions count
	QuestionMax float64 // default per-question maximum
}

// Sections is the periodical-test layout: best 2 of 3 in each section.
var Sections = []SectionRule{
	{ID: "A", Cap: 10, RetainBest: 2, QuestionMax: 5},
	{ID: "B", Cap: 20, RetainBest: 2, QuestionMax: 10},
	{ID: "C", Cap: 20, RetainBest: 2, QuestionMax: 10},
}

const (
	TotalMax  = 50.0
	PassMarks = 25.0
)

// Verdict strings.
const (
	VerdictPass = "PASS"
	VerdictFail = "FAIL"
)

// GradeBand maps a minimum percentage to a letter grade.
type GradeBand struct {
	Min   float64
	Grade string
}

// GradeBands is ordered from highest to lowest; anything below the last band fails.
var GradeBands = []GradeBand{
	{Min: 90, Grade: "O"},
	{Min: 80, Grade: "A+"},
	{Min: 70, Grade: "A"},
	{Min: 60, Grade: "B+"},
	{Min: 55, Grade: "B"},
	{Min: 50, Grade: "C"},
	{Min: 45, Grade: "D"},
}

const FailingGrade = "F"
