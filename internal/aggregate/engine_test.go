package aggregate_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/aggregate"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
)

func decodeEvaluation(t *testing.T, raw string) entity.Evaluation {
	t.Helper()
	var eval entity.Evaluation
	require.NoError(t, json.Unmarshal([]byte(raw), &eval))
	return eval
}

const sampleEvaluation = `{
  "section_wise_evaluation": {
    "A": {"questions": {
      "Q1": {"question_total": 5, "remarks": "complete"},
      "Q2": {"marks_awarded": 3},
      "Q3": {"subdivisions": {"a": {"marks_awarded": 2}, "b": {"marks_awarded": "2"}}}
    }},
    "B": {"questions": {
      "Q1": {"total_awarded": 8},
      "Q2": {"awarded": 7},
      "Q3": {"question_total": 6}
    }},
    "C": {"questions": {
      "Q1": {"question_total": 9},
      "Q2": {"question_total": 5}
    }}
  },
  "final_summary": {"examiner_comment": "Solid attempt."}
}`

func TestCompute_EndToEnd(t *testing.T) {
	eval := decodeEvaluation(t, sampleEvaluation)

	res := aggregate.Compute(eval, "S123", constants.ExamModePT2, aggregate.DefaultRules())

	assert.Equal(t, "S123", res.StudentID)
	assert.Equal(t, "PT-2", res.ExamMode)
	assert.Equal(t, 38.0, res.GrandTotal)
	assert.Equal(t, 50.0, res.MaxPossible)
	assert.Equal(t, 76.0, res.Percentage)
	assert.Equal(t, "A", res.Grade)
	assert.Equal(t, constants.VerdictPass, res.Result)
	assert.Equal(t, "Solid attempt.", res.ExaminerComment)

	a, ok := res.Section("A")
	require.True(t, ok)
	assert.Equal(t, 9.0, a.Subtotal)
	assert.Equal(t, []string{"Q1", "Q3"}, a.Retained)
	assert.Equal(t, []string{"Q2"}, a.Discarded)

	c, ok := res.Section("C")
	require.True(t, ok)
	assert.Equal(t, 14.0, c.Subtotal)
	assert.Empty(t, c.Discarded)

	assert.Contains(t, res.EvaluationSummary, "Section A: 9/10 (dropped Q2 with 3 marks)")
	assert.Contains(t, res.AuditLog, "Dropped Q2 (lowest in Section A)")
	assert.Contains(t, res.OverallFeedback, "Exam: Periodical Test - II")
	assert.Contains(t, res.OverallFeedback, "Result: PASS")
	assert.Contains(t, res.OverallFeedback, "Good performance with solid grasp of fundamentals.")
	assert.Contains(t, res.OverallFeedback, "Final Score: 38/50 (76.0%)")
	assert.Contains(t, res.OverallFeedback, "Examiner comment: Solid attempt.")
}

func TestScoreSection_CapsSubtotal(t *testing.T) {
	eval := decodeEvaluation(t, `{"section_wise_evaluation": {"A": {"questions": {
		"Q1": {"question_total": 7}, "Q2": {"question_total": 6}, "Q3": {"question_total": 1}
	}}}}`)

	score := aggregate.ScoreSection(constants.Sections[0], eval.Sections["A"])

	assert.Equal(t, 10.0, score.Subtotal)
	assert.Equal(t, []string{"Q3"}, score.Discarded)
}

func TestScoreSection_TiesKeepPresentationOrder(t *testing.T) {
	eval := decodeEvaluation(t, `{"section_wise_evaluation": {"B": {"questions": {
		"Q3": {"question_total": 6}, "Q1": {"question_total": 6}, "Q2": {"question_total": 6}
	}}}}`)

	score := aggregate.ScoreSection(constants.Sections[1], eval.Sections["B"])

	assert.Equal(t, []string{"Q3", "Q1"}, score.Retained)
	assert.Equal(t, []string{"Q2"}, score.Discarded)
	assert.Equal(t, 12.0, score.Subtotal)
}

func TestScoreSection_FewerThanRetainedKeepsAll(t *testing.T) {
	eval := decodeEvaluation(t, `{"section_wise_evaluation": {"B": {"questions": {
		"Q2": {"question_total": 4}
	}}}}`)

	score := aggregate.ScoreSection(constants.Sections[1], eval.Sections["B"])

	assert.Equal(t, []string{"Q2"}, score.Retained)
	assert.Empty(t, score.Discarded)
	assert.Equal(t, 4.0, score.Subtotal)
	assert.Equal(t, 10.0, score.Questions[0].Max)
}

func TestCompute_MissingSectionScoresZero(t *testing.T) {
	eval := decodeEvaluation(t, `{"section_wise_evaluation": {"A": {"questions": {
		"Q1": {"question_total": 5}, "Q2": {"question_total": 5}
	}}}}`)

	res := aggregate.Compute(eval, "", constants.ExamModePT1, aggregate.DefaultRules())

	assert.Equal(t, "UNKNOWN", res.StudentID)
	assert.Equal(t, 10.0, res.GrandTotal)
	assert.Equal(t, 20.0, res.Percentage)
	assert.Equal(t, constants.FailingGrade, res.Grade)
	assert.Equal(t, constants.VerdictFail, res.Result)
	assert.Contains(t, res.EvaluationSummary, "Section B: 0/20 (not evaluated)")
	assert.Contains(t, res.OverallFeedback, "Exam: Periodical Test - I")
	require.Len(t, res.Sections, 3)
}

func TestCompute_MalformedMarksScoreZero(t *testing.T) {
	eval := decodeEvaluation(t, `{"section_wise_evaluation": {
		"A": {"questions": {"Q1": {"question_total": "five"}, "Q2": "garbage", "Q3": {"question_total": "4.5"}}},
		"B": "not an object"
	}}`)

	res := aggregate.Compute(eval, "S1", constants.ExamModePT2, aggregate.DefaultRules())

	a, ok := res.Section("A")
	require.True(t, ok)
	assert.Equal(t, 4.5, a.Subtotal)
	b, ok := res.Section("B")
	require.True(t, ok)
	assert.Zero(t, b.Subtotal)
}

func TestCompute_SubtotalsNeverExceedCaps(t *testing.T) {
	eval := decodeEvaluation(t, `{"section_wise_evaluation": {
		"A": {"questions": {"Q1": {"question_total": 50}, "Q2": {"question_total": 50}}},
		"B": {"questions": {"Q1": {"question_total": 50}, "Q2": {"question_total": 50}}},
		"C": {"questions": {"Q1": {"question_total": 50}, "Q2": {"question_total": 50}}}
	}}`)

	res := aggregate.Compute(eval, "S1", constants.ExamModePT2, aggregate.DefaultRules())

	for _, s := range res.Sections {
		assert.LessOrEqual(t, s.Subtotal, s.Cap, "section %s", s.Section)
	}
	assert.Equal(t, 50.0, res.GrandTotal)
	assert.Equal(t, "O", res.Grade)
}

func TestGrade(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{95, "O"},
		{90, "O"},
		{89.9, "A+"},
		{80, "A+"},
		{70, "A"},
		{60, "B+"},
		{55, "B"},
		{50, "C"},
		{45, "D"},
		{44.9, "F"},
		{0, "F"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, aggregate.Grade(tt.pct, constants.GradeBands), "pct=%v", tt.pct)
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		total, max float64
		want       float64
	}{
		{38, 50, 76.0},
		{1, 3, 33.3},
		{10, 0, 0},
		{12.125, 50, 24.2},
		{0.125, 50, 0.2},
		{1.125, 50, 2.2},
		{0.475, 50, 0.9},
		{22.475, 50, 45.0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, aggregate.Percentage(tt.total, tt.max), "total=%v max=%v", tt.total, tt.max)
	}
}
