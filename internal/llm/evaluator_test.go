package llm_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
	"github.com/joseph-ayodele/exam-grader/internal/llm"
)

func evalConfig() common.EvaluationConfig {
	return common.EvaluationConfig{
		QuestionPaperChars: 50,
		AnswerKeyChars:     50,
		StudentChars:       50,
		HeadFraction:       0.6,
	}
}

func TestEvaluator_ParsesReply(t *testing.T) {
	var seen []llm.Message
	completer := llm.CompleterFunc(func(_ context.Context, msgs []llm.Message) (string, error) {
		seen = msgs
		return "Thinking...\n```json\n" + `{
  "section_wise_evaluation": {"A": {"questions": {"Q1": {"question_total": 5}, "Q2": {"question_total": "3"}}}},
  "final_summary": {"examiner_comment": "Good"},
}` + "\n```", nil
	})

	ev := llm.NewEvaluator(completer, evalConfig(), nil)
	got, err := ev.Evaluate(context.Background(), entity.OCRTexts{
		QuestionPaper:  strings.Repeat("q", 200),
		AnswerKey:      "key",
		StudentAnswers: "answers",
	})
	require.NoError(t, err)

	require.Contains(t, got.Sections, "A")
	qs := got.Sections["A"].Questions
	require.Len(t, qs, 2)
	assert.Equal(t, "Q1", qs[0].ID)
	assert.Equal(t, 3.0, qs[1].Total())
	assert.Equal(t, entity.Text("Good"), got.Summary.ExaminerComment)
	assert.NotEmpty(t, got.RawReply)

	require.Len(t, seen, 2)
	user, ok := seen[1].Content.(string)
	require.True(t, ok)
	assert.Contains(t, user, llm.TruncationMarker)
	assert.NotContains(t, user, strings.Repeat("q", 60))
}

func TestEvaluator_UnparsableKeepsRawReply(t *testing.T) {
	completer := llm.CompleterFunc(func(context.Context, []llm.Message) (string, error) {
		return "I refuse to answer in JSON.", nil
	})

	_, err := llm.NewEvaluator(completer, evalConfig(), nil).Evaluate(context.Background(), entity.OCRTexts{})
	var ue *common.UnparsableResponseError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "I refuse to answer in JSON.", ue.Raw)
}

func TestEvaluator_PropagatesCallError(t *testing.T) {
	want := &common.ExhaustedRetriesError{Service: "evaluation", Attempts: 10}
	completer := llm.CompleterFunc(func(context.Context, []llm.Message) (string, error) {
		return "", want
	})

	_, err := llm.NewEvaluator(completer, evalConfig(), nil).Evaluate(context.Background(), entity.OCRTexts{})
	assert.True(t, errors.Is(err, common.ErrExhaustedRetries))
}

func TestValidateEvaluationJSON(t *testing.T) {
	assert.NoError(t, llm.ValidateEvaluationJSON([]byte(`{"section_wise_evaluation": {"A": {"questions": {"Q1": {"question_total": 4}}}}}`)))
	assert.Error(t, llm.ValidateEvaluationJSON([]byte(`{"final_summary": {}}`)))
	assert.Error(t, llm.ValidateEvaluationJSON([]byte(`{"section_wise_evaluation": {"A": {"questions": {"Q1": {"question_total": true}}}}}`)))
}
