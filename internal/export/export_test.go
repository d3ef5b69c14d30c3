package export_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/exam-grader/internal/entity"
	"github.com/joseph-ayodele/exam-grader/internal/export"
)

func sampleResult() entity.FinalResult {
	return entity.FinalResult{
		StudentID: "S001",
		ExamMode:  "PT-2",
		Sections: []entity.SectionScore{
			{
				Section: "A",
				Questions: []entity.QuestionScore{
					{ID: "Q1", Awarded: 5, Max: 5, Retained: true},
					{ID: "Q2", Awarded: 3, Max: 5, Retained: false},
					{ID: "Q3", Awarded: 4, Max: 5, Retained: true, Feedback: "missing one step"},
				},
				Retained:  []string{"Q1", "Q3"},
				Discarded: []string{"Q2"},
				Subtotal:  9,
				Cap:       10,
			},
			{Section: "B", Subtotal: 15, Cap: 20},
			{Section: "C", Subtotal: 14, Cap: 20},
		},
		GrandTotal:      38,
		MaxPossible:     50,
		Percentage:      76,
		Grade:           "A",
		Result:          "PASS",
		OverallFeedback: "Exam: Periodical Test - II",
		AuditLog:        []string{"Dropped Q2 (lowest in Section A)"},
	}
}

func TestResultStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := export.NewResultStore(dir, nil)
	require.NoError(t, err)

	_, found, err := s.LoadResult(ctx, "alice-result")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SaveResult(ctx, "alice-result", sampleResult()))
	assert.Equal(t, filepath.Join(dir, "alice-result_result.json"), s.Path("alice-result"))

	raw, err := os.ReadFile(s.Path("alice-result"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"student_id\": \"S001\"")

	got, found, err := s.LoadResult(ctx, "alice-result")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sampleResult(), got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestResultStore_RejectsBadJobID(t *testing.T) {
	s, err := export.NewResultStore(t.TempDir(), nil)
	require.NoError(t, err)
	assert.Error(t, s.SaveResult(context.Background(), "../escape", sampleResult()))
}

func TestReport(t *testing.T) {
	out := export.Report("alice-result", sampleResult())
	assert.Contains(t, out, "Job:        alice-result")
	assert.Contains(t, out, "Score:      38/50 (76.0%)")
	assert.Contains(t, out, "Section A  9/10")
	assert.Contains(t, out, "[x] Q2   3/5")
	assert.Contains(t, out, "[ ] Q3   4/5  missing one step")
	assert.Contains(t, out, "(no answers evaluated)")
	assert.Contains(t, out, "Dropped Q2 (lowest in Section A)")
}

func TestResultsXLSX(t *testing.T) {
	rows := []export.Row{
		{JobID: "alice-result", Result: sampleResult()},
		{JobID: "bob-result", Error: "exhausted retries"},
	}
	b, err := export.ResultsXLSX(rows, []string{"A", "B", "C"}, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	summary, err := f.GetRows("Results")
	require.NoError(t, err)
	require.Len(t, summary, 3)
	assert.Equal(t, []string{"Job ID", "Student ID", "Exam Mode", "Section A", "Section B", "Section C", "Total", "Max", "Percentage", "Grade", "Result", "Error"}, summary[0])
	assert.Equal(t, "alice-result", summary[1][0])
	assert.Equal(t, "9", summary[1][3])
	assert.Equal(t, "38", summary[1][6])
	assert.Equal(t, "A", summary[1][9])
	assert.Equal(t, "PASS", summary[1][10])
	assert.Equal(t, "exhausted retries", summary[2][len(summary[2])-1])

	questions, err := f.GetRows("Questions")
	require.NoError(t, err)
	require.Len(t, questions, 4)
	assert.Equal(t, []string{"alice-result", "A", "Q2", "3", "5"}, questions[2][:5])
}
