package checkpoint_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/checkpoint"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
)

func newStore(t *testing.T) (*checkpoint.FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := checkpoint.NewFileStore(dir, nil)
	require.NoError(t, err)
	return s, dir
}

func TestFileStore_LoadMissing(t *testing.T) {
	s, _ := newStore(t)

	_, found, err := s.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFileStore_StageProgression(t *testing.T) {
	ctx := context.Background()
	s, dir := newStore(t)
	meta := entity.CheckpointMeta{Mode: constants.ExamModePT2, StudentID: "S1", ExamID: "exam_a_b"}

	cp, err := checkpoint.Begin(ctx, s, "alice-result", meta)
	require.NoError(t, err)
	assert.Equal(t, constants.StageStarted, cp.Stage)
	assert.FileExists(t, filepath.Join(dir, "alice-result_checkpoint.json"))

	cp, err = checkpoint.RecordOCR(ctx, s, cp, entity.OCRTexts{QuestionPaper: "qp", AnswerKey: "ak", StudentAnswers: "sa"})
	require.NoError(t, err)

	loaded, found, err := s.Load(ctx, "alice-result")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, constants.StageOCRComplete, loaded.Stage)
	assert.Equal(t, "sa", loaded.OCR.StudentAnswers)
	assert.Equal(t, "exam_a_b", loaded.Meta.ExamID)

	cp, err = checkpoint.RecordEvaluation(ctx, s, loaded, entity.Evaluation{Sections: map[string]entity.SectionEvaluation{}})
	require.NoError(t, err)
	cp, err = checkpoint.RecordResult(ctx, s, cp, entity.FinalResult{StudentID: "S1", Grade: "A"})
	require.NoError(t, err)

	loaded, found, err = s.Load(ctx, "alice-result")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, constants.StageAggregationComplete, loaded.Stage)
	require.NotNil(t, loaded.Result)
	assert.Equal(t, "A", loaded.Result.Grade)
	assert.False(t, loaded.CreatedAt.IsZero())
}

func TestFileStore_BeginKeepsExistingPayloads(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	cp, err := checkpoint.Begin(ctx, s, "job", entity.CheckpointMeta{Mode: constants.ExamModePT2, ExamID: "exam_x"})
	require.NoError(t, err)
	_, err = checkpoint.RecordOCR(ctx, s, cp, entity.OCRTexts{QuestionPaper: "qp"})
	require.NoError(t, err)

	cp, err = checkpoint.Begin(ctx, s, "job", entity.CheckpointMeta{Mode: constants.ExamModePT1})
	require.NoError(t, err)
	assert.Equal(t, constants.StageOCRComplete, cp.Stage)
	assert.Equal(t, constants.ExamModePT1, cp.Meta.Mode)
	assert.Equal(t, "exam_x", cp.Meta.ExamID)
}

func TestFileStore_RecordFailureKeepsStage(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	cp, err := checkpoint.Begin(ctx, s, "job", entity.CheckpointMeta{})
	require.NoError(t, err)
	cp, err = checkpoint.RecordOCR(ctx, s, cp, entity.OCRTexts{QuestionPaper: "qp"})
	require.NoError(t, err)
	_, err = checkpoint.RecordFailure(ctx, s, cp, assert.AnError)
	require.NoError(t, err)

	loaded, found, err := s.Load(ctx, "job")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, constants.StageOCRComplete, loaded.Stage)
	assert.Equal(t, assert.AnError.Error(), loaded.LastError)
}

func TestFileStore_OutOfOrderRejected(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	cp, err := checkpoint.Begin(ctx, s, "job", entity.CheckpointMeta{})
	require.NoError(t, err)

	_, err = checkpoint.RecordEvaluation(ctx, s, cp, entity.Evaluation{})
	require.Error(t, err)
	assert.True(t, checkpoint.IsStageOrder(err))

	_, err = checkpoint.RecordResult(ctx, s, cp, entity.FinalResult{})
	assert.True(t, checkpoint.IsStageOrder(err))
}

func TestFileStore_MalformedFileTreatedAsAbsent(t *testing.T) {
	s, dir := newStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken_checkpoint.json"), []byte("{not json"), 0o644))

	_, found, err := s.Load(context.Background(), "broken")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	ctx := context.Background()
	s, dir := newStore(t)

	for i := 0; i < 3; i++ {
		_, err := checkpoint.Begin(ctx, s, "job", entity.CheckpointMeta{})
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "job_checkpoint.json", entries[0].Name())
}

func TestFileStore_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	for _, id := range []string{"b-result", "a-result"} {
		_, err := checkpoint.Begin(ctx, s, id, entity.CheckpointMeta{})
		require.NoError(t, err)
	}
	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-result", "b-result"}, ids)

	require.NoError(t, s.Delete(ctx, "a-result"))
	require.NoError(t, s.Delete(ctx, "a-result"))
	ids, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b-result"}, ids)
}

func TestValidateJobID(t *testing.T) {
	assert.NoError(t, checkpoint.ValidateJobID("alice-result(1)"))
	assert.Error(t, checkpoint.ValidateJobID(""))
	assert.Error(t, checkpoint.ValidateJobID("../etc"))
	assert.Error(t, checkpoint.ValidateJobID("a/b"))
}
