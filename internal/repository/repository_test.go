package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/checkpoint"
	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
	"github.com/joseph-ayodele/exam-grader/internal/repository"
)

func openSQLite(t *testing.T) *repository.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "grader.db") + "?_pragma=busy_timeout(5000)"
	db, err := repository.Open(context.Background(), common.StorageConfig{Driver: "sqlite", DSN: dsn}, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestOpen_MigrateIsIdempotent(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, db.Migrate(context.Background()))
	require.NoError(t, db.HealthCheck(context.Background(), time.Second))
	assert.Equal(t, "sqlite3", db.Dialect())
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := repository.Open(context.Background(), common.StorageConfig{Driver: "mysql"}, nil)
	assert.Error(t, err)
}

func TestCheckpointStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := repository.NewCheckpointStore(openSQLite(t), nil)

	_, found, err := store.Load(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, found)

	cp, err := checkpoint.Begin(ctx, store, "job-1", entity.CheckpointMeta{Mode: constants.ExamModePT2, ExamID: "exam_a_b"})
	require.NoError(t, err)
	cp, err = checkpoint.RecordOCR(ctx, store, cp, entity.OCRTexts{QuestionPaper: "qp", AnswerKey: "ak", StudentAnswers: "sa"})
	require.NoError(t, err)
	_, err = checkpoint.RecordFailure(ctx, store, cp, errors.New("evaluation: max retries exceeded"))
	require.NoError(t, err)

	got, found, err := store.Load(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, constants.StageOCRComplete, got.Stage)
	assert.Equal(t, "sa", got.OCR.StudentAnswers)
	assert.Equal(t, "evaluation: max retries exceeded", got.LastError)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1"}, ids)

	require.NoError(t, store.Delete(ctx, "job-1"))
	_, found, err = store.Load(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestExamCache_WriteOnce(t *testing.T) {
	ctx := context.Background()
	cache := repository.NewExamCache(openSQLite(t), nil)

	stored, err := cache.Put(ctx, entity.ExamCacheEntry{ExamID: "exam_1", QuestionPaperText: "first", AnswerKeyText: "key"})
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = cache.Put(ctx, entity.ExamCacheEntry{ExamID: "exam_1", QuestionPaperText: "second", AnswerKeyText: "key"})
	require.NoError(t, err)
	assert.False(t, stored)

	got, found, err := cache.Get(ctx, "exam_1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "first", got.QuestionPaperText)

	has, err := cache.Has(ctx, "exam_2")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, cache.Invalidate(ctx, "exam_1"))
	assert.True(t, errors.Is(cache.Invalidate(ctx, "exam_1"), common.ErrNotFound))
}
