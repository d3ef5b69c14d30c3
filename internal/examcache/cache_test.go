package examcache_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
	"github.com/joseph-ayodele/exam-grader/internal/examcache"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestFingerprint_ContentDerived(t *testing.T) {
	dir := t.TempDir()
	qp1 := writeFile(t, dir, "qp1.pdf", "question paper")
	ak1 := writeFile(t, dir, "ak1.pdf", "answer key")
	qp2 := writeFile(t, dir, "renamed.pdf", "question paper")
	ak2 := writeFile(t, dir, "other.pdf", "answer key")

	a, err := examcache.Fingerprint(qp1, ak1)
	require.NoError(t, err)
	b, err := examcache.Fingerprint(qp2, ak2)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, len("exam_")+16+1+16)
	assert.Equal(t, examcache.FingerprintBytes([]byte("question paper"), []byte("answer key")), a)

	c, err := examcache.Fingerprint(ak1, qp1)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestFingerprint_MissingFile(t *testing.T) {
	_, err := examcache.Fingerprint(filepath.Join(t.TempDir(), "nope.pdf"), "x")
	assert.True(t, errors.Is(err, common.ErrMissingInput))
}

func TestFileCache_WriteOnce(t *testing.T) {
	ctx := context.Background()
	c, err := examcache.NewFileCache(t.TempDir(), nil)
	require.NoError(t, err)

	ok, err := c.Has(ctx, "exam_a_b")
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := c.Put(ctx, entity.ExamCacheEntry{ExamID: "exam_a_b", QuestionPaperText: "qp1", AnswerKeyText: "ak1"})
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = c.Put(ctx, entity.ExamCacheEntry{ExamID: "exam_a_b", QuestionPaperText: "qp2", AnswerKeyText: "ak2"})
	require.NoError(t, err)
	assert.False(t, stored)

	got, found, err := c.Get(ctx, "exam_a_b")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "qp1", got.QuestionPaperText)
	assert.False(t, got.OCRCompletedAt.IsZero())
}

func TestFileCache_ConcurrentPutsConverge(t *testing.T) {
	ctx := context.Background()
	c, err := examcache.NewFileCache(t.TempDir(), nil)
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stored, err := c.Put(ctx, entity.ExamCacheEntry{
				ExamID:            "exam_race",
				QuestionPaperText: "qp",
				AnswerKeyText:     string(rune('a' + i)),
			})
			assert.NoError(t, err)
			if stored {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	_, found, err := c.Get(ctx, "exam_race")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestFileCache_RejectsIncomplete(t *testing.T) {
	c, err := examcache.NewFileCache(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = c.Put(context.Background(), entity.ExamCacheEntry{ExamID: "exam_x", QuestionPaperText: "qp"})
	assert.True(t, errors.Is(err, common.ErrInvalidInput))
}

func TestFileCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	c, err := examcache.NewFileCache(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = c.Put(ctx, entity.ExamCacheEntry{ExamID: "exam_x", QuestionPaperText: "bad", AnswerKeyText: "bad"})
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, "exam_x"))

	stored, err := c.Put(ctx, entity.ExamCacheEntry{ExamID: "exam_x", QuestionPaperText: "good", AnswerKeyText: "good"})
	require.NoError(t, err)
	assert.True(t, stored)

	err = c.Invalidate(ctx, "exam_missing")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}
