package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/ingest"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func sources(t *testing.T, dir, student string) ingest.Sources {
	return ingest.Sources{
		QuestionPaper: writeFile(t, dir, "qp.pdf", "question paper"),
		AnswerKey:     writeFile(t, dir, "ak.pdf", "answer key"),
		StudentScript: writeFile(t, dir, student, "script"),
	}
}

func TestBaseJobID(t *testing.T) {
	assert.Equal(t, "alice-result", ingest.BaseJobID("/tmp/in/alice.pdf"))
	assert.Equal(t, "roll_42-result", ingest.BaseJobID("roll 42.PDF"))
	assert.Equal(t, "student-result", ingest.BaseJobID(".pdf"))
}

func TestStager_StageCopiesWithFixedNames(t *testing.T) {
	src := t.TempDir()
	uploads := filepath.Join(t.TempDir(), "uploads")
	s, err := ingest.NewStager(uploads, nil)
	require.NoError(t, err)

	jobID, docs, err := s.Stage(context.Background(), sources(t, src, "alice.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "alice-result", jobID)

	assert.Equal(t, filepath.Join(uploads, jobID, "question_paper.pdf"), docs.QuestionPaper)
	assert.Equal(t, filepath.Join(uploads, jobID, "answer_key.pdf"), docs.AnswerKey)
	assert.Equal(t, filepath.Join(uploads, jobID, "student_sheet.pdf"), docs.StudentScript)

	b, err := os.ReadFile(docs.AnswerKey)
	require.NoError(t, err)
	assert.Equal(t, "answer key", string(b))

	got, err := s.Documents(jobID)
	require.NoError(t, err)
	assert.Equal(t, docs, got)
}

func TestStager_AllocatesSuffixedIDs(t *testing.T) {
	src := t.TempDir()
	s, err := ingest.NewStager(t.TempDir(), nil)
	require.NoError(t, err)
	in := sources(t, src, "bob.pdf")

	var ids []string
	for i := 0; i < 3; i++ {
		id, _, err := s.Stage(context.Background(), in)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"bob-result", "bob-result(1)", "bob-result(2)"}, ids)
}

func TestStager_ConcurrentStagesGetDistinctIDs(t *testing.T) {
	src := t.TempDir()
	s, err := ingest.NewStager(t.TempDir(), nil)
	require.NoError(t, err)
	in := sources(t, src, "carol.pdf")

	var mu sync.Mutex
	ids := map[string]struct{}{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, _, err := s.Stage(context.Background(), in)
			assert.NoError(t, err)
			mu.Lock()
			ids[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, ids, 8)
}

func TestStager_RejectsBadSources(t *testing.T) {
	src := t.TempDir()
	s, err := ingest.NewStager(t.TempDir(), nil)
	require.NoError(t, err)

	in := sources(t, src, "dave.pdf")
	in.AnswerKey = filepath.Join(src, "missing.pdf")
	_, _, err = s.Stage(context.Background(), in)
	assert.True(t, errors.Is(err, common.ErrMissingInput))

	in = sources(t, src, "dave.pdf")
	in.StudentScript = writeFile(t, src, "dave.docx", "x")
	_, _, err = s.Stage(context.Background(), in)
	assert.True(t, errors.Is(err, common.ErrInvalidInput))
}

func TestStager_DocumentsReportsMissingFile(t *testing.T) {
	src := t.TempDir()
	s, err := ingest.NewStager(t.TempDir(), nil)
	require.NoError(t, err)

	jobID, docs, err := s.Stage(context.Background(), sources(t, src, "erin.pdf"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(docs.StudentScript))

	_, err = s.Documents(jobID)
	var missing *common.MissingInputError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, docs.StudentScript, missing.Path)

	_, err = s.Documents("never-staged")
	assert.True(t, errors.Is(err, common.ErrMissingInput))
}

func TestScanDirectory(t *testing.T) {
	root := t.TempDir()
	qp := writeFile(t, root, "qp.pdf", "")
	writeFile(t, root, "b.pdf", "")
	writeFile(t, root, "a.PDF", "")
	writeFile(t, root, "notes.txt", "")
	writeFile(t, root, ".hidden/c.pdf", "")
	writeFile(t, root, "nested/d.pdf", "")

	got, err := ingest.ScanDirectory(root, ingest.ScanOptions{SkipHidden: true, Exclude: []string{qp}})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.PDF"),
		filepath.Join(root, "b.pdf"),
		filepath.Join(root, "nested", "d.pdf"),
	}, got)

	_, err = ingest.ScanDirectory("", ingest.ScanOptions{})
	assert.Error(t, err)
}

func TestWatcher_InitialScanAndNewFiles(t *testing.T) {
	root := t.TempDir()
	existing := writeFile(t, root, "first.pdf", "")
	writeFile(t, root, "ignored.txt", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       []string{root},
		InitialScan: true,
		Debounce:    20 * time.Millisecond,
	})
	require.NoError(t, err)

	select {
	case p := <-events:
		assert.Equal(t, existing, p)
	case <-time.After(5 * time.Second):
		t.Fatal("initial scan produced nothing")
	}

	created := writeFile(t, root, "second.pdf", "new")
	deadline := time.After(5 * time.Second)
	for {
		select {
		case p := <-events:
			if p == created {
				cancel()
				return
			}
		case <-deadline:
			t.Fatal("new file was not reported")
		}
	}
}

func TestWatcher_RequiresRoots(t *testing.T) {
	_, _, err := ingest.StartWatcher(context.Background(), ingest.WatchConfig{})
	assert.Error(t, err)
}

func TestInbox_SubmitsEachScriptOnce(t *testing.T) {
	root := t.TempDir()
	qp := writeFile(t, root, "qp.pdf", "")
	ak := writeFile(t, root, "ak.pdf", "")
	writeFile(t, root, "s1.pdf", "")

	var mu sync.Mutex
	submitted := map[string]int{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inbox := &ingest.Inbox{
		Watch:  ingest.WatchConfig{Roots: []string{root}, InitialScan: true, Debounce: 10 * time.Millisecond},
		Shared: []string{qp, ak},
		Submit: func(_ context.Context, p string) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			submitted[filepath.Base(p)]++
			return ingest.BaseJobID(p), nil
		},
	}
	done := make(chan error, 1)
	go func() { done <- inbox.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return submitted["s1.pdf"] == 1
	}, 5*time.Second, 10*time.Millisecond)

	writeFile(t, root, "s2.pdf", "a")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return submitted["s2.pdf"] == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, submitted, "qp.pdf")
	assert.NotContains(t, submitted, "ak.pdf")
	assert.Equal(t, 1, submitted["s1.pdf"])
}
