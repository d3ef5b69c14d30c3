// Package ingest stages evaluation inputs into per-job upload directories and
// discovers new student scripts on disk.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
)

// maxJobIDAttempts bounds the "(n)" suffix search.
const maxJobIDAttempts = 10000

// Sources are the caller's original files for one job.
type Sources struct {
	QuestionPaper string
	AnswerKey     string
	StudentScript string
}

// Stager copies a job's inputs under <uploads>/<job_id>/ with fixed names.
type Stager struct {
	uploads string
	logger  *slog.Logger
}

func NewStager(uploads string, logger *slog.Logger) (*Stager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(uploads) == "" {
		return nil, common.NewAppError("INVALID_INPUT", "uploads directory is required", common.ErrInvalidInput)
	}
	if err := os.MkdirAll(uploads, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &Stager{uploads: uploads, logger: logger}, nil
}

// Stage allocates a job ID from the student file name and copies all three
// inputs into the job's upload directory.
func (s *Stager) Stage(ctx context.Context, src Sources) (string, entity.Documents, error) {
	for _, p := range []string{src.QuestionPaper, src.AnswerKey, src.StudentScript} {
		if err := checkSource(p); err != nil {
			return "", entity.Documents{}, err
		}
	}

	jobID, dir, err := s.claim(BaseJobID(src.StudentScript))
	if err != nil {
		return "", entity.Documents{}, err
	}

	docs := s.paths(jobID)
	copies := []struct{ from, to string }{
		{src.QuestionPaper, docs.QuestionPaper},
		{src.AnswerKey, docs.AnswerKey},
		{src.StudentScript, docs.StudentScript},
	}
	for _, c := range copies {
		if err := ctx.Err(); err != nil {
			_ = os.RemoveAll(dir)
			return "", entity.Documents{}, err
		}
		if err := copyFile(c.from, c.to); err != nil {
			_ = os.RemoveAll(dir)
			return "", entity.Documents{}, fmt.Errorf("stage %s: %w", filepath.Base(c.from), err)
		}
	}

	s.logger.Info("ingest.staged", "job_id", jobID, "dir", dir)
	return jobID, docs, nil
}

// Documents returns the staged paths for jobID, failing with MissingInput
// if any of them is gone.
func (s *Stager) Documents(jobID string) (entity.Documents, error) {
	docs := s.paths(jobID)
	for _, p := range docs.Paths() {
		if _, err := os.Stat(p); err != nil {
			return docs, &common.MissingInputError{Path: p}
		}
	}
	return docs, nil
}

func (s *Stager) paths(jobID string) entity.Documents {
	dir := filepath.Join(s.uploads, jobID)
	return entity.Documents{
		QuestionPaper: filepath.Join(dir, constants.QuestionPaperFile),
		AnswerKey:     filepath.Join(dir, constants.AnswerKeyFile),
		StudentScript: filepath.Join(dir, constants.StudentScriptFile),
	}
}

// claim creates the first free upload directory among base, base(1), base(2)...
// Mkdir is the claim, so two concurrent submissions never share a directory.
func (s *Stager) claim(base string) (string, string, error) {
	for n := 0; n < maxJobIDAttempts; n++ {
		id := base
		if n > 0 {
			id = fmt.Sprintf("%s(%d)", base, n)
		}
		dir := filepath.Join(s.uploads, id)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return id, dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", "", fmt.Errorf("create job dir: %w", err)
		}
	}
	return "", "", common.NewAppError("CONFLICT", "no free job id for "+base, common.ErrConflict)
}

// BaseJobID derives "<stem>-result" from the student script's file name.
func BaseJobID(studentPath string) string {
	stem := strings.TrimSuffix(filepath.Base(studentPath), filepath.Ext(studentPath))
	stem = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ':
			return '_'
		}
		return r
	}, strings.TrimSpace(stem))
	if stem == "" || stem == "." || stem == ".." {
		stem = "student"
	}
	return stem + constants.JobIDSuffix
}

func checkSource(path string) error {
	if strings.TrimSpace(path) == "" {
		return common.NewAppError("INVALID_INPUT", "document path is required", common.ErrInvalidInput)
	}
	if _, ok := constants.AllowedExtensions[constants.NormalizeExt(filepath.Ext(path))]; !ok {
		return common.NewAppError("INVALID_INPUT", "unsupported file type: "+filepath.Base(path), common.ErrInvalidInput)
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return &common.MissingInputError{Path: path}
	}
	return nil
}

func copyFile(from, to string) error {
	in, err := os.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(to), ".stage-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), to)
}
