// Package export writes final results: the per-job JSON artifact, a plain
// text report and an XLSX summary across jobs.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/checkpoint"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
)

// ResultStore keeps one <job>_result.json per job under dir.
type ResultStore struct {
	dir    string
	logger *slog.Logger
}

func NewResultStore(dir string, logger *slog.Logger) (*ResultStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create outputs dir: %w", err)
	}
	return &ResultStore{dir: dir, logger: logger}, nil
}

// Path is where jobID's result is written.
func (s *ResultStore) Path(jobID string) string {
	return filepath.Join(s.dir, jobID+constants.ResultSuffix)
}

// SaveResult writes the result as indented JSON, replacing any earlier file.
func (s *ResultStore) SaveResult(_ context.Context, jobID string, result entity.FinalResult) error {
	if err := checkpoint.ValidateJobID(jobID); err != nil {
		return err
	}
	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := writeAtomic(s.Path(jobID), b); err != nil {
		return err
	}
	s.logger.Info("export.result.saved", "job_id", jobID, "path", s.Path(jobID))
	return nil
}

// LoadResult reads a saved result. found is false when none exists.
func (s *ResultStore) LoadResult(_ context.Context, jobID string) (entity.FinalResult, bool, error) {
	if err := checkpoint.ValidateJobID(jobID); err != nil {
		return entity.FinalResult{}, false, err
	}
	b, err := os.ReadFile(s.Path(jobID))
	if errors.Is(err, fs.ErrNotExist) {
		return entity.FinalResult{}, false, nil
	}
	if err != nil {
		return entity.FinalResult{}, false, fmt.Errorf("read result: %w", err)
	}
	var r entity.FinalResult
	if err := json.Unmarshal(b, &r); err != nil {
		return entity.FinalResult{}, false, fmt.Errorf("decode result %s: %w", jobID, err)
	}
	return r, true, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename result: %w", err)
	}
	return nil
}
