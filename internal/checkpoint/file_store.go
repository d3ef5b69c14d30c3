package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
)

// FileStore keeps one JSON document per job, <job>_checkpoint.json.
// Writes go to a temp file in the same directory and are renamed into place,
// so a reader never observes a half-written checkpoint.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

func (s *FileStore) path(jobID string) string {
	return filepath.Join(s.dir, jobID+constants.CheckpointSuffix)
}

func (s *FileStore) Load(ctx context.Context, jobID string) (entity.Checkpoint, bool, error) {
	if err := ValidateJobID(jobID); err != nil {
		return entity.Checkpoint{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return entity.Checkpoint{}, false, err
	}
	b, err := os.ReadFile(s.path(jobID))
	if errors.Is(err, fs.ErrNotExist) {
		return entity.Checkpoint{}, false, nil
	}
	if err != nil {
		return entity.Checkpoint{}, false, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp entity.Checkpoint
	if err := json.Unmarshal(b, &cp); err != nil {
		s.logger.Warn("checkpoint.unreadable", "job_id", jobID, "error", err)
		return entity.Checkpoint{}, false, nil
	}
	if err := cp.Validate(); err != nil {
		s.logger.Warn("checkpoint.invalid", "job_id", jobID, "error", err)
		return entity.Checkpoint{}, false, nil
	}
	return cp, true, nil
}

func (s *FileStore) Save(ctx context.Context, cp entity.Checkpoint) error {
	if err := ValidateJobID(cp.JobID); err != nil {
		return err
	}
	if err := cp.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := writeFileAtomic(s.path(cp.JobID), b); err != nil {
		return err
	}
	s.logger.Debug("checkpoint.saved", "job_id", cp.JobID, "stage", cp.Stage.String())
	return nil
}

// Delete removes the checkpoint; a missing file is not an error.
func (s *FileStore) Delete(_ context.Context, jobID string) error {
	if err := ValidateJobID(jobID); err != nil {
		return err
	}
	if err := os.Remove(s.path(jobID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	s.logger.Info("checkpoint.deleted", "job_id", jobID)
	return nil
}

// List returns the job ids that have a checkpoint file, sorted.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint dir: %w", err)
	}
	ids := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, constants.CheckpointSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, constants.CheckpointSuffix))
	}
	sort.Strings(ids)
	return ids, nil
}

// writeFileAtomic writes data next to path, fsyncs and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
