package examcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
)

// FileCache keeps one <exam_id>_exam.json per fingerprint. New entries are
// written to a temp file and hard-linked into place; link fails when the
// target exists, which makes the first writer the only writer.
type FileCache struct {
	dir    string
	logger *slog.Logger
}

func NewFileCache(dir string, logger *slog.Logger) (*FileCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create exam cache dir: %w", err)
	}
	return &FileCache{dir: dir, logger: logger}, nil
}

func (c *FileCache) path(examID string) string {
	return filepath.Join(c.dir, examID+constants.ExamCacheSuffix)
}

func (c *FileCache) Has(ctx context.Context, examID string) (bool, error) {
	_, found, err := c.Get(ctx, examID)
	return found, err
}

// Get returns only complete entries; partial or unreadable files count as absent.
func (c *FileCache) Get(_ context.Context, examID string) (entity.ExamCacheEntry, bool, error) {
	if err := validateID(examID); err != nil {
		return entity.ExamCacheEntry{}, false, err
	}
	b, err := os.ReadFile(c.path(examID))
	if errors.Is(err, fs.ErrNotExist) {
		return entity.ExamCacheEntry{}, false, nil
	}
	if err != nil {
		return entity.ExamCacheEntry{}, false, fmt.Errorf("read exam cache: %w", err)
	}
	var entry entity.ExamCacheEntry
	if err := json.Unmarshal(b, &entry); err != nil {
		c.logger.Warn("examcache.unreadable", "exam_id", examID, "error", err)
		return entity.ExamCacheEntry{}, false, nil
	}
	if !entry.Complete() {
		return entity.ExamCacheEntry{}, false, nil
	}
	return entry, true, nil
}

func (c *FileCache) Put(ctx context.Context, entry entity.ExamCacheEntry) (bool, error) {
	if err := validateID(entry.ExamID); err != nil {
		return false, err
	}
	if !entry.Complete() {
		return false, common.NewAppError("INCOMPLETE_ENTRY", "exam cache entry needs both texts", common.ErrInvalidInput)
	}
	if _, found, err := c.Get(ctx, entry.ExamID); err != nil {
		return false, err
	} else if found {
		c.logger.Debug("examcache.put_skipped", "exam_id", entry.ExamID)
		return false, nil
	}
	if entry.OCRCompletedAt.IsZero() {
		entry.OCRCompletedAt = time.Now().UTC()
	}
	b, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encode exam cache: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, "."+entry.ExamID+".*.tmp")
	if err != nil {
		return false, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return false, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return false, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("close temp file: %w", err)
	}

	target := c.path(entry.ExamID)
	if err := os.Link(tmpName, target); err != nil {
		if errors.Is(err, fs.ErrExist) {
			// A stale partial entry may sit there; complete ones are never replaced.
			if _, found, _ := c.Get(ctx, entry.ExamID); found {
				return false, nil
			}
			if err := os.Rename(tmpName, target); err != nil {
				return false, fmt.Errorf("replace partial exam cache: %w", err)
			}
			return true, nil
		}
		return false, fmt.Errorf("link exam cache: %w", err)
	}
	c.logger.Info("examcache.stored", "exam_id", entry.ExamID)
	return true, nil
}

// Invalidate drops an entry so the next job re-extracts the shared documents.
func (c *FileCache) Invalidate(_ context.Context, examID string) error {
	if err := validateID(examID); err != nil {
		return err
	}
	err := os.Remove(c.path(examID))
	if errors.Is(err, fs.ErrNotExist) {
		return common.NewAppError("NOT_FOUND", "no exam cache entry "+examID, common.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("remove exam cache: %w", err)
	}
	c.logger.Info("examcache.invalidated", "exam_id", examID)
	return nil
}

func validateID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return common.NewAppError("INVALID_EXAM_ID", fmt.Sprintf("invalid exam id %q", id), common.ErrInvalidInput)
	}
	return nil
}
