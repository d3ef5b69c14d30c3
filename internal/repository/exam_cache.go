package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
	"github.com/joseph-ayodele/exam-grader/internal/examcache"
)

const examCacheTable = "exam_cache"

// ExamCache implements examcache.Cache with INSERT ... ON CONFLICT DO NOTHING,
// which lets the database pick the single winner of concurrent puts.
type ExamCache struct {
	db     *DB
	logger *slog.Logger
}

var _ examcache.Cache = (*ExamCache)(nil)

func NewExamCache(db *DB, logger *slog.Logger) *ExamCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExamCache{db: db, logger: logger}
}

func (c *ExamCache) Has(ctx context.Context, examID string) (bool, error) {
	_, found, err := c.Get(ctx, examID)
	return found, err
}

func (c *ExamCache) Get(ctx context.Context, examID string) (entity.ExamCacheEntry, bool, error) {
	query, args := entsql.Dialect(c.db.dialect).
		Select("payload").
		From(entsql.Table(examCacheTable)).
		Where(entsql.EQ("exam_id", examID)).
		Query()

	payload, found, err := c.db.queryString(ctx, query, args)
	if err != nil || !found {
		return entity.ExamCacheEntry{}, false, err
	}
	var entry entity.ExamCacheEntry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		c.logger.Warn("examcache.unreadable", "exam_id", examID, "error", err)
		return entity.ExamCacheEntry{}, false, nil
	}
	if !entry.Complete() {
		return entity.ExamCacheEntry{}, false, nil
	}
	return entry, true, nil
}

func (c *ExamCache) Put(ctx context.Context, entry entity.ExamCacheEntry) (bool, error) {
	if entry.ExamID == "" {
		return false, common.NewAppError("INVALID_EXAM_ID", "exam id is required", common.ErrInvalidInput)
	}
	if !entry.Complete() {
		return false, common.NewAppError("INCOMPLETE_ENTRY", "exam cache entry needs both texts", common.ErrInvalidInput)
	}
	if entry.OCRCompletedAt.IsZero() {
		entry.OCRCompletedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("encode exam cache: %w", err)
	}

	query, args := entsql.Dialect(c.db.dialect).
		Insert(examCacheTable).
		Columns("exam_id", "payload", "created_at").
		Values(entry.ExamID, string(payload), entry.OCRCompletedAt).
		OnConflict(
			entsql.ConflictColumns("exam_id"),
			entsql.DoNothing(),
		).
		Query()

	var res sql.Result
	if err := c.db.drv.Exec(ctx, query, args, &res); err != nil {
		c.logger.Error("failed to store exam cache entry", "exam_id", entry.ExamID, "error", err)
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		c.logger.Debug("examcache.put_skipped", "exam_id", entry.ExamID)
		return false, nil
	}
	c.logger.Info("examcache.stored", "exam_id", entry.ExamID)
	return true, nil
}

func (c *ExamCache) Invalidate(ctx context.Context, examID string) error {
	query, args := entsql.Dialect(c.db.dialect).
		Delete(examCacheTable).
		Where(entsql.EQ("exam_id", examID)).
		Query()

	var res sql.Result
	if err := c.db.drv.Exec(ctx, query, args, &res); err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.NewAppError("NOT_FOUND", "no exam cache entry "+examID, common.ErrNotFound)
	}
	c.logger.Info("examcache.invalidated", "exam_id", examID)
	return nil
}
