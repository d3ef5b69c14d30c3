package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/exam-grader/internal/checkpoint"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
)

const checkpointsTable = "checkpoints"

// CheckpointStore implements checkpoint.Store on a SQL table. Each save is a
// single upsert, so a row always holds one complete checkpoint.
type CheckpointStore struct {
	db     *DB
	logger *slog.Logger
}

var _ checkpoint.Store = (*CheckpointStore)(nil)

func NewCheckpointStore(db *DB, logger *slog.Logger) *CheckpointStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckpointStore{db: db, logger: logger}
}

func (s *CheckpointStore) Load(ctx context.Context, jobID string) (entity.Checkpoint, bool, error) {
	query, args := entsql.Dialect(s.db.dialect).
		Select("payload").
		From(entsql.Table(checkpointsTable)).
		Where(entsql.EQ("job_id", jobID)).
		Query()

	payload, found, err := s.db.queryString(ctx, query, args)
	if err != nil || !found {
		return entity.Checkpoint{}, false, err
	}
	var cp entity.Checkpoint
	if err := json.Unmarshal([]byte(payload), &cp); err != nil {
		s.logger.Warn("checkpoint.unreadable", "job_id", jobID, "error", err)
		return entity.Checkpoint{}, false, nil
	}
	if err := cp.Validate(); err != nil {
		s.logger.Warn("checkpoint.invalid", "job_id", jobID, "error", err)
		return entity.Checkpoint{}, false, nil
	}
	return cp, true, nil
}

func (s *CheckpointStore) Save(ctx context.Context, cp entity.Checkpoint) error {
	if err := checkpoint.ValidateJobID(cp.JobID); err != nil {
		return err
	}
	if err := cp.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	updated := cp.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	query, args := entsql.Dialect(s.db.dialect).
		Insert(checkpointsTable).
		Columns("job_id", "stage", "payload", "updated_at").
		Values(cp.JobID, cp.Stage.String(), string(payload), updated).
		OnConflict(
			entsql.ConflictColumns("job_id"),
			entsql.ResolveWithNewValues(),
		).
		Query()

	if err := s.db.drv.Exec(ctx, query, args, nil); err != nil {
		s.logger.Error("failed to save checkpoint", "job_id", cp.JobID, "error", err)
		return err
	}
	s.logger.Debug("checkpoint.saved", "job_id", cp.JobID, "stage", cp.Stage.String())
	return nil
}

func (s *CheckpointStore) Delete(ctx context.Context, jobID string) error {
	query, args := entsql.Dialect(s.db.dialect).
		Delete(checkpointsTable).
		Where(entsql.EQ("job_id", jobID)).
		Query()
	if err := s.db.drv.Exec(ctx, query, args, nil); err != nil {
		return err
	}
	s.logger.Info("checkpoint.deleted", "job_id", jobID)
	return nil
}

func (s *CheckpointStore) List(ctx context.Context) ([]string, error) {
	query, args := entsql.Dialect(s.db.dialect).
		Select("job_id").
		From(entsql.Table(checkpointsTable)).
		OrderBy("job_id").
		Query()

	var rows entsql.Rows
	if err := s.db.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// queryString reads the first column of the first row.
func (db *DB) queryString(ctx context.Context, query string, args []any) (string, bool, error) {
	var rows entsql.Rows
	if err := db.drv.Query(ctx, query, args, &rows); err != nil {
		return "", false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return "", false, rows.Err()
	}
	var v sql.NullString
	if err := rows.Scan(&v); err != nil {
		return "", false, err
	}
	return v.String, v.Valid, nil
}
