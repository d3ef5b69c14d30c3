package ingest

import (
	"context"
	"log/slog"
	"path/filepath"
)

// SubmitFunc starts a job for one student script.
type SubmitFunc func(ctx context.Context, studentPath string) (jobID string, err error)

// Inbox submits every new student script that appears under a directory.
// The shared question paper and answer key are excluded by path.
type Inbox struct {
	Watch  WatchConfig
	Shared []string
	Submit SubmitFunc
	Logger *slog.Logger
}

// Run blocks until ctx ends. Each path is submitted at most once per run.
func (in *Inbox) Run(ctx context.Context) error {
	logger := in.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := in.Watch
	cfg.Logger = logger

	events, errs, err := StartWatcher(ctx, cfg)
	if err != nil {
		return err
	}

	skip := map[string]struct{}{}
	for _, p := range in.Shared {
		if abs, err := filepath.Abs(p); err == nil {
			skip[abs] = struct{}{}
		}
	}
	seen := map[string]struct{}{}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("ingest.inbox.watch_error", "error", err)
		case p, ok := <-events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(p)
			if err != nil {
				abs = p
			}
			if _, dup := seen[abs]; dup {
				continue
			}
			if _, shared := skip[abs]; shared {
				continue
			}
			seen[abs] = struct{}{}

			jobID, err := in.Submit(ctx, abs)
			if err != nil {
				logger.Error("ingest.inbox.submit_failed", "path", abs, "error", err)
				continue
			}
			logger.Info("ingest.inbox.submitted", "path", abs, "job_id", jobID)
		}
	}
}
