// Package app assembles the grading stack from configuration. Every binary
// builds the same object graph through it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/aggregate"
	"github.com/joseph-ayodele/exam-grader/internal/async"
	"github.com/joseph-ayodele/exam-grader/internal/checkpoint"
	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/events"
	"github.com/joseph-ayodele/exam-grader/internal/examcache"
	"github.com/joseph-ayodele/exam-grader/internal/export"
	"github.com/joseph-ayodele/exam-grader/internal/ingest"
	"github.com/joseph-ayodele/exam-grader/internal/jobs"
	"github.com/joseph-ayodele/exam-grader/internal/llm"
	"github.com/joseph-ayodele/exam-grader/internal/llm/openai"
	"github.com/joseph-ayodele/exam-grader/internal/ocr"
	"github.com/joseph-ayodele/exam-grader/internal/pipeline"
	"github.com/joseph-ayodele/exam-grader/internal/repository"
	"github.com/joseph-ayodele/exam-grader/internal/services/grading"
)

// App is the wired object graph. Close releases storage, the event bus and
// the worker pool.
type App struct {
	Config       *common.Config
	Logger       *slog.Logger
	Checkpoints  checkpoint.Store
	ExamCache    examcache.Cache
	Jobs         jobs.Registry
	Results      *export.ResultStore
	Stager       *ingest.Stager
	Events       events.Publisher
	Extractor    *ocr.Extractor
	Evaluator    *llm.Evaluator
	Orchestrator *pipeline.Orchestrator
	Queue        *async.ProcessorQueue
	Grading      *grading.Service

	db   *repository.DB
	nats *events.NATSPublisher
}

// Storage opens the configured checkpoint store and exam cache.
// The returned DB is nil for the file driver.
func Storage(ctx context.Context, cfg *common.Config, logger *slog.Logger) (checkpoint.Store, examcache.Cache, *repository.DB, error) {
	if cfg.Storage.Driver == "file" {
		cps, err := checkpoint.NewFileStore(cfg.Paths.Checkpoints, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		cache, err := examcache.NewFileCache(cfg.Paths.Checkpoints, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return cps, cache, nil, nil
	}
	db, err := repository.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return repository.NewCheckpointStore(db, logger), repository.NewExamCache(db, logger), db, nil
}

// Completers builds the vision and reasoning clients. They share nothing but
// the logger; each has its own rate limiter.
func Completers(cfg *common.Config, logger *slog.Logger) (ocrClient, evalClient *openai.Client) {
	ocrClient = openai.NewClient("ocr", cfg.OCRLLM, nil, logger)
	evalClient = openai.NewClient("evaluation", cfg.EvaluationLLM, nil, logger)
	return ocrClient, evalClient
}

// Build wires everything. The queue starts immediately.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Jobs: jobs.NewMemoryRegistry()}

	var err error
	a.Checkpoints, a.ExamCache, a.db, err = Storage(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if a.Results, err = export.NewResultStore(cfg.Paths.Outputs, logger); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if a.Stager, err = ingest.NewStager(cfg.Paths.Uploads, logger); err != nil {
		a.Close(ctx)
		return nil, err
	}

	pubs := events.Multi{events.LogPublisher{Logger: logger}}
	if cfg.Events.NATSURL != "" {
		nc, err := events.ConnectNATS(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, logger)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		a.nats = nc
		pubs = append(pubs, nc)
	}
	a.Events = pubs

	ocrClient, evalClient := Completers(cfg, logger)
	a.Extractor = ocr.NewExtractor(ocr.ConfigFrom(cfg.OCR), ocrClient, logger)
	a.Evaluator = llm.NewEvaluator(evalClient, cfg.Evaluation, logger)

	mode, ok := constants.ParseExamMode(cfg.Evaluation.DefaultMode)
	if !ok {
		mode = constants.DefaultExamMode
	}

	a.Orchestrator = pipeline.NewOrchestrator(pipeline.Deps{
		Checkpoints:      a.Checkpoints,
		ExamCache:        a.ExamCache,
		Extractor:        a.Extractor,
		Evaluator:        a.Evaluator,
		Jobs:             a.Jobs,
		Events:           a.Events,
		Sink:             a.Results,
		Rules:            aggregate.DefaultRules(),
		Logger:           logger,
		CleanupOnSuccess: cfg.Checkpoint.CleanupOnSuccess,
	})
	a.Queue = async.NewProcessorQueue(a.Orchestrator, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
	)
	a.Grading = grading.NewService(grading.Deps{
		Stager:      a.Stager,
		Jobs:        a.Jobs,
		Checkpoints: a.Checkpoints,
		ExamCache:   a.ExamCache,
		Queue:       a.Queue,
		Results:     a.Results,
		Events:      a.Events,
		DefaultMode: mode,
		Logger:      logger,
	})
	return a, nil
}

// DB is the SQL backend, or nil for file storage.
func (a *App) DB() *repository.DB { return a.db }

// NATS is the event bus connection, or nil when events only go to the log.
func (a *App) NATS() *events.NATSPublisher { return a.nats }

// Close drains the queue (bounded by ctx) and releases connections.
func (a *App) Close(ctx context.Context) {
	if a.Queue != nil {
		a.Queue.Shutdown(ctx)
	}
	if a.nats != nil {
		a.nats.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
