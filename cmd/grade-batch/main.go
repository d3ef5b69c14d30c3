package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/app"
	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/export"
	"github.com/joseph-ayodele/exam-grader/internal/ingest"
	"github.com/joseph-ayodele/exam-grader/internal/pipeline"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		configPath = flag.String("config", os.Getenv("GRADER_CONFIG"), "path to YAML config")
		qp         = flag.String("question-paper", "", "question paper PDF (required)")
		ak         = flag.String("answer-key", "", "answer key PDF (required)")
		dir        = flag.String("dir", "", "directory of student scripts (required)")
		out        = flag.String("out", "", "output XLSX path (defaults to <dir>/results.xlsx)")
		workers    = flag.Int("workers", 0, "concurrent jobs (defaults to queue.workers)")
		modeStr    = flag.String("mode", "", "exam mode: PT-1 or PT-2")
	)
	flag.Parse()

	if *qp == "" || *ak == "" || *dir == "" {
		printError("Error: --question-paper, --answer-key and --dir are required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(*dir, "results.xlsx")
	}

	cfg, err := common.LoadConfig(*configPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err == nil {
		err = cfg.ValidateCredentials()
	}
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	logger := common.NewLogger(cfg.Log, os.Stderr)

	mode := constants.DefaultExamMode
	if m, ok := constants.ParseExamMode(firstNonEmpty(*modeStr, cfg.Evaluation.DefaultMode)); ok {
		mode = m
	} else if *modeStr != "" {
		printError("Error: unknown --mode %q\n", *modeStr)
		os.Exit(1)
	}
	if *workers <= 0 {
		*workers = cfg.Queue.Workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer a.Close(context.Background())

	scripts, err := ingest.ScanDirectory(*dir, ingest.ScanOptions{SkipHidden: true, Exclude: []string{*qp, *ak}})
	if err != nil {
		logger.Error("failed to scan directory", "dir", *dir, "error", err)
		os.Exit(1)
	}
	logger.Info("batch starting", "scripts", len(scripts), "workers", *workers, "exam_mode", string(mode))

	rows := make([]export.Row, len(scripts))
	var mu sync.Mutex
	failures := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*workers)
	for i, script := range scripts {
		g.Go(func() error {
			jobID, docs, err := a.Stager.Stage(gctx, ingest.Sources{QuestionPaper: *qp, AnswerKey: *ak, StudentScript: script})
			if err != nil {
				rows[i] = export.Row{JobID: ingest.BaseJobID(script), Error: err.Error()}
				mu.Lock()
				failures++
				mu.Unlock()
				return nil
			}
			res, err := a.Orchestrator.Run(gctx, pipeline.Request{JobID: jobID, Mode: mode, Documents: docs})
			if err != nil {
				logger.Error("job failed", "job_id", jobID, "script", script, "error", err)
				rows[i] = export.Row{JobID: jobID, Error: err.Error()}
				mu.Lock()
				failures++
				mu.Unlock()
				return nil
			}
			rows[i] = export.Row{JobID: jobID, Result: res}
			return nil
		})
	}
	_ = g.Wait()

	sections := make([]string, 0, len(constants.Sections))
	for _, s := range constants.Sections {
		sections = append(sections, s.ID)
	}
	xlsx, err := export.ResultsXLSX(rows, sections, logger)
	if err != nil {
		logger.Error("failed to build workbook", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsx, 0o644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}

	logger.Info("batch processing complete", "scripts", len(scripts), "failures", failures, "output_file", *out)
	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Scripts: %d\n", len(scripts))
	fmt.Printf("- Graded: %d\n", len(scripts)-failures)
	fmt.Printf("- Failures: %d (resume with: grader resume <job-id>)\n", failures)
	fmt.Printf("- Output: %s\n", *out)
	if failures > 0 {
		os.Exit(3)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
