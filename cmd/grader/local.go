package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/exam-grader/internal/app"
	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
	"github.com/joseph-ayodele/exam-grader/internal/events"
	"github.com/joseph-ayodele/exam-grader/internal/export"
	"github.com/joseph-ayodele/exam-grader/internal/ingest"
	"github.com/joseph-ayodele/exam-grader/internal/pipeline"
	"github.com/joseph-ayodele/exam-grader/internal/services/grading"
)

var (
	runQP        string
	runAK        string
	runStudent   string
	runStudentID string
	runMode      string
	runJSON      bool

	watchDir      string
	watchDebounce time.Duration
	watchMode     string
)

func init() {
	rootCmd.AddCommand(runCmd, watchCmd, eventsCmd)

	runCmd.Flags().StringVar(&runQP, "question-paper", "", "question paper PDF (required)")
	runCmd.Flags().StringVar(&runAK, "answer-key", "", "answer key PDF (required)")
	runCmd.Flags().StringVar(&runStudent, "student", "", "student answer script PDF (required)")
	runCmd.Flags().StringVar(&runStudentID, "student-id", "", "student identifier recorded in the result")
	runCmd.Flags().StringVar(&runMode, "mode", "", "exam mode: PT-1 or PT-2")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the result as JSON instead of a report")
	_ = runCmd.MarkFlagRequired("question-paper")
	_ = runCmd.MarkFlagRequired("answer-key")
	_ = runCmd.MarkFlagRequired("student")

	watchCmd.Flags().StringVar(&runQP, "question-paper", "", "question paper PDF shared by every script (required)")
	watchCmd.Flags().StringVar(&runAK, "answer-key", "", "answer key PDF shared by every script (required)")
	watchCmd.Flags().StringVar(&watchDir, "dir", "", "directory to watch for student scripts (required)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 2*time.Second, "wait for writes to settle before submitting")
	watchCmd.Flags().StringVar(&watchMode, "mode", "", "exam mode: PT-1 or PT-2")
	_ = watchCmd.MarkFlagRequired("question-paper")
	_ = watchCmd.MarkFlagRequired("answer-key")
	_ = watchCmd.MarkFlagRequired("dir")
}

// buildLocal loads config and wires the stack in-process.
func buildLocal(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateCredentials(); err != nil {
		return nil, err
	}
	logger := common.NewLogger(cfg.Log, os.Stderr)
	return app.Build(ctx, cfg, logger)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Grade one script in-process and print the result",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildLocal(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		mode, err := parseModeFlag(runMode, a.Config.Evaluation.DefaultMode)
		if err != nil {
			return err
		}
		jobID, docs, err := a.Stager.Stage(ctx, ingest.Sources{
			QuestionPaper: runQP,
			AnswerKey:     runAK,
			StudentScript: runStudent,
		})
		if err != nil {
			return err
		}
		res, err := a.Orchestrator.Run(ctx, pipeline.Request{
			JobID:     jobID,
			StudentID: runStudentID,
			Mode:      mode,
			Documents: docs,
		})
		if err != nil {
			return fmt.Errorf("job %s: %w (resume with: grader resume %s)", jobID, err, jobID)
		}
		if runJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		fmt.Fprint(cmd.OutOrStdout(), export.Report(jobID, res))
		fmt.Fprintf(cmd.OutOrStdout(), "\nSaved: %s\n", a.Results.Path(jobID))
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Grade every student script dropped into a directory",
	Long: `Watch a directory and submit each new student PDF against a fixed
question paper and answer key. Jobs run in-process; stop with Ctrl-C and the
queue drains before exit.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildLocal(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		inbox := &ingest.Inbox{
			Watch: ingest.WatchConfig{
				Roots:       []string{watchDir},
				InitialScan: true,
				Debounce:    watchDebounce,
			},
			Shared: []string{runQP, runAK},
			Logger: a.Logger,
			Submit: func(ctx context.Context, path string) (string, error) {
				job, err := a.Grading.Submit(ctx, grading.SubmitRequest{
					QuestionPaper: runQP,
					AnswerKey:     runAK,
					StudentScript: path,
					Mode:          watchMode,
				})
				return job.ID, err
			},
		}
		fmt.Fprintf(cmd.OutOrStdout(), "watching %s\n", watchDir)
		return inbox.Run(ctx)
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Stream job transitions from the NATS event bus",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Events.NATSURL == "" {
			return fmt.Errorf("events.nats_url is not configured")
		}
		logger := common.NewLogger(cfg.Log, os.Stderr)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		nc, err := events.ConnectNATS(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, logger)
		if err != nil {
			return err
		}
		defer nc.Close()

		out := json.NewEncoder(cmd.OutOrStdout())
		sub, err := nc.Subscribe(func(_ context.Context, ev entity.JobEvent) {
			_ = out.Encode(ev)
		})
		if err != nil {
			return err
		}
		defer func() { _ = sub.Unsubscribe() }()

		<-ctx.Done()
		return nil
	},
}
