package main

import (
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/exam-grader/internal/server"
)

var (
	submitQP        string
	submitAK        string
	submitStudent   string
	submitStudentID string
	examMode        string
)

func init() {
	rootCmd.AddCommand(submitCmd, resumeCmd, statusCmd, resultCmd, checkpointCmd, listCmd)

	submitCmd.Flags().StringVar(&submitQP, "question-paper", "", "question paper PDF (required)")
	submitCmd.Flags().StringVar(&submitAK, "answer-key", "", "answer key PDF (required)")
	submitCmd.Flags().StringVar(&submitStudent, "student", "", "student answer script PDF (required)")
	submitCmd.Flags().StringVar(&submitStudentID, "student-id", "", "student identifier recorded in the result")
	submitCmd.Flags().StringVar(&examMode, "mode", "", "exam mode: PT-1 or PT-2 (default from config)")
	_ = submitCmd.MarkFlagRequired("question-paper")
	_ = submitCmd.MarkFlagRequired("answer-key")
	_ = submitCmd.MarkFlagRequired("student")

	resumeCmd.Flags().StringVar(&examMode, "mode", "", "override the stored exam mode")
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a student script for evaluation",
	Long: `Stage the three PDFs on the server and queue an evaluation job.
Paths must be readable by graderd.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return call(cmd, server.MethodSubmit, map[string]any{
			"question_paper": submitQP,
			"answer_key":     submitAK,
			"student_script": submitStudent,
			"student_id":     submitStudentID,
			"exam_mode":      examMode,
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Resume a failed or interrupted job from its last checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, server.MethodResumeJob, map[string]any{"job_id": args[0], "exam_mode": examMode})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's status and checkpoint stage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, server.MethodGetJobStatus, map[string]any{"job_id": args[0]})
	},
}

var resultCmd = &cobra.Command{
	Use:   "result <job-id>",
	Short: "Print the final result of a completed job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, server.MethodGetResult, map[string]any{"job_id": args[0]})
	},
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint <job-id>",
	Short: "Show what a job's checkpoint holds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, server.MethodGetCheckpoint, map[string]any{"job_id": args[0]})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return call(cmd, server.MethodListJobs, map[string]any{})
	},
}
