package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/exam-grader/internal/server"
)

var (
	cacheExamID string
	cacheQP     string
	cacheAK     string
)

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheInvalidateCmd)

	cacheInvalidateCmd.Flags().StringVar(&cacheExamID, "exam-id", "", "cache entry id (exam_<qp>_<ak>)")
	cacheInvalidateCmd.Flags().StringVar(&cacheQP, "question-paper", "", "question paper PDF to derive the id from")
	cacheInvalidateCmd.Flags().StringVar(&cacheAK, "answer-key", "", "answer key PDF to derive the id from")
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the shared question paper / answer key cache",
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Drop a cached extraction so the next job re-reads the documents",
	Long: `Drop a cached extraction so the next job re-reads the documents.

Examples:
  grader cache invalidate --exam-id exam_1a2b3c4d5e6f7a8b_9c8d7e6f5a4b3c2d
  grader cache invalidate --question-paper qp.pdf --answer-key ak.pdf`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cacheExamID == "" && (cacheQP == "" || cacheAK == "") {
			return errors.New("--exam-id or both --question-paper and --answer-key are required")
		}
		return call(cmd, server.MethodInvalidateExamCache, map[string]any{
			"exam_id":        cacheExamID,
			"question_paper": cacheQP,
			"answer_key":     cacheAK,
		})
	},
}
