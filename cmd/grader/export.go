package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var exportOut string

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "results.xlsx", "output XLSX path")
}

var exportCmd = &cobra.Command{
	Use:   "export [job-id...]",
	Short: "Export results to an XLSX workbook",
	Long: `Export results to an XLSX workbook. With no job ids every known job is
exported; jobs without a result are listed with their error.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, closeFn, err := dial()
		if err != nil {
			return err
		}
		defer closeFn()

		ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
		defer cancel()
		b, err := client.ExportResults(ctx, args)
		if err != nil {
			return err
		}
		if err := os.WriteFile(exportOut, b, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", exportOut, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", exportOut, len(b))
		return nil
	},
}
