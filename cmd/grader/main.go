// Package main implements the grader CLI. Job commands talk to a running
// graderd over gRPC; run, watch and events work locally.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/server"
)

var (
	// serverAddr is the graderd gRPC address
	serverAddr string
	// configPath is the YAML config used by local commands
	configPath string
	// callTimeout bounds each remote call
	callTimeout time.Duration

	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "grader",
	Short: "Evaluate handwritten exam scripts against a question paper and answer key",
	Long: `grader submits exam evaluation jobs to graderd and inspects their progress.

Examples:
  # Submit a script to a running graderd
  grader submit --question-paper qp.pdf --answer-key ak.pdf --student alice.pdf

  # Follow a job
  grader status alice-result
  grader result alice-result

  # Grade one script locally without a server
  grader run --question-paper qp.pdf --answer-key ak.pdf --student alice.pdf`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", envOr("GRADER_ADDR", "localhost:8080"), "graderd gRPC address")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("GRADER_CONFIG"), "config file for local commands")
	rootCmd.PersistentFlags().DurationVar(&callTimeout, "timeout", 30*time.Second, "timeout for each remote call")
}

func dial() (*server.Client, func(), error) {
	conn, err := grpc.NewClient(serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", serverAddr, err)
	}
	return server.NewClient(conn), func() { _ = conn.Close() }, nil
}

// call runs one remote method and prints the response document.
func call(cmd *cobra.Command, method string, fields map[string]any) error {
	client, closeFn, err := dial()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()
	resp, err := client.Call(ctx, method, fields)
	if err != nil {
		return err
	}
	return printStruct(cmd, resp)
}

func printStruct(cmd *cobra.Command, s *structpb.Struct) error {
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}

func loadConfig() (*common.Config, error) {
	cfg, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
