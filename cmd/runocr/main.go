package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/exam-grader/internal/app"
	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/ocr"
)

func main() {
	configPath := flag.String("config", os.Getenv("GRADER_CONFIG"), "path to YAML config")
	handwritten := flag.Bool("handwritten", false, "use the handwriting instruction")
	timeout := flag.Duration("timeout", 30*time.Minute, "overall deadline")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if flag.NArg() != 1 {
		logger.Error("usage", "cmd", "runocr [-handwritten] <file.pdf>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	if cfg.OCRLLM.APIKey == "" {
		logger.Error("ocr_llm.api_key (or GROQ_API_KEY) required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	ocrClient, _ := app.Completers(cfg, logger)
	extractor := ocr.NewExtractor(ocr.ConfigFrom(cfg.OCR), ocrClient, logger)

	start := time.Now()
	text, err := extractor.ExtractText(ctx, path, *handwritten)
	dur := time.Since(start)
	if err != nil {
		logger.Error("text extraction failed", "path", path, "error", err, "duration_ms", dur.Milliseconds())
		os.Exit(1)
	}

	logger.Info("text extraction OK",
		"path", path,
		"bytes", len(text),
		"duration_ms", dur.Milliseconds(),
	)
	fmt.Println(text)
}
