// Package ocr turns PDF documents into text by rendering each page and
// sending it to a vision model.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/llm"
)

type Config struct {
	Pdftoppm    string // binary name or absolute path; if empty -> "pdftoppm"
	DPI         int    // rasterization DPI, default 200
	MaxPages    int    // 0 = no limit
	MaxImageDim int    // longest edge sent to the model, 0 = keep
}

// ConfigFrom maps the application config.
func ConfigFrom(c common.OCRConfig) Config {
	return Config{Pdftoppm: c.Pdftoppm, DPI: c.DPI, MaxPages: c.MaxPages, MaxImageDim: c.MaxImageDim}
}

type Extractor struct {
	cfg       Config
	runner    Runner
	completer llm.Completer
	logger    *slog.Logger
}

type Option func(*Extractor)

func WithRunner(r Runner) Option {
	return func(e *Extractor) {
		if r != nil {
			e.runner = r
		}
	}
}

func NewExtractor(cfg Config, completer llm.Completer, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 200
	}
	e := &Extractor{cfg: cfg, runner: ExecRunner{Logger: logger}, completer: completer, logger: logger}
	for _, o := range opts {
		o(e)
	}
	return e
}

// PageMarker prefixes each page's text in the joined output.
func PageMarker(n int) string {
	return fmt.Sprintf("--- Page %d ---", n)
}

// ExtractText renders path page by page and returns the model's text for
// each page, joined in page order. Handwritten selects the handwriting prompt.
func (e *Extractor) ExtractText(ctx context.Context, path string, handwritten bool) (string, error) {
	logger := common.LoggerFromContext(ctx, e.logger)
	start := time.Now()

	pages, err := e.PageImages(ctx, path, e.cfg.DPI)
	if err != nil {
		return "", err
	}
	logger.Info("ocr.document.start", "path", path, "pages", len(pages), "handwritten", handwritten)

	prompt := llm.OCRPrompt(handwritten)
	texts := make([]string, 0, len(pages))
	for _, page := range pages {
		logger.Debug("ocr.page", "page", page.Number, "of", len(pages))
		text, err := e.completer.Complete(ctx, []llm.Message{llm.VisionMessage(prompt, page.DataURL)})
		if err != nil {
			return "", fmt.Errorf("page %d of %s: %w", page.Number, path, err)
		}
		texts = append(texts, PageMarker(page.Number)+"\n"+Normalize(text))
	}

	out := strings.Join(texts, "\n\n")
	logger.Info("ocr.document.ok",
		"path", path,
		"pages", len(pages),
		"chars", len(out),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}
