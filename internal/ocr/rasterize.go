package ocr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/exam-grader/internal/common"
)

// Page is one rendered page ready for a vision request.
type Page struct {
	Number  int
	DataURL string // PNG, downscaled to Config.MaxImageDim
}

// PageImages renders every page of path at dpi and returns them in page
// order. The intermediate files are removed before it returns.
func (e *Extractor) PageImages(ctx context.Context, path string, dpi int) ([]Page, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &common.MissingInputError{Path: path}
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if dpi <= 0 {
		dpi = e.cfg.DPI
	}

	tmpDir, err := os.MkdirTemp("", "grader-pages-*")
	if err != nil {
		return nil, err
	}
	defer func(dir string) {
		if err := os.RemoveAll(dir); err != nil {
			e.logger.Warn("ocr.cleanup_failed", "dir", dir, "error", err)
		}
	}(tmpDir)

	files, err := e.rasterize(ctx, path, tmpDir, dpi)
	if err != nil {
		return nil, err
	}
	pages := make([]Page, 0, len(files))
	for i, f := range files {
		url, err := pageDataURL(f, e.cfg.MaxImageDim)
		if err != nil {
			return nil, err
		}
		pages = append(pages, Page{Number: i + 1, DataURL: url})
	}
	return pages, nil
}

// rasterize renders every page of pdfPath to PNG under dir and returns the
// page files in page order.
func (e *Extractor) rasterize(ctx context.Context, pdfPath, dir string, dpi int) ([]string, error) {
	prefix := filepath.Join(dir, "page")
	// pdftoppm -r 200 -png <in.pdf> <dir/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, "-r", strconv.Itoa(dpi), "-png", pdfPath, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(truncate(string(errb), 512)))
	}

	// pdftoppm zero-pads page numbers to a common width, so a lexical sort
	// is page order.
	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	if e.cfg.MaxPages > 0 && len(matches) > e.cfg.MaxPages {
		e.logger.Warn("ocr.pages_capped", "path", pdfPath, "pages", len(matches), "max_pages", e.cfg.MaxPages)
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no pages rendered from %s", pdfPath)
	}
	return matches, nil
}
