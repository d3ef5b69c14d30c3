package ocr_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/llm"
	"github.com/joseph-ayodele/exam-grader/internal/ocr"
)

// fakeRunner mimics pdftoppm by writing n PNG pages of the given size.
type fakeRunner struct {
	pages         int
	width, height int
	args          []string
	err           error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.args = append([]string{name}, args...)
	if f.err != nil {
		return nil, []byte("boom"), f.err
	}
	prefix := args[len(args)-1]
	for i := 1; i <= f.pages; i++ {
		img := imaging.New(f.width, f.height, color.White)
		if err := imaging.Save(img, fmt.Sprintf("%s-%02d.png", prefix, i)); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, nil
}

func writePDF(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4"), 0o644))
	return p
}

func TestExtractText_JoinsPagesInOrder(t *testing.T) {
	runner := &fakeRunner{pages: 3, width: 20, height: 30}
	var calls atomic.Int32
	var prompts []string
	completer := llm.CompleterFunc(func(_ context.Context, msgs []llm.Message) (string, error) {
		n := calls.Add(1)
		parts := msgs[0].Content.([]llm.ContentPart)
		prompts = append(prompts, parts[0].Text)
		return fmt.Sprintf("text %d", n), nil
	})

	e := ocr.NewExtractor(ocr.Config{DPI: 200}, completer, nil, ocr.WithRunner(runner))
	out, err := e.ExtractText(context.Background(), writePDF(t), true)
	require.NoError(t, err)

	assert.Equal(t, "--- Page 1 ---\ntext 1\n\n--- Page 2 ---\ntext 2\n\n--- Page 3 ---\ntext 3", out)
	assert.Equal(t, []string{"pdftoppm", "-r", "200", "-png"}, runner.args[:4])
	for _, p := range prompts {
		assert.Equal(t, llm.OCRPrompt(true), p)
	}
}

func TestExtractText_MaxPages(t *testing.T) {
	runner := &fakeRunner{pages: 4, width: 10, height: 10}
	var calls atomic.Int32
	completer := llm.CompleterFunc(func(context.Context, []llm.Message) (string, error) {
		calls.Add(1)
		return "x", nil
	})

	e := ocr.NewExtractor(ocr.Config{MaxPages: 2}, completer, nil, ocr.WithRunner(runner))
	out, err := e.ExtractText(context.Background(), writePDF(t), false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.NotContains(t, out, "Page 3")
}

func TestExtractText_DownscalesLargePages(t *testing.T) {
	runner := &fakeRunner{pages: 1, width: 3000, height: 1500}
	var got image.Image
	completer := llm.CompleterFunc(func(_ context.Context, msgs []llm.Message) (string, error) {
		url := msgs[0].Content.([]llm.ContentPart)[1].ImageURL.URL
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/png;base64,"))
		if err != nil {
			return "", err
		}
		got, err = imaging.Decode(bytes.NewReader(raw))
		return "ok", err
	})

	e := ocr.NewExtractor(ocr.Config{MaxImageDim: 1000}, completer, nil, ocr.WithRunner(runner))
	_, err := e.ExtractText(context.Background(), writePDF(t), false)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1000, got.Bounds().Dx())
	assert.Equal(t, 500, got.Bounds().Dy())
}

func TestExtractText_MissingFile(t *testing.T) {
	e := ocr.NewExtractor(ocr.Config{}, nil, nil, ocr.WithRunner(&fakeRunner{}))
	_, err := e.ExtractText(context.Background(), filepath.Join(t.TempDir(), "gone.pdf"), false)

	var mi *common.MissingInputError
	require.True(t, errors.As(err, &mi))
	assert.True(t, errors.Is(err, common.ErrMissingInput))
}

func TestExtractText_RasterizeFailure(t *testing.T) {
	e := ocr.NewExtractor(ocr.Config{}, nil, nil, ocr.WithRunner(&fakeRunner{err: errors.New("exit 1")}))
	_, err := e.ExtractText(context.Background(), writePDF(t), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftoppm")
}

func TestExtractText_CompleterErrorStops(t *testing.T) {
	runner := &fakeRunner{pages: 2, width: 10, height: 10}
	want := &common.ExhaustedRetriesError{Service: "ocr", Attempts: 15}
	completer := llm.CompleterFunc(func(context.Context, []llm.Message) (string, error) {
		return "", want
	})

	e := ocr.NewExtractor(ocr.Config{}, completer, nil, ocr.WithRunner(runner))
	_, err := e.ExtractText(context.Background(), writePDF(t), false)
	assert.True(t, errors.Is(err, common.ErrExhaustedRetries))
}

func TestPageImages_UsesRequestedDPI(t *testing.T) {
	runner := &fakeRunner{pages: 2, width: 10, height: 10}
	e := ocr.NewExtractor(ocr.Config{}, nil, nil, ocr.WithRunner(runner))

	pages, err := e.PageImages(context.Background(), writePDF(t), 300)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, []string{"pdftoppm", "-r", "300", "-png"}, runner.args[:4])
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, 2, pages[1].Number)
	assert.True(t, strings.HasPrefix(pages[0].DataURL, "data:image/png;base64,"))

	// page files live in a temp dir that is gone once PageImages returns
	_, statErr := os.Stat(filepath.Dir(runner.args[len(runner.args)-1]))
	assert.True(t, os.IsNotExist(statErr))
}

func TestPageImages_MissingFile(t *testing.T) {
	e := ocr.NewExtractor(ocr.Config{}, nil, nil, ocr.WithRunner(&fakeRunner{}))
	_, err := e.PageImages(context.Background(), filepath.Join(t.TempDir(), "gone.pdf"), 0)
	assert.True(t, errors.Is(err, common.ErrMissingInput))
}
