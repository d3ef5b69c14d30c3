// Package examcache stores the extracted question paper and answer key text
// once per distinct document pair so a batch pays for that extraction once.
package examcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
)

// Cache is write-once per exam id. Put on an id that already holds a
// complete entry is a no-op and reports stored=false.
type Cache interface {
	Has(ctx context.Context, examID string) (bool, error)
	Get(ctx context.Context, examID string) (entity.ExamCacheEntry, bool, error)
	Put(ctx context.Context, entry entity.ExamCacheEntry) (bool, error)
	Invalidate(ctx context.Context, examID string) error
}

const digestLen = 16

// Fingerprint derives the exam id from file contents, never from names:
// exam_<sha256(qp)[:16]>_<sha256(ak)[:16]>.
func Fingerprint(questionPaper, answerKey string) (string, error) {
	qp, err := fileDigest(questionPaper)
	if err != nil {
		return "", err
	}
	ak, err := fileDigest(answerKey)
	if err != nil {
		return "", err
	}
	return "exam_" + qp + "_" + ak, nil
}

// FingerprintBytes is Fingerprint over in-memory contents.
func FingerprintBytes(questionPaper, answerKey []byte) string {
	return "exam_" + digest(questionPaper) + "_" + digest(answerKey)
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:digestLen]
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &common.MissingInputError{Path: path}
		}
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil))[:digestLen], nil
}
