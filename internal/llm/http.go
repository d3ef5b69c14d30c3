package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/exam-grader/internal/common"
)

// Request is an outbound call built once and replayed byte-for-byte on
// every retry.
type Request struct {
	Service string
	URL     string
	Headers map[string]string
	Body    []byte
}

// NewJSONRequest freezes payload into a Request.
func NewJSONRequest(service, url string, headers map[string]string, payload any) (Request, error) {
	bs, err := json.Marshal(payload)
	if err != nil {
		return Request{}, fmt.Errorf("encode json: %w", err)
	}
	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	return Request{Service: service, URL: url, Headers: h, Body: bs}, nil
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// send performs a single POST. Transport failures come back as err; any
// HTTP status, including errors, comes back as a response.
func send(ctx context.Context, client *http.Client, r Request, logger *slog.Logger) (response, error) {
	reqID := uuid.New().String()
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(r.Body))
	if err == nil && (req.URL.Host == "" || (req.URL.Scheme != "http" && req.URL.Scheme != "https")) {
		err = fmt.Errorf("url %q needs an http(s) scheme and a host", r.URL)
	}
	if err != nil {
		logger.Error("llm.http.build_request_error", "req_id", reqID, "error", err)
		return response{}, common.NewAppError("LLM_BAD_REQUEST", "build "+r.Service+" request", errors.Join(common.ErrInvalidInput, err))
	}

	// Default headers; allow caller overrides.
	req.Header.Set("Content-Type", "application/json")
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	logger.Debug("llm.http.request",
		"req_id", reqID,
		"service", r.Service,
		"url", r.URL,
		"content_length", len(r.Body),
	)

	resp, err := client.Do(req)
	if err != nil {
		logger.Warn("llm.http.send_error", "req_id", reqID, "service", r.Service, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return response{}, err
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			logger.Warn("llm.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Warn("llm.http.read_error", "req_id", reqID, "service", r.Service, "error", err)
		return response{}, fmt.Errorf("read response: %w", err)
	}

	logger.Debug("llm.http.response",
		"req_id", reqID,
		"service", r.Service,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return response{status: resp.StatusCode, header: resp.Header, body: raw}, nil
}
