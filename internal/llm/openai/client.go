// Package openai talks to any OpenAI-compatible chat/completions endpoint
// through the retrying invoker.
package openai

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/llm"
)

// Client implements llm.Completer for one configured service.
type Client struct {
	service string
	cfg     common.LLMConfig
	invoker *llm.Invoker
	policy  llm.RetryPolicy
	log     *slog.Logger
}

// NewClient builds a completer named service (used in logs, metrics and errors).
func NewClient(service string, cfg common.LLMConfig, invoker *llm.Invoker, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if invoker == nil {
		invoker = llm.NewInvoker(logger, llm.WithRateLimit(cfg.RequestsPerMinute))
	}
	return &Client{
		service: service,
		cfg:     cfg,
		invoker: invoker,
		policy:  llm.PolicyFromConfig(cfg),
		log:     logger,
	}
}

func (c *Client) Endpoint() string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
}

func (c *Client) body(messages []llm.Message) map[string]any {
	body := map[string]any{
		"model":       c.cfg.Model,
		"messages":    messages,
		"temperature": c.cfg.Temperature,
	}
	if c.cfg.MaxTokens > 0 {
		body["max_tokens"] = c.cfg.MaxTokens
	}
	if c.cfg.TopP > 0 {
		body["top_p"] = c.cfg.TopP
	}
	if c.cfg.TopK > 0 {
		body["top_k"] = c.cfg.TopK
	}
	return body
}

// Complete sends messages once through the invoker and returns
// choices[0].message.content.
func (c *Client) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	rid := uuid.New().String()
	start := time.Now()
	logger := common.LoggerFromContext(ctx, c.log)

	req, err := llm.NewJSONRequest(c.service, c.Endpoint(), map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
		"Accept":        "application/json",
	}, c.body(messages))
	if err != nil {
		return "", err
	}

	logger.Info("llm.complete.start",
		"req_id", rid,
		"service", c.service,
		"model", c.cfg.Model,
		"messages", len(messages),
		"content_length", len(req.Body),
	)

	raw, err := c.invoker.Invoke(ctx, req, c.policy)
	if err != nil {
		logger.Error("llm.complete.failed",
			"req_id", rid, "service", c.service, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	content, cc, err := llm.DecodeChatCompletion(raw)
	if err != nil {
		logger.Error("llm.complete.decode_error",
			"req_id", rid, "service", c.service, "error", err, "raw_bytes", len(raw),
		)
		return "", err
	}

	attrs := []any{
		"req_id", rid,
		"service", c.service,
		"reply_bytes", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	}
	if cc.Usage != nil {
		attrs = append(attrs, "total_tokens", cc.Usage.TotalTokens)
	}
	logger.Info("llm.complete.ok", attrs...)
	return content, nil
}
