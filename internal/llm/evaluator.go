package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
)

// Evaluator runs the single reasoning call that scores a script against the
// question paper and answer key.
type Evaluator struct {
	completer Completer
	cfg       common.EvaluationConfig
	logger    *slog.Logger
	metrics   *Metrics
}

func NewEvaluator(completer Completer, cfg common.EvaluationConfig, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{completer: completer, cfg: cfg, logger: logger, metrics: NewMetrics()}
}

// Evaluate caps each text, sends one request and recovers the structured
// evaluation from the reply. Schema mismatches are logged, not fatal.
func (e *Evaluator) Evaluate(ctx context.Context, texts entity.OCRTexts) (entity.Evaluation, error) {
	logger := common.LoggerFromContext(ctx, e.logger)
	start := time.Now()

	capped := EvaluationTexts{
		QuestionPaper: Truncate(texts.QuestionPaper, e.cfg.QuestionPaperChars, e.cfg.HeadFraction),
		AnswerKey:     Truncate(texts.AnswerKey, e.cfg.AnswerKeyChars, e.cfg.HeadFraction),
		StudentScript: Truncate(texts.StudentAnswers, e.cfg.StudentChars, e.cfg.HeadFraction),
	}
	messages := EvaluationMessages(e.cfg.Prompt, capped)

	logger.Info("llm.evaluate.start",
		"qp_chars", len(texts.QuestionPaper),
		"ak_chars", len(texts.AnswerKey),
		"student_chars", len(texts.StudentAnswers),
	)

	reply, err := e.completer.Complete(ctx, messages)
	if err != nil {
		logger.Error("llm.evaluate.call_failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return entity.Evaluation{}, err
	}

	raw, strategy, err := extractJSON(reply)
	if err != nil {
		logger.Error("llm.evaluate.unparsable", "reply_bytes", len(reply))
		return entity.Evaluation{}, err
	}
	e.metrics.ExtractionsTotal.WithLabelValues(strategy).Inc()

	if vErr := ValidateEvaluationJSON(raw); vErr != nil {
		logger.Warn("llm.evaluate.schema_mismatch", "error", vErr)
	}

	var eval entity.Evaluation
	if err := json.Unmarshal(raw, &eval); err != nil {
		return entity.Evaluation{}, fmt.Errorf("%w: %v", &common.UnparsableResponseError{Raw: reply}, err)
	}
	eval.RawReply = reply

	logger.Info("llm.evaluate.ok",
		"strategy", strategy,
		"sections", len(eval.Sections),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return eval, nil
}
