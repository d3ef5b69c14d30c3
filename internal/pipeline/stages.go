package pipeline

import (
	"context"

	"github.com/joseph-ayodele/exam-grader/internal/aggregate"
	"github.com/joseph-ayodele/exam-grader/internal/checkpoint"
	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
	"github.com/joseph-ayodele/exam-grader/internal/examcache"
)

// extract produces all three texts. The question paper and answer key come
// from the shared cache when another job already extracted them; two jobs
// may race to fill the cache, and the write-once put keeps one result.
func (o *Orchestrator) extract(ctx context.Context, cp entity.Checkpoint, req Request) (entity.Checkpoint, error) {
	logger := common.LoggerFromContext(ctx, o.Logger)
	docs := req.Documents

	examID, err := examcache.Fingerprint(docs.QuestionPaper, docs.AnswerKey)
	if err != nil {
		return cp, err
	}
	cp.Meta.ExamID = examID

	entry, hit, err := o.ExamCache.Get(ctx, examID)
	if err != nil {
		logger.Warn("pipeline.exam_cache_read_failed", "exam_id", examID, "error", err)
		hit = false
	}

	var qpText, akText string
	if hit {
		o.metrics.ExamCacheLookups.WithLabelValues("hit").Inc()
		logger.Info("pipeline.exam_cache_hit", "exam_id", examID)
		qpText, akText = entry.QuestionPaperText, entry.AnswerKeyText
	} else {
		o.metrics.ExamCacheLookups.WithLabelValues("miss").Inc()
		logger.Info("pipeline.exam_cache_miss", "exam_id", examID)

		if qpText, err = o.extractDoc(ctx, docs.QuestionPaper, "question_paper", false); err != nil {
			return cp, err
		}
		if akText, err = o.extractDoc(ctx, docs.AnswerKey, "answer_key", false); err != nil {
			return cp, err
		}
		stored, err := o.ExamCache.Put(ctx, entity.ExamCacheEntry{
			ExamID:            examID,
			QuestionPaperText: qpText,
			AnswerKeyText:     akText,
		})
		if err != nil {
			logger.Warn("pipeline.exam_cache_write_failed", "exam_id", examID, "error", err)
		} else if !stored {
			logger.Info("pipeline.exam_cache_lost_race", "exam_id", examID)
		}
	}

	student, err := o.extractDoc(ctx, docs.StudentScript, "student_script", true)
	if err != nil {
		return cp, err
	}

	return checkpoint.RecordOCR(ctx, o.Checkpoints, cp, entity.OCRTexts{
		QuestionPaper:  qpText,
		AnswerKey:      akText,
		StudentAnswers: student,
	})
}

func (o *Orchestrator) extractDoc(ctx context.Context, path, kind string, handwritten bool) (string, error) {
	o.metrics.ExtractionsTotal.WithLabelValues(kind).Inc()
	return o.Extractor.ExtractText(ctx, path, handwritten)
}

func (o *Orchestrator) evaluate(ctx context.Context, cp entity.Checkpoint) (entity.Checkpoint, error) {
	eval, err := o.Evaluator.Evaluate(ctx, *cp.OCR)
	if err != nil {
		return cp, err
	}
	return checkpoint.RecordEvaluation(ctx, o.Checkpoints, cp, eval)
}

func (o *Orchestrator) aggregate(ctx context.Context, cp entity.Checkpoint, req Request) (entity.Checkpoint, error) {
	result := aggregate.Compute(*cp.Evaluation, req.StudentID, req.Mode, o.Rules)
	return checkpoint.RecordResult(ctx, o.Checkpoints, cp, result)
}
