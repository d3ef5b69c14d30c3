package export

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/exam-grader/internal/entity"
)

const (
	summarySheet   = "Results"
	questionsSheet = "Questions"
)

// Row is one job's line in the results workbook.
type Row struct {
	JobID  string
	Result entity.FinalResult
	Error  string // set for jobs that did not complete
}

// ResultsXLSX returns a workbook (as bytes) with a summary sheet and a
// per-question sheet. Section columns follow sectionIDs.
func ResultsXLSX(rows []Row, sectionIDs []string, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(questionsSheet); err != nil {
		return nil, err
	}
	idx, _ := f.GetSheetIndex(summarySheet)
	f.SetActiveSheet(idx)

	headers := []any{"Job ID", "Student ID", "Exam Mode"}
	for _, id := range sectionIDs {
		headers = append(headers, "Section "+id)
	}
	headers = append(headers, "Total", "Max", "Percentage", "Grade", "Result", "Error")
	if err := f.SetSheetRow(summarySheet, "A1", &headers); err != nil {
		return nil, err
	}

	qHeaders := []any{"Job ID", "Section", "Question", "Awarded", "Max", "Retained", "Feedback"}
	if err := f.SetSheetRow(questionsSheet, "A1", &qHeaders); err != nil {
		return nil, err
	}

	qRow := 2
	for i, r := range rows {
		res := r.Result
		line := []any{r.JobID, res.StudentID, res.ExamMode}
		for _, id := range sectionIDs {
			if s, ok := res.Section(id); ok && r.Error == "" {
				line = append(line, s.Subtotal)
			} else {
				line = append(line, nil)
			}
		}
		if r.Error != "" {
			line = append(line, nil, nil, nil, nil, nil, r.Error)
		} else {
			line = append(line, res.GrandTotal, res.MaxPossible, res.Percentage, res.Grade, res.Result, "")
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(summarySheet, cell, &line); err != nil {
			return nil, err
		}

		for _, s := range res.Sections {
			for _, q := range s.Questions {
				ql := []any{r.JobID, s.Section, q.ID, q.Awarded, q.Max, q.Retained, truncate(q.Feedback, 140)}
				cell, _ := excelize.CoordinatesToCellName(1, qRow)
				if err := f.SetSheetRow(questionsSheet, cell, &ql); err != nil {
					return nil, err
				}
				qRow++
			}
		}
	}

	_ = f.SetColWidth(summarySheet, "A", "A", 28)
	_ = f.SetColWidth(summarySheet, "B", "C", 14)
	_ = f.SetColWidth(questionsSheet, "A", "A", 28)
	_ = f.SetColWidth(questionsSheet, "G", "G", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	logger.Info("export.xlsx.ok", "rows", len(rows), "elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
