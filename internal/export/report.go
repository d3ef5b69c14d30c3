package export

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/exam-grader/internal/entity"
)

// Report renders a result as a plain text report for printing or email.
func Report(jobID string, r entity.FinalResult) string {
	var b strings.Builder
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "EVALUATION REPORT")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Job:        %s\n", jobID)
	fmt.Fprintf(&b, "Student:    %s\n", r.StudentID)
	fmt.Fprintf(&b, "Exam mode:  %s\n", r.ExamMode)
	fmt.Fprintf(&b, "Score:      %s/%s (%.1f%%)\n", marks(r.GrandTotal), marks(r.MaxPossible), r.Percentage)
	fmt.Fprintf(&b, "Grade:      %s\n", r.Grade)
	fmt.Fprintf(&b, "Result:     %s\n", r.Result)

	for _, s := range r.Sections {
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "Section %s  %s/%s\n", s.Section, marks(s.Subtotal), marks(s.Cap))
		if len(s.Questions) == 0 {
			fmt.Fprintln(&b, "  (no answers evaluated)")
			continue
		}
		for _, q := range s.Questions {
			flag := " "
			if !q.Retained {
				flag = "x"
			}
			fmt.Fprintf(&b, "  [%s] %-4s %s/%s", flag, q.ID, marks(q.Awarded), marks(q.Max))
			if q.Feedback != "" {
				fmt.Fprintf(&b, "  %s", q.Feedback)
			}
			fmt.Fprintln(&b)
		}
	}

	if len(r.AuditLog) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Audit:")
		for _, line := range r.AuditLog {
			fmt.Fprintf(&b, "  - %s\n", line)
		}
	}
	if r.OverallFeedback != "" {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, r.OverallFeedback)
	}
	return b.String()
}

func marks(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
