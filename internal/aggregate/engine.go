// Package aggregate turns a structured evaluation into the final grade.
// Everything here is pure arithmetic: no I/O, no model calls.
package aggregate

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
)

// Rules parameterizes the engine. DefaultRules matches the periodical-test layout.
type Rules struct {
	Sections  []constants.SectionRule
	TotalMax  float64
	PassMarks float64
	Grades    []constants.GradeBand
}

func DefaultRules() Rules {
	return Rules{
		Sections:  constants.Sections,
		TotalMax:  constants.TotalMax,
		PassMarks: constants.PassMarks,
		Grades:    constants.GradeBands,
	}
}

// Compute applies retain-best-N and section caps to every section and
// derives total, percentage, grade and verdict. Missing sections score zero.
func Compute(eval entity.Evaluation, studentID string, mode constants.ExamMode, rules Rules) entity.FinalResult {
	if studentID == "" {
		studentID = "UNKNOWN"
	}
	if mode == "" {
		mode = constants.DefaultExamMode
	}
	res := entity.FinalResult{
		StudentID:         studentID,
		ExamMode:          string(mode),
		MaxPossible:       rules.TotalMax,
		ExaminerComment:   strings.TrimSpace(string(eval.Summary.ExaminerComment)),
		EvaluationSummary: []string{},
		AuditLog:          []string{},
	}

	for _, rule := range rules.Sections {
		sec, ok := eval.Sections[rule.ID]
		if !ok {
			res.Sections = append(res.Sections, emptySection(rule))
			res.EvaluationSummary = append(res.EvaluationSummary,
				fmt.Sprintf("Section %s: 0/%s (not evaluated)", rule.ID, formatMarks(rule.Cap)))
			continue
		}

		score := ScoreSection(rule, sec)
		res.Sections = append(res.Sections, score)
		res.GrandTotal += score.Subtotal
		res.EvaluationSummary = append(res.EvaluationSummary, sectionLine(score))
		for _, id := range score.Discarded {
			res.AuditLog = append(res.AuditLog, fmt.Sprintf("Dropped %s (lowest in Section %s)", id, rule.ID))
		}
	}

	res.Percentage = Percentage(res.GrandTotal, rules.TotalMax)
	res.Grade = Grade(res.Percentage, rules.Grades)
	if res.GrandTotal >= rules.PassMarks {
		res.Result = constants.VerdictPass
	} else {
		res.Result = constants.VerdictFail
	}
	res.OverallFeedback = overallFeedback(res, mode)
	return res
}

// ScoreSection keeps the best rule.RetainBest questions by awarded marks.
// Ties keep presentation order. The sum is clamped to rule.Cap.
func ScoreSection(rule constants.SectionRule, sec entity.SectionEvaluation) entity.SectionScore {
	questions := make([]entity.QuestionScore, 0, len(sec.Questions))
	for _, q := range sec.Questions {
		questions = append(questions, entity.QuestionScore{
			ID:       q.ID,
			Awarded:  finite(q.Total()),
			Max:      finite(q.MaxOr(rule.QuestionMax)),
			Feedback: q.Comment(),
		})
	}

	order := make([]int, len(questions))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return questions[order[a]].Awarded > questions[order[b]].Awarded
	})

	keep := len(order)
	if rule.RetainBest >= 0 && keep > rule.RetainBest {
		keep = rule.RetainBest
	}

	out := entity.SectionScore{
		Section:   rule.ID,
		Retained:  make([]string, 0, keep),
		Discarded: make([]string, 0, len(order)-keep),
		Cap:       rule.Cap,
	}
	var sum float64
	for rank, idx := range order {
		if rank < keep {
			questions[idx].Retained = true
			out.Retained = append(out.Retained, questions[idx].ID)
			sum += questions[idx].Awarded
		} else {
			out.Discarded = append(out.Discarded, questions[idx].ID)
		}
	}
	out.Subtotal = math.Min(sum, rule.Cap)
	out.Questions = questions
	return out
}

// Percentage is total/max*100 rounded to one decimal place. Rounding works
// on the exact binary value with ties to even, so 24.25 becomes 24.2.
func Percentage(total, max float64) float64 {
	if max <= 0 {
		return 0
	}
	p, err := strconv.ParseFloat(strconv.FormatFloat(total/max*100, 'f', 1, 64), 64)
	if err != nil {
		return 0
	}
	return p
}

// Grade looks percentage up in bands ordered from highest to lowest.
func Grade(percentage float64, bands []constants.GradeBand) string {
	for _, b := range bands {
		if percentage >= b.Min {
			return b.Grade
		}
	}
	return constants.FailingGrade
}

func emptySection(rule constants.SectionRule) entity.SectionScore {
	return entity.SectionScore{
		Section:   rule.ID,
		Questions: []entity.QuestionScore{},
		Retained:  []string{},
		Discarded: []string{},
		Cap:       rule.Cap,
	}
}

func sectionLine(s entity.SectionScore) string {
	line := fmt.Sprintf("Section %s: %s/%s", s.Section, formatMarks(s.Subtotal), formatMarks(s.Cap))
	if len(s.Discarded) == 0 {
		return line
	}
	dropped := make([]string, 0, len(s.Discarded))
	for _, id := range s.Discarded {
		for _, q := range s.Questions {
			if q.ID == id {
				dropped = append(dropped, fmt.Sprintf("%s with %s marks", id, formatMarks(q.Awarded)))
				break
			}
		}
	}
	return line + " (dropped " + strings.Join(dropped, ", ") + ")"
}

func overallFeedback(r entity.FinalResult, mode constants.ExamMode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Exam: %s\n", mode.Title())
	fmt.Fprintf(&b, "Result: %s\n", r.Result)
	b.WriteString(performanceBand(r.Percentage))
	b.WriteString("\n\nSection breakdown:\n")
	for _, line := range r.EvaluationSummary {
		b.WriteString("  - ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\nFinal Score: %s/%s (%.1f%%)", formatMarks(r.GrandTotal), formatMarks(r.MaxPossible), r.Percentage)
	if r.ExaminerComment != "" {
		b.WriteString("\nExaminer comment: ")
		b.WriteString(r.ExaminerComment)
	}
	return b.String()
}

func performanceBand(pct float64) string {
	switch {
	case pct >= 80:
		return "Excellent performance! Strong understanding of concepts."
	case pct >= 60:
		return "Good performance with solid grasp of fundamentals."
	case pct >= 50:
		return "Average performance. Some concepts need more attention."
	case pct >= 40:
		return "Below average. Focus on understanding core concepts."
	default:
		return "Needs significant improvement. Review all topics thoroughly."
	}
}

// finite maps NaN and infinities from hostile input to zero.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func formatMarks(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
