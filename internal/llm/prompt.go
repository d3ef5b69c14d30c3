package llm

import "strings"

// OCRPrompt returns the per-page extraction instruction. Handwritten scripts
// get an instruction tuned for reading handwriting.
func OCRPrompt(handwritten bool) string {
	if handwritten {
		return "You are an expert OCR system specialized in reading handwritten text.\n" +
			"Extract ALL text from this image exactly as written. \n" +
			"- Preserve the original structure (headings, paragraphs, numbered lists)\n" +
			"- Include question numbers like A1, B2, (i), (ii), etc.\n" +
			"- If text is unclear, make your best guess based on context\n" +
			"- Do NOT add any commentary or explanation\n" +
			"- Output ONLY the extracted text"
	}
	return "You are an expert OCR system.\n" +
		"Extract ALL text from this image exactly as written.\n" +
		"- Preserve the original structure (headings, sections, numbering)\n" +
		"- Include all question numbers, marks allocation, and instructions\n" +
		"- Do NOT add any commentary or explanation  \n" +
		"- Output ONLY the extracted text"
}

// EvaluationSystemPrompt frames the reasoning model as an examiner.
const EvaluationSystemPrompt = "You are an expert university examiner. Evaluate holistically like a human. " +
	"Think step by step, then return ONLY valid JSON as your final output."

// DefaultEvaluationPrompt is used when no prompt is configured.
const DefaultEvaluationPrompt = `You are evaluating a periodical test answer script against its question paper and answer key.

Exam pattern:
- Section A: 3 questions of 5 marks each, best 2 count, section maximum 10.
- Section B: 3 questions of 10 marks each, best 2 count, section maximum 20.
- Section C: 3 questions of 10 marks each, best 2 count, section maximum 20.
- Total 50 marks. Pass mark 25.

How to evaluate:
- Match each student answer to its question by meaning, not only by label. OCR may mangle question numbers.
- Award marks per sub-part against the answer key. Give partial credit for partially correct reasoning.
- Tolerate OCR spelling errors; judge the underlying content.
- Score every answered question. Do not score unanswered questions.

Return ONLY a JSON object shaped like:
{
  "section_wise_evaluation": {
    "A": {
      "questions": {
        "Q1": {
          "subdivisions": {"a": {"marks_awarded": 2, "max_marks": 2, "remarks": "..."}},
          "question_total": 4,
          "question_max": 5,
          "remarks": "..."
        }
      },
      "retained": ["Q1", "Q3"],
      "section_total": 9
    },
    "B": {"questions": {}, "retained": [], "section_total": 0},
    "C": {"questions": {}, "retained": [], "section_total": 0}
  },
  "final_summary": {
    "total_marks": 0,
    "max_marks": 50,
    "result": "PASS or FAIL",
    "examiner_comment": "two or three sentences"
  }
}`

const sectionRule = "================================================"

// EvaluationTexts are the three documents after length capping.
type EvaluationTexts struct {
	QuestionPaper string
	AnswerKey     string
	StudentScript string
}

// BuildEvaluationPrompt lays the instruction and the three documents out in
// framed sections, ending with the request to return JSON.
func BuildEvaluationPrompt(instruction string, t EvaluationTexts) string {
	if strings.TrimSpace(instruction) == "" {
		instruction = DefaultEvaluationPrompt
	}
	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\n")
	writeSection(&b, "QUESTION PAPER", t.QuestionPaper)
	writeSection(&b, "ANSWER KEY", t.AnswerKey)
	writeSection(&b, "STUDENT ANSWER SCRIPT", t.StudentScript)
	b.WriteString(sectionRule + "\nNOW EVALUATE AND RETURN JSON\n" + sectionRule + "\n")
	return b.String()
}

func writeSection(b *strings.Builder, title, body string) {
	b.WriteString(sectionRule + "\n" + title + "\n" + sectionRule + "\n")
	b.WriteString(body)
	b.WriteString("\n\n")
}

// EvaluationMessages is the full conversation sent to the reasoning model.
func EvaluationMessages(instruction string, t EvaluationTexts) []Message {
	return []Message{
		SystemMessage(EvaluationSystemPrompt),
		UserMessage(BuildEvaluationPrompt(instruction, t)),
	}
}
