package constants

import "strings"

// DocumentKind identifies one of the three inputs of an evaluation job.
type DocumentKind string

const (
	QuestionPaper DocumentKind = "question_paper"
	AnswerKey     DocumentKind = "answer_key"
	StudentScript DocumentKind = "student_answers"
)

// Staged upload file names inside a job's upload directory.
const (
	QuestionPaperFile = "question_paper.pdf"
	AnswerKeyFile     = "answer_key.pdf"
	StudentScriptFile = "student_sheet.pdf"
)

// File name suffixes for persisted records.
const (
	CheckpointSuffix = "_checkpoint.json"
	ExamCacheSuffix  = "_exam.json"
	ResultSuffix     = "_result.json"
	JobIDSuffix      = "-result"
)

// AllowedExtensions holds the file extensions accepted for evaluation inputs.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
