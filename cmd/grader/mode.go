package main

import (
	"fmt"

	"github.com/joseph-ayodele/exam-grader/constants"
)

// parseModeFlag resolves a --mode value, falling back to the configured default.
func parseModeFlag(flag, def string) (constants.ExamMode, error) {
	if flag == "" {
		flag = def
	}
	if m, ok := constants.ParseExamMode(flag); ok {
		return m, nil
	}
	if flag == "" {
		return constants.DefaultExamMode, nil
	}
	return "", fmt.Errorf("unknown exam mode %q (want PT-1 or PT-2)", flag)
}
