package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/exam-grader/internal/common"
)

var (
	reJSONFence     = regexp.MustCompile("```json\\s*([\\s\\S]*?)\\s*```")
	reBareFence     = regexp.MustCompile("```\\s*([\\s\\S]*?)\\s*```")
	reTrailingBrace = regexp.MustCompile(`,\s*}`)
	reTrailingBrack = regexp.MustCompile(`,\s*]`)
)

// Extraction strategies, in the order they are tried.
const (
	StrategyDirect   = "direct"
	StrategyFence    = "fence"
	StrategyBalanced = "balanced"
	StrategySpan     = "span"
)

// ExtractJSON recovers a JSON object from a model reply that may wrap it in
// reasoning, prose or code fences. The first strategy that parses wins:
//  1. the whole reply
//  2. ```json fences, then bare fences, when the block starts with '{'
//  3. a balanced-brace scan from every '{', retrying with trailing commas removed
//  4. the span from the first '{' to the last '}', with the same cleanup
//
// When nothing parses the raw reply is returned inside an UnparsableResponseError.
func ExtractJSON(reply string) (json.RawMessage, error) {
	raw, _, err := extractJSON(reply)
	return raw, err
}

func extractJSON(reply string) (json.RawMessage, string, error) {
	if isObject(reply) {
		return json.RawMessage(strings.TrimSpace(reply)), StrategyDirect, nil
	}

	for _, re := range []*regexp.Regexp{reJSONFence, reBareFence} {
		for _, m := range re.FindAllStringSubmatch(reply, -1) {
			block := strings.TrimSpace(m[1])
			if strings.HasPrefix(block, "{") && isObject(block) {
				return json.RawMessage(block), StrategyFence, nil
			}
		}
	}

	for start := 0; start < len(reply); start++ {
		if reply[start] != '{' {
			continue
		}
		end := matchingBrace(reply, start)
		if end < 0 {
			continue
		}
		if out, ok := parseCleaned(reply[start : end+1]); ok {
			return out, StrategyBalanced, nil
		}
	}

	first := strings.IndexByte(reply, '{')
	last := strings.LastIndexByte(reply, '}')
	if first >= 0 && last > first {
		if out, ok := parseCleaned(reply[first : last+1]); ok {
			return out, StrategySpan, nil
		}
	}

	return nil, "", &common.UnparsableResponseError{Raw: reply}
}

// matchingBrace counts braces from start and returns the index that closes it.
// Braces inside strings are counted too; a failed parse just moves on.
func matchingBrace(s string, start int) int {
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func parseCleaned(candidate string) (json.RawMessage, bool) {
	if isObject(candidate) {
		return json.RawMessage(candidate), true
	}
	cleaned := reTrailingBrace.ReplaceAllString(candidate, "}")
	cleaned = reTrailingBrack.ReplaceAllString(cleaned, "]")
	if isObject(cleaned) {
		return json.RawMessage(cleaned), true
	}
	return nil, false
}

// isObject reports whether s is a single valid JSON object.
func isObject(s string) bool {
	var m map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &m) == nil
}
