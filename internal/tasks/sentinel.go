package tasks

import (
	"strings"

	"scribedesk/internal/domain"
)

// errorTag is prepended by the backend when transcription fails.
const errorTag = "[Error]"

var failureKeywords = []string{"Error", "エラー", "失敗"}

// InProgress reports whether content is a transient backend placeholder: the
// trimmed text must be wrapped in one matched pair of parentheses, so
// "(a) (b)" does not qualify.
func InProgress(content string) bool {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < 2 || trimmed[0] != '(' || trimmed[len(trimmed)-1] != ')' {
		return false
	}
	depth := 0
	for i := 0; i < len(trimmed); i++ {
		switch trimmed[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(trimmed)-1 {
				return false
			}
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// Classify maps final unit content to a terminal status.
func Classify(content string) domain.TaskStatus {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, errorTag) {
		return domain.TaskStatusError
	}
	for _, keyword := range failureKeywords {
		if strings.Contains(trimmed, keyword) {
			return domain.TaskStatusError
		}
	}
	return domain.TaskStatusSuccess
}
