package parser

import (
	"regexp"
	"strings"
)

var menuCursorPattern = regexp.MustCompile(`(❯|›|>)\s*\d+[.)]`)

var menuFooterPattern = regexp.MustCompile(`(?i)enter to select.*esc to cancel|↑/↓ to navigate`)

// rejectPatterns filters out lines ending in "?" that are clearly not a
// human-facing question: code tokens, URLs, shell prompts.
var rejectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`https?://`),
	regexp.MustCompile(`[;{}()]\s*$`),
	regexp.MustCompile(`^\s*[$#%]\s`),
	regexp.MustCompile("`"),
}

type questionClassifier struct{}

func (questionClassifier) Name() string { return "question" }

func (questionClassifier) Match(line string) (ParsedEvent, bool) {
	truncated := truncateForCapture(line)
	trimmed := strings.TrimSpace(truncated)
	if trimmed == "" {
		return nil, false
	}

	if menuCursorPattern.MatchString(trimmed) {
		return Question{PromptText: trimmed}, true
	}
	if menuFooterPattern.MatchString(trimmed) {
		return Question{PromptText: trimmed}, true
	}
	if strings.HasSuffix(trimmed, "?") {
		for _, rej := range rejectPatterns {
			if rej.MatchString(trimmed) {
				return nil, false
			}
		}
		return Question{PromptText: trimmed}, true
	}

	return nil, false
}
