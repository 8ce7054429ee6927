package parser

import "regexp"

var planFilePattern = regexp.MustCompile(`(?:^|\s)([\w./-]*(?:plans|\.claude/plans)/[\w.-]+\.md)`)

type planFileClassifier struct{}

func (planFileClassifier) Name() string { return "plan-file" }

func (planFileClassifier) Match(line string) (ParsedEvent, bool) {
	truncated := truncateForCapture(line)
	m := planFilePattern.FindStringSubmatch(truncated)
	if m == nil {
		return nil, false
	}
	return PlanFile{Path: m[1]}, true
}
