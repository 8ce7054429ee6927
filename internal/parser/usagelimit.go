package parser

import (
	"regexp"
	"strconv"
)

var usageLimitPattern = regexp.MustCompile(`(?i)usage limit.*?(\d{1,3})\s*%.*?\b(weekly|session)\b|(\d{1,3})\s*%.*?\b(weekly|session)\b.*usage limit`)

type usageLimitClassifier struct{}

func (usageLimitClassifier) Name() string { return "usage-limit" }

func (usageLimitClassifier) Match(line string) (ParsedEvent, bool) {
	truncated := truncateForCapture(line)
	m := usageLimitPattern.FindStringSubmatch(truncated)
	if m == nil {
		return nil, false
	}

	pctStr, kindStr := m[1], m[2]
	if pctStr == "" {
		pctStr, kindStr = m[3], m[4]
	}
	pct, err := strconv.Atoi(pctStr)
	if err != nil {
		return nil, false
	}
	if pct > 100 {
		pct = 100
	}

	var kind UsageLimitType
	switch kindStr {
	case "weekly":
		kind = UsageLimitWeekly
	case "session":
		kind = UsageLimitSession
	default:
		return nil, false
	}

	return UsageLimit{Percentage: pct, LimitType: kind}, true
}
