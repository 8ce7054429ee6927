package parser

import (
	"regexp"
	"strconv"
)

var githubPrPattern = regexp.MustCompile(`(https://github\.com/[\w.-]+/[\w.-]+/pull/(\d+))`)
var gitlabMrPattern = regexp.MustCompile(`(https://gitlab\.com/[\w./-]+/-/merge_requests/(\d+))`)

type prURLClassifier struct{}

func (prURLClassifier) Name() string { return "pr-url" }

func (prURLClassifier) Match(line string) (ParsedEvent, bool) {
	truncated := truncateForCapture(line)

	if m := githubPrPattern.FindStringSubmatch(truncated); m != nil {
		n, err := strconv.Atoi(m[2])
		if err == nil {
			return PrUrl{Number: n, URL: m[1], Platform: PrPlatformGitHub}, true
		}
	}
	if m := gitlabMrPattern.FindStringSubmatch(truncated); m != nil {
		n, err := strconv.Atoi(m[2])
		if err == nil {
			return PrUrl{Number: n, URL: m[1], Platform: PrPlatformGitLab}, true
		}
	}
	return nil, false
}
