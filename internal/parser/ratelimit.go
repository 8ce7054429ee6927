package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// namedPattern pairs a rate-limit pattern name with the regex that detects
// it, in the order spec §4.3 lists them.
type namedPattern struct {
	name string
	re   *regexp.Regexp
}

var rateLimitPatterns = []namedPattern{
	{"claude-http-429", regexp.MustCompile(`(?i)claude.*\b429\b`)},
	{"claude-overloaded", regexp.MustCompile(`(?i)claude.*overloaded`)},
	{"openai-http-429", regexp.MustCompile(`(?i)openai.*\b429\b`)},
	{"cursor-rate-limit", regexp.MustCompile(`(?i)cursor.*rate.?limit`)},
	{"gemini-resource-exhausted", regexp.MustCompile(`(?i)gemini.*resource.?exhausted`)},
	{"http-429", regexp.MustCompile(`\b429\b`)},
	{"retry-after-header", regexp.MustCompile(`(?i)retry-after:\s*(\S+)`)},
	{"openai-retry-after", regexp.MustCompile(`(?i)please retry after (\d+(?:\.\d+)?)\s*(seconds?|secs?|s)\b`)},
	{"openai-tpm-limit", regexp.MustCompile(`(?i)tokens per min(?:ute)?.*limit`)},
	{"openai-rpm-limit", regexp.MustCompile(`(?i)requests per min(?:ute)?.*limit`)},
}

var genericRetryAfter = regexp.MustCompile(`(?i)retry(?:ing)? after (\d+(?:\.\d+)?)\s*(seconds?|secs?|s|minutes?|mins?|m)\b`)
var retryInPhrase = regexp.MustCompile(`(?i)\bin (\d+)\s*(seconds?|secs?|s|minutes?|mins?)\b`)
var retryAfterHeaderValue = regexp.MustCompile(`(?i)retry-after:\s*(\d+)`)

// rateLimitClassifier matches any of spec §4.3's named rate-limit patterns.
type rateLimitClassifier struct{}

func (rateLimitClassifier) Name() string { return "rate-limit" }

func (rateLimitClassifier) Match(line string) (ParsedEvent, bool) {
	truncated := truncateForCapture(line)

	// Go's compiled regexps carry no mutable "last index" between calls
	// (unlike a stateful global-flag regex object), so there is nothing to
	// reset here before each FindStringIndex.
	for _, p := range rateLimitPatterns {
		loc := p.re.FindStringIndex(truncated)
		if loc == nil {
			continue
		}
		return RateLimit{
			PatternName:  p.name,
			MatchedText:  truncated[loc[0]:loc[1]],
			RetryAfterMs: parseRetryAfterMs(truncated),
		}, true
	}
	return nil, false
}

// parseRetryAfterMs extracts a retry delay from a line using the semantics
// in spec §4.3: Unix epoch → delta from now, seconds → multiply, a human
// phrase ("in 3 minutes") → parse. Clamped to [0, 24h]; defaults to 60s.
func parseRetryAfterMs(line string) int64 {
	const defaultMs = 60000
	const dayMs = 24 * 60 * 60 * 1000

	if m := genericRetryAfter.FindStringSubmatch(line); m != nil {
		if ms, ok := durationToMs(m[1], m[2]); ok {
			return clampMs(ms, dayMs)
		}
	}
	if m := retryInPhrase.FindStringSubmatch(line); m != nil {
		if ms, ok := durationToMs(m[1], m[2]); ok {
			return clampMs(ms, dayMs)
		}
	}
	if m := retryAfterHeaderValue.FindStringSubmatch(line); m != nil {
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			// Could be seconds (delta) or a Unix epoch; epochs are ten
			// digits or more for any date after 2001.
			if len(m[1]) >= 10 {
				delta := n - time.Now().Unix()
				if delta < 0 {
					delta = 0
				}
				return clampMs(delta*1000, dayMs)
			}
			return clampMs(n*1000, dayMs)
		}
	}

	return defaultMs
}

func durationToMs(numStr, unit string) (int64, bool) {
	f, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0, false
	}
	unit = strings.ToLower(unit)
	switch {
	case strings.HasPrefix(unit, "m") && !strings.HasPrefix(unit, "ms"):
		return int64(f * 60 * 1000), true
	default:
		return int64(f * 1000), true
	}
}

func clampMs(ms, maxMs int64) int64 {
	if ms < 0 {
		return 0
	}
	if ms > maxMs {
		return maxMs
	}
	return ms
}
