package parser

import "testing"

func TestClassifyRateLimit(t *testing.T) {
	p := New()
	ev, ok := p.Classify("Rate limited. Please retry after 42 seconds")
	if !ok {
		t.Fatalf("expected a match")
	}
	rl, ok := ev.(RateLimit)
	if !ok {
		t.Fatalf("expected RateLimit, got %T", ev)
	}
	if rl.RetryAfterMs != 42000 {
		t.Errorf("expected retry_after_ms=42000, got %d", rl.RetryAfterMs)
	}
}

func TestClassifyQuestionMenu(t *testing.T) {
	p := New()
	if _, ok := p.Classify("  › 1. Continue   2. Cancel  "); !ok {
		t.Fatalf("expected menu cursor to classify as Question")
	}

	ev, ok := p.Classify("Enter to select · ↑/↓ to navigate · Esc to cancel")
	if !ok {
		t.Fatalf("expected footer to classify as Question")
	}
	if _, ok := ev.(Question); !ok {
		t.Fatalf("expected Question, got %T", ev)
	}
}

func TestClassifyQuestionRejectsCodeAndURLs(t *testing.T) {
	p := New()
	if _, ok := p.Classify("func main() {"); ok {
		t.Errorf("code line should not classify as Question")
	}
	if _, ok := p.Classify("see https://example.com/docs?x=1"); ok {
		t.Errorf("URL-bearing line should not classify as Question")
	}
}

func TestClassifyDeterministic(t *testing.T) {
	p := New()
	line := "Rate limited. Please retry after 5 seconds"
	ev1, ok1 := p.Classify(line)
	ev2, ok2 := p.Classify(line)
	if ok1 != ok2 || ev1 != ev2 {
		t.Fatalf("expected identical classification for the same line: %v/%v vs %v/%v", ev1, ok1, ev2, ok2)
	}
}

func TestClassifyPlanFile(t *testing.T) {
	p := New()
	ev, ok := p.Classify("wrote plan to plans/2026-add-auth.md")
	if !ok {
		t.Fatalf("expected plan file match")
	}
	pf, ok := ev.(PlanFile)
	if !ok || pf.Path == "" {
		t.Fatalf("expected PlanFile with a path, got %#v", ev)
	}
}

func TestClassifyPrURL(t *testing.T) {
	p := New()
	ev, ok := p.Classify("opened https://github.com/acme/widgets/pull/42")
	if !ok {
		t.Fatalf("expected PR url match")
	}
	pr, ok := ev.(PrUrl)
	if !ok || pr.Number != 42 || pr.Platform != PrPlatformGitHub {
		t.Fatalf("unexpected PrUrl: %#v", ev)
	}
}

func TestClassifyUsageLimit(t *testing.T) {
	p := New()
	ev, ok := p.Classify("Claude usage limit reached: 87% weekly")
	if !ok {
		t.Fatalf("expected usage limit match")
	}
	ul, ok := ev.(UsageLimit)
	if !ok || ul.Percentage != 87 || ul.LimitType != UsageLimitWeekly {
		t.Fatalf("unexpected UsageLimit: %#v", ev)
	}
}

func TestClassifyOverlongLineDoesNotCrash(t *testing.T) {
	p := New()
	huge := make([]byte, 200*1024)
	for i := range huge {
		huge[i] = 'x'
	}
	if _, ok := p.Classify(string(huge)); ok {
		t.Fatalf("expected no classifier to match a line of plain x's")
	}
}

func TestRetryAfterClampsToDayBound(t *testing.T) {
	ms := parseRetryAfterMs("retry after 999999 minutes")
	if ms != 24*60*60*1000 {
		t.Errorf("expected clamp to 24h, got %d", ms)
	}
}

func TestRetryAfterDefaultsTo60s(t *testing.T) {
	ms := parseRetryAfterMs("rate limited, no duration given")
	if ms != 60000 {
		t.Errorf("expected default 60000ms, got %d", ms)
	}
}
