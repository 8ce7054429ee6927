package parser

// Classifier is the single capability every line-matcher implements —
// modeled per spec §9's "no subclass hierarchy" design note: classifiers
// are values, ordered in a fixed slice, never a dynamic-dispatch tree.
type Classifier interface {
	// Match inspects a single cleaned (ANSI-stripped) line and returns a
	// ParsedEvent if it recognizes the line. Must be a pure function.
	Match(line string) (ParsedEvent, bool)

	// Name identifies the classifier for logging/debugging.
	Name() string
}

// DefaultClassifiers returns the fixed, ordered classifier list from spec
// §4.3. Order matters: the first match wins.
func DefaultClassifiers() []Classifier {
	return []Classifier{
		rateLimitClassifier{},
		statusLineClassifier{},
		questionClassifier{},
		usageLimitClassifier{},
		planFileClassifier{},
		prURLClassifier{},
	}
}

// maxClassifyLen bounds how much of an over-long line is handed to regex
// capture groups (spec §4.3 "lines over 64 KiB are still classified").
const maxClassifyLen = 64 * 1024

func truncateForCapture(line string) string {
	if len(line) <= maxClassifyLen {
		return line
	}
	return line[:maxClassifyLen]
}
