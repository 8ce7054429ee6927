package ptyengine

import "strings"

// lineSplitter accumulates well-formed text until a newline boundary,
// treating "\r\n" as a single boundary per spec §4.2 step 7. Exclusive to
// the reader goroutine.
type lineSplitter struct {
	partial strings.Builder
}

// feed appends text and returns the complete lines it closes out, in order.
// Any trailing partial line remains buffered.
func (l *lineSplitter) feed(text string) []string {
	if text == "" {
		return nil
	}
	l.partial.WriteString(text)
	combined := l.partial.String()

	var lines []string
	start := 0
	for i := 0; i < len(combined); i++ {
		if combined[i] == '\n' {
			end := i
			if end > start && combined[end-1] == '\r' {
				end--
			}
			lines = append(lines, combined[start:end])
			start = i + 1
		}
	}

	l.partial.Reset()
	if start < len(combined) {
		l.partial.WriteString(combined[start:])
	}
	return lines
}

// flushPartial returns and clears any buffered partial line, used by the
// tail-flush rule (spec §4.2) — it is handed to the parser but never
// appended to output_log with a synthetic newline.
func (l *lineSplitter) flushPartial() (string, bool) {
	s := l.partial.String()
	if s == "" {
		return "", false
	}
	l.partial.Reset()
	return s, true
}

// hasPartial reports whether a non-empty partial line is currently buffered.
func (l *lineSplitter) hasPartial() bool {
	return l.partial.Len() > 0
}
