package ptyengine

import (
	"time"
	"unicode/utf8"
)

// DefaultTailIdle is T_idle: how long the reader waits with a non-empty
// partial line before force-flushing it to the parser (spec §4.2 "Tail-flush
// rule").
const DefaultTailIdle = 200 * time.Millisecond

// utf8Framer retains incomplete trailing UTF-8 bytes across reads so that no
// partial codepoint is ever handed to the line splitter (spec §3 invariant
// 3, §8 scenario 5). Exclusive to the reader goroutine — never touched
// concurrently.
type utf8Framer struct {
	pending      []byte
	pendingSince time.Time
}

// feed appends p to any previously retained partial codepoint and returns
// the longest well-formed prefix plus the new (possibly empty) remainder to
// retain. The remainder is never itself malformed in isolation — it is
// either empty or a valid incomplete-codepoint lead sequence.
func (f *utf8Framer) feed(p []byte) (complete []byte, hasPending bool) {
	buf := p
	if len(f.pending) > 0 {
		buf = append(append([]byte(nil), f.pending...), p...)
	}

	cut := len(buf)
	// Scan back at most 3 bytes (UTF-8's longest sequence is 4 bytes) looking
	// for a multi-byte lead whose continuation bytes haven't all arrived yet.
	limit := 3
	if limit > len(buf) {
		limit = len(buf)
	}
	for back := 1; back <= limit; back++ {
		start := len(buf) - back
		b := buf[start]
		if b < 0x80 || b >= 0xC0 {
			// Either an ASCII byte or the start of a new multi-byte sequence
			// at this position: if it's a lead byte, check completeness.
			if utf8.RuneStart(b) && runeExpectedLen(b) > back {
				cut = start
			}
			break
		}
		// b is a continuation byte (0x80-0xBF); keep scanning further back.
	}

	complete = append([]byte(nil), buf[:cut]...)
	remainder := buf[cut:]

	if len(remainder) == 0 {
		f.pending = nil
		f.pendingSince = time.Time{}
		return complete, false
	}

	f.pending = append([]byte(nil), remainder...)
	if f.pendingSince.IsZero() {
		f.pendingSince = time.Now()
	}
	return complete, true
}

// forceFlush is invoked by the tail-timeout: it replaces a stuck partial
// codepoint with U+FFFD and returns it for forwarding, since the spec
// permits a configurable tail timeout to force a replacement character
// (spec §3 invariant 3).
func (f *utf8Framer) forceFlush() []byte {
	if len(f.pending) == 0 {
		return nil
	}
	out := []byte(string(utf8.RuneError))
	f.pending = nil
	f.pendingSince = time.Time{}
	return out
}

// idleSince reports how long the current partial codepoint has been held,
// or zero if there is none pending.
func (f *utf8Framer) idleSince() time.Duration {
	if f.pendingSince.IsZero() {
		return 0
	}
	return time.Since(f.pendingSince)
}

func runeExpectedLen(lead byte) int {
	switch {
	case lead&0xE0 == 0xC0:
		return 2
	case lead&0xF0 == 0xE0:
		return 3
	case lead&0xF8 == 0xF0:
		return 4
	default:
		return 1
	}
}
