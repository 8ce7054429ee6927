// Package ansi strips terminal escape sequences from PTY output lines before
// they reach the classifier chain, and extracts the one sequence that must
// be read before stripping: OSC 9;4 progress reports.
package ansi

import (
	"regexp"
	"strconv"

	"github.com/charmbracelet/x/ansi"
)

// Strip removes SGR/OSC/CSI escape sequences from a line, leaving plain
// text for the Output Parser's classifiers to run against.
func Strip(line string) string {
	return ansi.Strip(line)
}

// osc94Pattern matches an OSC 9;4 progress report: ESC ] 9 ; 4 ; <state> ;
// <value> BEL (or ST). state: 0=remove, 1=normal, 2=error, 3=indeterminate.
var osc94Pattern = regexp.MustCompile(`\x1b\]9;4;(\d);(\d+)(?:\x07|\x1b\\)`)

// ProgressState mirrors the OSC 9;4 state codes onto the spec's Progress
// event states.
type ProgressState string

const (
	ProgressRemove        ProgressState = "remove"
	ProgressNormal        ProgressState = "normal"
	ProgressError         ProgressState = "error"
	ProgressIndeterminate ProgressState = "indeterminate"
)

// OSC94 is one extracted progress report.
type OSC94 struct {
	State ProgressState
	Value int
}

// ExtractOSC94 scans raw (pre-strip) bytes for an OSC 9;4 progress sequence.
// It must run before ANSI stripping because stripping erases the sequence
// entirely (spec §4.3 "Pre-ANSI progress path").
func ExtractOSC94(raw []byte) (OSC94, bool) {
	m := osc94Pattern.FindSubmatch(raw)
	if m == nil {
		return OSC94{}, false
	}
	state, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return OSC94{}, false
	}
	value, err := strconv.Atoi(string(m[2]))
	if err != nil {
		return OSC94{}, false
	}
	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}

	var s ProgressState
	switch state {
	case 0:
		s = ProgressRemove
	case 1:
		s = ProgressNormal
	case 2:
		s = ProgressError
	case 3:
		s = ProgressIndeterminate
	default:
		return OSC94{}, false
	}

	return OSC94{State: s, Value: value}, true
}

// StripOSC94 removes an OSC 9;4 sequence from raw bytes so the remaining
// bytes can still be handed to the generic ANSI stripper and line splitter
// without the sequence reappearing as garbage text.
func StripOSC94(raw []byte) []byte {
	return osc94Pattern.ReplaceAll(raw, nil)
}
