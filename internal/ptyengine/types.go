package ptyengine

import (
	"time"

	"github.com/sstraus/tuicommander/internal/parser"
)

// CreateSpec is the input to Manager.Create (spec §4.1). Field names match
// the MCP tool call shape in spec.md §6's worked example verbatim.
type CreateSpec struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	// Env overlays the engine process's own environment; it is applied
	// last, so callers always win (spec §6 "Process environment").
	Env map[string]string `json:"env,omitempty"`
	// Cwd defaults to os.Getwd() when empty.
	Cwd  string `json:"cwd,omitempty"`
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
	// StructuredOutputHint marks the session as preferring line-oriented
	// parsing; it changes no wire behavior (spec §9 Open Questions).
	StructuredOutputHint bool `json:"structured_output_hint,omitempty"`
}

// SessionSummary is the read-only view returned by Manager.List (spec
// §4.1 "list").
type SessionSummary struct {
	ID             string      `json:"id"`
	Cwd            string      `json:"cwd"`
	PID            int         `json:"pid"`
	ExitStatus     *ExitStatus `json:"exit_status,omitempty"`
	ForegroundProc string      `json:"foreground_proc,omitempty"`
	Rows           uint16      `json:"rows"`
	Cols           uint16      `json:"cols"`
	Paused         bool        `json:"paused"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ExitStatus is set exactly once when a session's child is reaped (spec §3
// invariant 4).
type ExitStatus struct {
	Code   *int   `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// SubMsgKind tags the variant carried by a subscription message.
type SubMsgKind int

const (
	SubMsgChunk SubMsgKind = iota
	SubMsgEvent
	SubMsgForeground
	SubMsgExit
	SubMsgLag
)

// SubMsg is what a Subscription receives: a raw output chunk, a classified
// event, a foreground-process update, an exit notice, or a lag notice
// (spec §4.6 wire frame shapes, transport-agnostic at this layer).
type SubMsg struct {
	Kind SubMsgKind

	Seq   uint64
	Bytes []byte

	Event parser.ParsedEvent

	Foreground string

	ExitCode *int

	LostChunks int
}

// Subscription is a consumer-held back-reference to a session's output
// stream (spec §3 "Subscription"). Snapshot is the catch-up payload
// captured at subscribe time; Messages delivers live updates until the
// session closes or the consumer calls Unsubscribe.
type Subscription struct {
	ID            int
	Snapshot      []byte
	SnapshotSeq   uint64
	Foreground    string
	Messages      <-chan SubMsg
	unsubscribe   func()
}

// Unsubscribe detaches the consumer; safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}
