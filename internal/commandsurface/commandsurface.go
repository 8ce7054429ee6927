// Package commandsurface is the transport-agnostic façade over the session
// engine (SPEC_FULL.md §4.5): both the HTTP/WS/SSE handlers in
// internal/server and the MCP bridge's "session" tool call into this single
// type, so local and remote access share identical semantics.
package commandsurface

import (
	"github.com/sstraus/tuicommander/internal/ptyengine"
)

// Surface wraps a *ptyengine.Manager. Every method returns the engine's
// typed error taxonomy directly — callers map those to transport-specific
// codes (HTTP status codes in internal/server, JSON-RPC errors in
// internal/mcpbridge) rather than this package
// doing transport-specific translation itself.
type Surface struct {
	mgr *ptyengine.Manager
}

func New(mgr *ptyengine.Manager) *Surface {
	return &Surface{mgr: mgr}
}

// Create starts a new session and returns its id.
func (s *Surface) Create(spec ptyengine.CreateSpec) (string, error) {
	return s.mgr.Create(spec)
}

// Write appends bytes to a session's PTY input.
func (s *Surface) Write(id string, data []byte) (int, error) {
	return s.mgr.Write(id, data)
}

// Resize applies a new PTY window size.
func (s *Surface) Resize(id string, rows, cols uint16) error {
	return s.mgr.Resize(id, rows, cols)
}

// Pause suspends the reader's draining of the session's PTY.
func (s *Surface) Pause(id string) error {
	return s.mgr.Pause(id)
}

// Resume un-suspends a paused session.
func (s *Surface) Resume(id string) error {
	return s.mgr.Resume(id)
}

// Close runs the session's close protocol (SIGHUP, T_kill wait, force-kill).
func (s *Surface) Close(id string) error {
	return s.mgr.Close(id)
}

// List returns a summary of every live session.
func (s *Surface) List() []ptyengine.SessionSummary {
	return s.mgr.List()
}

// Snapshot returns the last n bytes of a session's output_log.
func (s *Surface) Snapshot(id string, n int) (data []byte, seq uint64, foreground string, err error) {
	return s.mgr.Snapshot(id, n)
}

// Subscribe attaches a new live-output subscriber to a session.
func (s *Surface) Subscribe(id string) (*ptyengine.Subscription, error) {
	return s.mgr.Subscribe(id)
}

// Foreground returns a session's last-known foreground process name.
func (s *Surface) Foreground(id string) (string, error) {
	return s.mgr.Foreground(id)
}
