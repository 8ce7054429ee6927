package ptyengine

import (
	"io"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/sstraus/tuicommander/internal/ansi"
	"github.com/sstraus/tuicommander/internal/parser"
)

// readChunkSize is K: how much the reader reads per PTY read call.
const readChunkSize = 32 * 1024

// runReader is the dedicated reader goroutine for one session (spec §4.2,
// §9 "use a dedicated OS thread so the framer's ownership is trivially
// single-writer"). It owns the UTF-8 framer and line splitter exclusively —
// spec §3 "line_frame_state ... exclusive to the reader thread".
func runReader(s *session, parse *parser.Parser, onExit func(ExitStatus)) {
	buf := make([]byte, readChunkSize)
	framer := &utf8Framer{}
	splitter := &lineSplitter{}

	for {
		// Step 1-2: block on PTY read, or wait on the pause condvar. While
		// paused the reader sets no read deadline and issues no Read call
		// at all, so the kernel's PTY buffer fills and backpressures the
		// child (spec §4.2 step 2).
		s.mu.Lock()
		for s.paused {
			s.pauseCond.Wait()
		}
		s.mu.Unlock()

		// A bounded read deadline is how the reader notices T_idle without
		// a second goroutine constantly draining the PTY (which would
		// break the pause backpressure above): Read returns a timeout
		// error on no data within DefaultTailIdle, which this loop treats
		// as an idle tick rather than a fatal error.
		deadline := time.Now().Add(DefaultTailIdle)
		_ = s.pty.SetReadDeadline(deadline)

		n, err := s.pty.Read(buf)
		if n > 0 {
			raw := append([]byte(nil), buf[:n]...)

			// OSC 9;4 must be read before ANSI stripping erases it (spec
			// §4.3 "Pre-ANSI progress path").
			if prog, ok := ansi.ExtractOSC94(raw); ok {
				s.broadcast(SubMsg{Kind: SubMsgEvent, Event: parser.Progress{
					State: parser.ProgressState(prog.State),
					Value: prog.Value,
				}})
				raw = ansi.StripOSC94(raw)
			}

			// Step 3-5: ring-buffer append with sequence counter, then a
			// non-blocking broadcast of the raw chunk.
			s.mu.Lock()
			seq := s.out.append(raw)
			s.mu.Unlock()
			s.broadcast(SubMsg{Kind: SubMsgChunk, Seq: seq, Bytes: raw})

			// Step 6: UTF-8 boundary-safe framing.
			complete, _ := framer.feed(raw)

			// Step 7-8: line splitting, ANSI stripping, classification.
			for _, line := range splitter.feed(string(complete)) {
				emitClassified(s, parse, line)
			}
			continue
		}

		if err != nil {
			if isReadTimeout(err) {
				if framer.idleSince() >= DefaultTailIdle || splitter.hasPartial() {
					tailFlush(s, framer, splitter, parse)
				}
				continue
			}
			if err == io.EOF {
				reapSession(s, parse, splitter, onExit, "")
				return
			}
			reapSession(s, parse, splitter, onExit, err.Error())
			return
		}
	}
}

// isReadTimeout reports whether err is the deadline-exceeded error from a
// bounded PTY Read, as opposed to a genuine I/O failure or EOF.
func isReadTimeout(err error) bool {
	type timeoutErr interface{ Timeout() bool }
	te, ok := err.(timeoutErr)
	return ok && te.Timeout()
}

// tailFlush implements spec §4.2's tail-flush rule: after T_idle with a
// non-empty partial line, flush it to the parser without appending a
// synthetic newline to output_log. A stuck partial UTF-8 codepoint is also
// forced to a replacement character at this point (spec §3 invariant 3).
func tailFlush(s *session, framer *utf8Framer, splitter *lineSplitter, parse *parser.Parser) {
	if replacement := framer.forceFlush(); len(replacement) > 0 {
		for _, line := range splitter.feed(string(replacement)) {
			emitClassified(s, parse, line)
		}
	}
	if partial, ok := splitter.flushPartial(); ok {
		emitClassified(s, parse, partial)
	}
}

func emitClassified(s *session, parse *parser.Parser, line string) {
	cleaned := ansi.Strip(line)
	if ev, ok := parse.Classify(cleaned); ok {
		s.broadcast(SubMsg{Kind: SubMsgEvent, Event: ev})
	}
}

// reapSession runs step 9 of the reader loop: reap the child, set
// exit_status, close broadcast channels gracefully, and exit (spec §4.2,
// §3 invariant 4). Any trailing partial line is flushed first so it is not
// silently lost on EOF.
func reapSession(s *session, parse *parser.Parser, splitter *lineSplitter, onExit func(ExitStatus), readErrDetail string) {
	if partial, ok := splitter.flushPartial(); ok {
		emitClassified(s, parse, partial)
	}

	waitErr := s.pty.Wait()
	s.pty.CloseMaster()

	exit := exitStatusFromWait(waitErr, readErrDetail)
	if s.log != nil {
		s.log.Debug("session reader exiting", zap.String("session", s.id), zap.Any("exit", exit))
	}
	s.finalize(exit)
	if onExit != nil {
		onExit(exit)
	}
}

func exitStatusFromWait(waitErr error, readErrDetail string) ExitStatus {
	if readErrDetail != "" {
		return ExitStatus{Code: nil, Reason: "stream-error: " + readErrDetail}
	}
	if waitErr == nil {
		code := 0
		return ExitStatus{Code: &code, Reason: "exited"}
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		code := exitErr.ExitCode()
		return ExitStatus{Code: &code, Reason: "exited"}
	}
	return ExitStatus{Code: nil, Reason: waitErr.Error()}
}
