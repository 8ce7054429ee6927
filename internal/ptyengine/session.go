package ptyengine

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSubscriberBuffer bounds a subscriber's channel before it is
// considered lagging (spec §4.6 "queues bounded at 256").
const DefaultSubscriberBuffer = 256

// DefaultLagUnsubscribeThreshold is W: the number of consecutive overflows
// that cause an auto-unsubscribe (spec §4.2 step 5, §4.6 "three consecutive
// overflows").
const DefaultLagUnsubscribeThreshold = 3

// session is one entry in the Manager's registry: a PTY-attached child
// process plus its buffers, subscribers, and lifecycle state (spec §3
// Session). Each session owns a private mutex so lifecycle operations on
// one session never block another (generalizes the teacher's single
// package-wide sync.RWMutex).
type session struct {
	id      string
	pty     *ptyHandle
	cwd     string
	command string
	args    []string
	env     map[string]string

	createdAt time.Time
	log       *zap.Logger

	mu         sync.Mutex
	rows, cols uint16
	paused     bool
	pauseCond  *sync.Cond

	out ringBuffer

	subs      map[int]*subscriber
	nextSubID int

	foreground string

	closeOnce sync.Once
	closed    bool
	exit      *ExitStatus
}

type subscriber struct {
	ch          chan SubMsg
	lagCount    int
	unsubscribe func()
}

func newSession(id string, spec CreateSpec, handle *ptyHandle, log *zap.Logger) *session {
	s := &session{
		id:        id,
		pty:       handle,
		cwd:       spec.Cwd,
		command:   spec.Command,
		args:      spec.Args,
		env:       spec.Env,
		rows:      spec.Rows,
		cols:      spec.Cols,
		createdAt: time.Now(),
		out:       newRingBuffer(DefaultOutputLogBytes),
		subs:      make(map[int]*subscriber),
		log:       log,
	}
	s.pauseCond = sync.NewCond(&s.mu)
	return s
}

func (s *session) summary() SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionSummary{
		ID:             s.id,
		Cwd:            s.cwd,
		PID:            s.pty.PID(),
		ExitStatus:     s.exit,
		ForegroundProc: s.foreground,
		Rows:           s.rows,
		Cols:           s.cols,
		Paused:         s.paused,
		CreatedAt:      s.createdAt,
	}
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// setForeground updates the cached foreground-process name and, if it
// changed, notifies subscribers (spec §3 foreground_proc, §6 "foreground"
// wire frame). Called by the Manager's process-inspector sync loop, never
// by the reader.
func (s *session) setForeground(name string) {
	s.mu.Lock()
	changed := name != s.foreground && name != ""
	if changed {
		s.foreground = name
	}
	s.mu.Unlock()
	if changed {
		s.broadcast(SubMsg{Kind: SubMsgForeground, Foreground: name})
	}
}

// write appends bytes to the child's PTY input. Not guaranteed atomic
// across embedded newlines (spec §4.1 "write").
func (s *session) write(p []byte) (int, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, &ErrChildExited{Code: exitCodeOf(s.exit)}
	}
	return writeWithTimeout(s.pty, p, DefaultWriteTimeout)
}

func (s *session) resize(rows, cols uint16) error {
	if rows == 0 || cols == 0 {
		return &ErrArgument{Field: "rows/cols", Why: "must be non-zero"}
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return &ErrChildExited{Code: exitCodeOf(s.exit)}
	}
	s.rows, s.cols = rows, cols
	s.mu.Unlock()
	return s.pty.Resize(rows, cols)
}

// pause sets the paused flag; the reader loop observes it at the top of its
// next iteration and blocks on pauseCond (spec §4.2 reader loop step 2).
func (s *session) pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// resume clears paused and wakes the reader.
func (s *session) resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.pauseCond.Broadcast()
}

// snapshot returns the last n bytes of output_log, the current foreground
// process name, and the lost-bytes counter (spec §4.1 "snapshot").
func (s *session) snapshot(n int) (data []byte, seq uint64, foreground string, lostBytes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.tail(n), s.out.firstLiveSeq(), s.foreground, s.out.lostBytes
}

// subscribe registers a new subscriber and returns its catch-up snapshot
// plus the live message channel (spec §3 "Subscription").
func (s *session) subscribe() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.out.bytes()
	seq := s.out.firstLiveSeq()
	fg := s.foreground

	id := s.nextSubID
	s.nextSubID++

	ch := make(chan SubMsg, DefaultSubscriberBuffer)
	sub := &subscriber{ch: ch}

	if s.closed {
		close(ch)
	} else {
		s.subs[id] = sub
	}

	sub.unsubscribe = func() { s.unsubscribe(id) }

	return &Subscription{
		ID:          id,
		Snapshot:    snap,
		SnapshotSeq: seq,
		Foreground:  fg,
		Messages:    ch,
		unsubscribe: sub.unsubscribe,
	}
}

func (s *session) unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return
	}
	delete(s.subs, id)
	close(sub.ch)
}

// broadcast sends msg to every live subscriber with a non-blocking send; a
// subscriber whose channel is full is marked lagging, and unsubscribed
// outright once it has lagged DefaultLagUnsubscribeThreshold times in a row
// (spec §4.2 step 5, §4.6 lag handling).
func (s *session) broadcast(msg SubMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sub := range s.subs {
		select {
		case sub.ch <- msg:
			sub.lagCount = 0
		default:
			sub.lagCount++
			if sub.lagCount >= DefaultLagUnsubscribeThreshold {
				// The channel is full: drop its oldest message to make room
				// for the lag notice.
				lost := sub.lagCount
				select {
				case <-sub.ch:
					lost++
				default:
				}
				lagMsg := SubMsg{Kind: SubMsgLag, LostChunks: lost}
				select {
				case sub.ch <- lagMsg:
				default:
				}
				delete(s.subs, id)
				close(sub.ch)
			}
		}
	}
}

// finalize runs once, marking the session exited, broadcasting an exit
// message, and closing every subscriber channel (spec §3 Lifecycle step
// (e)/(f), invariant 4).
func (s *session) finalize(exit ExitStatus) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.exit = &exit
		subs := s.subs
		s.subs = make(map[int]*subscriber)
		s.mu.Unlock()

		for _, sub := range subs {
			select {
			case sub.ch <- SubMsg{Kind: SubMsgExit, ExitCode: exit.Code}:
			default:
			}
			close(sub.ch)
		}
	})
}

func exitCodeOf(e *ExitStatus) *int {
	if e == nil {
		return nil
	}
	return e.Code
}
