package ptyengine

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sstraus/tuicommander/internal/parser"
	"github.com/sstraus/tuicommander/internal/procinspect"
)

// DefaultKillTimeout is T_kill: how long close(id) waits for the reader to
// observe EOF before force-killing (spec §3 Lifecycle, §5, default 2s).
const DefaultKillTimeout = 2 * time.Second

// Manager owns the set of sessions (spec §4.1 Session Manager). It
// generalizes the teacher's terminal.Manager — a single sync.RWMutex over a
// map[string]*Session — to a sync.Map of id → *session, so lifecycle calls
// on one session id never block I/O on another.
type Manager struct {
	sessions   sync.Map // string -> *session
	parser     *parser.Parser
	inspector  *procinspect.Inspector
	log        *zap.Logger
	stopOnce   sync.Once
	stopSyncCh chan struct{}
}

// NewManager constructs a Manager. A nil logger uses zap's no-op logger; a
// nil inspector disables foreground-process tracking.
func NewManager(inspector *procinspect.Inspector, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		parser:     parser.New(),
		inspector:  inspector,
		log:        log,
		stopSyncCh: make(chan struct{}),
	}
	if inspector != nil {
		go m.runForegroundSync()
	}
	return m
}

// Create allocates a session id, spawns a child attached to a PTY master,
// starts its reader goroutine, and returns the id (spec §4.1 "create").
func (m *Manager) Create(spec CreateSpec) (string, error) {
	if spec.Rows == 0 || spec.Cols == 0 {
		return "", &ErrArgument{Field: "rows/cols", Why: "must be non-zero"}
	}
	if spec.Command == "" {
		return "", &ErrArgument{Field: "command", Why: "must not be empty"}
	}

	cwd := spec.Cwd
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", &ErrCwd{Path: cwd, Reason: err.Error()}
		}
		cwd = wd
	}
	if fi, err := os.Stat(cwd); err != nil || !fi.IsDir() {
		return "", &ErrCwd{Path: cwd, Reason: "not a directory or does not exist"}
	}
	spec.Cwd = cwd

	resolved, err := exec.LookPath(spec.Command)
	if err != nil {
		return "", &ErrSpawnFailed{Reason: fmt.Sprintf("cannot resolve %q on PATH: %v", spec.Command, err)}
	}
	if fi, err := os.Stat(resolved); err == nil && fi.IsDir() {
		return "", &ErrSpawnFailed{Reason: fmt.Sprintf("%q resolves to a directory", spec.Command)}
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = cwd
	cmd.Env = buildEnv(spec.Env)

	handle, err := startPTY(cmd, spec.Rows, spec.Cols)
	if err != nil {
		return "", &ErrResource{Reason: err.Error()}
	}

	id := uuid.NewString()
	sessLog := m.log.With(zap.String("session", id))
	sess := newSession(id, spec, handle, sessLog)
	m.sessions.Store(id, sess)

	if m.inspector != nil {
		m.inspector.Watch(handle.PID())
	}

	go runReader(sess, m.parser, func(exit ExitStatus) {
		sessLog.Debug("session exited", zap.Any("exit_status", exit))
	})

	return id, nil
}

func (m *Manager) get(id string) (*session, error) {
	v, ok := m.sessions.Load(id)
	if !ok {
		return nil, &ErrNoSuchSession{ID: id}
	}
	return v.(*session), nil
}

// Write appends bytes to the child's PTY input (spec §4.1 "write").
func (m *Manager) Write(id string, p []byte) (int, error) {
	sess, err := m.get(id)
	if err != nil {
		return 0, err
	}
	return sess.write(p)
}

// Resize applies a new PTY window size (spec §4.1 "resize").
func (m *Manager) Resize(id string, rows, cols uint16) error {
	sess, err := m.get(id)
	if err != nil {
		return err
	}
	return sess.resize(rows, cols)
}

// Pause toggles the paused flag on (spec §4.1 "pause").
func (m *Manager) Pause(id string) error {
	sess, err := m.get(id)
	if err != nil {
		return err
	}
	sess.pause()
	return nil
}

// Resume toggles the paused flag off and wakes the reader (spec §4.1 "resume").
func (m *Manager) Resume(id string) error {
	sess, err := m.get(id)
	if err != nil {
		return err
	}
	sess.resume()
	return nil
}

// Close runs the close protocol: SIGHUP, wait up to T_kill for the reader to
// observe the child's exit, force-kill, drop the entry; the reader goroutine
// does the reaping. Writes are still accepted until the reader has observed
// the exit. Idempotent (spec §3 Lifecycle, §8 invariant 6).
func (m *Manager) Close(id string) error {
	sess, err := m.get(id)
	if err != nil {
		return nil // close on an unknown id is treated as already-closed, per idempotence.
	}

	if sess.isClosed() {
		m.drop(id, sess)
		return nil
	}

	pid := sess.pty.PID()
	_ = sendHangup(pid)

	deadline := time.After(DefaultKillTimeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

wait:
	for {
		select {
		case <-deadline:
			break wait
		case <-ticker.C:
			if sess.isClosed() {
				m.drop(id, sess)
				return nil
			}
		}
	}

	if !sess.isClosed() {
		if err := forceKill(pid); err != nil {
			m.log.Debug("force-kill failed", zap.String("session", id), zap.Error(err))
		}
	}

	// Give the reader goroutine a final, bounded moment to observe the
	// kill and call finalize via EOF/Wait before this call returns.
	select {
	case <-time.After(500 * time.Millisecond):
	}

	m.drop(id, sess)
	return nil
}

func (m *Manager) drop(id string, sess *session) {
	if m.inspector != nil {
		m.inspector.Unwatch(sess.pty.PID())
	}
	m.sessions.Delete(id)
}

// Snapshot returns the last n bytes of output_log plus the current
// foreground process name (spec §4.1 "snapshot").
func (m *Manager) Snapshot(id string, n int) (data []byte, seq uint64, foreground string, err error) {
	sess, err := m.get(id)
	if err != nil {
		return nil, 0, "", err
	}
	data, seq, foreground, _ = sess.snapshot(n)
	return data, seq, foreground, nil
}

// List returns a summary of every live session (spec §4.1 "list").
func (m *Manager) List() []SessionSummary {
	var out []SessionSummary
	m.sessions.Range(func(_, v any) bool {
		out = append(out, v.(*session).summary())
		return true
	})
	return out
}

// Subscribe attaches a new subscriber to a session's output stream (spec
// §4.5 "subscribe").
func (m *Manager) Subscribe(id string) (*Subscription, error) {
	sess, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return sess.subscribe(), nil
}

// Foreground returns the session's last-known foreground process name
// (spec §4.5 "foreground").
func (m *Manager) Foreground(id string) (string, error) {
	sess, err := m.get(id)
	if err != nil {
		return "", err
	}
	_, _, fg, _ := sess.snapshot(0)
	return fg, nil
}

// CloseAll closes every live session; used at process shutdown.
func (m *Manager) CloseAll() {
	var ids []string
	m.sessions.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	for _, id := range ids {
		m.Close(id)
	}
}

// Stop ends the foreground-sync loop. Idempotent.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopSyncCh) })
}

// runForegroundSync periodically copies the inspector's resolved foreground
// names onto each live session every procinspect.DefaultPollInterval,
// whatever interval the inspector itself was constructed with. The
// reader goroutine never touches the inspector directly — keeping its only
// suspension points PTY read, the pause condvar, and non-blocking broadcast
// sends (spec §5).
func (m *Manager) runForegroundSync() {
	ticker := time.NewTicker(procinspect.DefaultPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopSyncCh:
			return
		case <-ticker.C:
			m.sessions.Range(func(_, v any) bool {
				sess := v.(*session)
				name := m.inspector.Foreground(sess.pty.PID())
				if name != "" {
					sess.setForeground(name)
				}
				return true
			})
		}
	}
}
