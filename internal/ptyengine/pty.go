package ptyengine

import (
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
)

// ptyHandle wraps the OS pty pair and the attached child process, adapted
// from the teacher's terminal.PTY but stripped of its own kill-on-Close
// behavior: the spec's close protocol (Manager.Close in manager.go) owns the
// SIGHUP→wait→force-kill sequence, not the PTY wrapper itself.
type ptyHandle struct {
	cmd *exec.Cmd

	mu     sync.Mutex
	master *os.File
	closed bool
}

func startPTY(cmd *exec.Cmd, rows, cols uint16) (*ptyHandle, error) {
	master, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		return nil, err
	}
	return &ptyHandle{cmd: cmd, master: master}, nil
}

func (p *ptyHandle) Read(buf []byte) (int, error) {
	return p.master.Read(buf)
}

// SetReadDeadline bounds the next Read call so the reader loop can notice
// T_idle without a second goroutine churning the kernel's PTY buffer (which
// would defeat the pause backpressure semantics in spec §4.2 step 2). PTY
// master files are pollable on every platform creack/pty supports, so
// os.File's deadline machinery applies directly.
func (p *ptyHandle) SetReadDeadline(t time.Time) error {
	return p.master.SetReadDeadline(t)
}

func (p *ptyHandle) Write(data []byte) (int, error) {
	return p.master.Write(data)
}

func (p *ptyHandle) Resize(rows, cols uint16) error {
	return pty.Setsize(p.master, &pty.Winsize{Rows: rows, Cols: cols})
}

// CloseMaster closes the PTY master file descriptor only; it does not touch
// the child process. Idempotent.
func (p *ptyHandle) CloseMaster() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.master.Close()
}

func (p *ptyHandle) Wait() error {
	return p.cmd.Wait()
}

func (p *ptyHandle) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *ptyHandle) Process() *os.Process {
	return p.cmd.Process
}
