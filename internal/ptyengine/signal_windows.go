//go:build windows

package ptyengine

import "os"

// sendHangup is a no-op on Windows: SIGHUP has no equivalent there, so the
// close protocol sends no signal and simply waits out T_kill before
// force-killing (spec §5).
func sendHangup(pid int) error {
	return nil
}

// forceKill terminates the process directly since there is no process
// group signal to send on Windows.
func forceKill(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
