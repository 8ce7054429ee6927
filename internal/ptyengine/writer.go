package ptyengine

import (
	"time"
)

// DefaultWriteTimeout is T_write: the bound the writer surfaces a blocked
// PTY write past before failing (spec §4.2 "Backpressure policy", default
// 1s).
const DefaultWriteTimeout = 1 * time.Second

// writeWithTimeout issues the write on a helper goroutine and bounds how long
// the caller waits for the PTY to accept the bytes. No session lock is held:
// concurrent writes to one session are serialized by the PTY master
// os.File's own write lock, and a write that timed out keeps running on its
// helper goroutine, holding that lock until it returns.
func writeWithTimeout(p *ptyHandle, data []byte, timeout time.Duration) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)

	go func() {
		n, err := p.Write(data)
		done <- result{n, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return r.n, &ErrIo{Op: "write", Detail: r.err.Error()}
		}
		return r.n, nil
	case <-time.After(timeout):
		return 0, &ErrTimeout{Op: "write"}
	}
}
