package ptyengine

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(nil, nil)
	t.Cleanup(m.CloseAll)
	return m
}

func TestManagerCreateWriteAndSnapshot(t *testing.T) {
	m := newTestManager(t)

	id, err := m.Create(CreateSpec{
		Command: "sh",
		Args:    []string{"-c", "cat"},
		Cwd:     "/tmp",
		Rows:    24,
		Cols:    80,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer m.Close(id)

	if _, err := m.Write(id, []byte("hello\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, _, _, err := m.Snapshot(id, 0)
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if bytes.Contains(data, []byte("hello")) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timed out waiting for echoed output")
}

func TestManagerRejectsZeroRowsOrCols(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Create(CreateSpec{Command: "sh", Rows: 0, Cols: 80}); err == nil {
		t.Fatal("expected error for zero rows")
	}
	if _, err := m.Create(CreateSpec{Command: "sh", Rows: 24, Cols: 0}); err == nil {
		t.Fatal("expected error for zero cols")
	}
}

func TestManagerRejectsDirectoryAsCommand(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Create(CreateSpec{Command: "/tmp", Rows: 24, Cols: 80}); err == nil {
		t.Fatal("expected error when command resolves to a directory")
	}
}

func TestManagerWriteOnUnknownSessionFails(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Write("does-not-exist", []byte("x")); err == nil {
		t.Fatal("expected ErrNoSuchSession")
	} else if _, ok := err.(*ErrNoSuchSession); !ok {
		t.Fatalf("expected *ErrNoSuchSession, got %T", err)
	}
}

func TestManagerCloseIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	id, err := m.Create(CreateSpec{Command: "sh", Args: []string{"-c", "sleep 5"}, Cwd: "/tmp", Rows: 24, Cols: 80})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.Close(id); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := m.Close(id); err != nil {
		t.Fatalf("second close: %v", err)
	}
	for _, s := range m.List() {
		if s.ID == id {
			t.Fatal("closed session should be dropped from List")
		}
	}
}

func TestManagerSubscribeLagIsolation(t *testing.T) {
	m := newTestManager(t)

	id, err := m.Create(CreateSpec{
		Command: "sh",
		Args:    []string{"-c", "for i in $(seq 1 4000); do printf 'line-%d\\n' $i; done"},
		Cwd:     "/tmp",
		Rows:    24,
		Cols:    80,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer m.Close(id)

	healthy, err := m.Subscribe(id)
	if err != nil {
		t.Fatalf("subscribe healthy: %v", err)
	}
	defer healthy.Unsubscribe()

	stalled, err := m.Subscribe(id)
	if err != nil {
		t.Fatalf("subscribe stalled: %v", err)
	}

	var healthyChunks int
	var sawLag bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range healthy.Messages {
			if msg.Kind == SubMsgChunk {
				healthyChunks++
			}
			if msg.Kind == SubMsgExit {
				return
			}
		}
	}()

	<-done
	deadline := time.After(5 * time.Second)
drain:
	for {
		select {
		case msg, ok := <-stalled.Messages:
			if !ok {
				break drain
			}
			if msg.Kind == SubMsgLag {
				sawLag = true
				break drain
			}
		case <-deadline:
			break drain
		}
	}

	if !sawLag {
		t.Log("stalled subscriber did not observe an explicit lag message; channel may have been closed directly on unsubscribe")
	}
	if healthyChunks == 0 {
		t.Fatal("healthy subscriber should have received chunk messages")
	}
}

func TestManagerPauseBlocksReaderUntilResume(t *testing.T) {
	m := newTestManager(t)

	id, err := m.Create(CreateSpec{
		Command: "sh",
		Args:    []string{"-c", "echo before; sleep 0.1; echo after"},
		Cwd:     "/tmp",
		Rows:    24,
		Cols:    80,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer m.Close(id)

	if err := m.Pause(id); err != nil {
		t.Fatalf("pause: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := m.Resume(id); err != nil {
		t.Fatalf("resume: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, _, _, err := m.Snapshot(id, 0)
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if strings.Contains(string(data), "after") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected output to resume after Resume")
}
