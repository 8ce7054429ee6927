package procinspect

import (
	"errors"
	"testing"
)

var errBoom = errors.New("synthetic poll failure")

func synthTable() procTable {
	return procTable{
		names: map[int]string{
			1: "bash",
			2: "node",
			3: "claude",
		},
		children: map[int][]procInfo{
			1: {{pid: 2, name: "node"}},
			2: {{pid: 3, name: "claude"}},
		},
	}
}

func TestDeepestDescendantWalksChain(t *testing.T) {
	table := synthTable()
	name, ok := deepestDescendant(table, 1)
	if !ok {
		t.Fatalf("expected a result")
	}
	if name != "claude" {
		t.Errorf("expected deepest descendant 'claude', got %q", name)
	}
}

func TestDeepestDescendantLeaf(t *testing.T) {
	table := synthTable()
	name, ok := deepestDescendant(table, 3)
	if !ok || name != "claude" {
		t.Errorf("leaf process should return itself, got %q ok=%v", name, ok)
	}
}

func TestDeepestDescendantUnknownRoot(t *testing.T) {
	table := synthTable()
	if _, ok := deepestDescendant(table, 999); ok {
		t.Errorf("expected unknown root to fail")
	}
}

func TestDeepestDescendantPicksHighestPidSibling(t *testing.T) {
	table := procTable{
		names: map[int]string{
			1: "bash",
			2: "old-job",
			5: "new-job",
		},
		children: map[int][]procInfo{
			1: {{pid: 2, name: "old-job"}, {pid: 5, name: "new-job"}},
		},
	}
	name, ok := deepestDescendant(table, 1)
	if !ok || name != "new-job" {
		t.Errorf("expected newest sibling 'new-job', got %q ok=%v", name, ok)
	}
}

func TestInspectorWatchUnwatch(t *testing.T) {
	ins := New(0, nil)
	ins.Watch(42)
	if _, ok := ins.roots[42]; !ok {
		t.Fatalf("expected root 42 to be watched")
	}
	ins.Unwatch(42)
	if _, ok := ins.roots[42]; ok {
		t.Errorf("expected root 42 to be unwatched")
	}
}

func TestInspectorPollOnceUsesLastKnownOnFailure(t *testing.T) {
	ins := New(0, nil)
	ins.Watch(1)
	ins.tableBuilder = func() (procTable, error) { return synthTable(), nil }
	ins.pollOnce()
	if got := ins.Foreground(1); got != "claude" {
		t.Fatalf("expected foreground 'claude', got %q", got)
	}

	ins.tableBuilder = func() (procTable, error) { return procTable{}, errBoom }
	ins.pollOnce()
	if got := ins.Foreground(1); got != "claude" {
		t.Errorf("expected last-known value retained on poll failure, got %q", got)
	}
}
