// Package procinspect resolves the deepest descendant process of a PTY
// session's root PID, polled at a configurable cadence and cached per poll
// rather than watched (spec §4.4).
package procinspect

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval is the default cadence at which the process tree is
// re-walked (spec §4.4 "default 3s").
const DefaultPollInterval = 3 * time.Second

// procTable maps a parent pid to its direct children, rebuilt once per poll
// so following a chain from root PID to its deepest descendant never costs
// more than one table build regardless of how many sessions are inspected
// in the same tick.
type procTable struct {
	children map[int][]procInfo
	names    map[int]string
}

type procInfo struct {
	pid  int
	name string
}

// Inspector tracks the foreground process name for a set of root PIDs,
// polling the OS process table on its own cadence.
type Inspector struct {
	mu           sync.RWMutex
	interval     time.Duration
	log          *zap.Logger
	roots        map[int]string // rootPID -> last-known foreground name
	stopCh       chan struct{}
	stopOnce     sync.Once
	tableBuilder func() (procTable, error)
}

// New creates an Inspector with the given poll interval. A nil logger uses
// zap's no-op logger.
func New(interval time.Duration, log *zap.Logger) *Inspector {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Inspector{
		interval:     interval,
		log:          log,
		roots:        make(map[int]string),
		stopCh:       make(chan struct{}),
		tableBuilder: buildProcTable,
	}
}

// Watch registers rootPID for polling; it becomes eligible for lookup via
// Foreground on the next poll tick.
func (ins *Inspector) Watch(rootPID int) {
	ins.mu.Lock()
	defer ins.mu.Unlock()
	if _, ok := ins.roots[rootPID]; !ok {
		ins.roots[rootPID] = ""
	}
}

// Unwatch removes rootPID from the polled set.
func (ins *Inspector) Unwatch(rootPID int) {
	ins.mu.Lock()
	defer ins.mu.Unlock()
	delete(ins.roots, rootPID)
}

// Foreground returns the last-known deepest-descendant process name for
// rootPID, or "" if never resolved.
func (ins *Inspector) Foreground(rootPID int) string {
	ins.mu.RLock()
	defer ins.mu.RUnlock()
	return ins.roots[rootPID]
}

// Run polls until Stop is called. Intended to run in its own goroutine.
func (ins *Inspector) Run() {
	ticker := time.NewTicker(ins.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ins.stopCh:
			return
		case <-ticker.C:
			ins.pollOnce()
		}
	}
}

// Stop ends the polling loop; idempotent.
func (ins *Inspector) Stop() {
	ins.stopOnce.Do(func() { close(ins.stopCh) })
}

func (ins *Inspector) pollOnce() {
	table, err := ins.tableBuilder()
	if err != nil {
		ins.log.Debug("process table poll failed", zap.Error(err))
		return
	}

	ins.mu.Lock()
	defer ins.mu.Unlock()
	for root := range ins.roots {
		name, ok := deepestDescendant(table, root)
		if !ok {
			// Keep last-known value on failure (spec §4.4 "Failure").
			continue
		}
		ins.roots[root] = name
	}
}

// deepestDescendant walks children[root] to the deepest single chain,
// returning the executable basename of the last node visited. When a
// process has multiple children, the most recently created (highest pid)
// child is followed, matching the common case of a shell spawning one
// foreground job at a time.
func deepestDescendant(table procTable, root int) (string, bool) {
	name, ok := table.names[root]
	if !ok {
		return "", false
	}
	current := root
	for {
		kids := table.children[current]
		if len(kids) == 0 {
			return name, true
		}
		next := kids[0]
		for _, k := range kids[1:] {
			if k.pid > next.pid {
				next = k
			}
		}
		current = next.pid
		name = next.name
	}
}
