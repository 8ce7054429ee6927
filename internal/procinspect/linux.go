//go:build linux

package procinspect

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// buildProcTable walks /proc directly (no cgo), reading /proc/<pid>/stat for
// each numeric entry to recover (pid, ppid, comm) and build the
// parent→children map for this poll (spec §4.4 "Walk /proc (Linux)").
func buildProcTable() (procTable, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return procTable{}, err
	}

	table := procTable{
		children: make(map[int][]procInfo),
		names:    make(map[int]string),
	}

	type rec struct {
		pid, ppid int
		comm      string
	}
	var recs []rec

	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		ppid, comm, ok := readStat(pid)
		if !ok {
			continue
		}
		recs = append(recs, rec{pid: pid, ppid: ppid, comm: comm})
	}

	for _, r := range recs {
		table.names[r.pid] = r.comm
	}
	for _, r := range recs {
		table.children[r.ppid] = append(table.children[r.ppid], procInfo{pid: r.pid, name: r.comm})
	}

	return table, nil
}

// readStat reads /proc/<pid>/stat and extracts ppid and comm. comm is
// wrapped in parentheses and may itself contain spaces/parens, so the
// parse finds the last ')' rather than splitting naively on spaces.
func readStat(pid int) (ppid int, comm string, ok bool) {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return 0, "", false
	}
	line := string(data)

	open := strings.IndexByte(line, '(')
	close := strings.LastIndexByte(line, ')')
	if open < 0 || close < 0 || close < open {
		return 0, "", false
	}
	comm = line[open+1 : close]

	rest := strings.Fields(line[close+1:])
	// rest[0] = state, rest[1] = ppid
	if len(rest) < 2 {
		return 0, "", false
	}
	ppid, err = strconv.Atoi(rest[1])
	if err != nil {
		return 0, "", false
	}
	return ppid, comm, true
}
