//go:build darwin

package procinspect

import (
	"os/exec"
	"strconv"
	"strings"
)

// buildProcTable shells out to `ps -axo pid,ppid,comm` once per poll and
// parses its output the way the corpus's os/exec-based git/ps tooling
// parses command output, since no cgo/syscall process-enumeration library
// appears anywhere in this corpus for macOS (spec §4.4).
func buildProcTable() (procTable, error) {
	out, err := exec.Command("ps", "-axo", "pid,ppid,comm").Output()
	if err != nil {
		return procTable{}, err
	}

	table := procTable{
		children: make(map[int][]procInfo),
		names:    make(map[int]string),
	}

	lines := strings.Split(string(out), "\n")
	for i, line := range lines {
		if i == 0 {
			continue // header: "PID  PPID COMM"
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		ppid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		comm := fields[2]
		if idx := strings.LastIndexByte(comm, '/'); idx >= 0 {
			comm = comm[idx+1:]
		}

		table.names[pid] = comm
		table.children[ppid] = append(table.children[ppid], procInfo{pid: pid, name: comm})
	}

	return table, nil
}
