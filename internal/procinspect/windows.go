//go:build windows

package procinspect

import (
	"unicode/utf16"
	"unsafe"

	"golang.org/x/sys/windows"
)

// buildProcTable walks a toolhelp snapshot once per poll (spec §4.4
// "Windows"). Process names with non-ASCII bytes are decoded leniently:
// utf16.Decode already substitutes the replacement character for an
// unpaired surrogate rather than failing outright.
func buildProcTable() (procTable, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return procTable{}, err
	}
	defer windows.CloseHandle(snap)

	table := procTable{
		children: make(map[int][]procInfo),
		names:    make(map[int]string),
	}

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	if err := windows.Process32First(snap, &entry); err != nil {
		return table, nil
	}
	for {
		pid := int(entry.ProcessID)
		ppid := int(entry.ParentProcessID)
		name := decodeExeFile(entry.ExeFile[:])

		table.names[pid] = name
		table.children[ppid] = append(table.children[ppid], procInfo{pid: pid, name: name})

		if err := windows.Process32Next(snap, &entry); err != nil {
			break
		}
	}

	return table, nil
}

func decodeExeFile(raw []uint16) string {
	n := 0
	for n < len(raw) && raw[n] != 0 {
		n++
	}
	return string(utf16.Decode(raw[:n]))
}

