package ptyengine

import (
	"os"
	"runtime"
	"strings"
)

// guiSearchDirs are extended onto PATH the way a GUI-launched process (a
// minimal parent PATH, e.g. launchd/systemd-user) would need them. Mirrors
// the HOME overlay the teacher's local backend performed (that backend is
// not part of this tree), applied here to PATH instead since the engine
// does not isolate HOME per session.
func guiSearchDirs() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"/opt/homebrew/bin", "/usr/local/bin", "/opt/homebrew/sbin"}
	case "linux":
		return []string{"/usr/local/bin", filepathJoinHome(".local/bin")}
	default:
		return nil
	}
}

func filepathJoinHome(rel string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return home + string(os.PathSeparator) + rel
}

// buildEnv starts from the engine process's own environment, overlays the
// caller-provided map last (so callers always win), and extends PATH with
// platform GUI-launch directories per spec §6 "Process environment".
func buildEnv(overlay map[string]string) []string {
	base := os.Environ()
	merged := make(map[string]string, len(base)+len(overlay))

	for _, kv := range base {
		if k, v, ok := splitEnv(kv); ok {
			merged[k] = v
		}
	}

	path := merged["PATH"]
	extra := guiSearchDirs()
	if len(extra) > 0 {
		parts := []string{path}
		for _, d := range extra {
			if d != "" && !strings.Contains(path, d) {
				parts = append(parts, d)
			}
		}
		merged["PATH"] = strings.Join(parts, string(os.PathListSeparator))
	}

	for k, v := range overlay {
		merged[k] = v
	}

	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}

func splitEnv(kv string) (key, value string, ok bool) {
	idx := strings.IndexByte(kv, '=')
	if idx < 0 {
		return "", "", false
	}
	return kv[:idx], kv[idx+1:], true
}
