package mcpbridge

import (
	"fmt"
	"strconv"

	"github.com/sstraus/tuicommander/internal/config"
)

// lookupConfigKey resolves the small set of dotted keys the "config" MCP
// tool exposes for read access. Unknown keys report ok=false rather than
// panicking on a reflect lookup.
func lookupConfigKey(cfg *config.Config, key string) (any, bool) {
	switch key {
	case "server.host":
		return cfg.Server.Host, true
	case "server.port":
		return cfg.Server.Port, true
	case "server.data_dir":
		return cfg.Server.DataDir, true
	case "client.server_url":
		return cfg.Client.ServerURL, true
	case "ptyengine.default_rows":
		return cfg.PtyEngine.DefaultRows, true
	case "ptyengine.default_cols":
		return cfg.PtyEngine.DefaultCols, true
	case "ptyengine.default_shell":
		return cfg.PtyEngine.DefaultShell, true
	case "ptyengine.output_log_bytes":
		return cfg.PtyEngine.OutputLogBytes, true
	case "ptyengine.max_sessions_hint":
		return cfg.PtyEngine.MaxSessionsHint, true
	case "ptyengine.inspector_poll_ms":
		return cfg.PtyEngine.InspectorPollMs, true
	default:
		return nil, false
	}
}

// setConfigKey updates the small set of keys that are safe to change at
// runtime — geometry and poll-cadence tunables, not data_dir (that
// requires a restart in the teacher's own config layering).
func setConfigKey(cfg *config.Config, key, value string) error {
	switch key {
	case "ptyengine.default_rows":
		n, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		cfg.PtyEngine.DefaultRows = uint16(n)
	case "ptyengine.default_cols":
		n, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		cfg.PtyEngine.DefaultCols = uint16(n)
	case "ptyengine.default_shell":
		cfg.PtyEngine.DefaultShell = value
	case "ptyengine.inspector_poll_ms":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		cfg.PtyEngine.InspectorPollMs = n
	default:
		return fmt.Errorf("config key %q is not settable at runtime", key)
	}
	return nil
}
