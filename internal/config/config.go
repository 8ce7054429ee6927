package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
)

// stripANSI removes ANSI escape codes from a string
var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Client    ClientConfig    `toml:"client"`
	PtyEngine PtyEngineConfig `toml:"ptyengine"`
}

// PtyEngineConfig holds the session engine's tunables (spec.md §6
// "Configuration"): default PTY geometry, the output_log byte budget, the
// process-inspector poll cadence, and write/idle/kill timeouts.
type PtyEngineConfig struct {
	DefaultRows     uint16 `toml:"default_rows"`
	DefaultCols     uint16 `toml:"default_cols"`
	DefaultShell    string `toml:"default_shell"`
	OutputLogBytes  int    `toml:"output_log_bytes"`
	MaxSessionsHint int    `toml:"max_sessions_hint"`
	InspectorPollMs int    `toml:"inspector_poll_ms"`
	WriteTimeoutMs  int    `toml:"write_timeout_ms"`
	TailIdleMs      int    `toml:"tail_idle_ms"`
	KillTimeoutMs   int    `toml:"kill_timeout_ms"`
}

func defaultPtyEngineConfig() PtyEngineConfig {
	return PtyEngineConfig{
		DefaultRows:     24,
		DefaultCols:     80,
		DefaultShell:    "/bin/bash",
		OutputLogBytes:  256 * 1024,
		MaxSessionsHint: 64,
		InspectorPollMs: 3000,
		WriteTimeoutMs:  1000,
		TailIdleMs:      200,
		KillTimeoutMs:   2000,
	}
}

// Validate applies the Open Question decision recorded in SPEC_FULL.md §9:
// output_log_bytes * max_sessions_hint exceeding a 512 MiB soft ceiling is a
// warning, not a hard failure — it returns a non-empty message when the
// ceiling is exceeded, but never an error.
func (c PtyEngineConfig) Validate() (warning string) {
	const softCeiling = 512 * 1024 * 1024
	total := int64(c.OutputLogBytes) * int64(c.MaxSessionsHint)
	if total > softCeiling {
		return fmt.Sprintf(
			"ptyengine: output_log_bytes (%d) * max_sessions_hint (%d) = %d bytes exceeds the %d byte soft ceiling; consider lowering either value",
			c.OutputLogBytes, c.MaxSessionsHint, total, softCeiling,
		)
	}
	return ""
}

type ServerConfig struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	DataDir     string `toml:"data_dir"`
	DatabaseURL string `toml:"database_url"`
	NatsURL     string `toml:"nats_url"`
}

type ClientConfig struct {
	ServerURL string `toml:"server_url"`
}

func DefaultConfig() *Config {
	dataDir := "/var/lib/cook"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".local", "share", "cook")
	}

	return &Config{
		Server: ServerConfig{
			Host:    "127.0.0.1",
			Port:    7420,
			DataDir: dataDir,
		},
		Client: ClientConfig{
			ServerURL: "http://127.0.0.1:7420",
		},
		PtyEngine: defaultPtyEngineConfig(),
	}
}

func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Try system config first
	if _, err := os.Stat("/etc/cook/config.toml"); err == nil {
		if _, err := toml.DecodeFile("/etc/cook/config.toml", cfg); err != nil {
			return nil, err
		}
	}

	// Then user config (overrides system)
	home, err := os.UserHomeDir()
	if err == nil {
		userConfig := filepath.Join(home, ".config", "cook", "config.toml")
		if _, err := os.Stat(userConfig); err == nil {
			if _, err := toml.DecodeFile(userConfig, cfg); err != nil {
				return nil, err
			}
		}
	}

	// Environment variable overrides
	if serverURL := os.Getenv("COOK_SERVER"); serverURL != "" {
		cfg.Client.ServerURL = serverURL
	}

	if dataDir := os.Getenv("COOK_DATA_DIR"); dataDir != "" {
		cfg.Server.DataDir = dataDir
	}

	if dbURL := os.Getenv("COOK_DATABASE_URL"); dbURL != "" {
		cfg.Server.DatabaseURL = dbURL
	} else if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Server.DatabaseURL = dbURL
	}

	if natsURL := os.Getenv("COOK_NATS_URL"); natsURL != "" {
		cfg.Server.NatsURL = natsURL
	}

	if host := os.Getenv("COOK_HOST"); host != "" {
		cfg.Server.Host = host
	}

	if portStr := os.Getenv("COOK_PORT"); portStr != "" {
		portStr = stripANSI(portStr) // Handle ANSI codes from colored shell output
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid COOK_PORT: %q", portStr)
		}
		cfg.Server.Port = port
		// Keep CLI default aligned unless COOK_SERVER explicitly set.
		if os.Getenv("COOK_SERVER") == "" {
			host := cfg.Server.Host
			if host == "" || host == "0.0.0.0" {
				host = "127.0.0.1"
			}
			cfg.Client.ServerURL = fmt.Sprintf("http://%s:%d", host, port)
		}
	}

	// Finally, data_dir config (for runtime-set values like owner)
	dataDirConfig := filepath.Join(cfg.Server.DataDir, "config.toml")
	if _, err := os.Stat(dataDirConfig); err == nil {
		if _, err := toml.DecodeFile(dataDirConfig, cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (c *Config) EnsureDataDir() error {
	dirs := []string{
		c.Server.DataDir,
		filepath.Join(c.Server.DataDir, "repos"),
		filepath.Join(c.Server.DataDir, "logs"),
		filepath.Join(c.Server.DataDir, "checkouts"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}

// Watcher re-reads config.toml on change and hands callers the freshest
// Config, debounced the way the corpus's session watchers coalesce bursts of
// fsnotify events into a single reload (SPEC_FULL.md §6).
type Watcher struct {
	mu      sync.RWMutex
	current *Config

	fsw *fsnotify.Watcher
}

// WatchDataDirConfig starts watching data_dir/config.toml for changes and
// reloads via Load() on each debounced write. The caller's initial cfg is
// used until the first successful reload. Stop the returned Watcher's
// underlying fsnotify.Watcher via Close to release the OS handle.
func WatchDataDirConfig(initial *Config, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	path := filepath.Join(initial.Server.DataDir, "config.toml")
	// Watch the containing directory: editors commonly replace the file via
	// rename rather than in-place write, which a direct file watch misses.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{current: initial, fsw: fsw}

	go func() {
		var timer *time.Timer
		for {
			select {
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() {
					if cfg, err := Load(); err == nil {
						w.mu.Lock()
						w.current = cfg
						w.mu.Unlock()
					}
				})
			case _, ok := <-fsw.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return w, nil
}

// Current returns the most recently loaded Config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Close stops the underlying filesystem watch.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
