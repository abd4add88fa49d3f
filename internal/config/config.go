package config

import (
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// ConfigFileName is the per-workspace configuration file
const ConfigFileName = ".lwi.kdl"

const (
	DefaultMaxFileSize     = 2 * 1024 * 1024
	DefaultMaxLineBytes    = 1024 * 1024
	DefaultPort            = 7421
	DefaultEventQueueSize  = 256
	DefaultMaxImpactDepth  = 5
	DefaultDiagIntervalSec = 30
)

type Config struct {
	Version     int
	Workspace   Workspace
	Index       Index
	Server      Server
	Diagnostics Diagnostics
	Routes      Routes
	Exclude     []string
}

type Workspace struct {
	Root string // Explicit override; empty means detect by walking upward
	Name string
}

type Index struct {
	MaxFileSize     int64
	Workers         int  // 0 = auto-detect (NumCPU-1)
	WatchMode       bool // Enable file system watching for automatic rescans
	WatchDebounceMs int  // Debounce time for file change events
	EventQueueSize  int  // Capacity of the watcher -> rescan loop channel
}

type Server struct {
	Host         string
	Port         int
	MaxLineBytes int
}

type Diagnostics struct {
	Enabled     bool
	IntervalSec int
	Command     []string // argv, run in the workspace root or in each service without a [workspace]
}

type Routes struct {
	MaxImpactDepth int // Depth limit for transitive callee expansion in route impact
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Version: 1,
		Index: Index{
			MaxFileSize:     DefaultMaxFileSize,
			Workers:         0,
			WatchMode:       true,
			WatchDebounceMs: 200,
			EventQueueSize:  DefaultEventQueueSize,
		},
		Server: Server{
			Host:         "127.0.0.1",
			Port:         DefaultPort,
			MaxLineBytes: DefaultMaxLineBytes,
		},
		Diagnostics: Diagnostics{
			Enabled:     true,
			IntervalSec: DefaultDiagIntervalSec,
			Command:     []string{"cargo", "check", "--workspace", "--message-format=json"},
		},
		Routes: Routes{
			MaxImpactDepth: DefaultMaxImpactDepth,
		},
		Exclude: getDefaultExclusions(),
	}
}

// Load reads configuration from an explicit file path. An empty path or a
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := applyKDLFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := NewValidator().ValidateAndSetDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithRoot layers the global ~/.lwi.kdl and then <dir>/.lwi.kdl over the
// defaults. Relative workspace roots resolve against the directory of the
// file that declared them.
func LoadWithRoot(dir string) (*Config, error) {
	cfg := Default()

	if homeDir, err := os.UserHomeDir(); err == nil {
		if err := applyKDLFile(cfg, filepath.Join(homeDir, ConfigFileName)); err != nil {
			return nil, err
		}
	}

	if dir == "" {
		dir = "."
	}
	if err := applyKDLFile(cfg, filepath.Join(dir, ConfigFileName)); err != nil {
		return nil, err
	}

	if err := NewValidator().ValidateAndSetDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Addr returns the TCP listen address
func (s Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// WorkerCount returns the configured parse pool size, defaulting to cores-1
func (i Index) WorkerCount() int {
	if i.Workers > 0 {
		return i.Workers
	}
	return max(1, runtime.NumCPU()-1)
}
