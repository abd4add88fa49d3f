package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKDL_Defaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, parseKDL("", cfg))

	assert.Equal(t, int64(DefaultMaxFileSize), cfg.Index.MaxFileSize)
	assert.True(t, cfg.Index.WatchMode)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultMaxLineBytes, cfg.Server.MaxLineBytes)
	assert.True(t, cfg.Diagnostics.Enabled)
	assert.Equal(t, []string{"cargo", "check", "--workspace", "--message-format=json"}, cfg.Diagnostics.Command)
	assert.Contains(t, cfg.Exclude, "**/target/**")
}

func TestParseKDL_AllSections(t *testing.T) {
	kdlContent := `
workspace {
    root "../shop"
    name "shop"
}
index {
    max_file_size "512KB"
    workers 3
    watch_mode false
    watch_debounce_ms 50
    event_queue_size 16
}
server {
    host "localhost"
    port 9000
    max_line_bytes 4096
}
diagnostics {
    enabled false
    interval_sec 5
    command "cargo" "clippy" "--message-format=json"
}
routes {
    max_impact_depth 2
}
exclude "**/generated/**" "**/benches/**"
`
	cfg := Default()
	require.NoError(t, parseKDL(kdlContent, cfg))

	assert.Equal(t, "../shop", cfg.Workspace.Root)
	assert.Equal(t, "shop", cfg.Workspace.Name)
	assert.Equal(t, int64(512*1024), cfg.Index.MaxFileSize)
	assert.Equal(t, 3, cfg.Index.Workers)
	assert.False(t, cfg.Index.WatchMode)
	assert.Equal(t, 3, cfg.Index.WorkerCount())
	assert.False(t, cfg.Index.WatchMode)
	assert.Equal(t, 50, cfg.Index.WatchDebounceMs)
	assert.Equal(t, 16, cfg.Index.EventQueueSize)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 4096, cfg.Server.MaxLineBytes)
	assert.Equal(t, "localhost:9000", cfg.Server.Addr())
	assert.False(t, cfg.Diagnostics.Enabled)
	assert.Equal(t, 5, cfg.Diagnostics.IntervalSec)
	assert.Equal(t, []string{"cargo", "clippy", "--message-format=json"}, cfg.Diagnostics.Command)
	assert.Equal(t, 2, cfg.Routes.MaxImpactDepth)
	assert.Contains(t, cfg.Exclude, "**/generated/**")
	assert.Contains(t, cfg.Exclude, "**/benches/**")
	assert.Contains(t, cfg.Exclude, "**/target/**", "file exclusions extend the defaults")
}

func TestParseKDL_ExcludeBlockForm(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, parseKDL(`exclude {
    "**/fixtures/**"
    "**/*.gen.rs"
}`, cfg))
	assert.Equal(t, []string{"**/fixtures/**", "**/*.gen.rs"}, cfg.Exclude)
}

func TestParseKDL_Invalid(t *testing.T) {
	cfg := Default()
	err := parseKDL(`server { host "127.0.0.1`, cfg)
	assert.Error(t, err)

	err = parseKDL(`index { max_file_size "lots" }`, cfg)
	assert.Error(t, err)
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1024", 1024},
		{"10B", 10},
		{"2KB", 2048},
		{"2 MB", 2 * 1024 * 1024},
		{"1gb", 1024 * 1024 * 1024},
	}
	for _, tt := range tests {
		got, err := parseSize(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestLoadWithRoot_RelativeRoot(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("workspace {\n    root \"ws\"\n}\n"), 0644))

	cfg, err := LoadWithRoot(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ws"), cfg.Workspace.Root)
}

func TestLoadWithRoot_GlobalThenProject(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.WriteFile(filepath.Join(home, ConfigFileName), []byte("server {\n    port 8100\n}\nindex {\n    workers 2\n}\n"), 0644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("server { port 8200; }\n"), 0644))

	cfg, err := LoadWithRoot(dir)
	require.NoError(t, err)
	assert.Equal(t, 8200, cfg.Server.Port, "project file overrides the global file")
	assert.Equal(t, 2, cfg.Index.Workers, "global settings survive when the project file is silent")
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.kdl"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
}

func TestLoad_RejectsNonLoopbackHost(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("server {\n    host \"0.0.0.0\"\n}\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a loopback address")
}

func TestLoad_OneLineBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	content := `server { port 8300 }
index { workers 3; watch_mode false }
exclude "**/target/**" "**/{gen,tmp}/**"`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8300, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Index.Workers)
	assert.False(t, cfg.Index.WatchMode)
	assert.Contains(t, cfg.Exclude, "**/{gen,tmp}/**", "braces inside strings are left alone")
}

func TestTerminateChildren(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`server { port 8100 }`, "server { port 8100 \n}"},
		{`a "}" { b r#"}"# }`, "a \"}\" { b r#\"}\"# \n}"},
		{"x // }\ny { z }", "x // }\ny { z \n}"},
		{"/* } */ y { }", "/* } */ y { \n}"},
		{"no braces", "no braces"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, terminateChildren(tt.in), tt.in)
	}
}

func TestParseErrorNamesTerminatorForm(t *testing.T) {
	err := parseKDL(`server { port "unterminated`, Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newline or ';'")
}
