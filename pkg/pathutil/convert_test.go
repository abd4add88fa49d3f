package pathutil

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/standardbeagle/lwi/internal/types"
)

func TestToRelative(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix path fixtures")
	}

	tests := []struct {
		name     string
		absPath  string
		rootDir  string
		expected string
	}{
		{"service file", "/ws/services/auth/src/main.rs", "/ws", "services/auth/src/main.rs"},
		{"root level file", "/ws/Cargo.toml", "/ws", "Cargo.toml"},
		{"same directory", "/ws", "/ws", "."},
		{"already relative", "src/lib.rs", "/ws", "src/lib.rs"},
		{"outside root", "/other/lib.rs", "/ws", "/other/lib.rs"},
		{"sibling with shared prefix", "/ws-old/lib.rs", "/ws", "/ws-old/lib.rs"},
		{"dotdot-named child", "/ws/..cache/x.rs", "/ws", "..cache/x.rs"},
		{"empty root", "/ws/lib.rs", "", "/ws/lib.rs"},
		{"empty path", "", "/ws", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToRelative(tt.absPath, tt.rootDir))
		})
	}
}

func TestIsWithin(t *testing.T) {
	root := filepath.FromSlash("/ws")
	assert.True(t, IsWithin(filepath.FromSlash("/ws/a/b.rs"), root))
	assert.True(t, IsWithin(root, root))
	assert.False(t, IsStrictlyWithin(root, root))
	assert.False(t, IsWithin(filepath.FromSlash("/ws2/a.rs"), root))
	assert.False(t, IsWithin(filepath.FromSlash("/"), root))
}

func TestToRelativeDiagnostics(t *testing.T) {
	root := filepath.FromSlash("/ws")
	in := []types.Diagnostic{
		{Severity: types.SeverityError, Message: "boom", File: filepath.FromSlash("/ws/services/auth/src/main.rs")},
		{Severity: types.SeverityWarning, Message: "unused", File: filepath.FromSlash("services/billing/src/main.rs")},
		{Severity: types.SeverityNote, Message: "no file"},
	}

	out := ToRelativeDiagnostics(in, root)

	assert.Equal(t, "services/auth/src/main.rs", out[0].File)
	assert.Equal(t, "services/billing/src/main.rs", out[1].File)
	assert.Empty(t, out[2].File)
	assert.Equal(t, filepath.FromSlash("/ws/services/auth/src/main.rs"), in[0].File, "input must not be modified")
	assert.Empty(t, ToRelativeDiagnostics(nil, root))
}
