// Package pathutil converts between absolute and workspace-relative paths and
// enforces the workspace sandbox.
//
// Internally every component works with absolute canonical paths. Anything
// shown to a client is workspace-relative with forward slashes.
package pathutil

import (
	"path/filepath"
	"strings"

	"github.com/standardbeagle/lwi/internal/types"
)

// ToRelative converts an absolute path to a forward-slash path relative to
// rootDir. Paths outside rootDir, empty inputs and already-relative paths are
// returned unchanged.
//
// Examples:
//   - ToRelative("/ws/services/auth/src/main.rs", "/ws") → "services/auth/src/main.rs"
//   - ToRelative("/elsewhere/lib.rs", "/ws") → "/elsewhere/lib.rs"
func ToRelative(absPath, rootDir string) string {
	if absPath == "" || rootDir == "" {
		return absPath
	}
	if !filepath.IsAbs(absPath) {
		return filepath.ToSlash(absPath)
	}

	rel, ok := relWithin(filepath.Clean(absPath), filepath.Clean(rootDir))
	if !ok {
		return absPath
	}
	return rel
}

// IsWithin reports whether path equals root or lies beneath it. Both paths
// must already be clean and absolute; only whole path elements match, so
// /ws-other is not within /ws.
func IsWithin(path, root string) bool {
	_, ok := relWithin(path, root)
	return ok
}

// IsStrictlyWithin is IsWithin excluding root itself
func IsStrictlyWithin(path, root string) bool {
	rel, ok := relWithin(path, root)
	return ok && rel != "."
}

func relWithin(path, root string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// ToRelativeDiagnostics rewrites diagnostic file paths relative to rootDir.
// Returns a new slice; the input is not modified.
func ToRelativeDiagnostics(diags []types.Diagnostic, rootDir string) []types.Diagnostic {
	if len(diags) == 0 {
		return diags
	}

	converted := make([]types.Diagnostic, len(diags))
	copy(converted, diags)
	for i := range converted {
		if converted[i].File == "" {
			continue
		}
		file := converted[i].File
		if !filepath.IsAbs(file) {
			file = filepath.Join(rootDir, file)
		}
		converted[i].File = ToRelative(file, rootDir)
	}
	return converted
}
