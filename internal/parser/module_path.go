package parser

import (
	"path/filepath"
	"strings"
)

// ModulePath derives the Rust module path of a file from its path relative
// to the crate source directory. "orders/mod.rs" and "orders.rs" both map to
// "orders"; the crate roots main.rs and lib.rs map to "crate".
func ModulePath(relToSource string) string {
	p := strings.TrimSuffix(filepath.ToSlash(relToSource), SourceExtension)
	p = strings.Trim(p, "/")
	if p == "" {
		return "crate"
	}

	parts := strings.Split(p, "/")
	if len(parts) > 1 && parts[len(parts)-1] == "mod" {
		parts = parts[:len(parts)-1]
	}
	if len(parts) == 1 && (parts[0] == "main" || parts[0] == "lib" || parts[0] == "mod") {
		return "crate"
	}
	return strings.Join(parts, "::")
}
