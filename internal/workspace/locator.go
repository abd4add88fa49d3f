// Package workspace detects the workspace root and the services inside it.
package workspace

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/standardbeagle/lwi/internal/debug"
	"github.com/standardbeagle/lwi/pkg/pathutil"
)

// ErrWorkspaceNotFound is returned when no marker matches up to the filesystem root
var ErrWorkspaceNotFound = errors.New("no workspace root found")

// ExpectedLayout describes the layout the locator accepts, for error messages
const ExpectedLayout = "<root>/Backend/services/<name>/{Cargo.toml,src/main.rs} (or <root>/services/<name>/...), " +
	"or a Cargo.toml declaring [workspace]"

// Marker names reported by Locate
const (
	MarkerCargoWorkspace = "Cargo.toml [workspace]"
	MarkerOverride       = "override"
)

// Location is the result of workspace detection
type Location struct {
	Root   string // absolute canonical directory
	Marker string // which rule matched
}

// Locate determines the workspace root. With a non-empty override the
// override is validated and used; otherwise the search walks upward from
// start. The first directory matching any marker wins.
func Locate(start, override string) (Location, error) {
	if override != "" {
		return locateOverride(override)
	}

	current, err := pathutil.Canonicalize(start)
	if err != nil {
		return Location{}, fmt.Errorf("resolve start directory %s: %w", start, err)
	}

	for {
		if marker, ok := detectRoot(current); ok {
			current, marker = preferBackendParent(current, marker)
			debug.LogWorkspace("workspace root %s (marker %s)\n", current, marker)
			return Location{Root: current, Marker: marker}, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return Location{}, fmt.Errorf("%w from %s; expected %s", ErrWorkspaceNotFound, start, ExpectedLayout)
}

// detectRoot applies the markers in order: an explicit Cargo workspace
// declaration, then each service container.
func detectRoot(dir string) (string, bool) {
	if manifest, err := ReadManifest(filepath.Join(dir, ManifestFile)); err == nil && manifest.DeclaresWorkspace() {
		return MarkerCargoWorkspace, true
	}

	for _, container := range ServiceContainers {
		path := filepath.Join(dir, container)
		if isDir(path) && containerHasService(path) {
			return filepath.ToSlash(container), true
		}
	}
	return "", false
}

// preferBackendParent handles a walk that starts inside Backend/services:
// at <root>/Backend the legacy services rule matches first, but the parent
// satisfies the Backend/services rule and is the real root.
func preferBackendParent(dir, marker string) (string, string) {
	if marker != "services" || filepath.Base(dir) != "Backend" {
		return dir, marker
	}
	parent := filepath.Dir(dir)
	if parentMarker, ok := detectRoot(parent); ok && parentMarker == filepath.ToSlash(ServiceContainers[0]) {
		return parent, parentMarker
	}
	return dir, marker
}

func locateOverride(override string) (Location, error) {
	root, err := pathutil.Canonicalize(override)
	if err != nil {
		return Location{}, fmt.Errorf("workspace override %s: %w", override, err)
	}
	if !isDir(root) {
		return Location{}, fmt.Errorf("workspace override %s is not a directory", override)
	}
	if !hasValidService(root) {
		return Location{}, fmt.Errorf("%w: override %s has no valid service sub-directory; expected %s",
			ErrWorkspaceNotFound, override, ExpectedLayout)
	}
	return Location{Root: root, Marker: MarkerOverride}, nil
}
