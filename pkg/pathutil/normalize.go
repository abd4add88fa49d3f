package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	// ErrOutsideWorkspace means the path resolves outside the workspace root
	ErrOutsideWorkspace = errors.New("path is outside the workspace")
	// ErrNotFound means the path does not exist
	ErrNotFound = errors.New("path does not exist")
	// ErrNotAFile means the path names a directory or other non-regular file
	ErrNotAFile = errors.New("path is not a regular file")
	// ErrEmptyPath means no path was supplied
	ErrEmptyPath = errors.New("path is empty")
)

// Resolved is a path that passed the sandbox check
type Resolved struct {
	Abs string // absolute canonical path
	Rel string // workspace-relative, forward slashes
}

// Normalizer canonicalizes client-supplied paths against a workspace root.
// Every component that accepts a path from a client routes it through
// Normalize before touching the filesystem.
type Normalizer struct {
	root string
}

// NewNormalizer creates a normalizer for a canonical workspace root
func NewNormalizer(root string) *Normalizer {
	return &Normalizer{root: filepath.Clean(root)}
}

// Root returns the canonical workspace root
func (n *Normalizer) Root() string {
	return n.root
}

// Normalize resolves raw (absolute, or relative to the root) to an existing
// regular file strictly under the root. Containment is checked both before
// and after symlink resolution so neither `..` segments nor symlinks can
// escape.
func (n *Normalizer) Normalize(raw string) (Resolved, error) {
	if raw == "" {
		return Resolved{}, ErrEmptyPath
	}

	p := filepath.FromSlash(raw)
	if !filepath.IsAbs(p) {
		p = filepath.Join(n.root, p)
	}
	p = filepath.Clean(p)

	if !IsStrictlyWithin(p, n.root) {
		return Resolved{}, fmt.Errorf("%w: %s", ErrOutsideWorkspace, raw)
	}

	canonical, err := filepath.EvalSymlinks(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Resolved{}, fmt.Errorf("%w: %s", ErrNotFound, raw)
		}
		return Resolved{}, fmt.Errorf("resolve %s: %w", raw, err)
	}

	rel, ok := relWithin(canonical, n.root)
	if !ok || rel == "." {
		return Resolved{}, fmt.Errorf("%w: %s resolves to %s", ErrOutsideWorkspace, raw, canonical)
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return Resolved{}, fmt.Errorf("%w: %s", ErrNotFound, raw)
	}
	if !info.Mode().IsRegular() {
		return Resolved{}, fmt.Errorf("%w: %s", ErrNotAFile, raw)
	}

	return Resolved{Abs: canonical, Rel: rel}, nil
}

// Canonicalize returns the absolute, symlink-free form of dir
func Canonicalize(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
