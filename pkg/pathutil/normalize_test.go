package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorkspace(t *testing.T) string {
	t.Helper()
	root, err := Canonicalize(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "services", "auth", "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "services", "auth", "src", "main.rs"), []byte("fn main() {}\n"), 0644))
	return root
}

// TestNormalize_RelativeAndAbsolute tests that in-workspace paths resolve.
func TestNormalize_RelativeAndAbsolute(t *testing.T) {
	root := newWorkspace(t)
	n := NewNormalizer(root)

	r, err := n.Normalize("services/auth/src/main.rs")
	require.NoError(t, err)
	assert.Equal(t, "services/auth/src/main.rs", r.Rel)
	assert.Equal(t, filepath.Join(root, "services", "auth", "src", "main.rs"), r.Abs)

	r, err = n.Normalize(filepath.Join(root, "services", "auth", "src", "main.rs"))
	require.NoError(t, err)
	assert.Equal(t, "services/auth/src/main.rs", r.Rel)

	r, err = n.Normalize("services/auth/../auth/src/./main.rs")
	require.NoError(t, err)
	assert.Equal(t, "services/auth/src/main.rs", r.Rel)
}

// TestNormalize_TraversalRefused tests that `..` escapes are refused even for
// targets that exist, and even for targets that do not.
func TestNormalize_TraversalRefused(t *testing.T) {
	n := NewNormalizer(newWorkspace(t))

	for _, p := range []string{"../../etc/passwd", "../outside.rs", "/etc/passwd", "services/../../x.rs"} {
		_, err := n.Normalize(p)
		assert.ErrorIs(t, err, ErrOutsideWorkspace, p)
	}
}

// TestNormalize_SymlinkEscape tests that a symlink pointing outside the root is refused.
func TestNormalize_SymlinkEscape(t *testing.T) {
	root := newWorkspace(t)
	outside := t.TempDir()
	target := filepath.Join(outside, "secret.rs")
	require.NoError(t, os.WriteFile(target, []byte("fn secret() {}\n"), 0644))

	link := filepath.Join(root, "services", "auth", "src", "escape.rs")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	_, err := NewNormalizer(root).Normalize("services/auth/src/escape.rs")
	assert.ErrorIs(t, err, ErrOutsideWorkspace)
}

// TestNormalize_SymlinkInside tests that an internal symlink resolves to its target.
func TestNormalize_SymlinkInside(t *testing.T) {
	root := newWorkspace(t)
	link := filepath.Join(root, "alias.rs")
	if err := os.Symlink(filepath.Join(root, "services", "auth", "src", "main.rs"), link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	r, err := NewNormalizer(root).Normalize("alias.rs")
	require.NoError(t, err)
	assert.Equal(t, "services/auth/src/main.rs", r.Rel)
}

// TestNormalize_Failures tests the non-containment failure modes.
func TestNormalize_Failures(t *testing.T) {
	root := newWorkspace(t)
	n := NewNormalizer(root)

	_, err := n.Normalize("")
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = n.Normalize("services/auth/src/missing.rs")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = n.Normalize("services/auth/src")
	assert.ErrorIs(t, err, ErrNotAFile)

	_, err = n.Normalize(".")
	assert.ErrorIs(t, err, ErrOutsideWorkspace, "the root itself is never a valid file")
}

// TestNormalize_ResultAlwaysUnderRoot tests containment over a mix of inputs.
func TestNormalize_ResultAlwaysUnderRoot(t *testing.T) {
	root := newWorkspace(t)
	n := NewNormalizer(root)

	inputs := []string{
		"services/auth/src/main.rs", "./services/auth/src/main.rs", "services//auth/src/main.rs",
		"../" + filepath.Base(root) + "/services/auth/src/main.rs", "../../etc/passwd", "/", "..",
	}
	for _, in := range inputs {
		r, err := n.Normalize(in)
		if err != nil {
			continue
		}
		assert.True(t, IsStrictlyWithin(r.Abs, root), "%q resolved outside root to %q", in, r.Abs)
	}
}
