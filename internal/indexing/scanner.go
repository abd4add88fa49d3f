package indexing

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/lwi/internal/debug"
	lwierrors "github.com/standardbeagle/lwi/internal/errors"
	"github.com/standardbeagle/lwi/pkg/pathutil"
)

// ScanRoot is one directory tree fed to the indexer
type ScanRoot struct {
	Dir     string // absolute
	Service string // "" for the bare layout
}

// collectedFile is a candidate file discovered by the worklist walk
type collectedFile struct {
	abs     string
	rel     string // workspace-relative
	root    ScanRoot
	size    int64
	modTime int64
}

// fileCollector walks scan roots with an explicit worklist. Symlinked
// directories are never followed.
type fileCollector struct {
	workspace   string
	exclude     []string
	maxFileSize int64
}

func (c *fileCollector) collect(ctx context.Context, root ScanRoot, skipped *lwierrors.MultiError) ([]collectedFile, error) {
	info, err := os.Stat(root.Dir)
	if err != nil {
		return nil, lwierrors.NewIndexingError("stat scan root", err).WithFile(root.Dir)
	}
	if !info.IsDir() {
		return nil, lwierrors.NewIndexingError("stat scan root", os.ErrInvalid).WithFile(root.Dir)
	}

	var files []collectedFile
	visited := make(map[string]bool)
	worklist := []string{root.Dir}

	for len(worklist) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, lwierrors.NewIndexingError("collect files", err).WithRecoverable(true)
		}

		dir := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		real, err := filepath.EvalSymlinks(dir)
		if err != nil || visited[real] {
			continue
		}
		visited[real] = true

		entries, err := os.ReadDir(dir)
		if err != nil {
			skipped.Add(lwierrors.NewFileError("read directory", dir, err))
			continue
		}

		for _, entry := range entries {
			name := entry.Name()
			abs := filepath.Join(dir, name)
			rel := pathutil.ToRelative(abs, c.workspace)

			// DirEntry reports a symlink's own type, so linked directories
			// never reach the worklist
			if entry.IsDir() {
				if c.skipDirectory(name, rel) {
					debug.LogIndexing("skipping directory %s\n", rel)
					continue
				}
				worklist = append(worklist, abs)
				continue
			}

			if filepath.Ext(name) != IndexedExtension || c.excluded(rel) {
				continue
			}

			fi, err := os.Stat(abs)
			if err != nil || !fi.Mode().IsRegular() {
				continue
			}
			if c.maxFileSize > 0 && fi.Size() > c.maxFileSize {
				skipped.Add(lwierrors.NewFileTooLargeError(rel, fi.Size(), c.maxFileSize))
				continue
			}

			files = append(files, collectedFile{
				abs:     abs,
				rel:     rel,
				root:    root,
				size:    fi.Size(),
				modTime: fi.ModTime().UnixNano(),
			})
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })
	return files, nil
}

func (c *fileCollector) skipDirectory(name, rel string) bool {
	if strings.HasPrefix(name, ".") || SkippedDirectoryNames[name] {
		return true
	}
	return c.excluded(rel) || c.excluded(rel+"/")
}

func (c *fileCollector) excluded(rel string) bool {
	for _, pattern := range c.exclude {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return true
		}
	}
	return false
}
