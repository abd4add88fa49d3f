package indexing

import (
	"github.com/standardbeagle/lwi/internal/parser"
)

// IndexedExtension is the only file extension the indexer collects
const IndexedExtension = parser.SourceExtension

// SkippedDirectoryNames are never descended into, regardless of exclude
// patterns. Hidden directories are skipped as well.
var SkippedDirectoryNames = map[string]bool{
	"target":       true, // cargo build output
	"node_modules": true,
	"vendor":       true,
	"build":        true,
	"dist":         true,
}

// FileEventKind classifies a debounced filesystem change
type FileEventKind int

const (
	FileCreated FileEventKind = iota
	FileModified
	FileDeleted
	// FileResync forces a full rescan: events were dropped, or a watched
	// directory disappeared
	FileResync
)

func (k FileEventKind) String() string {
	switch k {
	case FileCreated:
		return "created"
	case FileModified:
		return "modified"
	case FileDeleted:
		return "deleted"
	case FileResync:
		return "resync"
	}
	return "unknown"
}

// FileEvent is one change delivered from the watcher to the rescan loop
type FileEvent struct {
	Path string // absolute
	Kind FileEventKind
}
