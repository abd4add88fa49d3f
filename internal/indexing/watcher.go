package indexing

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/lwi/internal/config"
	"github.com/standardbeagle/lwi/internal/debug"
	"github.com/standardbeagle/lwi/pkg/pathutil"
)

// FileWatcher monitors scan roots and delivers debounced change events on a
// bounded channel. When the channel is full an event is dropped and the
// lost flag is raised so the consumer can force a full rescan.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	root      string
	config    *config.Config
	debouncer *eventDebouncer
	events    chan FileEvent
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once

	dirsMu sync.Mutex
	dirs   map[string]bool

	lost atomic.Bool

	// Watch mode statistics
	eventsDelivered int64
	eventsDropped   int64
	errorCount      int64
	lastEventTime   time.Time
	statsMu         sync.RWMutex
}

// NewFileWatcher creates a watcher for a canonical workspace root
func NewFileWatcher(root string, cfg *config.Config) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	queue := cfg.Index.EventQueueSize
	if queue <= 0 {
		queue = config.DefaultEventQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	fw := &FileWatcher{
		watcher: watcher,
		root:    root,
		config:  cfg,
		events:  make(chan FileEvent, queue),
		ctx:     ctx,
		cancel:  cancel,
		dirs:    make(map[string]bool),
	}
	fw.debouncer = newEventDebouncer(time.Duration(cfg.Index.WatchDebounceMs)*time.Millisecond, fw.deliver)
	return fw, nil
}

// Events returns the bounded event channel. It is never closed; consumers
// stop on their own context.
func (fw *FileWatcher) Events() <-chan FileEvent {
	return fw.events
}

// TakeLostEvents reports and clears the dropped-events flag
func (fw *FileWatcher) TakeLostEvents() bool {
	return fw.lost.Swap(false)
}

// Start watches every directory under the given scan roots
func (fw *FileWatcher) Start(roots []ScanRoot) error {
	debug.LogWatch("starting file watcher for %d scan roots\n", len(roots))

	for _, root := range roots {
		if err := fw.addWatches(root.Dir); err != nil {
			return fmt.Errorf("failed to add watches starting from %s: %w", root.Dir, err)
		}
	}

	fw.wg.Add(1)
	go fw.processEvents()

	debug.LogWatch("file watcher started, %d directories watched\n", fw.watchedCount())
	return nil
}

// Stop stops the watcher and waits for the event pump to exit. Pending
// debounced events are discarded.
func (fw *FileWatcher) Stop() error {
	fw.stopOnce.Do(func() {
		fw.cancel()
		fw.debouncer.stop()
		if err := fw.watcher.Close(); err != nil {
			log.Printf("Error closing fsnotify watcher: %v", err)
		}
		fw.wg.Wait()
		debug.LogWatch("file watcher stopped\n")
	})
	return nil
}

// addWatches walks a tree with an explicit worklist and watches each directory
func (fw *FileWatcher) addWatches(root string) error {
	if _, err := os.Stat(root); err != nil {
		return err
	}

	visited := make(map[string]bool)
	worklist := []string{root}
	for len(worklist) > 0 {
		dir := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		real, err := filepath.EvalSymlinks(dir)
		if err != nil || visited[real] {
			continue
		}
		visited[real] = true

		if err := fw.watcher.Add(dir); err != nil {
			log.Printf("Warning: failed to add watch for %s: %v", dir, err)
			continue
		}
		fw.dirsMu.Lock()
		fw.dirs[dir] = true
		fw.dirsMu.Unlock()

		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			child := filepath.Join(dir, entry.Name())
			if fw.shouldIgnoreDirectory(child) {
				continue
			}
			worklist = append(worklist, child)
		}
	}
	return nil
}

func (fw *FileWatcher) watchedCount() int {
	fw.dirsMu.Lock()
	defer fw.dirsMu.Unlock()
	return len(fw.dirs)
}

func (fw *FileWatcher) shouldIgnoreDirectory(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || SkippedDirectoryNames[name] {
		return true
	}
	rel := pathutil.ToRelative(path, fw.root)
	return fw.excluded(rel) || fw.excluded(rel+"/")
}

func (fw *FileWatcher) excluded(rel string) bool {
	for _, pattern := range fw.config.Exclude {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return true
		}
	}
	return false
}

// shouldProcessPath reports whether a file path is indexable
func (fw *FileWatcher) shouldProcessPath(path string) bool {
	if filepath.Ext(path) != IndexedExtension {
		return false
	}
	return !fw.excluded(pathutil.ToRelative(path, fw.root))
}

// processEvents pumps fsnotify events into the debouncer
func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.incrementStats(0, 0, 1)
			log.Printf("File watcher error: %v", err)
		}
	}
}

// handleEvent classifies a single fsnotify event
func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	debug.LogWatch("received %v for %s\n", event.Op, path)

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		if fw.forgetDirectory(path) {
			fw.debouncer.addEvent(path, FileResync)
			return
		}
		if fw.shouldProcessPath(path) {
			fw.debouncer.addEvent(path, FileDeleted)
		}
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		return
	}

	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 && !fw.shouldIgnoreDirectory(path) {
			// Files may land before the watch does; resync picks them up
			if err := fw.addWatches(path); err != nil {
				log.Printf("Warning: failed to add watch for new directory %s: %v", path, err)
			}
			fw.debouncer.addEvent(path, FileResync)
		}
		return
	}

	if info.Size() > fw.config.Index.MaxFileSize && fw.config.Index.MaxFileSize > 0 {
		debug.LogWatch("skipping oversized file %s (%d bytes)\n", path, info.Size())
		return
	}
	if !fw.shouldProcessPath(path) {
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		fw.debouncer.addEvent(path, FileCreated)
	case event.Op&(fsnotify.Write|fsnotify.Chmod) != 0:
		fw.debouncer.addEvent(path, FileModified)
	}
}

func (fw *FileWatcher) forgetDirectory(path string) bool {
	fw.dirsMu.Lock()
	defer fw.dirsMu.Unlock()
	if !fw.dirs[path] {
		return false
	}
	prefix := path + string(filepath.Separator)
	for dir := range fw.dirs {
		if dir == path || strings.HasPrefix(dir, prefix) {
			delete(fw.dirs, dir)
		}
	}
	return true
}

// deliver pushes one debounced event without blocking
func (fw *FileWatcher) deliver(ev FileEvent) {
	if fw.ctx.Err() != nil {
		return
	}
	select {
	case fw.events <- ev:
		fw.incrementStats(1, 0, 0)
	default:
		fw.lost.Store(true)
		fw.incrementStats(0, 1, 0)
		log.Printf("Warning: event queue full, dropped %s event for %s", ev.Kind, ev.Path)
	}
}

// eventDebouncer keeps the latest event per path and flushes once the
// stream has been quiet for the debounce period
type eventDebouncer struct {
	events   map[string]FileEventKind
	mutex    sync.Mutex
	debounce time.Duration
	timer    *time.Timer
	stopped  bool
	emit     func(FileEvent)
}

func newEventDebouncer(debounce time.Duration, emit func(FileEvent)) *eventDebouncer {
	return &eventDebouncer{
		events:   make(map[string]FileEventKind),
		debounce: debounce,
		emit:     emit,
	}
}

func (d *eventDebouncer) addEvent(path string, kind FileEventKind) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.stopped {
		return
	}

	d.events[path] = kind

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.debounce, d.flush)
}

func (d *eventDebouncer) stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}

// flush emits removals first, then changes, then creations
func (d *eventDebouncer) flush() {
	d.mutex.Lock()
	events := d.events
	d.events = make(map[string]FileEventKind)
	stopped := d.stopped
	d.mutex.Unlock()

	if stopped || len(events) == 0 {
		return
	}
	debug.LogWatch("flushing %d debounced events\n", len(events))

	for _, order := range []FileEventKind{FileResync, FileDeleted, FileModified, FileCreated} {
		for path, kind := range events {
			if kind == order {
				d.emit(FileEvent{Path: path, Kind: kind})
			}
		}
	}
}

func (fw *FileWatcher) incrementStats(delivered, dropped, errs int64) {
	fw.statsMu.Lock()
	defer fw.statsMu.Unlock()

	fw.eventsDelivered += delivered
	fw.eventsDropped += dropped
	fw.errorCount += errs
	fw.lastEventTime = time.Now()
}

// GetStats returns current watch mode statistics
func (fw *FileWatcher) GetStats() WatchStats {
	fw.statsMu.RLock()
	defer fw.statsMu.RUnlock()

	return WatchStats{
		EventsDelivered: fw.eventsDelivered,
		EventsDropped:   fw.eventsDropped,
		ErrorCount:      fw.errorCount,
		LastEventTime:   fw.lastEventTime,
		IsActive:        fw.ctx.Err() == nil,
		WatchedDirs:     fw.watchedCount(),
	}
}

// WatchStats contains statistics about file watching operations
type WatchStats struct {
	EventsDelivered int64     `json:"events_delivered"`
	EventsDropped   int64     `json:"events_dropped"`
	ErrorCount      int64     `json:"error_count"`
	LastEventTime   time.Time `json:"last_event_time"`
	IsActive        bool      `json:"is_active"`
	WatchedDirs     int       `json:"watched_dirs"`
}
