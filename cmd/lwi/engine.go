package main

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/lwi/internal/config"
	"github.com/standardbeagle/lwi/internal/debug"
	"github.com/standardbeagle/lwi/internal/diagnostics"
	"github.com/standardbeagle/lwi/internal/indexing"
	"github.com/standardbeagle/lwi/internal/mcp"
)

// engine wires the project state to its background goroutines: the rescan
// consumer, the file watcher and the diagnostics collector
type engine struct {
	cfg        *config.Config
	state      *indexing.ProjectState
	loop       *indexing.RescanLoop
	watcher    *indexing.FileWatcher
	collector  *diagnostics.Collector
	dispatcher *mcp.Dispatcher
	group      *errgroup.Group
}

// startEngine constructs every component and starts the background work.
// The initial scan runs on the rescan loop, so queries issued right away
// see the index in NotStarted or Scanning.
func startEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	state := indexing.NewProjectState(cfg.Workspace.Root, cfg)
	e := &engine{cfg: cfg, state: state}

	var events <-chan indexing.FileEvent
	if cfg.Index.WatchMode {
		watcher, err := indexing.NewFileWatcher(cfg.Workspace.Root, cfg)
		if err != nil {
			log.Printf("Warning: file watcher unavailable: %v", err)
		} else {
			roots, err := state.Indexer().ScanRoots()
			if err == nil {
				err = watcher.Start(roots)
			}
			if err != nil {
				log.Printf("Warning: file watcher not started: %v", err)
				watcher.Stop()
			} else {
				e.watcher = watcher
				events = watcher.Events()
			}
		}
	}

	e.loop = indexing.NewRescanLoop(state, events)
	if e.watcher != nil {
		e.loop.WithLostEvents(e.watcher.TakeLostEvents)
	}

	if cfg.Diagnostics.Enabled {
		source := diagnostics.NewWorkspaceSource(cfg.Workspace.Root, cfg.Diagnostics.Command)
		e.collector = diagnostics.NewCollector(source, state, time.Duration(cfg.Diagnostics.IntervalSec)*time.Second)
	}

	e.dispatcher = mcp.NewDispatcher(mcp.NewHandlers(state, cfg, e.loop.RequestRescan))

	e.group, ctx = errgroup.WithContext(ctx)
	e.group.Go(func() error { return e.loop.Run(ctx) })
	if e.collector != nil {
		e.group.Go(func() error { return e.collector.Run(ctx) })
	}

	debug.LogIndexing("engine started for %s (watch=%v, diagnostics=%v)\n", cfg.Workspace.Root, e.watcher != nil, e.collector != nil)
	return e, nil
}

// wait blocks until the background goroutines exit after ctx is cancelled,
// then stops the watcher
func (e *engine) wait() error {
	err := e.group.Wait()
	if e.watcher != nil {
		e.watcher.Stop()
	}
	return err
}
