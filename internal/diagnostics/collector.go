// Package diagnostics periodically collects build diagnostics for the
// workspace from an external source and publishes them to a sink.
package diagnostics

import (
	"context"
	"log"
	"time"

	"github.com/standardbeagle/lwi/internal/debug"
	"github.com/standardbeagle/lwi/internal/types"
)

// Source produces the current set of build diagnostics
type Source interface {
	Collect(ctx context.Context) ([]types.Diagnostic, error)
}

// Sink receives the result of each collection run. A failed run passes the
// error and nil records.
type Sink interface {
	SetDiagnostics(records []types.Diagnostic, err error)
}

// Collector runs a Source on a fixed interval
type Collector struct {
	source   Source
	sink     Sink
	interval time.Duration
	timeout  time.Duration
}

// NewCollector creates a collector. Each run is bounded by the interval so
// a hung build never stacks up behind the ticker.
func NewCollector(source Source, sink Sink, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Collector{source: source, sink: sink, interval: interval, timeout: interval}
}

// Run collects once immediately and then on every tick until ctx is done
func (c *Collector) Run(ctx context.Context) error {
	debug.LogDiagnostics("collector started, interval %s\n", c.interval)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			debug.LogDiagnostics("collector stopped\n")
			return nil
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single collection and publishes the result
func (c *Collector) RunOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	records, err := c.source.Collect(runCtx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		log.Printf("Diagnostics collection failed: %v", err)
		c.sink.SetDiagnostics(nil, err)
		return
	}

	debug.LogDiagnostics("collected %d diagnostics in %s\n", len(records), time.Since(started))
	c.sink.SetDiagnostics(records, nil)
}
