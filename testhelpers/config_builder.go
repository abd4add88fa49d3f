// Package testhelpers provides shared fixtures for testing the workspace engine
package testhelpers

import (
	"github.com/standardbeagle/lwi/internal/config"
)

// TestConfigBuilder provides a fluent API for building test configs with safe defaults.
// Watching and diagnostics are off unless a test asks for them.
//
//	cfg := testhelpers.NewTestConfigBuilder(root).
//		WithWatch(20).
//		WithMaxLineBytes(256).
//		Build()
type TestConfigBuilder struct {
	cfg *config.Config
}

// NewTestConfigBuilder creates a config builder for a workspace root
func NewTestConfigBuilder(root string) *TestConfigBuilder {
	cfg := config.Default()
	cfg.Workspace.Root = root
	cfg.Index.WatchMode = false
	cfg.Index.Workers = 2
	cfg.Index.WatchDebounceMs = 10
	cfg.Index.EventQueueSize = 32
	cfg.Server.Port = 0
	cfg.Diagnostics.Enabled = false
	return &TestConfigBuilder{cfg: cfg}
}

// WithWatch enables the file watcher with the given debounce
func (b *TestConfigBuilder) WithWatch(debounceMs int) *TestConfigBuilder {
	b.cfg.Index.WatchMode = true
	b.cfg.Index.WatchDebounceMs = debounceMs
	return b
}

// WithMaxLineBytes sets the transport line limit
func (b *TestConfigBuilder) WithMaxLineBytes(n int) *TestConfigBuilder {
	b.cfg.Server.MaxLineBytes = n
	return b
}

// WithExclusions adds exclusion patterns
func (b *TestConfigBuilder) WithExclusions(patterns ...string) *TestConfigBuilder {
	b.cfg.Exclude = append(b.cfg.Exclude, patterns...)
	return b
}

// WithDiagnostics enables the diagnostics collector
func (b *TestConfigBuilder) WithDiagnostics(intervalSec int, command ...string) *TestConfigBuilder {
	b.cfg.Diagnostics.Enabled = true
	b.cfg.Diagnostics.IntervalSec = intervalSec
	if len(command) > 0 {
		b.cfg.Diagnostics.Command = command
	}
	return b
}

// Build returns the config
func (b *TestConfigBuilder) Build() *config.Config {
	return b.cfg
}
