package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/lwi/internal/config"
	"github.com/standardbeagle/lwi/internal/indexing"
	"github.com/standardbeagle/lwi/internal/mcp"
	"github.com/standardbeagle/lwi/testhelpers"
)

// newTestDispatcher indexes the orders fixture and returns a dispatcher
func newTestDispatcher(t *testing.T) (*mcp.Dispatcher, *config.Config) {
	t.Helper()
	root := testhelpers.NewWorkspaceBuilder(t).
		WithCargoWorkspace().
		WithService("auth").
		WithService("billing").
		WithFile("services/billing/src/orders.rs", testhelpers.OrdersSource).
		WithFile("services/billing/src/handler.rs", testhelpers.HandlerSource).
		Build()

	cfg := testhelpers.NewTestConfigBuilder(root).
		WithMaxLineBytes(512).
		Build()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0

	state := indexing.NewProjectState(root, cfg)
	require.NoError(t, state.InitialScan(t.Context()))
	return mcp.NewDispatcher(mcp.NewHandlers(state, cfg, nil)), cfg
}

// startServer runs a TCP server for the duration of the test
func startServer(t *testing.T) (*TCPServer, *config.Config) {
	t.Helper()
	d, cfg := newTestDispatcher(t)
	srv, err := NewTCPServer(d, cfg.Server)
	require.NoError(t, err)
	require.NoError(t, srv.Start(t.Context()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv, cfg
}
