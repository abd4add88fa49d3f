package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/lwi/internal/config"
	"github.com/standardbeagle/lwi/internal/indexing"
	"github.com/standardbeagle/lwi/testhelpers"
)

func buildOrdersWorkspace(t *testing.T) string {
	t.Helper()
	return testhelpers.NewWorkspaceBuilder(t).
		WithCargoWorkspace().
		WithService("auth").
		WithService("billing").
		WithFile("services/billing/src/orders.rs", testhelpers.OrdersSource).
		WithFile("services/billing/src/handler.rs", testhelpers.HandlerSource).
		WithFile("services/billing/README.md", "# billing\n").
		WithFile("notes.txt", "outside any service\n").
		Build()
}

// newReadyHandlers scans the fixture workspace and returns handlers over it
func newReadyHandlers(t *testing.T, mutate ...func(*config.Config)) (*Handlers, *indexing.ProjectState) {
	t.Helper()
	root := buildOrdersWorkspace(t)
	cfg := testhelpers.NewTestConfigBuilder(root).Build()
	for _, m := range mutate {
		m(cfg)
	}
	state := indexing.NewProjectState(root, cfg)
	require.NoError(t, state.InitialScan(t.Context()))
	return NewHandlers(state, cfg, nil), state
}

// roundTrip marshals v and decodes it as generic JSON, the way a client sees it
func roundTrip(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}
