package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/lwi/internal/indexing"
	"github.com/standardbeagle/lwi/internal/types"
)

func fixture() (*indexing.CodeIndex, *indexing.RouteRegistry) {
	files := map[string]*types.SourceFile{
		"services/billing/src/orders.rs": {
			RelativePath: "services/billing/src/orders.rs",
			ModulePath:   "orders",
			Service:      "billing",
			Functions: []types.FunctionInfo{
				{Name: "create_order", StartLine: 10, EndLine: 14, Calls: []string{"new", "validate"}},
				{Name: "validate", StartLine: 16, EndLine: 18, Calls: []string{"is_valid"}},
			},
			Structs: []types.StructInfo{{Name: "Order", StartLine: 1, EndLine: 5}},
		},
		"services/billing/src/handler.rs": {
			RelativePath: "services/billing/src/handler.rs",
			ModulePath:   "handler",
			Service:      "billing",
			Functions: []types.FunctionInfo{
				{Name: "create", StartLine: 39, EndLine: 43, Calls: []string{"create_order"}},
			},
		},
		"services/auth/src/session.rs": {
			RelativePath: "services/auth/src/session.rs",
			ModulePath:   "session",
			Service:      "auth",
			Functions: []types.FunctionInfo{
				{Name: "validate", Owner: "Session", StartLine: 3, EndLine: 5},
				{Name: "login", StartLine: 7, EndLine: 12, Calls: []string{"create_order", "validate"}},
			},
		},
	}
	routes := indexing.NewRouteRegistry([]types.RouteInfo{{
		Method:          "POST",
		Path:            "/orders",
		Handler:         "create",
		ResolvedHandler: "billing::handler::create",
		File:            "services/billing/src/main.rs",
		Line:            8,
		Service:         "billing",
	}})
	return indexing.NewCodeIndex(files), routes
}

func TestComputeTotals(t *testing.T) {
	ws := Compute(fixture())

	assert.Equal(t, 3, ws.TotalFiles)
	assert.Equal(t, 5, ws.TotalFunctions)
	assert.Equal(t, 1, ws.TotalStructs)
	assert.Equal(t, 1, ws.TotalRoutes)

	assert.InDelta(t, 4.4, ws.AverageFunctionLength, 0.001)
	assert.Equal(t, 6, ws.MaxFunctionLength)
	assert.Equal(t, "auth::session::login", ws.LongestFunction)
}

func TestComputeCallGraphShape(t *testing.T) {
	ws := Compute(fixture())

	assert.Equal(t, 6, ws.TotalCallEdges)
	assert.InDelta(t, 1.2, ws.AverageFanOut, 0.001)
	assert.InDelta(t, 1.2, ws.AverageFanIn, 0.001)
	assert.Equal(t, 1, ws.EntryPoints)
	// login is never called and no route reaches it
	assert.Equal(t, 1, ws.OrphanFunctions)
	// auth::login calls create_order, defined only in billing
	assert.Equal(t, 1, ws.ServiceDependencies)
}

func TestComputePerService(t *testing.T) {
	ws := Compute(fixture())

	require.Len(t, ws.Services, 2)
	assert.Equal(t, ServiceStats{Name: "auth", Files: 1, Functions: 2}, ws.Services[0])
	assert.Equal(t, ServiceStats{Name: "billing", Files: 2, Functions: 3, Structs: 1, Routes: 1}, ws.Services[1])
}

func TestComputeEmpty(t *testing.T) {
	ws := Compute(nil, nil)
	assert.Zero(t, ws.TotalFiles)
	assert.Empty(t, ws.Services)

	ws = Compute(indexing.NewCodeIndex(nil), indexing.NewRouteRegistry(nil))
	assert.Zero(t, ws.AverageFanOut)
	assert.NotNil(t, ws.Services)
}

func TestFormatAsText(t *testing.T) {
	text := Compute(fixture()).FormatAsText()
	assert.Contains(t, text, "billing:")
	assert.Contains(t, text, "auth::session::login")
	assert.Contains(t, text, "Service Deps:       1")
}
