package indexing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/lwi/internal/types"
	"github.com/standardbeagle/lwi/testhelpers"
)

func TestInitialScanCommitsGeneration(t *testing.T) {
	root := buildOrdersWorkspace(t)
	ps := NewProjectState(root, testConfig(root))

	snap := ps.Snapshot()
	assert.Equal(t, StateNotStarted, snap.State)
	assert.Zero(t, snap.Generation)
	assert.Zero(t, snap.Index.FileCount())

	require.NoError(t, ps.InitialScan(t.Context()))

	snap = ps.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, 4, snap.Index.FileCount())
	assert.Equal(t, 3, snap.Routes.Len())

	status := ps.Status()
	assert.Equal(t, StateReady, status.State)
	assert.Equal(t, 4, status.Files)
	assert.Equal(t, 1, status.UnresolvedRoutes)
	require.NotNil(t, status.LastScan)
	assert.Equal(t, 4, status.LastScan.FilesIndexed)
}

func TestRescanIsNoopWhileScanning(t *testing.T) {
	root := buildOrdersWorkspace(t)
	ps := readyState(t, root)

	require.True(t, ps.beginScan())
	ran, err := ps.Rescan(t.Context())
	assert.False(t, ran)
	assert.NoError(t, err)
	assert.ErrorIs(t, ps.InitialScan(t.Context()), ErrScanInProgress)
	assert.Equal(t, uint64(1), ps.Generation())
	ps.endScan()

	ran, err = ps.Rescan(t.Context())
	assert.True(t, ran)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), ps.Generation())
	assert.Equal(t, StateReady, ps.State())
}

func TestHandleFileChangeDeletionFastPath(t *testing.T) {
	root := buildOrdersWorkspace(t)
	ps := readyState(t, root)

	handler := filepath.Join(root, "services", "billing", "src", "handler.rs")
	require.NoError(t, os.Remove(handler))
	require.NoError(t, ps.HandleFileChange(t.Context(), FileEvent{Path: handler, Kind: FileDeleted}))

	snap := ps.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, uint64(2), snap.Generation)
	_, ok := snap.Index.File("services/billing/src/handler.rs")
	assert.False(t, ok)
	assert.Zero(t, snap.Routes.Len())
	assert.Empty(t, snap.Index.Callers("create_order"), "call graph is rebuilt without the deleted file")
	assert.Nil(t, ps.LastScan().Problems)
}

func TestHandleFileChangeCreationRescans(t *testing.T) {
	root := buildOrdersWorkspace(t)
	ps := readyState(t, root)

	path := testhelpers.WriteFile(t, root, "services/auth/src/session.rs", "pub fn login() {\n    create_order(1);\n}\n")
	require.NoError(t, ps.HandleFileChange(t.Context(), FileEvent{Path: path, Kind: FileCreated}))

	snap := ps.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, uint64(2), snap.Generation)
	_, ok := snap.Index.File("services/auth/src/session.rs")
	assert.True(t, ok)
	assert.Len(t, snap.Index.Callers("create_order"), 2)
}

func TestScanFailureAndRecovery(t *testing.T) {
	root := buildOrdersWorkspace(t)
	ps := NewProjectState(root, testConfig(root))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err := ps.InitialScan(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, StateFailed, ps.State())
	_, reason := ps.Machine().Since()
	assert.NotEmpty(t, reason)
	assert.NotEmpty(t, ps.LastScan().Error)

	// Failed moves back through Scanning on the next change
	require.NoError(t, ps.HandleFileChange(t.Context(), FileEvent{Kind: FileModified}))
	assert.Equal(t, StateReady, ps.State())
	assert.Equal(t, uint64(1), ps.Generation())
}

func TestSnapshotNeverMixesGenerations(t *testing.T) {
	root := buildOrdersWorkspace(t)
	ps := readyState(t, root)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	var mixed error
	var mixedOnce sync.Once

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := ps.Snapshot()
				for _, route := range snap.Routes.All() {
					if _, ok := snap.Index.File(route.File); !ok {
						mixedOnce.Do(func() { mixed = errors.New("route from a file missing in the same snapshot: " + route.File) })
					}
				}
			}
		}()
	}

	handler := filepath.Join(root, "services", "billing", "src", "handler.rs")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.Remove(handler))
		require.NoError(t, ps.HandleFileChange(t.Context(), FileEvent{Path: handler, Kind: FileDeleted}))
		testhelpers.WriteFile(t, root, "services/billing/src/handler.rs", testhelpers.HandlerSource)
		require.NoError(t, ps.HandleFileChange(t.Context(), FileEvent{Path: handler, Kind: FileCreated}))
	}
	close(stop)
	wg.Wait()

	assert.NoError(t, mixed)
	assert.Equal(t, uint64(11), ps.Generation())
}

func TestDiagnosticsKeepPreviousRecordsOnFailure(t *testing.T) {
	root := buildOrdersWorkspace(t)
	ps := NewProjectState(root, testConfig(root))

	_, ok := ps.Diagnostics()
	assert.False(t, ok)

	ps.SetDiagnostics([]types.Diagnostic{
		{Severity: types.SeverityWarning, Message: "unused variable", File: filepath.Join(root, "services/auth/src/main.rs"), Line: 2},
	}, nil)

	snap, ok := ps.Diagnostics()
	require.True(t, ok)
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "services/auth/src/main.rs", snap.Records[0].File)
	assert.Empty(t, snap.LastError)

	ps.SetDiagnostics(nil, errors.New("cargo not found"))
	snap, _ = ps.Diagnostics()
	assert.Len(t, snap.Records, 1)
	assert.Equal(t, "cargo not found", snap.LastError)
	assert.False(t, snap.CollectedAt.IsZero())
}
