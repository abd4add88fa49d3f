package indexing

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/standardbeagle/lwi/internal/config"
	"github.com/standardbeagle/lwi/internal/debug"
	lwierrors "github.com/standardbeagle/lwi/internal/errors"
	"github.com/standardbeagle/lwi/internal/types"
	"github.com/standardbeagle/lwi/internal/workspace"
	"github.com/standardbeagle/lwi/pkg/pathutil"
)

// ErrScanInProgress is returned by InitialScan when a scan is already running
var ErrScanInProgress = errors.New("scan already in progress")

// Snapshot is a consistent view of one committed generation
type Snapshot struct {
	State      IndexState
	Index      *CodeIndex
	Routes     *RouteRegistry
	Generation uint64
}

// Status summarises the index for clients and the CLI
type Status struct {
	Root             string      `json:"root"`
	State            IndexState  `json:"state"`
	StateSince       time.Time   `json:"state_since"`
	StateReason      string      `json:"state_reason,omitempty"`
	Generation       uint64      `json:"generation"`
	Files            int         `json:"files"`
	Functions        int         `json:"functions"`
	Structs          int         `json:"structs"`
	Routes           int         `json:"routes"`
	UnresolvedRoutes int         `json:"unresolved_routes"`
	AmbiguousRoutes  int         `json:"ambiguous_routes"`
	CallEdges        int         `json:"call_edges"`
	LastScan         *ScanReport `json:"last_scan,omitempty"`
}

// DiagnosticsSnapshot is the latest output of the diagnostics collector
type DiagnosticsSnapshot struct {
	Records     []types.Diagnostic
	CollectedAt time.Time // time of the last successful run
	LastRunAt   time.Time
	LastError   string // non-empty when the last run failed
}

// ProjectState owns the committed index, routes and diagnostics of one
// workspace. Each resource has its own lock; commits that touch both index
// and routes always lock index first.
type ProjectState struct {
	root     string
	resolver *workspace.Resolver
	indexer  *SourceIndexer
	machine  *StateMachine

	indexMu    sync.RWMutex
	index      *CodeIndex
	generation uint64

	routesMu sync.RWMutex
	routes   *RouteRegistry

	diagMu      sync.RWMutex
	diagnostics *DiagnosticsSnapshot

	scanMu   sync.Mutex
	scanning bool

	reportMu   sync.RWMutex
	lastReport *ScanReport
}

// NewProjectState creates an empty state in NotStarted
func NewProjectState(root string, cfg *config.Config) *ProjectState {
	resolver := workspace.NewResolver(root)
	return &ProjectState{
		root:     root,
		resolver: resolver,
		indexer:  NewSourceIndexer(root, resolver, cfg),
		machine:  NewStateMachine(),
		index:    NewCodeIndex(nil),
		routes:   NewRouteRegistry(nil),
	}
}

// Root returns the canonical workspace root
func (ps *ProjectState) Root() string { return ps.root }

// Resolver returns the service resolver for this workspace
func (ps *ProjectState) Resolver() *workspace.Resolver { return ps.resolver }

// Indexer returns the source indexer
func (ps *ProjectState) Indexer() *SourceIndexer { return ps.indexer }

// Machine returns the index state machine
func (ps *ProjectState) Machine() *StateMachine { return ps.machine }

// State returns the current index state
func (ps *ProjectState) State() IndexState { return ps.machine.Current() }

// Scanning reports whether a scan is in flight
func (ps *ProjectState) Scanning() bool {
	ps.scanMu.Lock()
	defer ps.scanMu.Unlock()
	return ps.scanning
}

func (ps *ProjectState) beginScan() bool {
	ps.scanMu.Lock()
	defer ps.scanMu.Unlock()
	if ps.scanning {
		return false
	}
	ps.scanning = true
	return true
}

func (ps *ProjectState) endScan() {
	ps.scanMu.Lock()
	ps.scanning = false
	ps.scanMu.Unlock()
}

// InitialScan indexes the workspace and commits the first generation
func (ps *ProjectState) InitialScan(ctx context.Context) error {
	if !ps.beginScan() {
		return ErrScanInProgress
	}
	defer ps.endScan()
	return ps.scan(ctx)
}

// Rescan reindexes the workspace. It is a no-op returning false when a scan
// is already in flight.
func (ps *ProjectState) Rescan(ctx context.Context) (bool, error) {
	if !ps.beginScan() {
		debug.LogIndexing("rescan skipped: scan in flight\n")
		return false, nil
	}
	defer ps.endScan()
	return true, ps.scan(ctx)
}

func (ps *ProjectState) scan(ctx context.Context) error {
	if ps.machine.Current() == StateReady {
		if err := ps.machine.Transition(StateInvalidated); err != nil {
			return err
		}
	}
	if err := ps.machine.Transition(StateScanning); err != nil {
		return err
	}

	prevIndex, prevRoutes := ps.current()

	result, err := ps.indexer.Scan(ctx, prevIndex, prevRoutes)
	if err != nil {
		var ie *lwierrors.IndexingError
		if errors.As(err, &ie) && ie.IsRecoverable() {
			log.Printf("Index scan interrupted: %v", err)
		} else {
			log.Printf("Index scan failed: %v", err)
		}
		ps.setReport(&ScanReport{StartedAt: time.Now(), Error: err.Error()})
		if terr := ps.machine.TransitionWithReason(StateFailed, err.Error()); terr != nil {
			return terr
		}
		return err
	}
	if result.Skipped != nil {
		debug.LogIndexing("scan skipped files: %v\n", result.Skipped)
	}

	ps.commit(result.Index, result.Routes)
	ps.setReport(&result.Report)

	return ps.machine.Transition(StateReady)
}

// commit swaps in a new generation under both write locks
func (ps *ProjectState) commit(idx *CodeIndex, routes *RouteRegistry) {
	ps.indexMu.Lock()
	ps.routesMu.Lock()
	ps.index = idx
	ps.routes = routes
	ps.generation++
	ps.routesMu.Unlock()
	ps.indexMu.Unlock()
}

func (ps *ProjectState) current() (*CodeIndex, *RouteRegistry) {
	ps.indexMu.RLock()
	defer ps.indexMu.RUnlock()
	ps.routesMu.RLock()
	defer ps.routesMu.RUnlock()
	return ps.index, ps.routes
}

// HandleFileChange applies one watcher event. Creations and modifications
// trigger a rescan. A deletion while Ready removes the file directly and
// rebuilds the call graph without rescanning.
func (ps *ProjectState) HandleFileChange(ctx context.Context, ev FileEvent) error {
	debug.LogIndexing("file change %s: %s\n", ev.Kind, ev.Path)

	if ev.Kind == FileDeleted && ps.machine.Current() == StateReady {
		return ps.removeFile(ev.Path)
	}

	if ps.machine.Current() == StateReady {
		if err := ps.machine.Transition(StateInvalidated); err != nil {
			return err
		}
	}
	_, err := ps.Rescan(ctx)
	return err
}

func (ps *ProjectState) removeFile(path string) error {
	if err := ps.machine.Transition(StateInvalidated); err != nil {
		return err
	}

	rel := pathutil.ToRelative(path, ps.root)

	ps.indexMu.Lock()
	ps.routesMu.Lock()
	if _, ok := ps.index.File(rel); ok {
		ps.index = ps.index.WithoutFile(rel)
		ps.routes = ps.routes.WithoutFile(rel).Resolve(ps.index)
		ps.generation++
	}
	ps.routesMu.Unlock()
	ps.indexMu.Unlock()

	return ps.machine.Transition(StateReady)
}

// Snapshot returns the committed generation together with the state
func (ps *ProjectState) Snapshot() Snapshot {
	ps.indexMu.RLock()
	defer ps.indexMu.RUnlock()
	ps.routesMu.RLock()
	defer ps.routesMu.RUnlock()

	return Snapshot{
		State:      ps.machine.Current(),
		Index:      ps.index,
		Routes:     ps.routes,
		Generation: ps.generation,
	}
}

// Index returns the committed code index
func (ps *ProjectState) Index() *CodeIndex {
	ps.indexMu.RLock()
	defer ps.indexMu.RUnlock()
	return ps.index
}

// Routes returns the committed route registry
func (ps *ProjectState) Routes() *RouteRegistry {
	ps.routesMu.RLock()
	defer ps.routesMu.RUnlock()
	return ps.routes
}

// Generation returns the number of commits so far
func (ps *ProjectState) Generation() uint64 {
	ps.indexMu.RLock()
	defer ps.indexMu.RUnlock()
	return ps.generation
}

func (ps *ProjectState) setReport(r *ScanReport) {
	ps.reportMu.Lock()
	ps.lastReport = r
	ps.reportMu.Unlock()
}

// LastScan returns the report of the most recent scan attempt
func (ps *ProjectState) LastScan() *ScanReport {
	ps.reportMu.RLock()
	defer ps.reportMu.RUnlock()
	return ps.lastReport
}

// Status returns counts and state for the current generation
func (ps *ProjectState) Status() Status {
	snap := ps.Snapshot()
	since, reason := ps.machine.Since()
	return Status{
		Root:             ps.root,
		State:            snap.State,
		StateSince:       since,
		StateReason:      reason,
		Generation:       snap.Generation,
		Files:            snap.Index.FileCount(),
		Functions:        snap.Index.FunctionCount(),
		Structs:          snap.Index.StructCount(),
		Routes:           snap.Routes.Len(),
		UnresolvedRoutes: snap.Routes.Unresolved(),
		AmbiguousRoutes:  snap.Routes.Ambiguous(),
		CallEdges:        snap.Index.Graph().EdgeCount(),
		LastScan:         ps.LastScan(),
	}
}

// SetDiagnostics records one collector run. A failed run keeps the previous
// records and notes the error.
func (ps *ProjectState) SetDiagnostics(records []types.Diagnostic, runErr error) {
	now := time.Now()
	ps.diagMu.Lock()
	defer ps.diagMu.Unlock()

	next := &DiagnosticsSnapshot{LastRunAt: now}
	if ps.diagnostics != nil {
		next.Records = ps.diagnostics.Records
		next.CollectedAt = ps.diagnostics.CollectedAt
	}
	if runErr != nil {
		next.LastError = runErr.Error()
	} else {
		next.Records = pathutil.ToRelativeDiagnostics(records, ps.root)
		next.CollectedAt = now
	}
	ps.diagnostics = next
}

// Diagnostics returns the latest snapshot, or false before the first run
func (ps *ProjectState) Diagnostics() (*DiagnosticsSnapshot, bool) {
	ps.diagMu.RLock()
	defer ps.diagMu.RUnlock()
	return ps.diagnostics, ps.diagnostics != nil
}
