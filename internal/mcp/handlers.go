package mcp

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/standardbeagle/lwi/internal/config"
	"github.com/standardbeagle/lwi/internal/debug"
	"github.com/standardbeagle/lwi/internal/indexing"
	"github.com/standardbeagle/lwi/internal/metrics"
	"github.com/standardbeagle/lwi/internal/parser"
	"github.com/standardbeagle/lwi/internal/types"
	"github.com/standardbeagle/lwi/internal/workspace"
	"github.com/standardbeagle/lwi/pkg/pathutil"
)

// Handlers answers the query methods against one ProjectState. Every
// handler that reads the index checks the state gate first.
type Handlers struct {
	state      *indexing.ProjectState
	normalizer *pathutil.Normalizer
	cfg        *config.Config
	rescan     func() bool
}

// NewHandlers creates the query handlers. rescan queues a rescan on the
// consumer loop and reports whether one was queued; nil disables it.
func NewHandlers(state *indexing.ProjectState, cfg *config.Config, rescan func() bool) *Handlers {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Handlers{
		state:      state,
		normalizer: pathutil.NewNormalizer(state.Root()),
		cfg:        cfg,
		rescan:     rescan,
	}
}

// FileDocParams are the params of get_file_documentation
type FileDocParams struct {
	Path string `json:"path"`
}

// FunctionUsageParams are the params of get_function_usage
type FunctionUsageParams struct {
	Function string `json:"function"`
}

// RouteImpactParams are the params of get_route_impact
type RouteImpactParams struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// DiagnosticsParams are the optional filters of get_diagnostics
type DiagnosticsParams struct {
	Severity string `json:"severity,omitempty"`
	File     string `json:"file,omitempty"`
}

// FileDocumentation is the data of get_file_documentation
type FileDocumentation struct {
	Path         string               `json:"path"`
	ModulePath   string               `json:"module_path"`
	Service      string               `json:"service,omitempty"`
	Functions    []types.FunctionInfo `json:"functions"`
	Structs      []types.StructInfo   `json:"structs"`
	Routes       []types.RouteInfo    `json:"routes"`
	LastModified time.Time            `json:"last_modified"`
}

// Definition is one function definition in a usage report
type Definition struct {
	Qualified string `json:"qualified"`
	File      string `json:"file"`
	Service   string `json:"service,omitempty"`
	Span      [2]int `json:"span"`
	Signature string `json:"signature"`
}

// Caller is one calling function in a usage report
type Caller struct {
	Function  string `json:"function"`
	Qualified string `json:"qualified"`
	File      string `json:"file"`
	Service   string `json:"service,omitempty"`
	Span      [2]int `json:"span"`
	CallLines []int  `json:"call_lines"`
}

// FunctionUsage is the data of get_function_usage
type FunctionUsage struct {
	Function    string       `json:"function"`
	Definitions []Definition `json:"definitions"`
	Callers     []Caller     `json:"callers"`
}

// Handler resolution outcomes
const (
	ResolutionResolved   = "resolved"
	ResolutionUnresolved = "unresolved"
	ResolutionAmbiguous  = "ambiguous"
)

// CalledFunction is one transitive callee of a route handler
type CalledFunction struct {
	Name      string `json:"name"`
	Qualified string `json:"qualified"`
	File      string `json:"file"`
	Service   string `json:"service,omitempty"`
	Span      [2]int `json:"span"`
	Depth     int    `json:"depth"`
	Ambiguous bool   `json:"ambiguous,omitempty"`
}

// RouteImpact is the data of get_route_impact
type RouteImpact struct {
	Route             types.RouteInfo  `json:"route"`
	HandlerResolution string           `json:"handler_resolution"`
	Handler           *Definition      `json:"handler,omitempty"`
	CalledFunctions   []CalledFunction `json:"called_functions"`
	AffectedFiles     []string         `json:"affected_files"`
	DepthLimited      bool             `json:"depth_limited,omitempty"`
}

// RouteEntry is one registered route with its resolution
type RouteEntry struct {
	types.RouteInfo
	Resolution string `json:"resolution"`
}

// WorkspaceRoutes is the data of get_workspace_routes
type WorkspaceRoutes struct {
	Routes     []RouteEntry `json:"routes"`
	Total      int          `json:"total"`
	Unresolved int          `json:"unresolved"`
	Ambiguous  int          `json:"ambiguous"`
}

// DiagnosticsReport is the data of get_diagnostics
type DiagnosticsReport struct {
	Diagnostics []types.Diagnostic `json:"diagnostics"`
	Total       int                `json:"total"`
	BySeverity  map[string]int     `json:"by_severity"`
	CollectedAt time.Time          `json:"collected_at"`
	LastRunAt   time.Time          `json:"last_run_at"`
	LastError   string             `json:"last_error,omitempty"`
}

// ServiceEntry is one service in list_services
type ServiceEntry struct {
	Name string `json:"name"`
	Root string `json:"root"`
}

// ServiceList is the data of list_services
type ServiceList struct {
	Services []ServiceEntry `json:"services"`
	Names    []string       `json:"names"`
}

// RescanResult is the data of rescan
type RescanResult struct {
	Queued bool                `json:"queued"`
	State  indexing.IndexState `json:"state"`
}

// gate applies the read predicate and returns the snapshot to read from
func (h *Handlers) gate(tolerance indexing.ReadTolerance) (indexing.Snapshot, indexing.ReadMode, *Envelope) {
	mode, state := h.state.Machine().Readable(tolerance)
	if mode == indexing.ReadRefused {
		_, reason := h.state.Machine().Since()
		return indexing.Snapshot{}, mode, notReady(state, reason)
	}
	return h.state.Snapshot(), mode, nil
}

// ListServices enumerates the workspace services
func (h *Handlers) ListServices(ctx context.Context) (*Envelope, error) {
	services, err := h.state.Resolver().Services()
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}

	data := ServiceList{Services: []ServiceEntry{}, Names: []string{}}
	for _, svc := range services {
		data.Services = append(data.Services, ServiceEntry{
			Name: svc.Name,
			Root: pathutil.ToRelative(svc.Root, h.state.Root()),
		})
		data.Names = append(data.Names, svc.Name)
	}
	return HighConfidence(data, LocalContext("")), nil
}

// FileDocumentation describes one indexed file
func (h *Handlers) FileDocumentation(ctx context.Context, p FileDocParams) (*Envelope, error) {
	resolved, err := h.normalizer.Normalize(p.Path)
	if err != nil {
		return pathRefusal(p.Path, err)
	}

	service := ""
	services, err := h.state.Resolver().Services()
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	if len(services) > 0 {
		svc, err := h.state.Resolver().Resolve(resolved.Abs)
		if err != nil {
			var outside *workspace.OutsideServiceError
			if errors.As(err, &outside) {
				return NewRefusal(CodeOutsideService,
					fmt.Sprintf("%s is not inside any service", resolved.Rel),
					err.Error(),
					"pass a path under one of the listed services; call list_services to see them",
					LocalContext("")).WithCandidates(outside.Known), nil
			}
			return nil, err
		}
		service = svc.Name
	}

	snap, _, refusal := h.gate(indexing.RequireReady)
	if refusal != nil {
		refusal.Context = LocalContext(service)
		return refusal, nil
	}

	file, ok := snap.Index.File(resolved.Rel)
	if !ok {
		suggestion := "check that the file is under a service src/ directory and not excluded, then call rescan"
		if filepath.Ext(resolved.Rel) != parser.SourceExtension {
			suggestion = "only " + parser.SourceExtension + " source files are indexed; pass a source file path"
		}
		return NewRefusal(CodeFileNotIndexed,
			fmt.Sprintf("%s is not in the index", resolved.Rel),
			"the file exists but was not indexed in generation "+fmt.Sprint(snap.Generation),
			suggestion,
			LocalContext(service)).WithCandidates(didYouMean(resolved.Rel, snap.Index.RelativePaths())), nil
	}

	data := FileDocumentation{
		Path:         file.RelativePath,
		ModulePath:   file.ModulePath,
		Service:      file.Service,
		Functions:    nonNil(file.Functions),
		Structs:      nonNil(file.Structs),
		Routes:       nonNil(snap.Routes.InFile(file.RelativePath)),
		LastModified: file.LastModified,
	}
	return HighConfidence(data, LocalContext(file.Service)).WithGeneration(snap.Generation), nil
}

// FunctionUsage reports where a function is defined and who calls it
func (h *Handlers) FunctionUsage(ctx context.Context, p FunctionUsageParams) (*Envelope, error) {
	name := strings.TrimSpace(p.Function)
	if name == "" {
		return nil, &ParamError{Field: "function", Reason: "is required"}
	}

	snap, _, refusal := h.gate(indexing.RequireReady)
	if refusal != nil {
		return refusal, nil
	}

	defs := snap.Index.Definitions(name)
	if len(defs) == 0 {
		simple := lastSegment(name)
		return NewRefusal(CodeFunctionNotFound,
			fmt.Sprintf("no function named %s in the index", name),
			fmt.Sprintf("searched %d functions in %d files", snap.Index.FunctionCount(), snap.Index.FileCount()),
			"check the spelling or pass a qualified name such as service::module::name",
			LocalContext("")).WithCandidates(didYouMean(simple, snap.Index.FunctionNames())), nil
	}

	simple := defs[0].Function.Name
	data := FunctionUsage{Function: name, Definitions: []Definition{}, Callers: []Caller{}}
	for _, ref := range defs {
		data.Definitions = append(data.Definitions, definitionOf(ref))
	}

	services := make(map[string]struct{})
	if svc := defs[0].File.Service; svc != "" {
		services[svc] = struct{}{}
	}
	for _, c := range snap.Index.Callers(simple) {
		data.Callers = append(data.Callers, Caller{
			Function:  c.Function.Name,
			Qualified: c.Qualified,
			File:      c.File.RelativePath,
			Service:   c.File.Service,
			Span:      c.Function.Span(),
			CallLines: c.CallLines,
		})
		if c.File.Service != "" {
			services[c.File.Service] = struct{}{}
		}
	}

	ctxInfo := LocalContext(defs[0].File.Service)
	if len(services) > 1 {
		ctxInfo = InterServiceContext(defs[0].File.Service)
	}

	// Callers are keyed by simple name, so any other definition sharing it
	// makes the caller list ambiguous
	if all := snap.Index.Definitions(simple); len(all) > 1 {
		reason := fmt.Sprintf("%d functions are named %s; callers cannot be attributed to one definition", len(all), simple)
		return PartialConfidence(data, ctxInfo, reason).WithGeneration(snap.Generation), nil
	}
	return HighConfidence(data, ctxInfo).WithGeneration(snap.Generation), nil
}

// RouteImpact expands a route's handler into the functions it reaches
func (h *Handlers) RouteImpact(ctx context.Context, p RouteImpactParams) (*Envelope, error) {
	if strings.TrimSpace(p.Method) == "" {
		return nil, &ParamError{Field: "method", Reason: "is required"}
	}
	if strings.TrimSpace(p.Path) == "" {
		return nil, &ParamError{Field: "path", Reason: "is required"}
	}

	snap, _, refusal := h.gate(indexing.RequireReady)
	if refusal != nil {
		return refusal, nil
	}

	route, ok := snap.Routes.Find(p.Method, p.Path)
	if !ok {
		key := strings.ToUpper(p.Method) + " " + p.Path
		return NewRefusal(CodeRouteNotFound,
			fmt.Sprintf("no route %s is registered", key),
			fmt.Sprintf("%d routes are registered", snap.Routes.Len()),
			"call get_workspace_routes to list registered routes and retry with an exact method and path",
			LocalContext("")).WithCandidates(didYouMean(key, snap.Routes.Keys())), nil
	}

	data := RouteImpact{
		Route:           route,
		CalledFunctions: []CalledFunction{},
		AffectedFiles:   []string{},
	}

	handler, ok := snap.Index.Function(route.ResolvedHandler)
	if route.ResolvedHandler == "" || !ok {
		data.HandlerResolution = ResolutionUnresolved
		data.AffectedFiles = []string{route.File}
		reason := fmt.Sprintf("handler %s has no definition in the index", route.Handler)
		return PartialConfidence(data, LocalContext(route.Service), reason).WithGeneration(snap.Generation), nil
	}

	def := definitionOf(handler)
	data.HandlerResolution = ResolutionResolved
	if route.Ambiguous {
		data.HandlerResolution = ResolutionAmbiguous
	}
	data.Handler = &def
	data.CalledFunctions, data.DepthLimited = h.expandCallees(snap.Index, handler)

	files := map[string]struct{}{route.File: {}, handler.File.RelativePath: {}}
	crossService := false
	ambiguousCallees := 0
	for _, fn := range data.CalledFunctions {
		files[fn.File] = struct{}{}
		if fn.Service != route.Service {
			crossService = true
		}
		if fn.Ambiguous {
			ambiguousCallees++
		}
	}
	for f := range files {
		data.AffectedFiles = append(data.AffectedFiles, f)
	}
	sort.Strings(data.AffectedFiles)

	ctxInfo := LocalContext(route.Service)
	if crossService || handler.File.Service != route.Service {
		ctxInfo = InterServiceContext(route.Service)
	}
	switch {
	case route.Ambiguous:
		reason := fmt.Sprintf("handler %s was bound to %s without a definition in the registering file or service",
			route.Handler, handler.Qualified)
		return PartialConfidence(data, ctxInfo, reason).WithGeneration(snap.Generation), nil
	case ambiguousCallees > 0:
		reason := fmt.Sprintf("%d of %d called functions were bound by name across services or candidates",
			ambiguousCallees, len(data.CalledFunctions))
		return PartialConfidence(data, ctxInfo, reason).WithGeneration(snap.Generation), nil
	}
	return HighConfidence(data, ctxInfo).WithGeneration(snap.Generation), nil
}

// expandCallees walks the call graph breadth-first from the handler,
// keeping callees that resolve to indexed functions
func (h *Handlers) expandCallees(idx *indexing.CodeIndex, handler indexing.FunctionRef) ([]CalledFunction, bool) {
	maxDepth := h.cfg.Routes.MaxImpactDepth
	if maxDepth <= 0 {
		maxDepth = config.DefaultMaxImpactDepth
	}

	type item struct {
		ref   indexing.FunctionRef
		depth int
	}
	seen := map[string]bool{handler.Qualified: true}
	queue := []item{{ref: handler, depth: 0}}
	var out []CalledFunction
	limited := false

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, name := range idx.Graph().Callees(cur.ref.Qualified) {
			callee, binding := idx.ResolveHandler(name, cur.ref.File.RelativePath, cur.ref.File.Service)
			if !binding.Found() || seen[callee.Qualified] {
				continue
			}
			if cur.depth+1 > maxDepth {
				limited = true
				continue
			}
			seen[callee.Qualified] = true
			out = append(out, CalledFunction{
				Name:      callee.Function.Name,
				Qualified: callee.Qualified,
				File:      callee.File.RelativePath,
				Service:   callee.File.Service,
				Span:      callee.Function.Span(),
				Depth:     cur.depth + 1,
				Ambiguous: binding == indexing.BindingAmbiguous,
			})
			queue = append(queue, item{ref: callee, depth: cur.depth + 1})
		}
	}

	debug.LogRPC("route impact from %s: %d callees (limited=%v)\n", handler.Qualified, len(out), limited)
	if out == nil {
		out = []CalledFunction{}
	}
	return out, limited
}

// WorkspaceRoutes lists every registered route. During a scan the previous
// generation is served at Partial confidence.
func (h *Handlers) WorkspaceRoutes(ctx context.Context) (*Envelope, error) {
	snap, mode, refusal := h.gate(indexing.TolerateScanning)
	if refusal != nil {
		return refusal, nil
	}

	data := WorkspaceRoutes{Routes: []RouteEntry{}}
	for _, r := range snap.Routes.All() {
		resolution := ResolutionResolved
		switch {
		case r.ResolvedHandler == "":
			resolution = ResolutionUnresolved
			data.Unresolved++
		case r.Ambiguous:
			resolution = ResolutionAmbiguous
			data.Ambiguous++
		}
		data.Routes = append(data.Routes, RouteEntry{RouteInfo: r, Resolution: resolution})
	}
	data.Total = len(data.Routes)

	ctxInfo := LocalContext("")
	switch {
	case mode == indexing.ReadPartial:
		return PartialConfidence(data, ctxInfo, "a scan is in progress; routes are from the previous generation").WithGeneration(snap.Generation), nil
	case data.Unresolved > 0:
		return PartialConfidence(data, ctxInfo, fmt.Sprintf("%d of %d route handlers are unresolved", data.Unresolved, data.Total)).WithGeneration(snap.Generation), nil
	case data.Ambiguous > 0:
		return PartialConfidence(data, ctxInfo, fmt.Sprintf("%d of %d route handlers are ambiguous", data.Ambiguous, data.Total)).WithGeneration(snap.Generation), nil
	}
	return HighConfidence(data, ctxInfo).WithGeneration(snap.Generation), nil
}

// Diagnostics returns the latest collector snapshot, optionally filtered
func (h *Handlers) Diagnostics(ctx context.Context, p DiagnosticsParams) (*Envelope, error) {
	severity := types.Severity(strings.ToLower(strings.TrimSpace(p.Severity)))
	switch severity {
	case "", types.SeverityError, types.SeverityWarning, types.SeverityNote, types.SeverityHelp:
	default:
		return nil, &ParamError{Field: "severity", Reason: "must be one of error, warning, note, help"}
	}

	if !h.cfg.Diagnostics.Enabled {
		return NewRefusal(CodeDiagnosticsDisabled,
			"diagnostics collection is disabled",
			"diagnostics are turned off in the configuration",
			"set diagnostics { enabled true } in "+config.ConfigFileName+" or drop --no-diagnostics, then restart",
			LocalContext("")), nil
	}

	snap, ok := h.state.Diagnostics()
	if !ok || snap.CollectedAt.IsZero() {
		cause := "the collector has not completed a run yet"
		if ok && snap.LastError != "" {
			cause = "every collector run so far failed: " + snap.LastError
		}
		return NewRefusal(CodeDiagnosticsUnavailable,
			"no diagnostics have been collected",
			cause,
			"retry after the next collection interval; check that the configured diagnostics command runs in the workspace",
			LocalContext("")), nil
	}

	file := ""
	if p.File != "" {
		file = filepath.ToSlash(p.File)
		if filepath.IsAbs(p.File) {
			file = pathutil.ToRelative(p.File, h.state.Root())
		}
		file = path.Clean(file)
	}

	data := DiagnosticsReport{
		Diagnostics: []types.Diagnostic{},
		BySeverity:  map[string]int{},
		CollectedAt: snap.CollectedAt,
		LastRunAt:   snap.LastRunAt,
		LastError:   snap.LastError,
	}
	for _, d := range snap.Records {
		if severity != "" && d.Severity != severity {
			continue
		}
		if file != "" && d.File != file {
			continue
		}
		data.Diagnostics = append(data.Diagnostics, d)
		data.BySeverity[string(d.Severity)]++
	}
	data.Total = len(data.Diagnostics)

	if snap.LastError != "" {
		return PartialConfidence(data, LocalContext(""), "the last diagnostics run failed; records are from "+snap.CollectedAt.Format(time.RFC3339)), nil
	}
	return HighConfidence(data, LocalContext("")), nil
}

// IndexStatusReport is the state machine view plus aggregate stats
type IndexStatusReport struct {
	indexing.Status
	Stats metrics.WorkspaceStats `json:"stats"`
}

// IndexStatus reports the state machine and counts. It is never gated.
func (h *Handlers) IndexStatus(ctx context.Context) (*Envelope, error) {
	status := h.state.Status()
	snap := h.state.Snapshot()
	report := IndexStatusReport{Status: status, Stats: metrics.Compute(snap.Index, snap.Routes)}
	return HighConfidence(report, LocalContext("")).WithGeneration(status.Generation), nil
}

// Rescan queues a full rescan on the consumer loop
func (h *Handlers) Rescan(ctx context.Context) (*Envelope, error) {
	queued := false
	if h.rescan != nil {
		queued = h.rescan()
	}
	data := RescanResult{Queued: queued, State: h.state.State()}
	if h.rescan == nil {
		return PartialConfidence(data, LocalContext(""), "no rescan loop is running"), nil
	}
	return HighConfidence(data, LocalContext("")), nil
}

// pathRefusal maps normalizer failures to refusals
func pathRefusal(raw string, err error) (*Envelope, error) {
	ctx := LocalContext("")
	switch {
	case errors.Is(err, pathutil.ErrEmptyPath):
		return nil, &ParamError{Field: "path", Reason: "is required"}
	case errors.Is(err, pathutil.ErrOutsideWorkspace):
		return NewRefusal(CodeOutsideWorkspace,
			fmt.Sprintf("%s is outside the workspace", raw),
			err.Error(),
			"pass a path relative to the workspace root without leading ../ segments",
			ctx), nil
	case errors.Is(err, pathutil.ErrNotAFile):
		return NewRefusal(CodeNotAFile,
			fmt.Sprintf("%s is not a regular file", raw),
			err.Error(),
			"pass the path of a source file, not a directory",
			ctx), nil
	default:
		return NewRefusal(CodeFileNotFound,
			fmt.Sprintf("%s does not exist", raw),
			err.Error(),
			"check the path relative to the workspace root; get_workspace_routes and list_services show indexed locations",
			ctx), nil
	}
}

func definitionOf(ref indexing.FunctionRef) Definition {
	return Definition{
		Qualified: ref.Qualified,
		File:      ref.File.RelativePath,
		Service:   ref.File.Service,
		Span:      ref.Function.Span(),
		Signature: ref.Function.Signature,
	}
}

func lastSegment(name string) string {
	if i := strings.LastIndex(name, "::"); i >= 0 {
		return name[i+2:]
	}
	return name
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
