// Package metrics derives aggregate statistics from one committed index
// generation. Everything here is computed on demand from immutable data and
// holds no state of its own.
package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/standardbeagle/lwi/internal/indexing"
)

// unassigned groups files that sit outside every service
const unassigned = "(none)"

// ServiceStats counts the indexed content of one service
type ServiceStats struct {
	Name      string `json:"name"`
	Files     int    `json:"files"`
	Functions int    `json:"functions"`
	Structs   int    `json:"structs"`
	Routes    int    `json:"routes"`
}

// WorkspaceStats summarizes structure and call-graph shape
type WorkspaceStats struct {
	Services []ServiceStats `json:"services"`

	TotalFiles     int `json:"total_files"`
	TotalFunctions int `json:"total_functions"`
	TotalStructs   int `json:"total_structs"`
	TotalRoutes    int `json:"total_routes"`

	AverageFunctionLength float64 `json:"avg_function_length"`
	MaxFunctionLength     int     `json:"max_function_length"`
	LongestFunction       string  `json:"longest_function,omitempty"`

	TotalCallEdges int     `json:"total_call_edges"`
	AverageFanOut  float64 `json:"avg_fan_out"`
	AverageFanIn   float64 `json:"avg_fan_in"`

	// EntryPoints counts functions that a route resolves to
	EntryPoints int `json:"entry_points"`
	// OrphanFunctions are never called and are not entry points
	OrphanFunctions int `json:"orphan_functions"`
	// ServiceDependencies counts ordered service pairs where a call can
	// only be satisfied by a definition in the other service
	ServiceDependencies int `json:"service_dependencies"`
}

// Compute walks one index generation and its routes
func Compute(idx *indexing.CodeIndex, routes *indexing.RouteRegistry) WorkspaceStats {
	var ws WorkspaceStats
	if idx == nil {
		return ws
	}

	perService := make(map[string]*ServiceStats)
	bucket := func(name string) *ServiceStats {
		if name == "" {
			name = unassigned
		}
		s, ok := perService[name]
		if !ok {
			s = &ServiceStats{Name: name}
			perService[name] = s
		}
		return s
	}

	entry := make(map[string]struct{})
	if routes != nil {
		for _, r := range routes.All() {
			bucket(r.Service).Routes++
			if r.ResolvedHandler != "" {
				entry[r.ResolvedHandler] = struct{}{}
			}
		}
		ws.TotalRoutes = routes.Len()
	}

	graph := idx.Graph()
	totalLines := 0
	fanIn := 0
	for _, file := range idx.Files() {
		s := bucket(file.Service)
		s.Files++
		s.Functions += len(file.Functions)
		s.Structs += len(file.Structs)

		for _, fn := range file.Functions {
			length := fn.EndLine - fn.StartLine + 1
			totalLines += length
			qualified := file.QualifiedName(fn)
			if length > ws.MaxFunctionLength {
				ws.MaxFunctionLength = length
				ws.LongestFunction = qualified
			}

			callers := len(graph.Callers(fn.Name))
			fanIn += callers
			_, isEntry := entry[qualified]
			if callers == 0 && !isEntry && fn.Name != "main" {
				ws.OrphanFunctions++
			}
		}
	}

	ws.TotalFiles = idx.FileCount()
	ws.TotalFunctions = idx.FunctionCount()
	ws.TotalStructs = idx.StructCount()
	ws.TotalCallEdges = graph.EdgeCount()
	ws.EntryPoints = len(entry)
	if ws.TotalFunctions > 0 {
		n := float64(ws.TotalFunctions)
		ws.AverageFunctionLength = float64(totalLines) / n
		ws.AverageFanOut = float64(ws.TotalCallEdges) / n
		ws.AverageFanIn = float64(fanIn) / n
	}
	ws.ServiceDependencies = len(serviceDependencies(idx))

	ws.Services = make([]ServiceStats, 0, len(perService))
	for _, s := range perService {
		ws.Services = append(ws.Services, *s)
	}
	sort.Slice(ws.Services, func(i, j int) bool {
		return ws.Services[i].Name < ws.Services[j].Name
	})
	return ws
}

// serviceDependencies returns "from->to" pairs for calls whose every
// definition lives in a different service than the caller
func serviceDependencies(idx *indexing.CodeIndex) []string {
	pairs := make(map[string]struct{})
	for _, file := range idx.Files() {
		if file.Service == "" {
			continue
		}
		for _, fn := range file.Functions {
			for _, callee := range fn.Calls {
				defs := idx.Definitions(callee)
				if len(defs) == 0 {
					continue
				}
				target := ""
				local := false
				for _, d := range defs {
					if d.File.Service == file.Service {
						local = true
						break
					}
					target = d.File.Service
				}
				if !local && target != "" {
					pairs[file.Service+"->"+target] = struct{}{}
				}
			}
		}
	}

	out := make([]string, 0, len(pairs))
	for p := range pairs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// FormatAsText renders the stats for terminal output
func (ws WorkspaceStats) FormatAsText() string {
	var sb strings.Builder

	sb.WriteString("SUMMARY\n")
	fmt.Fprintf(&sb, "  Files:              %d\n", ws.TotalFiles)
	fmt.Fprintf(&sb, "  Functions:          %d\n", ws.TotalFunctions)
	fmt.Fprintf(&sb, "  Structs:            %d\n", ws.TotalStructs)
	fmt.Fprintf(&sb, "  Routes:             %d\n", ws.TotalRoutes)

	sb.WriteString("\nSERVICES\n")
	for _, s := range ws.Services {
		fmt.Fprintf(&sb, "  %-16s %4d files %5d functions %4d structs %4d routes\n",
			s.Name+":", s.Files, s.Functions, s.Structs, s.Routes)
	}

	sb.WriteString("\nCOMPLEXITY\n")
	fmt.Fprintf(&sb, "  Avg Function Length: %.1f lines\n", ws.AverageFunctionLength)
	fmt.Fprintf(&sb, "  Max Function Length: %d lines", ws.MaxFunctionLength)
	if ws.LongestFunction != "" {
		fmt.Fprintf(&sb, " (%s)", ws.LongestFunction)
	}
	sb.WriteString("\n")

	sb.WriteString("\nCALL GRAPH\n")
	fmt.Fprintf(&sb, "  Edges:              %d\n", ws.TotalCallEdges)
	fmt.Fprintf(&sb, "  Avg Fan-Out:        %.2f\n", ws.AverageFanOut)
	fmt.Fprintf(&sb, "  Avg Fan-In:         %.2f\n", ws.AverageFanIn)
	fmt.Fprintf(&sb, "  Entry Points:       %d\n", ws.EntryPoints)
	fmt.Fprintf(&sb, "  Orphans:            %d\n", ws.OrphanFunctions)
	fmt.Fprintf(&sb, "  Service Deps:       %d\n", ws.ServiceDependencies)

	return sb.String()
}
