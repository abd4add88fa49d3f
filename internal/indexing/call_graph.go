package indexing

import (
	"sort"

	"github.com/standardbeagle/lwi/internal/types"
)

// CallGraph links functions by name. Forward maps a qualified function name
// to the simple names it calls; Reverse maps a simple name to the qualified
// names of every function that calls it. Both are rebuilt wholesale from a
// file set and never patched in place.
type CallGraph struct {
	Forward map[string]map[string]struct{}
	Reverse map[string]map[string]struct{}
}

// BuildCallGraph derives the graph from a complete file set
func BuildCallGraph(files map[string]*types.SourceFile) *CallGraph {
	g := &CallGraph{
		Forward: make(map[string]map[string]struct{}),
		Reverse: make(map[string]map[string]struct{}),
	}

	for _, file := range files {
		for _, fn := range file.Functions {
			caller := file.QualifiedName(fn)
			callees, ok := g.Forward[caller]
			if !ok {
				callees = make(map[string]struct{}, len(fn.Calls))
				g.Forward[caller] = callees
			}
			for _, callee := range fn.Calls {
				callees[callee] = struct{}{}
				callers, ok := g.Reverse[callee]
				if !ok {
					callers = make(map[string]struct{})
					g.Reverse[callee] = callers
				}
				callers[caller] = struct{}{}
			}
		}
	}
	return g
}

// Callees returns the sorted simple names called by a qualified function
func (g *CallGraph) Callees(qualified string) []string {
	return sortedKeys(g.Forward[qualified])
}

// Callers returns the sorted qualified names of functions calling a simple name
func (g *CallGraph) Callers(simple string) []string {
	return sortedKeys(g.Reverse[simple])
}

// EdgeCount returns the number of caller/callee pairs
func (g *CallGraph) EdgeCount() int {
	n := 0
	for _, callees := range g.Forward {
		n += len(callees)
	}
	return n
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
