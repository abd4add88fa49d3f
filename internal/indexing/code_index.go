package indexing

import (
	"sort"
	"strings"

	"github.com/standardbeagle/lwi/internal/types"
)

// FunctionRef locates one function definition in the index
type FunctionRef struct {
	File      *types.SourceFile
	Function  types.FunctionInfo
	Qualified string
}

// CallerRef is a function that calls some target, with the call lines
type CallerRef struct {
	FunctionRef
	CallLines []int
}

// CodeIndex is one committed generation of indexed files. It is immutable:
// every mutation returns a new index.
type CodeIndex struct {
	files       map[string]*types.SourceFile // keyed by workspace-relative path
	graph       *CallGraph
	bySimple    map[string][]FunctionRef
	byQualified map[string][]FunctionRef
	functions   int
	structs     int
}

// NewCodeIndex builds an index and its call graph from a file set
func NewCodeIndex(files map[string]*types.SourceFile) *CodeIndex {
	if files == nil {
		files = make(map[string]*types.SourceFile)
	}
	ci := &CodeIndex{
		files:       files,
		graph:       BuildCallGraph(files),
		bySimple:    make(map[string][]FunctionRef),
		byQualified: make(map[string][]FunctionRef),
	}

	for _, rel := range ci.paths() {
		file := files[rel]
		ci.structs += len(file.Structs)
		for _, fn := range file.Functions {
			ref := FunctionRef{File: file, Function: fn, Qualified: file.QualifiedName(fn)}
			ci.bySimple[fn.Name] = append(ci.bySimple[fn.Name], ref)
			ci.byQualified[ref.Qualified] = append(ci.byQualified[ref.Qualified], ref)
			ci.functions++
		}
	}
	return ci
}

// File returns the indexed record for a workspace-relative path
func (ci *CodeIndex) File(rel string) (*types.SourceFile, bool) {
	f, ok := ci.files[rel]
	return f, ok
}

// Files returns all records sorted by relative path
func (ci *CodeIndex) Files() []*types.SourceFile {
	out := make([]*types.SourceFile, 0, len(ci.files))
	for _, rel := range ci.paths() {
		out = append(out, ci.files[rel])
	}
	return out
}

func (ci *CodeIndex) paths() []string {
	paths := make([]string, 0, len(ci.files))
	for rel := range ci.files {
		paths = append(paths, rel)
	}
	sort.Strings(paths)
	return paths
}

func (ci *CodeIndex) FileCount() int     { return len(ci.files) }
func (ci *CodeIndex) FunctionCount() int { return ci.functions }
func (ci *CodeIndex) StructCount() int   { return ci.structs }

// Graph returns the call graph of this generation
func (ci *CodeIndex) Graph() *CallGraph {
	return ci.graph
}

// Definitions finds functions by simple name, or by qualified name when name
// contains "::". A qualified query also matches on a qualified-name suffix,
// so "orders::create_order" finds "billing::orders::create_order".
func (ci *CodeIndex) Definitions(name string) []FunctionRef {
	if !strings.Contains(name, "::") {
		return ci.bySimple[name]
	}
	if refs, ok := ci.byQualified[name]; ok {
		return refs
	}

	var out []FunctionRef
	suffix := "::" + name
	for _, ref := range ci.bySimple[lastSegment(name)] {
		if strings.HasSuffix(ref.Qualified, suffix) {
			out = append(out, ref)
		}
	}
	return out
}

// Function returns the first definition with an exact qualified name
func (ci *CodeIndex) Function(qualified string) (FunctionRef, bool) {
	refs := ci.byQualified[qualified]
	if len(refs) == 0 {
		return FunctionRef{}, false
	}
	return refs[0], true
}

// Callers returns every function calling the given simple name, ordered by
// file then line
func (ci *CodeIndex) Callers(simple string) []CallerRef {
	var out []CallerRef
	for _, qualified := range ci.graph.Callers(simple) {
		for _, ref := range ci.byQualified[qualified] {
			var lines []int
			for _, site := range ref.Function.CallSites {
				if site.Name == simple {
					lines = append(lines, site.Line)
				}
			}
			if len(lines) == 0 {
				continue
			}
			out = append(out, CallerRef{FunctionRef: ref, CallLines: lines})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].File.RelativePath != out[j].File.RelativePath {
			return out[i].File.RelativePath < out[j].File.RelativePath
		}
		return out[i].Function.StartLine < out[j].Function.StartLine
	})
	return out
}

// Binding records how a name was bound to a definition
type Binding int

const (
	// BindingNone means nothing in the index defines the name
	BindingNone Binding = iota
	// BindingDirect is the single definition in the calling file or service
	BindingDirect
	// BindingAmbiguous is a pick among several candidates, or a definition
	// found only in another service
	BindingAmbiguous
)

// Found reports whether any definition was bound
func (b Binding) Found() bool { return b != BindingNone }

// ResolveHandler picks the definition a route handler or callee name refers
// to, preferring the registering file and then its service. Anything other
// than a unique match at one of those levels is ambiguous.
func (ci *CodeIndex) ResolveHandler(name, file, service string) (FunctionRef, Binding) {
	candidates := ci.Definitions(name)
	if len(candidates) == 0 {
		return FunctionRef{}, BindingNone
	}

	var inFile, inService []FunctionRef
	for _, ref := range candidates {
		if ref.File.RelativePath == file {
			inFile = append(inFile, ref)
		}
		if ref.File.Service == service {
			inService = append(inService, ref)
		}
	}
	for _, level := range [][]FunctionRef{inFile, inService} {
		switch len(level) {
		case 0:
			continue
		case 1:
			return level[0], BindingDirect
		default:
			return level[0], BindingAmbiguous
		}
	}
	return candidates[0], BindingAmbiguous
}

// FunctionNames returns every distinct simple function name
func (ci *CodeIndex) FunctionNames() []string {
	names := make([]string, 0, len(ci.bySimple))
	for name := range ci.bySimple {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RelativePaths returns every indexed relative path, sorted
func (ci *CodeIndex) RelativePaths() []string {
	return ci.paths()
}

// WithoutFile returns a new generation with one file removed and the call
// graph rebuilt
func (ci *CodeIndex) WithoutFile(rel string) *CodeIndex {
	if _, ok := ci.files[rel]; !ok {
		return ci
	}
	files := make(map[string]*types.SourceFile, len(ci.files)-1)
	for k, v := range ci.files {
		if k != rel {
			files[k] = v
		}
	}
	return NewCodeIndex(files)
}

func lastSegment(qualified string) string {
	if i := strings.LastIndex(qualified, "::"); i >= 0 {
		return qualified[i+2:]
	}
	return qualified
}
