// Package types holds the immutable structural records produced by parsing
// and scanning a workspace. Records are created once per scan generation and
// never mutated after commit.
package types

import "time"

// Visibility of a declaration
type Visibility string

const (
	VisibilityPublic     Visibility = "public"     // pub
	VisibilityCrate      Visibility = "crate"      // pub(crate)
	VisibilityRestricted Visibility = "restricted" // pub(super), pub(in path)
	VisibilityPrivate    Visibility = "private"
)

// CallSite is one call expression inside a function body
type CallSite struct {
	Name string `json:"name"`
	Line int    `json:"line"`
}

// FunctionInfo describes a function or method declaration
type FunctionInfo struct {
	Name       string     `json:"name"`
	Owner      string     `json:"owner,omitempty"` // impl or trait type for methods
	Scope      string     `json:"scope,omitempty"` // inline mod path inside the file
	Visibility Visibility `json:"visibility"`
	IsAsync    bool       `json:"is_async"`
	StartLine  int        `json:"start_line"`
	EndLine    int        `json:"end_line"`
	Signature  string     `json:"signature"`
	Parameters []string   `json:"parameters"`
	ReturnType string     `json:"return_type,omitempty"`
	Calls      []string   `json:"calls"` // unique simple names, sorted
	CallSites  []CallSite `json:"call_sites,omitempty"`
}

// Span returns the [start, end] line span
func (f FunctionInfo) Span() [2]int {
	return [2]int{f.StartLine, f.EndLine}
}

// FieldInfo describes one struct field
type FieldInfo struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Visibility Visibility `json:"visibility"`
}

// StructInfo describes a struct declaration
type StructInfo struct {
	Name       string      `json:"name"`
	Visibility Visibility  `json:"visibility"`
	StartLine  int         `json:"start_line"`
	EndLine    int         `json:"end_line"`
	Fields     []FieldInfo `json:"fields"`
}

// SourceFile is the indexed form of one source file
type SourceFile struct {
	Path         string         `json:"path"`          // absolute canonical path
	RelativePath string         `json:"relative_path"` // workspace-relative, forward slashes
	ModulePath   string         `json:"module_path"`
	Functions    []FunctionInfo `json:"functions"`
	Structs      []StructInfo   `json:"structs"`
	LastModified time.Time      `json:"last_modified"`
	Service      string         `json:"service,omitempty"`
	ContentHash  uint64         `json:"-"`
}

// QualifiedName returns the workspace-unique name of a function in this file
func (f *SourceFile) QualifiedName(fn FunctionInfo) string {
	name := f.ModulePath
	if f.Service != "" {
		name = f.Service + "::" + name
	}
	if fn.Scope != "" {
		name += "::" + fn.Scope
	}
	if fn.Owner != "" {
		name += "::" + fn.Owner
	}
	return name + "::" + fn.Name
}

// RouteInfo is one HTTP route registration
type RouteInfo struct {
	Method          string `json:"method"`
	Path            string `json:"path"`
	Handler         string `json:"handler"`
	ResolvedHandler string `json:"resolved_handler,omitempty"`
	Ambiguous       bool   `json:"ambiguous,omitempty"` // bound by a cross-service or multi-candidate guess
	File            string `json:"file"`
	Line            int    `json:"line"`
	Service         string `json:"service,omitempty"`
}

// ServiceInfo is a directory that satisfies the service-validity predicate
type ServiceInfo struct {
	Name string `json:"name"`
	Root string `json:"root"` // absolute canonical path
}

// Severity of a build diagnostic
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityNote    Severity = "note"
	SeverityHelp    Severity = "help"
)

// Diagnostic is one record produced by a diagnostics source
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
	Code     string   `json:"code,omitempty"`
}
