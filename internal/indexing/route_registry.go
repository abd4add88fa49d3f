package indexing

import (
	"sort"
	"strings"

	"github.com/standardbeagle/lwi/internal/parser"
	"github.com/standardbeagle/lwi/internal/types"
)

// RouteRegistry is one committed generation of route registrations.
// Like CodeIndex it is never mutated after construction.
type RouteRegistry struct {
	routes    []types.RouteInfo
	byHandler map[string][]int
	byFile    map[string][]int
}

// NewRouteRegistry indexes routes, ordered by file then line
func NewRouteRegistry(routes []types.RouteInfo) *RouteRegistry {
	sorted := make([]types.RouteInfo, len(routes))
	copy(sorted, routes)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].File != sorted[j].File {
			return sorted[i].File < sorted[j].File
		}
		return sorted[i].Line < sorted[j].Line
	})

	r := &RouteRegistry{
		routes:    sorted,
		byHandler: make(map[string][]int),
		byFile:    make(map[string][]int),
	}
	for i, route := range sorted {
		r.byHandler[route.Handler] = append(r.byHandler[route.Handler], i)
		r.byFile[route.File] = append(r.byFile[route.File], i)
	}
	return r
}

// RoutesFromMatches converts scanner matches found in one file
func RoutesFromMatches(matches []parser.RouteMatch, file *types.SourceFile) []types.RouteInfo {
	out := make([]types.RouteInfo, 0, len(matches))
	for _, m := range matches {
		out = append(out, types.RouteInfo{
			Method:  strings.ToUpper(m.Method),
			Path:    m.Path,
			Handler: m.Handler,
			File:    file.RelativePath,
			Line:    m.Line,
			Service: file.Service,
		})
	}
	return out
}

// Resolve returns a registry whose handlers are bound to definitions in idx.
// Handlers with no definition keep an empty ResolvedHandler; handlers bound
// by a guess are marked Ambiguous.
func (r *RouteRegistry) Resolve(idx *CodeIndex) *RouteRegistry {
	routes := make([]types.RouteInfo, len(r.routes))
	for i, route := range r.routes {
		route.ResolvedHandler = ""
		route.Ambiguous = false
		if ref, binding := idx.ResolveHandler(route.Handler, route.File, route.Service); binding.Found() {
			route.ResolvedHandler = ref.Qualified
			route.Ambiguous = binding == BindingAmbiguous
		}
		routes[i] = route
	}
	return NewRouteRegistry(routes)
}

// All returns a copy of every route
func (r *RouteRegistry) All() []types.RouteInfo {
	out := make([]types.RouteInfo, len(r.routes))
	copy(out, r.routes)
	return out
}

func (r *RouteRegistry) Len() int { return len(r.routes) }

// Unresolved counts routes without a bound handler
func (r *RouteRegistry) Unresolved() int {
	n := 0
	for _, route := range r.routes {
		if route.ResolvedHandler == "" {
			n++
		}
	}
	return n
}

// Ambiguous counts routes whose handler binding was a guess
func (r *RouteRegistry) Ambiguous() int {
	n := 0
	for _, route := range r.routes {
		if route.Ambiguous {
			n++
		}
	}
	return n
}

// Find matches method case-insensitively and path exactly
func (r *RouteRegistry) Find(method, path string) (types.RouteInfo, bool) {
	for _, route := range r.routes {
		if route.Path == path && strings.EqualFold(route.Method, method) {
			return route, true
		}
	}
	return types.RouteInfo{}, false
}

// ByHandler returns routes registered against a handler name
func (r *RouteRegistry) ByHandler(handler string) []types.RouteInfo {
	return r.pick(r.byHandler[handler])
}

// InFile returns routes registered in a workspace-relative file
func (r *RouteRegistry) InFile(rel string) []types.RouteInfo {
	return r.pick(r.byFile[rel])
}

// Keys returns "METHOD path" for every route
func (r *RouteRegistry) Keys() []string {
	out := make([]string, len(r.routes))
	for i, route := range r.routes {
		out[i] = route.Method + " " + route.Path
	}
	return out
}

// WithoutFile drops the routes registered in one file
func (r *RouteRegistry) WithoutFile(rel string) *RouteRegistry {
	if len(r.byFile[rel]) == 0 {
		return r
	}
	kept := make([]types.RouteInfo, 0, len(r.routes))
	for _, route := range r.routes {
		if route.File != rel {
			kept = append(kept, route)
		}
	}
	return NewRouteRegistry(kept)
}

func (r *RouteRegistry) pick(indices []int) []types.RouteInfo {
	out := make([]types.RouteInfo, 0, len(indices))
	for _, i := range indices {
		out = append(out, r.routes[i])
	}
	return out
}
