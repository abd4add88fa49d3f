package parser

import (
	"sort"
	"strconv"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/lwi/internal/types"
)

// extractor accumulates records for a single Parse call
type extractor struct {
	src       []byte
	functions []types.FunctionInfo
	structs   []types.StructInfo
}

// visitItems walks the items of a source file, declaration list or module body
func (e *extractor) visitItems(node *tree_sitter.Node, scope []string, owner string) {
	for _, child := range namedChildren(node) {
		e.visitItem(child, scope, owner)
	}
}

func (e *extractor) visitItem(n *tree_sitter.Node, scope []string, owner string) {
	switch n.Kind() {
	case "function_item":
		e.function(n, scope, owner)
	case "struct_item":
		e.structItem(n)
	case "impl_item":
		e.visitItems(n.ChildByFieldName("body"), scope, typeName(n.ChildByFieldName("type"), e.src))
	case "trait_item":
		e.visitItems(n.ChildByFieldName("body"), scope, nodeText(n.ChildByFieldName("name"), e.src))
	case "mod_item":
		if body := n.ChildByFieldName("body"); body != nil {
			inner := append(append([]string(nil), scope...), nodeText(n.ChildByFieldName("name"), e.src))
			e.visitItems(body, inner, "")
		}
	}
}

func (e *extractor) function(n *tree_sitter.Node, scope []string, owner string) {
	name := nodeText(n.ChildByFieldName("name"), e.src)
	start, end := lineOf(n), int(n.EndPosition().Row)+1
	if name == "" || start <= 0 || end < start {
		return
	}

	fn := types.FunctionInfo{
		Name:       name,
		Owner:      owner,
		Scope:      strings.Join(scope, "::"),
		Visibility: visibility(n, e.src),
		StartLine:  start,
		EndLine:    end,
		ReturnType: collapse(nodeText(n.ChildByFieldName("return_type"), e.src)),
		Parameters: []string{},
		Calls:      []string{},
	}

	for _, child := range namedChildren(n) {
		if child.Kind() == "function_modifiers" && strings.Contains(nodeText(child, e.src), "async") {
			fn.IsAsync = true
		}
	}

	for _, p := range namedChildren(n.ChildByFieldName("parameters")) {
		switch p.Kind() {
		case "parameter", "self_parameter", "variadic_parameter":
			fn.Parameters = append(fn.Parameters, collapse(nodeText(p, e.src)))
		}
	}

	body := n.ChildByFieldName("body")
	if body != nil {
		fn.Signature = collapse(string(e.src[n.StartByte():body.StartByte()]))
		fn.CallSites = e.collectCalls(body, scope)
	} else {
		fn.Signature = collapse(nodeText(n, e.src))
	}
	fn.Calls = uniqueNames(fn.CallSites)

	e.functions = append(e.functions, fn)
}

// collectCalls records every call expression in body. Nested items are
// extracted as records of their own and their calls are not attributed to
// the enclosing function.
func (e *extractor) collectCalls(body *tree_sitter.Node, scope []string) []types.CallSite {
	var sites []types.CallSite
	stack := []*tree_sitter.Node{body}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch n.Kind() {
		case "function_item", "struct_item", "impl_item", "trait_item", "mod_item":
			e.visitItem(n, scope, "")
			continue
		case "call_expression":
			if name := calleeName(n.ChildByFieldName("function"), e.src); name != "" {
				sites = append(sites, types.CallSite{Name: name, Line: lineOf(n)})
			}
		}

		children := namedChildren(n)
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}

	sort.SliceStable(sites, func(i, j int) bool { return sites[i].Line < sites[j].Line })
	return sites
}

func (e *extractor) structItem(n *tree_sitter.Node) {
	name := nodeText(n.ChildByFieldName("name"), e.src)
	start, end := lineOf(n), int(n.EndPosition().Row)+1
	if name == "" || start <= 0 || end < start {
		return
	}

	st := types.StructInfo{
		Name:       name,
		Visibility: visibility(n, e.src),
		StartLine:  start,
		EndLine:    end,
		Fields:     []types.FieldInfo{},
	}

	body := n.ChildByFieldName("body")
	switch {
	case body == nil:
	case body.Kind() == "field_declaration_list":
		for _, f := range namedChildren(body) {
			if f.Kind() != "field_declaration" {
				continue
			}
			st.Fields = append(st.Fields, types.FieldInfo{
				Name:       nodeText(f.ChildByFieldName("name"), e.src),
				Type:       collapse(nodeText(f.ChildByFieldName("type"), e.src)),
				Visibility: visibility(f, e.src),
			})
		}
	case body.Kind() == "ordered_field_declaration_list":
		pending := types.VisibilityPrivate
		for _, f := range namedChildren(body) {
			switch f.Kind() {
			case "visibility_modifier":
				pending = visibilityOf(nodeText(f, e.src))
			case "attribute_item", "line_comment", "block_comment":
			default:
				st.Fields = append(st.Fields, types.FieldInfo{
					Name:       strconv.Itoa(len(st.Fields)),
					Type:       collapse(nodeText(f, e.src)),
					Visibility: pending,
				})
				pending = types.VisibilityPrivate
			}
		}
	}

	e.structs = append(e.structs, st)
}

// calleeName returns the simple trailing name of a call target
func calleeName(fn *tree_sitter.Node, src []byte) string {
	if fn == nil {
		return ""
	}
	switch fn.Kind() {
	case "identifier":
		return nodeText(fn, src)
	case "scoped_identifier":
		return nodeText(fn.ChildByFieldName("name"), src)
	case "field_expression":
		return nodeText(fn.ChildByFieldName("field"), src)
	case "generic_function":
		return calleeName(fn.ChildByFieldName("function"), src)
	}
	return ""
}

// typeName returns the bare name of an impl target type
func typeName(n *tree_sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	switch n.Kind() {
	case "type_identifier", "primitive_type":
		return nodeText(n, src)
	case "generic_type", "reference_type":
		return typeName(n.ChildByFieldName("type"), src)
	case "scoped_type_identifier":
		return nodeText(n.ChildByFieldName("name"), src)
	}
	return collapse(nodeText(n, src))
}

func visibility(n *tree_sitter.Node, src []byte) types.Visibility {
	for _, child := range namedChildren(n) {
		if child.Kind() == "visibility_modifier" {
			return visibilityOf(nodeText(child, src))
		}
	}
	return types.VisibilityPrivate
}

func visibilityOf(text string) types.Visibility {
	text = strings.ReplaceAll(text, " ", "")
	switch {
	case text == "pub":
		return types.VisibilityPublic
	case text == "pub(crate)" || text == "crate":
		return types.VisibilityCrate
	case strings.HasPrefix(text, "pub("):
		return types.VisibilityRestricted
	}
	return types.VisibilityPrivate
}

func uniqueNames(sites []types.CallSite) []string {
	seen := make(map[string]bool, len(sites))
	names := make([]string, 0, len(sites))
	for _, s := range sites {
		if !seen[s.Name] {
			seen[s.Name] = true
			names = append(names, s.Name)
		}
	}
	sort.Strings(names)
	return names
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
