package parser

import (
	"sort"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// RouteMatch is one route registration found in a file
type RouteMatch struct {
	Method  string
	Path    string
	Handler string
	Line    int
}

var httpVerbs = map[string]bool{
	"get":     true,
	"post":    true,
	"put":     true,
	"patch":   true,
	"delete":  true,
	"head":    true,
	"options": true,
}

type verbHandler struct {
	verb    string
	handler string
}

// ScanRoutes finds HTTP route registrations with a literal path. Recognised
// shapes:
//
//	.route("/p", get(h).post(g))        method router chains
//	.route("/p", web::get().to(h))      actix route builders
//	.resource("/p").route(web::get().to(h))
//	.get("/p", h)                       direct verb registration
//	#[get("/p")] async fn h()           actix route attributes
//
// Registrations with a computed path or handler are skipped.
func ScanRoutes(content []byte) ([]RouteMatch, error) {
	tree, src, err := parseTree(content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var matches []RouteMatch
	stack := []*tree_sitter.Node{tree.RootNode()}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch n.Kind() {
		case "call_expression":
			matches = append(matches, routeCall(n, src)...)
		case "function_item":
			matches = append(matches, attributeRoutes(n, src)...)
		}

		children := namedChildren(n)
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Line != matches[j].Line {
			return matches[i].Line < matches[j].Line
		}
		return matches[i].Path < matches[j].Path
	})
	return matches, nil
}

func routeCall(call *tree_sitter.Node, src []byte) []RouteMatch {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Kind() != "field_expression" {
		return nil
	}
	field := fn.ChildByFieldName("field")
	method := nodeText(field, src)
	args := namedChildren(call.ChildByFieldName("arguments"))
	line := lineOf(field)

	switch {
	case method == "route" && len(args) >= 2:
		path, ok := stringLiteral(args[0], src)
		if !ok {
			return nil
		}
		return expand(path, line, verbHandlers(args[1], src))

	case method == "route" && len(args) == 1:
		path, ok := resourcePath(fn.ChildByFieldName("value"), src)
		if !ok {
			return nil
		}
		return expand(path, line, verbHandlers(args[0], src))

	case httpVerbs[method] && len(args) >= 2:
		path, ok := stringLiteral(args[0], src)
		if !ok {
			return nil
		}
		handler := trailingIdent(args[1], src)
		if handler == "" {
			return nil
		}
		return []RouteMatch{{Method: strings.ToUpper(method), Path: path, Handler: handler, Line: line}}
	}
	return nil
}

// attributeRoutes reads verb attributes stacked on a function item. The
// attributes are siblings that precede the function.
func attributeRoutes(fn *tree_sitter.Node, src []byte) []RouteMatch {
	name := nodeText(fn.ChildByFieldName("name"), src)
	if name == "" {
		return nil
	}

	var out []RouteMatch
	for sib := fn.PrevNamedSibling(); sib != nil; sib = sib.PrevNamedSibling() {
		switch sib.Kind() {
		case "line_comment", "block_comment":
			continue
		case "attribute_item":
		default:
			return out
		}
		verb, path, ok := attributeRoute(sib, src)
		if !ok {
			continue
		}
		// walking upwards, so prepend to keep source order
		out = append([]RouteMatch{{Method: strings.ToUpper(verb), Path: path, Handler: name, Line: lineOf(sib)}}, out...)
	}
	return out
}

// attributeRoute matches #[get("/p")] and #[actix_web::get("/p", ...)]
func attributeRoute(item *tree_sitter.Node, src []byte) (string, string, bool) {
	var attr *tree_sitter.Node
	for _, child := range namedChildren(item) {
		if child.Kind() == "attribute" {
			attr = child
			break
		}
	}
	children := namedChildren(attr)
	if len(children) == 0 {
		return "", "", false
	}
	verb := calleeName(children[0], src)
	if !httpVerbs[verb] {
		return "", "", false
	}

	args := attr.ChildByFieldName("arguments")
	if args == nil {
		for _, child := range children[1:] {
			if child.Kind() == "token_tree" {
				args = child
				break
			}
		}
	}
	toks := namedChildren(args)
	if len(toks) == 0 {
		return "", "", false
	}
	path, ok := stringLiteral(toks[0], src)
	return verb, path, ok
}

func expand(path string, line int, handlers []verbHandler) []RouteMatch {
	out := make([]RouteMatch, 0, len(handlers))
	for _, vh := range handlers {
		out = append(out, RouteMatch{
			Method:  strings.ToUpper(vh.verb),
			Path:    path,
			Handler: vh.handler,
			Line:    line,
		})
	}
	return out
}

// verbHandlers unpacks a method router expression such as get(a).post(b)
// or web::get().to(h)
func verbHandlers(expr *tree_sitter.Node, src []byte) []verbHandler {
	if expr == nil || expr.Kind() != "call_expression" {
		return nil
	}
	fn := expr.ChildByFieldName("function")
	args := namedChildren(expr.ChildByFieldName("arguments"))
	if fn == nil {
		return nil
	}

	switch fn.Kind() {
	case "identifier", "scoped_identifier":
		verb := calleeName(fn, src)
		if httpVerbs[verb] && len(args) >= 1 {
			if h := trailingIdent(args[0], src); h != "" {
				return []verbHandler{{verb: verb, handler: h}}
			}
		}
	case "field_expression":
		field := nodeText(fn.ChildByFieldName("field"), src)
		value := fn.ChildByFieldName("value")
		switch {
		case field == "to" && len(args) >= 1:
			if value == nil || value.Kind() != "call_expression" {
				return nil
			}
			verb := calleeName(value.ChildByFieldName("function"), src)
			if h := trailingIdent(args[0], src); httpVerbs[verb] && h != "" {
				return []verbHandler{{verb: verb, handler: h}}
			}
		case httpVerbs[field] && len(args) >= 1:
			out := verbHandlers(value, src)
			if h := trailingIdent(args[0], src); h != "" {
				out = append(out, verbHandler{verb: field, handler: h})
			}
			return out
		default:
			// layers and guards wrap the router: get(h).layer(x)
			return verbHandlers(value, src)
		}
	}
	return nil
}

// resourcePath matches a receiver of the form x.resource("/p") or web::resource("/p")
func resourcePath(recv *tree_sitter.Node, src []byte) (string, bool) {
	if recv == nil || recv.Kind() != "call_expression" {
		return "", false
	}
	if calleeName(recv.ChildByFieldName("function"), src) != "resource" {
		return "", false
	}
	args := namedChildren(recv.ChildByFieldName("arguments"))
	if len(args) == 0 {
		return "", false
	}
	return stringLiteral(args[0], src)
}

func trailingIdent(n *tree_sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	switch n.Kind() {
	case "identifier":
		return nodeText(n, src)
	case "scoped_identifier":
		return nodeText(n.ChildByFieldName("name"), src)
	case "field_expression":
		return nodeText(n.ChildByFieldName("field"), src)
	case "generic_function":
		return trailingIdent(n.ChildByFieldName("function"), src)
	}
	return ""
}

func stringLiteral(n *tree_sitter.Node, src []byte) (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Kind() {
	case "string_literal", "raw_string_literal":
	default:
		return "", false
	}
	for _, child := range namedChildren(n) {
		if child.Kind() == "string_content" {
			return nodeText(child, src), true
		}
	}
	text := nodeText(n, src)
	text = strings.TrimLeft(text, "r#")
	text = strings.TrimRight(text, "#")
	return strings.Trim(text, `"`), true
}
