// Package parser turns Rust source into immutable structural records using
// tree-sitter. Every entry point is a pure function of its input bytes; any
// traversal state lives on the stack of a single call.
package parser

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"

	lwierrors "github.com/standardbeagle/lwi/internal/errors"
	"github.com/standardbeagle/lwi/internal/types"
)

// SourceExtension is the indexed file extension
const SourceExtension = ".rs"

// ErrSyntax is wrapped by the ParseError returned for trees containing error nodes
var ErrSyntax = errors.New("syntax error")

var (
	rustLanguage     *tree_sitter.Language
	rustLanguageOnce sync.Once
	parserPool       sync.Pool
)

func language() *tree_sitter.Language {
	rustLanguageOnce.Do(func() {
		rustLanguage = tree_sitter.NewLanguage(tree_sitter_rust.Language())
		parserPool.New = func() any {
			p := tree_sitter.NewParser()
			if err := p.SetLanguage(rustLanguage); err != nil {
				p.Close()
				return nil
			}
			return p
		}
	})
	return rustLanguage
}

// FileStructure is the result of parsing one file
type FileStructure struct {
	Functions []types.FunctionInfo
	Structs   []types.StructInfo
}

// Parse extracts functions, methods and structs from Rust source. A tree
// with syntax errors yields a *errors.ParseError wrapping ErrSyntax and no
// records.
func Parse(content []byte) (*FileStructure, error) {
	tree, src, err := parseTree(content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	ex := &extractor{src: src}
	ex.visitItems(tree.RootNode(), nil, "")

	sort.SliceStable(ex.functions, func(i, j int) bool { return ex.functions[i].StartLine < ex.functions[j].StartLine })
	sort.SliceStable(ex.structs, func(i, j int) bool { return ex.structs[i].StartLine < ex.structs[j].StartLine })

	return &FileStructure{Functions: ex.functions, Structs: ex.structs}, nil
}

// parseTree parses content into a tree. The returned buffer is the copy the
// tree references and must be used for all text extraction.
func parseTree(content []byte) (tree *tree_sitter.Tree, src []byte, err error) {
	language()

	p, _ := parserPool.Get().(*tree_sitter.Parser)
	if p == nil {
		return nil, nil, lwierrors.NewParseError("", 0, 0, errors.New("rust grammar unavailable"))
	}
	defer parserPool.Put(p)

	defer func() {
		if r := recover(); r != nil {
			tree = nil
			err = lwierrors.NewParseError("", 0, 0, fmt.Errorf("parser panic: %v", r))
		}
	}()

	// The C parser may retain the buffer; give it a private copy
	src = make([]byte, len(content))
	copy(src, content)

	tree = p.Parse(src, nil)
	if tree == nil {
		return nil, nil, lwierrors.NewParseError("", 0, 0, errors.New("parser returned no tree"))
	}

	root := tree.RootNode()
	if root.HasError() {
		line, col := firstErrorPosition(root)
		tree.Close()
		return nil, nil, lwierrors.NewParseError("", line, col, ErrSyntax)
	}
	return tree, src, nil
}

// firstErrorPosition returns the 1-indexed position of the first error or missing node
func firstErrorPosition(root *tree_sitter.Node) (int, int) {
	stack := []*tree_sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.IsError() || n.IsMissing() {
			pos := n.StartPosition()
			return int(pos.Row) + 1, int(pos.Column) + 1
		}
		if !n.HasError() {
			continue
		}
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			if child := n.Child(uint(i)); child != nil {
				stack = append(stack, child)
			}
		}
	}
	return 0, 0
}

func nodeText(n *tree_sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return string(src[n.StartByte():n.EndByte()])
}

func lineOf(n *tree_sitter.Node) int {
	return int(n.StartPosition().Row) + 1
}

// namedChildren returns the named children of n in order
func namedChildren(n *tree_sitter.Node) []*tree_sitter.Node {
	if n == nil {
		return nil
	}
	count := n.NamedChildCount()
	out := make([]*tree_sitter.Node, 0, count)
	for i := uint(0); i < count; i++ {
		if child := n.NamedChild(i); child != nil {
			out = append(out, child)
		}
	}
	return out
}
