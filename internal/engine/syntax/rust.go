// # internal/engine/syntax/rust.go
package syntax

import (
	"bytes"
	"log/slog"
	"sort"
	"time"

	"modsplit/internal/core/errors"
	"modsplit/internal/shared/observability"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
)

const (
	kindModItem      = "mod_item"
	kindVisibility   = "visibility_modifier"
	kindStringLit    = "string_literal"
	kindRawStringLit = "raw_string_literal"
	kindBlockComment = "block_comment"
	kindBlock        = "block"
)

// Parser turns Rust source into File snapshots.
type Parser struct {
	pool *ParserPool
}

func NewParser() *Parser {
	lang := sitter.NewLanguage(tree_sitter_rust.Language())
	return &Parser{pool: NewParserPool(lang)}
}

// File is an immutable view over the module declarations of one source file.
type File struct {
	Path      string
	Source    []byte
	HasErrors bool
	modules   []*ModuleDecl
}

func (p *Parser) Parse(path string, content []byte) (*File, error) {
	start := time.Now()
	defer func() {
		observability.ParseDuration.Observe(time.Since(start).Seconds())
	}()

	sp := p.pool.Get()
	defer p.pool.Put(sp)

	tree := sp.Parse(content, nil)
	if tree == nil {
		return nil, errors.AddContext(errors.New(errors.CodeInternal, "parse failed"), errors.CtxPath, path)
	}
	defer tree.Close()

	root := tree.RootNode()
	f := &File{
		Path:      path,
		Source:    content,
		HasErrors: root.HasError(),
	}
	if f.HasErrors {
		slog.Debug("rust source has syntax errors; continuing with recovered tree", "path", path)
	}
	collectModules(root, content, nil, false, &f.modules)
	return f, nil
}

// Modules returns every module declaration in document order.
func (f *File) Modules() []*ModuleDecl {
	out := make([]*ModuleDecl, len(f.modules))
	copy(out, f.modules)
	return out
}

// ModuleAt returns the smallest module declaration covering offset.
func (f *File) ModuleAt(offset int) (*ModuleDecl, bool) {
	if offset < 0 || offset > len(f.Source) {
		return nil, false
	}
	var best *ModuleDecl
	for _, decl := range f.modules {
		if !decl.Range.Covers(offset) {
			continue
		}
		if best == nil || decl.Range.Len() < best.Range.Len() {
			best = decl
		}
	}
	return best, best != nil
}

// Text returns the source slice for r.
func (f *File) Text(r TextRange) string {
	if r.Start < 0 || r.End > len(f.Source) || r.Start > r.End {
		return ""
	}
	return string(f.Source[r.Start:r.End])
}

func collectModules(node *sitter.Node, source []byte, enclosing []string, scoped bool, out *[]*ModuleDecl) {
	if node == nil {
		return
	}
	switch node.Kind() {
	case kindModItem:
		decl := buildModuleDecl(node, source, enclosing)
		decl.Scoped = scoped
		*out = append(*out, decl)
		if body := node.ChildByFieldName("body"); body != nil && decl.Name != "" {
			inner := append(append([]string(nil), enclosing...), decl.Name)
			for i := uint(0); i < body.ChildCount(); i++ {
				collectModules(body.Child(i), source, inner, scoped, out)
			}
		}
		return
	case kindBlock:
		scoped = true
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		collectModules(node.Child(i), source, enclosing, scoped, out)
	}
}

func buildModuleDecl(node *sitter.Node, source []byte, enclosing []string) *ModuleDecl {
	decl := &ModuleDecl{
		Range:     nodeRange(node),
		Enclosing: append([]string(nil), enclosing...),
	}
	if name := node.ChildByFieldName("name"); name != nil {
		decl.Name = nodeText(name, source)
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == kindVisibility {
			decl.Visibility = nodeText(child, source)
			break
		}
	}
	decl.Indent = lineIndent(source, decl.Range.Start)

	if body := node.ChildByFieldName("body"); body != nil {
		r := nodeRange(body)
		list := &ItemList{Range: r, Text: string(source[r.Start:r.End])}
		collectOpaque(body, r.Start, &list.Opaque)
		sort.Slice(list.Opaque, func(i, j int) bool { return list.Opaque[i].Start < list.Opaque[j].Start })
		decl.Body = list
	}
	return decl
}

func collectOpaque(node *sitter.Node, base int, out *[]TextRange) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case kindStringLit, kindRawStringLit, kindBlockComment:
			r := nodeRange(child)
			*out = append(*out, TextRange{Start: r.Start - base, End: r.End - base})
			continue
		}
		collectOpaque(child, base, out)
	}
}

// lineIndent returns the leading whitespace of the line containing offset.
func lineIndent(source []byte, offset int) string {
	lineStart := bytes.LastIndexByte(source[:offset], '\n') + 1
	end := lineStart
	for end < len(source) && (source[end] == ' ' || source[end] == '\t') {
		end++
	}
	if end > offset {
		end = offset
	}
	return string(source[lineStart:end])
}

func nodeRange(node *sitter.Node) TextRange {
	return TextRange{Start: int(node.StartByte()), End: int(node.EndByte())}
}

func nodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	return string(source[node.StartByte():node.EndByte()])
}
