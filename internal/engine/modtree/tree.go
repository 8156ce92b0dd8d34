package modtree

import (
	"path"
	"sort"

	"modsplit/internal/core/ports"
	"modsplit/internal/engine/syntax"
)

// Module is a node of a crate's module tree. File-backed modules own a file;
// inline modules live inside their parent's file.
type Module struct {
	Name     string
	File     string
	Kind     ports.FileKind
	Inline   bool
	Parent   *Module
	Children map[string]*Module
}

func newModule(name, file string, kind ports.FileKind, inline bool, parent *Module) *Module {
	return &Module{
		Name:     name,
		File:     file,
		Kind:     kind,
		Inline:   inline,
		Parent:   parent,
		Children: make(map[string]*Module),
	}
}

// Path returns the module path from the crate root, excluding the root.
func (m *Module) Path() []string {
	var out []string
	for cur := m; cur != nil && cur.Parent != nil; cur = cur.Parent {
		out = append(out, cur.Name)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Tree is the module graph of every crate found in a workspace.
type Tree struct {
	Crates []*Module
	byFile map[string]*Module
	files  map[string]*syntax.File
}

var _ ports.SemanticQuery = (*Tree)(nil)

// Resolve maps a declaration in file to its module entity.
func (t *Tree) Resolve(file string, decl *syntax.ModuleDecl) (ports.ModuleEntity, bool) {
	if decl == nil || decl.Name == "" || decl.Scoped {
		return ports.ModuleEntity{}, false
	}
	owner, ok := t.byFile[path.Clean(file)]
	if !ok {
		return ports.ModuleEntity{}, false
	}
	scope := owner
	for _, seg := range decl.Enclosing {
		next, ok := scope.Children[seg]
		if !ok || !next.Inline {
			return ports.ModuleEntity{}, false
		}
		scope = next
	}
	mod, ok := scope.Children[decl.Name]
	if !ok {
		return ports.ModuleEntity{}, false
	}

	return ports.ModuleEntity{
		Name: mod.Name,
		Path: mod.Path(),
		File: mod.File,
		Parent: &ports.ParentModule{
			Name:   owner.Name,
			Kind:   owner.Kind,
			Inline: append([]string(nil), decl.Enclosing...),
		},
	}, true
}

// ModuleForFile returns the file-backed module for file.
func (t *Tree) ModuleForFile(file string) (*Module, bool) {
	m, ok := t.byFile[path.Clean(file)]
	return m, ok
}

// File returns the parsed snapshot loaded while building the tree.
func (t *Tree) File(file string) (*syntax.File, bool) {
	f, ok := t.files[path.Clean(file)]
	return f, ok
}

// Files lists every file reachable from a crate root, sorted.
func (t *Tree) Files() []string {
	out := make([]string, 0, len(t.byFile))
	for f := range t.byFile {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
