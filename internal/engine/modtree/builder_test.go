package modtree

import (
	"context"
	"testing"
	"testing/fstest"

	"modsplit/internal/core/ports"
	"modsplit/internal/engine/syntax"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapFS(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, data := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(data)}
	}
	return fsys
}

func buildTree(t *testing.T, fsys fstest.MapFS, opts Options) (*Tree, *Builder) {
	t.Helper()
	b, err := NewBuilder(fsys, syntax.NewParser(), opts)
	require.NoError(t, err)
	tree, err := b.Build(context.Background())
	require.NoError(t, err)
	return tree, b
}

// resolveIn parses file from the tree and resolves the declaration called name.
func resolveIn(t *testing.T, tree *Tree, file, name string) (ports.ModuleEntity, bool) {
	t.Helper()
	f, ok := tree.File(file)
	require.True(t, ok, "file %s not in tree", file)
	for _, decl := range f.Modules() {
		if decl.Name == name {
			return tree.Resolve(file, decl)
		}
	}
	t.Fatalf("module %q not declared in %s", name, file)
	return ports.ModuleEntity{}, false
}

func TestBuild_FollowsModuleDeclarations(t *testing.T) {
	fsys := mapFS(map[string]string{
		"src/main.rs":          "mod tests { fn t() {} }\nmod named;\nmod dir;\n",
		"src/named.rs":         "mod inner { fn f() {} }\nmod leaf;\n",
		"src/named/leaf.rs":    "fn leaf() {}\n",
		"src/dir/mod.rs":       "mod inner { fn f() {} }\nmod deep;\n",
		"src/dir/deep/mod.rs":  "pub fn deep() {}\n",
		"src/unreachable.rs":   "fn nope() {}\n",
		"src/named/ignored.rs": "fn nope() {}\n",
	})
	tree, _ := buildTree(t, fsys, Options{})

	require.Len(t, tree.Crates, 1)
	assert.Equal(t, "src/main.rs", tree.Crates[0].File)
	assert.Equal(t, []string{
		"src/dir/deep/mod.rs",
		"src/dir/mod.rs",
		"src/main.rs",
		"src/named.rs",
		"src/named/leaf.rs",
	}, tree.Files())

	deep, ok := tree.ModuleForFile("src/dir/deep/mod.rs")
	require.True(t, ok)
	assert.Equal(t, ports.DirectoryRoot, deep.Kind)
	assert.Equal(t, []string{"dir", "deep"}, deep.Path())

	leaf, ok := tree.ModuleForFile("./src/named/leaf.rs")
	require.True(t, ok)
	assert.Equal(t, ports.NamedFile, leaf.Kind)
	assert.Equal(t, []string{"named", "leaf"}, leaf.Path())
}

func TestResolve_ParentKinds(t *testing.T) {
	fsys := mapFS(map[string]string{
		"src/main.rs":      "mod tests { fn t() {} }\nmod submodule;\nmod other;\n",
		"src/submodule.rs": "mod inner { fn f() {} }\n",
		"src/other/mod.rs": "mod inner { fn f() {} }\n",
	})
	tree, _ := buildTree(t, fsys, Options{})

	tests := []struct {
		name   string
		file   string
		module string
		parent ports.ParentModule
		path   []string
	}{
		{
			name:   "crate root",
			file:   "src/main.rs",
			module: "tests",
			parent: ports.ParentModule{Kind: ports.DirectoryRoot},
			path:   []string{"tests"},
		},
		{
			name:   "named file",
			file:   "src/submodule.rs",
			module: "inner",
			parent: ports.ParentModule{Name: "submodule", Kind: ports.NamedFile},
			path:   []string{"submodule", "inner"},
		},
		{
			name:   "directory root file",
			file:   "src/other/mod.rs",
			module: "inner",
			parent: ports.ParentModule{Name: "other", Kind: ports.DirectoryRoot},
			path:   []string{"other", "inner"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entity, ok := resolveIn(t, tree, tt.file, tt.module)
			require.True(t, ok)
			require.NotNil(t, entity.Parent)
			assert.Equal(t, tt.parent.Name, entity.Parent.Name)
			assert.Equal(t, tt.parent.Kind, entity.Parent.Kind)
			assert.Empty(t, entity.Parent.Inline)
			assert.Equal(t, tt.path, entity.Path)
			assert.Equal(t, tt.file, entity.File)
		})
	}
}

func TestResolve_NestedInlineModules(t *testing.T) {
	fsys := mapFS(map[string]string{
		"src/lib.rs": "mod a {\n    mod b {\n        fn f() {}\n    }\n    mod c;\n}\n",
		"src/a/c.rs": "fn c() {}\n",
	})
	tree, _ := buildTree(t, fsys, Options{})

	entity, ok := resolveIn(t, tree, "src/lib.rs", "b")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, entity.Path)
	assert.Equal(t, []string{"a"}, entity.Parent.Inline)
	assert.Equal(t, ports.DirectoryRoot, entity.Parent.Kind)

	c, ok := tree.ModuleForFile("src/a/c.rs")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "c"}, c.Path())
}

func TestBuild_RawIdentifierFiles(t *testing.T) {
	fsys := mapFS(map[string]string{
		"src/lib.rs":         "mod r#type;\nmod r#fn {\n    mod r#loop;\n}\n",
		"src/type.rs":        "mod r#match { }\n",
		"src/fn/loop/mod.rs": "fn l() {}\n",
	})
	tree, _ := buildTree(t, fsys, Options{})
	assert.Equal(t, []string{"src/fn/loop/mod.rs", "src/lib.rs", "src/type.rs"}, tree.Files())

	entity, ok := resolveIn(t, tree, "src/type.rs", "r#match")
	require.True(t, ok)
	assert.Equal(t, []string{"r#type", "r#match"}, entity.Path)
	assert.Equal(t, "r#type", entity.Parent.Name)
	assert.Equal(t, ports.NamedFile, entity.Parent.Kind)
}

func TestResolve_BlockScopedModuleDeclines(t *testing.T) {
	fsys := mapFS(map[string]string{
		"src/main.rs": "fn main() {\n    mod m {\n        fn f() {}\n    }\n    mod n;\n}\n",
		"src/n.rs":    "fn n() {}\n",
	})
	tree, _ := buildTree(t, fsys, Options{})
	assert.Equal(t, []string{"src/main.rs"}, tree.Files(), "block-scoped `mod n;` is not followed")

	_, ok := resolveIn(t, tree, "src/main.rs", "m")
	assert.False(t, ok)
	root, _ := tree.ModuleForFile("src/main.rs")
	assert.Empty(t, root.Children)
}

func TestBuild_CargoAutoTargets(t *testing.T) {
	fsys := mapFS(map[string]string{
		"Cargo.toml":              "[package]\nname = \"demo\"\n",
		"src/lib.rs":              "",
		"src/bin/tool/main.rs":    "mod helpers;\nmod cli {\n    fn run() {}\n}\n",
		"src/bin/tool/helpers.rs": "fn h() {}\n",
		"examples/demo.rs":        "mod setup {\n    fn s() {}\n}\n",
	})
	tree, _ := buildTree(t, fsys, Options{})

	crates := make([]string, 0, len(tree.Crates))
	for _, c := range tree.Crates {
		crates = append(crates, c.File)
	}
	assert.Equal(t, []string{"src/lib.rs", "src/bin/tool/main.rs", "examples/demo.rs"}, crates)
	assert.Contains(t, tree.Files(), "src/bin/tool/helpers.rs")

	for file, module := range map[string]string{"src/bin/tool/main.rs": "cli", "examples/demo.rs": "setup"} {
		entity, ok := resolveIn(t, tree, file, module)
		require.True(t, ok, file)
		assert.Equal(t, ports.DirectoryRoot, entity.Parent.Kind)
		assert.Equal(t, []string{module}, entity.Path)
	}
}

func TestResolve_UnknownFileOrModule(t *testing.T) {
	fsys := mapFS(map[string]string{
		"src/lib.rs":    "mod missing;\n",
		"src/orphan.rs": "mod m { }\n",
	})
	tree, b := buildTree(t, fsys, Options{})

	f, err := b.ParseFile("src/orphan.rs")
	require.NoError(t, err)
	_, ok := tree.Resolve("src/orphan.rs", f.Modules()[0])
	assert.False(t, ok, "file outside any crate must not resolve")

	_, ok = tree.Resolve("src/lib.rs", nil)
	assert.False(t, ok)

	root, _ := tree.File("src/lib.rs")
	_, ok = tree.Resolve("src/lib.rs", root.Modules()[0])
	assert.False(t, ok, "declaration whose file is missing must not resolve")
}

func TestBuild_CycleGuard(t *testing.T) {
	fsys := mapFS(map[string]string{
		"src/lib.rs":   "mod a;\n",
		"src/a/mod.rs": "mod b;\n",
		"src/a/b.rs":   "fn b() {}\n",
	})
	tree, _ := buildTree(t, fsys, Options{Roots: []string{"src/a/mod.rs"}})
	assert.Len(t, tree.Crates, 1, "root already reached through another crate is not reloaded")
	assert.Len(t, tree.Files(), 3)
}

func TestBuild_ExcludePatterns(t *testing.T) {
	fsys := mapFS(map[string]string{
		"src/lib.rs":     "mod gen;\nmod keep;\nmod skipped;\n",
		"src/gen/mod.rs": "fn g() {}\n",
		"src/keep.rs":    "fn k() {}\n",
		"src/skipped.rs": "fn s() {}\n",
	})
	tree, _ := buildTree(t, fsys, Options{
		ExcludeDirs:  []string{"gen"},
		ExcludeFiles: []string{"skip*.rs"},
	})
	assert.Equal(t, []string{"src/keep.rs", "src/lib.rs"}, tree.Files())
}

func TestNewBuilder_InvalidGlob(t *testing.T) {
	_, err := NewBuilder(fstest.MapFS{}, syntax.NewParser(), Options{ExcludeDirs: []string{"[unterminated"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid exclude dir pattern")
}

func TestBuild_CachesUnchangedFiles(t *testing.T) {
	fsys := mapFS(map[string]string{
		"src/lib.rs": "mod a;\n",
		"src/a.rs":   "fn a() {}\n",
	})
	b, err := NewBuilder(fsys, syntax.NewParser(), Options{})
	require.NoError(t, err)

	first, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, b.CachedFiles())

	second, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, b.CachedFiles())
	f1, _ := first.File("src/a.rs")
	f2, _ := second.File("src/a.rs")
	assert.Same(t, f1, f2)

	fsys["src/a.rs"] = &fstest.MapFile{Data: []byte("fn a() { changed(); }\n")}
	third, err := b.Build(context.Background())
	require.NoError(t, err)
	f3, _ := third.File("src/a.rs")
	assert.NotSame(t, f1, f3)
	assert.Equal(t, 3, b.CachedFiles())
}

func TestBuild_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b, err := NewBuilder(mapFS(map[string]string{"src/lib.rs": ""}), syntax.NewParser(), Options{})
	require.NoError(t, err)
	_, err = b.Build(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
