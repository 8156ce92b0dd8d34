package modtree

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"

	"modsplit/internal/core/ports"
	"modsplit/internal/engine/syntax"
	"modsplit/internal/shared/observability"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultDirectoryRootFile = "mod.rs"
	defaultExtension         = ".rs"
	defaultCacheSize         = 512
)

type Options struct {
	// Roots are crate roots in addition to those found via Cargo.toml.
	Roots             []string
	DirectoryRootFile string
	Extension         string
	ExcludeDirs       []string
	ExcludeFiles      []string
	CacheSize         int
}

// Builder loads module trees from a workspace filesystem. Parsed files are
// cached by path and content hash, so rebuilding after a small edit only
// reparses what changed.
type Builder struct {
	fsys      fs.FS
	parser    *syntax.Parser
	opts      Options
	dirGlobs  []glob.Glob
	fileGlobs []glob.Glob
	cache     *lru.Cache[string, *syntax.File]
}

func NewBuilder(fsys fs.FS, parser *syntax.Parser, opts Options) (*Builder, error) {
	if strings.TrimSpace(opts.DirectoryRootFile) == "" {
		opts.DirectoryRootFile = defaultDirectoryRootFile
	}
	if strings.TrimSpace(opts.Extension) == "" {
		opts.Extension = defaultExtension
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}

	dirGlobs, err := compileGlobs(opts.ExcludeDirs, "dir")
	if err != nil {
		return nil, err
	}
	fileGlobs, err := compileGlobs(opts.ExcludeFiles, "file")
	if err != nil {
		return nil, err
	}
	cache, err := lru.New[string, *syntax.File](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create parse cache: %w", err)
	}

	return &Builder{
		fsys:      fsys,
		parser:    parser,
		opts:      opts,
		dirGlobs:  dirGlobs,
		fileGlobs: fileGlobs,
		cache:     cache,
	}, nil
}

func compileGlobs(patterns []string, kind string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude %s pattern %q: %w", kind, p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Build discovers crate roots and follows `mod x;` declarations from them.
func (b *Builder) Build(ctx context.Context) (*Tree, error) {
	ctx, span := observability.Tracer.Start(ctx, "modtree.Build")
	defer span.End()

	roots, err := DiscoverCrateRoots(b.fsys, b.opts.Roots)
	if err != nil {
		return nil, err
	}

	t := &Tree{
		byFile: make(map[string]*Module),
		files:  make(map[string]*syntax.File),
	}
	for _, root := range roots {
		if _, loaded := t.byFile[root]; loaded {
			continue
		}
		crate := newModule("", root, ports.DirectoryRoot, false, nil)
		t.Crates = append(t.Crates, crate)
		if err := b.load(ctx, t, crate); err != nil {
			return nil, err
		}
	}

	observability.ModuleTreeFiles.Set(float64(len(t.byFile)))
	span.SetAttributes(
		attribute.Int("crates", len(t.Crates)),
		attribute.Int("files", len(t.byFile)),
	)
	slog.Debug("module tree built", "crates", len(t.Crates), "files", len(t.byFile))
	return t, nil
}

func (b *Builder) load(ctx context.Context, t *Tree, m *Module) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.excluded(m.File) {
		slog.Debug("skipping excluded module file", "path", m.File)
		return nil
	}
	if _, loaded := t.byFile[m.File]; loaded {
		return nil
	}

	f, err := b.parseFile(m.File)
	if err != nil {
		slog.Warn("failed to load module file", "path", m.File, "error", err)
		return nil
	}
	t.byFile[m.File] = m
	t.files[m.File] = f

	for _, decl := range f.Modules() {
		if decl.Name == "" || decl.Scoped {
			continue
		}
		scope, ok := inlineScope(m, decl.Enclosing)
		if !ok {
			continue
		}
		if decl.HasBody() {
			scope.Children[decl.Name] = newModule(decl.Name, m.File, m.Kind, true, scope)
			continue
		}

		childPath, kind, found := b.locate(m, decl.Enclosing, decl.Name)
		if !found {
			slog.Debug("module file not found", "module", decl.Name, "declared_in", m.File)
			continue
		}
		child := newModule(decl.Name, childPath, kind, false, scope)
		scope.Children[decl.Name] = child
		if err := b.load(ctx, t, child); err != nil {
			return err
		}
	}
	return nil
}

func inlineScope(m *Module, enclosing []string) (*Module, bool) {
	scope := m
	for _, seg := range enclosing {
		next, ok := scope.Children[seg]
		if !ok {
			return nil, false
		}
		scope = next
	}
	return scope, true
}

// locate finds the file for `mod name;` declared in owner, possibly nested
// inside inline modules.
func (b *Builder) locate(owner *Module, inline []string, name string) (string, ports.FileKind, bool) {
	dir := path.Dir(owner.File)
	if owner.Kind == ports.NamedFile {
		dir = path.Join(dir, strings.TrimSuffix(path.Base(owner.File), b.opts.Extension))
	}
	for _, seg := range inline {
		dir = path.Join(dir, syntax.FileStem(seg))
	}

	stem := syntax.FileStem(name)
	named := path.Join(dir, stem+b.opts.Extension)
	if fileExists(b.fsys, named) {
		return named, ports.NamedFile, true
	}
	root := path.Join(dir, stem, b.opts.DirectoryRootFile)
	if fileExists(b.fsys, root) {
		return root, ports.DirectoryRoot, true
	}
	return "", ports.NamedFile, false
}

func (b *Builder) excluded(p string) bool {
	segments := strings.Split(path.Dir(p), "/")
	for _, seg := range segments {
		if seg == "." || seg == "" {
			continue
		}
		for _, g := range b.dirGlobs {
			if g.Match(seg) {
				return true
			}
		}
	}
	base := path.Base(p)
	for _, g := range b.fileGlobs {
		if g.Match(base) || g.Match(p) {
			return true
		}
	}
	return false
}

// ParseFile returns a parsed snapshot of p, reusing the cache when the
// content is unchanged.
func (b *Builder) ParseFile(p string) (*syntax.File, error) {
	return b.parseFile(path.Clean(p))
}

func (b *Builder) parseFile(p string) (*syntax.File, error) {
	data, err := fs.ReadFile(b.fsys, p)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	key := p + "@" + hex.EncodeToString(sum[:8])
	if f, ok := b.cache.Get(key); ok {
		return f, nil
	}
	f, err := b.parser.Parse(p, data)
	if err != nil {
		return nil, err
	}
	b.cache.Add(key, f)
	return f, nil
}

// CachedFiles reports how many parsed snapshots are held.
func (b *Builder) CachedFiles() int {
	return b.cache.Len()
}
