package app

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"modsplit/internal/core/config"
	"modsplit/internal/core/ports"
	"modsplit/internal/data/journal"
	"modsplit/internal/data/workspace"
	"modsplit/internal/engine/modtree"
	"modsplit/internal/engine/syntax"
)

type App struct {
	Config *config.Config
	Paths  config.ResolvedPaths

	parser  *syntax.Parser
	builder *modtree.Builder
	applier *workspace.Applier
	journal ports.CommitJournal
	closers []func() error
}

// Dependencies lets callers and tests replace the filesystem view and the
// commit journal. Zero values select the defaults derived from config.
type Dependencies struct {
	FS      fs.FS
	Journal ports.CommitJournal
	// DryRun makes every Apply a plan only.
	DryRun bool
}

func New(cfg *config.Config, paths config.ResolvedPaths) (*App, error) {
	return NewWithDependencies(cfg, paths, Dependencies{})
}

func NewWithDependencies(cfg *config.Config, paths config.ResolvedPaths, deps Dependencies) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	a := &App{Config: cfg, Paths: paths, parser: syntax.NewParser()}

	fsys := deps.FS
	if fsys == nil {
		fsys = os.DirFS(paths.ProjectRoot)
	}
	builder, err := modtree.NewBuilder(fsys, a.parser, modtree.Options{
		Roots:             cfg.Crate.Roots,
		DirectoryRootFile: cfg.Crate.DirectoryRootFile,
		Extension:         cfg.Crate.SourceExtension,
		ExcludeDirs:       cfg.Exclude.Dirs,
		ExcludeFiles:      cfg.Exclude.Files,
		CacheSize:         cfg.Cache.Files,
	})
	if err != nil {
		return nil, err
	}
	a.builder = builder

	a.journal = deps.Journal
	if a.journal == nil && cfg.Journal.IsEnabled() {
		store, err := journal.Open(paths.JournalPath, cfg.Journal.BusyTimeout)
		if err != nil {
			return nil, err
		}
		a.journal = store
		a.closers = append(a.closers, store.Close)
	}

	applier, err := workspace.NewApplier(paths.ProjectRoot, a.journal, workspace.Options{DryRun: deps.DryRun})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.applier = applier

	slog.Debug("app initialized",
		"root", paths.ProjectRoot,
		"journal", a.journal != nil,
		"dry_run", deps.DryRun,
	)
	return a, nil
}

func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
