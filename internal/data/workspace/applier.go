package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	domainerrors "modsplit/internal/core/errors"
	"modsplit/internal/core/ports"
	"modsplit/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

type Options struct {
	DryRun bool
}

// Applier commits edit sets to files under a workspace root. A commit either
// lands completely or leaves the workspace as it was.
type Applier struct {
	root    string
	journal ports.CommitJournal
	opts    Options
	mu      sync.Mutex

	rename func(oldpath, newpath string) error
}

var _ ports.EditApplier = (*Applier)(nil)

// NewApplier roots an applier at root. journal may be nil, in which case
// commits are not recoverable after a crash.
func NewApplier(root string, journal ports.CommitJournal, opts Options) (*Applier, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root %q: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat workspace root %q: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %q is not a directory", abs)
	}
	return &Applier{root: abs, journal: journal, opts: opts, rename: os.Rename}, nil
}

func (a *Applier) Root() string {
	return a.root
}

// plan is a validated commit: paths resolved, preconditions checked.
type plan struct {
	result      ports.ApplyResult
	sourceAbs   string
	destAbs     string
	missingDirs []string
	original    []byte
	updated     []byte
	contents    []byte
	sourceMode  fs.FileMode
}

func (a *Applier) Apply(ctx context.Context, set ports.EditSet) (ports.ApplyResult, error) {
	ctx, span := observability.Tracer.Start(ctx, "workspace.Apply", trace.WithAttributes(
		attribute.String("edit_set", set.ID.String()),
		attribute.String("source", set.Replace.File),
		attribute.Bool("dry_run", a.opts.DryRun),
	))
	defer span.End()

	start := time.Now()
	defer func() { observability.ApplyDuration.Observe(time.Since(start).Seconds()) }()

	a.mu.Lock()
	defer a.mu.Unlock()

	var (
		result ports.ApplyResult
		err    error
	)
	if a.opts.DryRun {
		result, err = a.dryRun(ctx, set)
	} else {
		result, err = a.commit(ctx, set)
	}
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			observability.ApplyFailures.WithLabelValues("CANCELLED").Inc()
			span.SetStatus(codes.Error, "cancelled")
			return result, err
		}
		code := domainerrors.CodeOf(err)
		observability.ApplyFailures.WithLabelValues(string(code)).Inc()
		span.SetStatus(codes.Error, string(code))
		return result, domainerrors.AddContext(err, domainerrors.CtxEditSet, set.ID.String())
	}
	return result, nil
}

// Plan validates set against the workspace without writing anything.
func (a *Applier) Plan(ctx context.Context, set ports.EditSet) (ports.ApplyResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dryRun(ctx, set)
}

func (a *Applier) dryRun(ctx context.Context, set ports.EditSet) (ports.ApplyResult, error) {
	p, err := a.prepare(ctx, set)
	if err != nil {
		return ports.ApplyResult{}, err
	}
	p.result.DryRun = true
	observability.AssistOutcomes.WithLabelValues(observability.OutcomeDryRun).Inc()
	return p.result, nil
}

func (a *Applier) prepare(ctx context.Context, set ports.EditSet) (*plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sourceRel := path.Clean(set.Replace.File)
	destRel := set.Create.Path.Resolve()
	sourceAbs, err := a.resolve(sourceRel)
	if err != nil {
		return nil, err
	}
	destAbs, err := a.resolve(destRel)
	if err != nil {
		return nil, err
	}
	if sourceAbs == destAbs {
		return nil, domainerrors.AddContext(
			domainerrors.New(domainerrors.CodeValidationError, "destination is the source file"),
			domainerrors.CtxPath, destRel)
	}

	if _, err := os.Lstat(destAbs); err == nil {
		observability.AssistOutcomes.WithLabelValues(observability.OutcomeApplyRejected).Inc()
		return nil, domainerrors.AddContext(
			domainerrors.New(domainerrors.CodeDestinationExists, "destination file already exists"),
			domainerrors.CtxPath, destRel)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "stat destination")
	}

	info, err := os.Stat(sourceAbs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domainerrors.AddContext(
				domainerrors.Wrap(err, domainerrors.CodeNotFound, "source file not found"),
				domainerrors.CtxPath, sourceRel)
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "stat source")
	}
	original, err := os.ReadFile(sourceAbs)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "read source")
	}

	r := set.Replace.Range
	if r.Start < 0 || r.Start > r.End || r.End > len(original) || string(original[r.Start:r.End]) != set.Replace.OldText {
		observability.AssistOutcomes.WithLabelValues(observability.OutcomeApplyRejected).Inc()
		return nil, domainerrors.AddContext(
			domainerrors.New(domainerrors.CodeStaleSource, "source changed since the edit was computed"),
			domainerrors.CtxPath, sourceRel)
	}
	updated := make([]byte, 0, len(original)-r.Len()+len(set.Replace.NewText))
	updated = append(updated, original[:r.Start]...)
	updated = append(updated, set.Replace.NewText...)
	updated = append(updated, original[r.End:]...)

	missing, err := a.missingDirs(filepath.Dir(destAbs))
	if err != nil {
		return nil, err
	}
	relDirs := make([]string, 0, len(missing))
	for _, dir := range missing {
		rel, err := filepath.Rel(a.root, dir)
		if err != nil {
			return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "relativize directory")
		}
		relDirs = append(relDirs, filepath.ToSlash(rel))
	}

	return &plan{
		result: ports.ApplyResult{
			EditSetID:   set.ID,
			SourcePath:  sourceRel,
			CreatedPath: destRel,
			CreatedDirs: relDirs,
		},
		sourceAbs:   sourceAbs,
		destAbs:     destAbs,
		missingDirs: missing,
		original:    original,
		updated:     updated,
		contents:    []byte(set.Create.Contents),
		sourceMode:  info.Mode().Perm(),
	}, nil
}

func (a *Applier) commit(ctx context.Context, set ports.EditSet) (ports.ApplyResult, error) {
	p, err := a.prepare(ctx, set)
	if err != nil {
		return ports.ApplyResult{}, err
	}

	if a.journal != nil {
		entry := ports.JournalEntry{
			ID:           set.ID,
			Label:        set.Label,
			SourcePath:   p.result.SourcePath,
			SourceBackup: p.original,
			CreatedPath:  p.result.CreatedPath,
			CreatedDirs:  p.result.CreatedDirs,
			UpdatedHash:  contentHash(p.updated),
		}
		if err := a.journal.Begin(ctx, entry); err != nil {
			return ports.ApplyResult{}, domainerrors.Wrap(err, domainerrors.CodeInternal, "record journal entry")
		}
	}

	if err := a.write(p); err != nil {
		observability.AssistOutcomes.WithLabelValues(observability.OutcomeRolledBack).Inc()
		if a.journal != nil {
			if jErr := a.journal.MarkRolledBack(context.WithoutCancel(ctx), set.ID, err.Error()); jErr != nil {
				slog.Warn("failed to mark journal entry rolled back", "id", set.ID, "error", jErr)
			}
		}
		return ports.ApplyResult{}, err
	}

	if a.journal != nil {
		if err := a.journal.MarkCommitted(context.WithoutCancel(ctx), set.ID); err != nil {
			slog.Warn("failed to mark journal entry committed", "id", set.ID, "error", err)
		}
	}
	observability.AssistOutcomes.WithLabelValues(observability.OutcomeCommitted).Inc()
	slog.Info("extracted module",
		"source", p.result.SourcePath,
		"created", p.result.CreatedPath,
		"dirs", len(p.result.CreatedDirs),
	)
	return p.result, nil
}

// write creates the new file, then swaps in the updated source. Anything it
// created is removed again on failure.
func (a *Applier) write(p *plan) (err error) {
	var (
		createdDirs []string
		createdFile bool
	)
	defer func() {
		if err == nil {
			return
		}
		if createdFile {
			if rmErr := os.Remove(p.destAbs); rmErr != nil {
				slog.Warn("rollback: failed to remove created file", "path", p.destAbs, "error", rmErr)
			}
		}
		removeDirs(createdDirs)
	}()

	for _, dir := range p.missingDirs {
		if mkErr := os.Mkdir(dir, dirPerm); mkErr != nil {
			return domainerrors.Wrap(mkErr, domainerrors.CodeInternal, "create directory")
		}
		createdDirs = append(createdDirs, dir)
	}

	f, err := os.OpenFile(p.destAbs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return domainerrors.AddContext(
				domainerrors.New(domainerrors.CodeDestinationExists, "destination file already exists"),
				domainerrors.CtxPath, p.result.CreatedPath)
		}
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "create destination")
	}
	createdFile = true
	if err := writeAndClose(f, p.contents); err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "write destination")
	}

	if err := a.replaceFile(p.sourceAbs, p.updated, p.sourceMode); err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "replace source")
	}
	return nil
}

// replaceFile writes data next to target and renames it into place.
func (a *Applier) replaceFile(target string, data []byte, mode fs.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".modsplit-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if err := writeAndClose(tmp, data); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := a.rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func writeAndClose(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// resolve maps a workspace-relative slash path to an absolute path, refusing
// anything that escapes the root.
func (a *Applier) resolve(rel string) (string, error) {
	local := filepath.FromSlash(path.Clean(rel))
	if !filepath.IsLocal(local) {
		return "", domainerrors.AddContext(
			domainerrors.New(domainerrors.CodeValidationError, "path escapes workspace root"),
			domainerrors.CtxPath, rel)
	}
	return filepath.Join(a.root, local), nil
}

// missingDirs lists directories between the root and dir that do not exist
// yet, outermost first.
func (a *Applier) missingDirs(dir string) ([]string, error) {
	var missing []string
	for cur := dir; cur != a.root; cur = filepath.Dir(cur) {
		info, err := os.Stat(cur)
		if err == nil {
			if !info.IsDir() {
				return nil, domainerrors.AddContext(
					domainerrors.New(domainerrors.CodeConflict, "destination parent is not a directory"),
					domainerrors.CtxPath, cur)
			}
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "stat destination directory")
		}
		missing = append([]string{cur}, missing...)
	}
	return missing, nil
}

// removeDirs removes directories innermost first; non-empty ones are kept.
func removeDirs(dirs []string) {
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := os.Remove(dirs[i]); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("rollback: failed to remove directory", "path", dirs[i], "error", err)
		}
	}
}
