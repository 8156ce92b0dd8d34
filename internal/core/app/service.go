package app

import (
	"context"
	stderrors "errors"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"modsplit/internal/core/errors"
	"modsplit/internal/core/ports"
	"modsplit/internal/engine/extract"
	"modsplit/internal/engine/syntax"
	"modsplit/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ExtractRequest struct {
	// File is workspace-relative or absolute under the project root.
	File   string
	Cursor Cursor
	DryRun bool
}

type ExtractResult struct {
	// Applicable is false when the cursor is not on an extractable module.
	Applicable bool
	File       string
	Offset     int
	EditSet    *ports.EditSet
	Applied    ports.ApplyResult
}

// ExtractModuleToFile runs the extract-module assist at the request cursor
// and commits the resulting edit set unless DryRun is set.
func (a *App) ExtractModuleToFile(ctx context.Context, req ExtractRequest) (ExtractResult, error) {
	ctx, span := observability.Tracer.Start(ctx, "app.ExtractModuleToFile", trace.WithAttributes(
		attribute.String("file", req.File),
		attribute.String("cursor", req.Cursor.String()),
		attribute.Bool("dry_run", req.DryRun),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return ExtractResult{}, err
	}

	file, err := a.relativeFile(req.File)
	if err != nil {
		return ExtractResult{}, err
	}

	tree, err := a.builder.Build(ctx)
	if err != nil {
		return ExtractResult{}, errors.AddContext(err, errors.CtxOperation, "build_module_tree")
	}

	parsed, ok := tree.File(file)
	if !ok {
		parsed, err = a.builder.ParseFile(file)
		if err != nil {
			observability.AssistOutcomes.WithLabelValues(observability.OutcomeParseFailure).Inc()
			if stderrors.Is(err, fs.ErrNotExist) {
				return ExtractResult{}, errors.AddContext(
					errors.Wrap(err, errors.CodeNotFound, "source file not found"), errors.CtxPath, file)
			}
			return ExtractResult{}, errors.AddContext(err, errors.CtxPath, file)
		}
	}

	offset, err := req.Cursor.OffsetIn(parsed.Source)
	if err != nil {
		return ExtractResult{}, errors.AddContext(err, errors.CtxPath, file)
	}

	assist := extract.NewAssist(tree, extract.Options{
		IndentWidth: a.Config.Format.IndentWidth,
		Extension:   a.Config.Crate.SourceExtension,
	})
	set, ok, err := assist.Extract(ctx, file, parsed, offset)
	if err != nil {
		return ExtractResult{}, err
	}
	result := ExtractResult{Applicable: ok, File: file, Offset: offset, EditSet: set}
	if !ok {
		return result, nil
	}

	if req.DryRun {
		result.Applied, err = a.applier.Plan(ctx, *set)
	} else {
		result.Applied, err = a.applier.Apply(ctx, *set)
	}
	return result, err
}

// Source returns the parsed snapshot of file, for previews.
func (a *App) Source(file string) (*syntax.File, error) {
	rel, err := a.relativeFile(file)
	if err != nil {
		return nil, err
	}
	return a.builder.ParseFile(rel)
}

// Recover settles commits interrupted by a crash.
func (a *App) Recover(ctx context.Context) (ports.RecoverReport, error) {
	return a.applier.Recover(ctx)
}

// History lists recent journaled commits, newest first.
func (a *App) History(ctx context.Context, limit int) ([]ports.JournalEntry, error) {
	if a.journal == nil {
		return nil, errors.New(errors.CodeNotSupported, "journal is disabled")
	}
	return a.journal.List(ctx, limit)
}

// relativeFile maps file to a clean slash path relative to the project root.
func (a *App) relativeFile(file string) (string, error) {
	raw := strings.TrimSpace(file)
	if raw == "" {
		return "", errors.New(errors.CodeValidationError, "file must not be empty")
	}
	if filepath.IsAbs(raw) {
		rel, err := filepath.Rel(a.Paths.ProjectRoot, raw)
		if err != nil {
			return "", errors.AddContext(
				errors.Wrap(err, errors.CodeValidationError, "file is not under the project root"), errors.CtxPath, raw)
		}
		raw = rel
	}
	rel := path.Clean(filepath.ToSlash(raw))
	if !filepath.IsLocal(filepath.FromSlash(rel)) {
		return "", errors.AddContext(
			errors.New(errors.CodeValidationError, "file is not under the project root"), errors.CtxPath, file)
	}
	return rel, nil
}
