package extract

import (
	"context"
	"log/slog"

	"modsplit/internal/core/ports"
	"modsplit/internal/shared/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	AssistID    = "extract_module_to_file"
	AssistKind  = "refactor.extract"
	AssistLabel = "Extract module to file"
)

type Options struct {
	IndentWidth int
	Extension   string
}

// Assist computes the extract-module edit set for a cursor position. It
// reads snapshots only and never touches the filesystem.
type Assist struct {
	semantic ports.SemanticQuery
	opts     Options
	newID    func() uuid.UUID
}

func NewAssist(semantic ports.SemanticQuery, opts Options) *Assist {
	if opts.IndentWidth <= 0 {
		opts.IndentWidth = DefaultIndentWidth
	}
	opts.Extension = normalizeExtension(opts.Extension)
	return &Assist{semantic: semantic, opts: opts, newID: uuid.New}
}

// Extract returns the edit set for the module declaration at offset in file.
// ok is false when the action does not apply; that is not an error.
func (a *Assist) Extract(ctx context.Context, file string, tree ports.SyntaxQuery, offset int) (*ports.EditSet, bool, error) {
	ctx, span := observability.Tracer.Start(ctx, "assist.ExtractModuleToFile", trace.WithAttributes(
		attribute.String("file", file),
		attribute.Int("offset", offset),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		observability.AssistOutcomes.WithLabelValues(observability.OutcomeCancelled).Inc()
		return nil, false, err
	}

	decl, ok := tree.ModuleAt(offset)
	if !ok {
		return a.decline(span, file, observability.OutcomeNoModule)
	}
	if decl.Name == "" {
		return a.decline(span, file, observability.OutcomeUnnamed)
	}
	entity, ok := a.semantic.Resolve(file, decl)
	if !ok {
		return a.decline(span, file, observability.OutcomeUnresolved)
	}
	if entity.Parent == nil {
		return a.decline(span, file, observability.OutcomeNoParent)
	}
	if !decl.HasBody() {
		return a.decline(span, file, observability.OutcomeNoInlineBody)
	}

	contents, stub := Split(decl, SplitOptions{IndentWidth: a.opts.IndentWidth})
	dest := ports.AnchoredPath{
		Anchor: file,
		Path:   ResolvePath(decl.Name, *entity.Parent, a.opts.Extension),
	}

	set := &ports.EditSet{
		ID:       a.newID(),
		AssistID: AssistID,
		Kind:     AssistKind,
		Label:    AssistLabel,
		Target:   decl.Range,
		Replace: ports.TextEdit{
			File:    file,
			Range:   decl.Range,
			OldText: tree.Text(decl.Range),
			NewText: stub,
		},
		Create: ports.FileCreate{Path: dest, Contents: contents},
	}

	span.SetAttributes(
		attribute.String("module", decl.Name),
		attribute.String("destination", dest.Resolve()),
	)
	observability.AssistOutcomes.WithLabelValues(observability.OutcomeOffered).Inc()
	slog.Debug("extract module offered", "file", file, "module", decl.Name, "destination", dest.Resolve())
	return set, true, nil
}

func (a *Assist) decline(span trace.Span, file, outcome string) (*ports.EditSet, bool, error) {
	span.SetAttributes(attribute.String("outcome", outcome))
	observability.AssistOutcomes.WithLabelValues(outcome).Inc()
	slog.Debug("extract module not applicable", "file", file, "reason", outcome)
	return nil, false, nil
}
