package cli

import (
	"fmt"
	"io"
	"strings"

	coreapp "modsplit/internal/core/app"
	"modsplit/internal/core/ports"

	"github.com/charmbracelet/lipgloss"
)

// previewLines caps how much of the new file is echoed.
const previewLines = 12

type renderer struct {
	w io.Writer

	header  lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	removed lipgloss.Style
	added   lipgloss.Style
	faint   lipgloss.Style
}

// newRenderer binds styles to w so colors drop out when w is not a terminal.
func newRenderer(w io.Writer) *renderer {
	r := lipgloss.NewRenderer(w)
	return &renderer{
		w:       w,
		header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		success: r.NewStyle().Foreground(lipgloss.Color("78")),
		failure: r.NewStyle().Bold(true).Foreground(lipgloss.Color("197")),
		removed: r.NewStyle().Foreground(lipgloss.Color("197")),
		added:   r.NewStyle().Foreground(lipgloss.Color("78")),
		faint:   r.NewStyle().Faint(true),
	}
}

func (r *renderer) EditSet(set ports.EditSet, applied ports.ApplyResult) {
	verb := "applied"
	if applied.DryRun {
		verb = "planned (dry run)"
	}
	fmt.Fprintln(r.w, r.header.Render(fmt.Sprintf("%s: %s", set.Label, verb)))

	fmt.Fprintf(r.w, "  edit    %s %s\n", set.Replace.File,
		r.faint.Render(fmt.Sprintf("[%d..%d]", set.Replace.Range.Start, set.Replace.Range.End)))
	fmt.Fprintln(r.w, r.removed.Render("  - "+firstLine(set.Replace.OldText)))
	fmt.Fprintln(r.w, r.added.Render("  + "+firstLine(set.Replace.NewText)))

	for _, dir := range applied.CreatedDirs {
		fmt.Fprintf(r.w, "  mkdir   %s\n", dir)
	}
	fmt.Fprintf(r.w, "  create  %s\n", applied.CreatedPath)

	lines := strings.Split(strings.TrimSuffix(set.Create.Contents, "\n"), "\n")
	shown := lines
	if len(shown) > previewLines {
		shown = shown[:previewLines]
	}
	for _, line := range shown {
		fmt.Fprintln(r.w, r.faint.Render("  | ")+line)
	}
	if extra := len(lines) - len(shown); extra > 0 {
		fmt.Fprintln(r.w, r.faint.Render(fmt.Sprintf("  | ... %d more lines", extra)))
	}

	if !applied.DryRun {
		fmt.Fprintln(r.w, r.success.Render("done"))
	}
}

func (r *renderer) NotApplicable(file string, cursor coreapp.Cursor) {
	fmt.Fprintln(r.w, r.faint.Render(fmt.Sprintf("no extractable inline module at %s:%s", file, cursor)))
}

func (r *renderer) Failure(msg string) {
	fmt.Fprintln(r.w, r.failure.Render("error: ")+msg)
}

func (r *renderer) Recovered(report ports.RecoverReport) {
	if report.RolledBack == 0 && report.Completed == 0 && len(report.Conflicts) == 0 {
		fmt.Fprintln(r.w, r.faint.Render("no interrupted commits"))
		return
	}
	if report.RolledBack > 0 {
		fmt.Fprintln(r.w, r.success.Render(fmt.Sprintf("rolled back %d interrupted commit(s)", report.RolledBack)))
	}
	if report.Completed > 0 {
		fmt.Fprintln(r.w, r.success.Render(fmt.Sprintf("completed %d interrupted commit(s)", report.Completed)))
	}
	for _, entry := range report.Conflicts {
		fmt.Fprintln(r.w, r.failure.Render("conflict: ")+
			fmt.Sprintf("%s was edited after commit %s; left pending", entry.SourcePath, entry.ID))
	}
}

func (r *renderer) History(entries []ports.JournalEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(r.w, r.faint.Render("no journaled commits"))
		return
	}
	fmt.Fprintln(r.w, r.header.Render(fmt.Sprintf("%-20s  %-11s  %-28s  %s", "TIME", "STATUS", "SOURCE", "CREATED")))
	for _, e := range entries {
		status := string(e.Status)
		styled := r.faint
		switch e.Status {
		case ports.JournalCommitted:
			styled = r.success
		case ports.JournalRolledBack:
			styled = r.failure
		}
		fmt.Fprintf(r.w, "%-20s  %s  %-28s  %s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			styled.Render(fmt.Sprintf("%-11s", status)),
			e.SourcePath,
			e.CreatedPath,
		)
		if e.Error != "" {
			fmt.Fprintln(r.w, r.faint.Render("  "+e.Error))
		}
	}
}

func firstLine(s string) string {
	line, rest, _ := strings.Cut(s, "\n")
	if strings.TrimSpace(rest) != "" {
		return line + " ..."
	}
	return line
}
