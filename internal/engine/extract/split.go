package extract

import (
	"strings"

	"modsplit/internal/engine/syntax"
)

const DefaultIndentWidth = 4

type SplitOptions struct {
	// IndentWidth is the number of columns in one indentation level. A tab
	// always counts as one level.
	IndentWidth int
}

// Split returns the contents of the new file and the stub declaration that
// replaces decl. decl must have an inline body.
func Split(decl *syntax.ModuleDecl, opts SplitOptions) (contents, stub string) {
	return Contents(decl, opts), Stub(decl)
}

// Stub renders the bodiless declaration. Visibility is kept so the module's
// reach does not change.
func Stub(decl *syntax.ModuleDecl) string {
	if decl.Visibility != "" {
		return decl.Visibility + " mod " + decl.Name + ";"
	}
	return "mod " + decl.Name + ";"
}

// Contents dedents the body by the level its braces introduce, drops the
// braces and blank edge lines, and terminates non-empty output with one
// newline.
func Contents(decl *syntax.ModuleDecl, opts SplitOptions) string {
	if !decl.HasBody() {
		return ""
	}
	width := opts.IndentWidth
	if width <= 0 {
		width = DefaultIndentWidth
	}
	columns := indentColumns(decl.Indent, width) + width
	text := dedent(decl.Body.Text, columns, width, decl.Body.Opaque)
	return trimBody(text)
}

// dedent strips up to columns of leading whitespace from every line that
// does not start inside an opaque token.
func dedent(text string, columns, width int, opaque []syntax.TextRange) string {
	var b strings.Builder
	b.Grow(len(text))
	next := 0
	for i := 0; i < len(text); i++ {
		if text[i] != '\n' {
			continue
		}
		b.WriteString(text[next : i+1])
		next = i + 1
		if insideOpaque(i, opaque) {
			continue
		}
		next += stripWidth(text[next:], columns, width)
	}
	b.WriteString(text[next:])
	return b.String()
}

// stripWidth returns how many leading bytes of line make up at most columns
// of indentation.
func stripWidth(line string, columns, width int) int {
	used, n := 0, 0
	for n < len(line) && used < columns {
		switch line[n] {
		case ' ':
			used++
		case '\t':
			if used+width > columns {
				return n
			}
			used += width
		default:
			return n
		}
		n++
	}
	return n
}

func indentColumns(indent string, width int) int {
	cols := 0
	for _, r := range indent {
		if r == '\t' {
			cols += width
			continue
		}
		cols++
	}
	return cols
}

func insideOpaque(offset int, opaque []syntax.TextRange) bool {
	for _, r := range opaque {
		if r.Start > offset {
			return false
		}
		if r.Encloses(offset) {
			return true
		}
	}
	return false
}

func trimBody(text string) string {
	text = strings.TrimPrefix(text, "{")
	text = strings.TrimSuffix(text, "}")

	lines := strings.Split(text, "\n")
	// Text on the brace's own line is adjacent to it, not indentation.
	lines[0] = strings.TrimLeft(lines[0], " \t")

	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	if start == end {
		return ""
	}
	lines = lines[start:end]
	lines[len(lines)-1] = strings.TrimRight(lines[len(lines)-1], " \t\r")
	return strings.Join(lines, "\n") + "\n"
}
