package extract

import (
	"strings"

	"modsplit/internal/core/ports"
	"modsplit/internal/engine/syntax"
)

const DefaultExtension = ".rs"

// ResolvePath returns the anchored path, relative to the file holding the
// declaration, where module name should live.
//
// A parent backed by a named file (foo.rs) keeps its children under foo/;
// a directory-root parent (main.rs, lib.rs, mod.rs) keeps them beside itself.
// Inline modules between the parent file and the declaration add one
// directory each. Raw identifiers name their files without the r# prefix.
func ResolvePath(name string, parent ports.ParentModule, ext string) string {
	var b strings.Builder
	b.WriteString("./")
	if parent.Name != "" && parent.Kind != ports.DirectoryRoot {
		b.WriteString(syntax.FileStem(parent.Name))
		b.WriteByte('/')
	}
	for _, seg := range parent.Inline {
		if seg == "" {
			continue
		}
		b.WriteString(syntax.FileStem(seg))
		b.WriteByte('/')
	}
	b.WriteString(syntax.FileStem(name))
	b.WriteString(normalizeExtension(ext))
	return b.String()
}

func normalizeExtension(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" {
		return DefaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
