// # internal/engine/syntax/types.go
package syntax

import "strings"

// TextRange is a half-open byte range [Start, End) into a file snapshot.
type TextRange struct {
	Start int
	End   int
}

func (r TextRange) Len() int { return r.End - r.Start }

// Covers reports whether a cursor offset touches the range. Both boundaries
// count, so a cursor sitting right after the closing brace still selects it.
func (r TextRange) Covers(offset int) bool {
	return r.Start <= offset && offset <= r.End
}

// Encloses reports whether offset lies strictly inside the range.
func (r TextRange) Encloses(offset int) bool {
	return r.Start < offset && offset < r.End
}

// ItemList is the brace-delimited body of an inline module.
type ItemList struct {
	Range TextRange
	// Text includes the surrounding braces.
	Text string
	// Opaque holds ranges, relative to Range.Start, of tokens whose interior
	// newlines are content (string literals, raw strings, block comments).
	Opaque []TextRange
}

// ModuleDecl is a `mod name { ... }` or `mod name;` item.
type ModuleDecl struct {
	Name       string
	Visibility string
	Range      TextRange
	Body       *ItemList
	// Indent is the whitespace preceding the declaration on its own line.
	Indent string
	// Enclosing lists inline modules around the declaration, outermost first.
	Enclosing []string
	// Scoped is set for declarations inside a block (fn body, const block).
	// Such modules have no file of their own.
	Scoped bool
}

func (d *ModuleDecl) HasBody() bool { return d != nil && d.Body != nil }

// FileStem returns the file name form of a module identifier: raw
// identifiers drop their r# prefix, so `mod r#type;` lives in type.rs.
func FileStem(name string) string {
	return strings.TrimPrefix(name, "r#")
}

// Path returns the inline path of the declaration within its file.
func (d *ModuleDecl) Path() []string {
	out := make([]string, 0, len(d.Enclosing)+1)
	out = append(out, d.Enclosing...)
	return append(out, d.Name)
}
