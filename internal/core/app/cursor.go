package app

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"modsplit/internal/core/errors"
)

// Cursor is either a byte offset or a 1-based line/column pair. Columns count
// characters, not bytes.
type Cursor struct {
	Offset int
	Line   int
	Column int
}

func (c Cursor) IsLineColumn() bool {
	return c.Line > 0
}

// OffsetIn resolves the cursor to a byte offset within src.
func (c Cursor) OffsetIn(src []byte) (int, error) {
	if !c.IsLineColumn() {
		if c.Offset < 0 || c.Offset > len(src) {
			return 0, invalidCursor(fmt.Sprintf("offset %d outside file of %d bytes", c.Offset, len(src)))
		}
		return c.Offset, nil
	}
	if c.Column < 1 {
		return 0, invalidCursor(fmt.Sprintf("column must be >= 1, got %d", c.Column))
	}

	line := 1
	pos := 0
	for line < c.Line {
		next := bytes.IndexByte(src[pos:], '\n')
		if next < 0 {
			return 0, invalidCursor(fmt.Sprintf("line %d beyond end of file (%d lines)", c.Line, line))
		}
		pos += next + 1
		line++
	}

	for col := 1; col < c.Column; col++ {
		if pos >= len(src) || src[pos] == '\n' {
			return 0, invalidCursor(fmt.Sprintf("column %d beyond end of line %d", c.Column, c.Line))
		}
		_, size := utf8.DecodeRune(src[pos:])
		pos += size
	}
	return pos, nil
}

func (c Cursor) String() string {
	if c.IsLineColumn() {
		return fmt.Sprintf("%d:%d", c.Line, c.Column)
	}
	return fmt.Sprintf("%d", c.Offset)
}

func invalidCursor(msg string) error {
	return errors.AddContext(errors.New(errors.CodeValidationError, msg), errors.CtxOperation, "resolve_cursor")
}
