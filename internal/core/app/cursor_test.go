package app

import (
	"testing"

	"modsplit/internal/core/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorOffsetIn(t *testing.T) {
	src := []byte("mod a {\n    fn ü() {}\n}\n")
	tests := []struct {
		name   string
		cursor Cursor
		want   int
	}{
		{name: "byte offset", cursor: Cursor{Offset: 4}, want: 4},
		{name: "offset at end", cursor: Cursor{Offset: len(src)}, want: len(src)},
		{name: "first character", cursor: Cursor{Line: 1, Column: 1}, want: 0},
		{name: "second line", cursor: Cursor{Line: 2, Column: 5}, want: 12},
		{name: "after multibyte rune", cursor: Cursor{Line: 2, Column: 9}, want: 17},
		{name: "end of line", cursor: Cursor{Line: 1, Column: 8}, want: 7},
		{name: "last empty line", cursor: Cursor{Line: 4, Column: 1}, want: len(src)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cursor.OffsetIn(src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCursorOffsetIn_Invalid(t *testing.T) {
	src := []byte("mod a {}\n")
	for _, c := range []Cursor{
		{Offset: -1},
		{Offset: 100},
		{Line: 1, Column: 0},
		{Line: 1, Column: 20},
		{Line: 3, Column: 1},
	} {
		_, err := c.OffsetIn(src)
		require.Error(t, err, "cursor %s", c)
		assert.True(t, errors.IsCode(err, errors.CodeValidationError))
	}
}

func TestCursorString(t *testing.T) {
	assert.Equal(t, "12", Cursor{Offset: 12}.String())
	assert.Equal(t, "3:7", Cursor{Line: 3, Column: 7}.String())
}
