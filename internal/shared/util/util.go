package util

import (
	"path"
	"strings"
)

// NormalizePatternPath cleans and normalizes paths for matcher/pattern usage.
func NormalizePatternPath(s string) string {
	trimmed := strings.TrimSpace(strings.ReplaceAll(s, "\\", "/"))
	clean := path.Clean(trimmed)
	if clean == "." {
		return ""
	}
	return strings.TrimPrefix(clean, "./")
}

// ContainsPathSeparator returns true when value includes either slash separator.
func ContainsPathSeparator(value string) bool {
	return strings.Contains(value, "/") || strings.Contains(value, "\\")
}

// EscapesRoot reports whether a normalized slash path climbs out of its root.
func EscapesRoot(p string) bool {
	p = NormalizePatternPath(p)
	return strings.HasPrefix(p, "/") || p == ".." || strings.HasPrefix(p, "../")
}
