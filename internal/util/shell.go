// Package util provides common utility functions used across the codebase.
package util

import "strings"

// ShellQuote wraps a string in single quotes, escaping any existing single quotes.
// The result is always treated literally by a POSIX shell.
func ShellQuote(s string) string {
	// Replace ' with '\'' (end quote, escaped quote, start quote)
	escaped := strings.ReplaceAll(s, "'", "'\\''")
	return "'" + escaped + "'"
}

// ShellJoin quotes every argument that is not made of plain characters and
// joins them with spaces. Plain arguments (flags, reverse-DNS identifiers)
// are left as-is so command lines stay readable in logs.
func ShellJoin(args ...string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if isPlain(a) {
			quoted[i] = a
		} else {
			quoted[i] = ShellQuote(a)
		}
	}
	return strings.Join(quoted, " ")
}

// isPlain reports whether s contains only characters no POSIX shell treats specially.
func isPlain(s string) bool {
	if s == "" {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return false
		}
		switch r {
		case '-', '_', '.', '/', '@', ':', ',', '+', '=':
			return false
		}
		return true
	}) == -1
}
