// Package strings holds small text helpers shared by request parsing and
// name matching.
package strings

import (
	"strings"
	"unicode"
)

// DedupeLower trims and lower-cases values, dropping blanks and repeats.
// Order of first occurrence is preserved.
func DedupeLower(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SquashSpace trims s and collapses every run of whitespace to one space.
func SquashSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// Blank reports whether s holds only whitespace.
func Blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
