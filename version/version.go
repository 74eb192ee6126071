// Package version compares dotted version strings at the precision of an
// expected prefix, e.g. "2.1" matches "2.1.0+cu121" but not "2.10.0".
package version

import "strings"

// Depth returns the number of dot-separated tokens in expected.
func Depth(expected string) int {
	return strings.Count(expected, ".") + 1
}

// Truncate keeps the first depth dot-separated tokens of found.
// If found has fewer tokens it is returned unchanged.
func Truncate(found string, depth int) string {
	parts := strings.Split(found, ".")
	if depth < len(parts) {
		parts = parts[:depth]
	}
	return strings.Join(parts, ".")
}

// Validate reports whether found matches expected at the depth of expected.
// The comparison is lexical; no numeric or semantic ordering is applied.
// expected must not be empty.
func Validate(expected, found string) bool {
	return Truncate(found, Depth(expected)) == expected
}
