// ABOUTME: SQL helper functions for query construction.
// ABOUTME: Utilities for escaping LIKE patterns in title search and log filters.

package store

import "strings"

// escapeSQLLike escapes %, _ and \ for use with LIKE ... ESCAPE '\'.
// Backslash goes first so the later escapes are not doubled.
func escapeSQLLike(pattern string) string {
	pattern = strings.ReplaceAll(pattern, "\\", "\\\\")
	pattern = strings.ReplaceAll(pattern, "%", "\\%")
	pattern = strings.ReplaceAll(pattern, "_", "\\_")
	return pattern
}
