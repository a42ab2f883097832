// Package strings provides common string utilities for output formatting.
package strings

import (
	"fmt"
	"sort"
	"strings"
)

// Truncate shortens a string to n characters with ellipsis.
// If n < 4, uses n = 4 to ensure room for "...".
func Truncate(s string, n int) string {
	if n < 4 {
		n = 4
	}
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// TruncateRunes truncates by rune count, not byte count.
// Safer for unicode strings.
func TruncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n < 4 {
		n = 4
	}
	return string(runes[:n-3]) + "..."
}

// FirstLine returns everything before the first newline.
func FirstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// SummarizeMap formats a string map as "key=value, ..." in key order,
// truncated to maxLen. Used for change set and task output display.
func SummarizeMap(m map[string]string, maxLen int) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, FirstLine(m[k])))
	}
	return Truncate(strings.Join(parts, ", "), maxLen)
}
