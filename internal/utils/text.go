package utils

import "unicode/utf8"

// Truncate shortens text to at most max runes, appending marker when cut.
// The marker counts toward max.
func Truncate(text string, max int, marker string) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	keep := max - utf8.RuneCountInString(marker)
	if keep <= 0 {
		return string([]rune(marker)[:max])
	}
	return string([]rune(text)[:keep]) + marker
}

// Abbrev shortens long strings for log attributes.
func Abbrev(s string) string { return Truncate(s, 120, "…") }
