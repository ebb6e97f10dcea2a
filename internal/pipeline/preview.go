package pipeline

import "strings"

var newlines = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Preview flattens newlines to spaces and then truncates to limit runes,
// appending "..." when anything was cut. A non-positive limit disables
// truncation.
func Preview(text string, limit int) string {
	flat := newlines.Replace(text)
	if limit <= 0 {
		return flat
	}
	runes := []rune(flat)
	if len(runes) <= limit {
		return flat
	}
	return string(runes[:limit]) + "..."
}
