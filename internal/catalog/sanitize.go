package catalog

import (
	"strings"
	"unicode"
)

// illegalPathChars are the characters removed from every path segment and file name.
const illegalPathChars = `/\?%*:|"<>`

func isIllegal(r rune) bool {
	return strings.ContainsRune(illegalPathChars, r) || unicode.IsControl(r)
}

// SanitizeSegment turns a breadcrumb label into a directory name: whitespace becomes "_"
// and illegal characters become "_".
func SanitizeSegment(label string) string {
	label = strings.TrimSpace(label)
	out := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || isIllegal(r) {
			return '_'
		}
		return r
	}, label)
	return neutralizeDots(out)
}

// SanitizeFileName turns a product title into a file name stem: illegal characters become
// "-" and surrounding whitespace is trimmed.
func SanitizeFileName(title string) string {
	out := strings.Map(func(r rune) rune {
		if isIllegal(r) {
			return '-'
		}
		return r
	}, strings.TrimSpace(title))
	return neutralizeDots(strings.TrimSpace(out))
}

// SanitizeSegments sanitizes every label and drops the ones that end up empty.
func SanitizeSegments(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if s := SanitizeSegment(l); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// neutralizeDots keeps "." and ".." from acting as relative path components.
func neutralizeDots(s string) string {
	if s != "" && strings.Trim(s, ".") == "" {
		return strings.Repeat("_", len(s))
	}
	return s
}
