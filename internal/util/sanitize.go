package util

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	htmlTagPattern      = regexp.MustCompile(`<[^>]*>`)
	scriptSchemePattern = regexp.MustCompile(`(?i)javascript\s*:`)
	eventHandlerPattern = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
)

// SanitizeText cleans free text submitted by users before it is stored: markup is
// stripped, control and invisible characters are dropped (newlines and tabs are
// kept) and the result is trimmed and cut to maxRunes when maxRunes > 0.
func SanitizeText(input string, maxRunes int) string {
	builder := strings.Builder{}
	builder.Grow(len(input))

	for _, char := range input {
		if char == '\n' || char == '\t' {
			builder.WriteRune(char)
			continue
		}
		if unicode.IsControl(char) || isInvisibleUnicode(char) || char == unicode.ReplacementChar {
			continue
		}
		builder.WriteRune(char)
	}

	cleaned := htmlTagPattern.ReplaceAllString(builder.String(), "")
	cleaned = scriptSchemePattern.ReplaceAllString(cleaned, "")
	cleaned = eventHandlerPattern.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	if maxRunes > 0 {
		// Truncate by runes (not bytes) to avoid splitting multi-byte characters.
		if runes := []rune(cleaned); len(runes) > maxRunes {
			cleaned = strings.TrimSpace(string(runes[:maxRunes]))
		}
	}

	return cleaned
}

// SanitizeLine is SanitizeText for single-line fields such as names and titles:
// runs of whitespace, including newlines, collapse to one space.
func SanitizeLine(input string, maxRunes int) string {
	return SanitizeText(strings.Join(strings.Fields(input), " "), maxRunes)
}

// isInvisibleUnicode returns true for zero-width, formatting, and other
// invisible Unicode characters.
func isInvisibleUnicode(r rune) bool {
	switch r {
	case
		'\u200B', // Zero-Width Space
		'\u200C', // Zero-Width Non-Joiner
		'\u200D', // Zero-Width Joiner
		'\u200E', // Left-to-Right Mark
		'\u200F', // Right-to-Left Mark
		'\u2060', // Word Joiner
		'\uFEFF', // Zero-Width No-Break Space / BOM
		'\uFFF9', // Interlinear Annotation Anchor
		'\uFFFA', // Interlinear Annotation Separator
		'\uFFFB': // Interlinear Annotation Terminator
		return true
	}

	return unicode.Is(unicode.Cf, r)
}
