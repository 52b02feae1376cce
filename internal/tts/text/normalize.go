package text

import (
	"regexp"
	"strings"
)

// Typographic characters replaced by their plain equivalents.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
)

// referencePattern matches numeric reference markers such as "[12]" or "[3, 4]".
var referencePattern = regexp.MustCompile(`\s*\[\d+(?:\s*[,-]\s*\d+)*\]`)

var typographyReplacer = strings.NewReplacer(
	emDash, " - ",
	enDash, "-",
	figureDash, "-",
	ellipsisChar, ellipsis,
	"“", `"`, "”", `"`,
	"‘", "'", "’", "'",
)

// Normalize prepares text for the engine: it replaces smart quotes, dashes
// and the ellipsis character with ASCII forms, drops numeric reference
// markers and collapses runs of a repeated mark ("!!!", "??") to one.
// Periods are left alone so that ellipses survive. Whitespace is not
// touched; Chunk collapses it.
func Normalize(text string) string {
	if text == "" {
		return text
	}

	normalized := typographyReplacer.Replace(text)
	normalized = referencePattern.ReplaceAllString(normalized, "")

	return collapseRepeatedMarks(normalized)
}

func collapseRepeatedMarks(text string) string {
	var builder strings.Builder

	builder.Grow(len(text))

	var previous rune

	for _, char := range text {
		if char == previous && isCollapsibleMark(char) {
			continue
		}

		builder.WriteRune(char)

		previous = char
	}

	return builder.String()
}

func isCollapsibleMark(char rune) bool {
	switch char {
	case '!', '?', ',', ';', ':':
		return true
	default:
		return false
	}
}
