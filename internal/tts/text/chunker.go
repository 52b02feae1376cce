// Package text provides text segmentation for TTS synthesis.
package text

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxChars is the default upper bound on the length of a chunk.
const DefaultMaxChars = 3000

// Chunk splits text into ordered segments of whitespace-delimited words,
// each at most maxChars runes long. A word longer than maxChars is never
// split and becomes its own segment. Empty input yields no segments.
//
// Joining the result with single spaces reproduces the input with its
// whitespace collapsed.
func Chunk(text string, maxChars int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{}
	}

	chunks := make([]string, 0, 1)

	var (
		current    strings.Builder
		currentLen int
	)

	for _, word := range words {
		wordLen := utf8.RuneCountInString(word)

		if currentLen > 0 && currentLen+1+wordLen > maxChars {
			chunks = append(chunks, current.String())
			current.Reset()

			currentLen = 0
		}

		if currentLen > 0 {
			current.WriteByte(' ')

			currentLen++
		}

		current.WriteString(word)

		currentLen += wordLen
	}

	if currentLen > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}
