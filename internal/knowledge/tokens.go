package knowledge

import (
	"strings"
	"unicode/utf8"
)

// CountTokens estimates the model token length of text: the larger of one
// token per four runes and one token per whitespace-delimited word.
func CountTokens(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	charBased := (utf8.RuneCountInString(trimmed) + 3) / 4
	wordBased := len(strings.Fields(trimmed))
	if wordBased > charBased {
		return wordBased
	}
	return charBased
}
