// Package tokens estimates model token counts from text.
package tokens

import (
	"math"
	"unicode/utf8"
)

// CharsPerToken is tuned for Vietnamese text, which tokenizes denser than English.
const CharsPerToken = 3.7

// Estimate returns an approximate token count for text. Empty text costs
// nothing; any non-empty text costs at least one token.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	n := int(math.Floor(float64(utf8.RuneCountInString(text)) / CharsPerToken))
	if n < 1 {
		return 1
	}
	return n
}
