// Package tokenizer estimates how much of a model's context a text uses.
package tokenizer

import (
	"math"
	"strings"
	"unicode"
)

// ASCII text averages about four characters per token. Hangul and other
// scripts are charged a full token per character.
const asciiCost = 0.25

func runeCost(r rune) float64 {
	if r <= unicode.MaxASCII {
		return asciiCost
	}
	return 1
}

// CountTokens returns a rough token estimate, at least 1 for non-empty text.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	var cost float64
	for _, r := range text {
		cost += runeCost(r)
	}
	return max(int(math.Ceil(cost)), 1)
}

// Truncate cuts text to roughly maxTokens. It prefers to break at whitespace
// in the last fifth of the budget. The second result reports whether
// anything was cut.
func Truncate(text string, maxTokens int) (string, bool) {
	if CountTokens(text) <= maxTokens {
		return text, false
	}
	if maxTokens <= 0 {
		return "", true
	}

	var cost float64
	cut, lastSpace := 0, -1
	for i, r := range text {
		cost += runeCost(r)
		if cost > float64(maxTokens) {
			break
		}
		if unicode.IsSpace(r) {
			lastSpace = i
		}
		cut = i + len(string(r))
	}
	if lastSpace > 0 && float64(lastSpace) >= 0.8*float64(cut) {
		cut = lastSpace
	}
	return strings.TrimRightFunc(text[:cut], unicode.IsSpace), true
}
