// Package retrieval implements the in-process half of hybrid retrieval:
// scoring candidate chunks, packing them under a token budget and compacting
// the selected content before it is handed to the prompt builder.
package retrieval

import "unicode"

// EstimateTokens approximates the model token count of text.
// Hangul/CJK characters count 0.4 tokens each, everything else 0.25; the sum is
// rounded up. It is a conservative heuristic, not a tokenizer.
func EstimateTokens(text string) int {
	var script, other int
	for _, r := range text {
		if isLocalScript(r) {
			script++
		} else {
			other++
		}
	}
	// ceil(0.4*script + 0.25*other) in integer arithmetic
	return (script*8 + other*5 + 19) / 20
}

func isLocalScript(r rune) bool {
	return unicode.In(r, unicode.Hangul, unicode.Han, unicode.Hiragana, unicode.Katakana)
}
