package retrieval

import (
	"strings"
	"unicode"
)

const (
	ellipsis        = "..."
	maxSettlePasses = 4
)

// Optimized is the compacted content of one selected chunk plus size diagnostics.
// Lengths are in characters (runes).
type Optimized struct {
	Content         string
	OriginalLength  int
	DedupedLength   int
	FinalLength     int
	EstimatedTokens int
}

// Optimize removes repeated sentences from content and then truncates it to
// maxLength characters, preferring a sentence boundary, then whitespace, then a
// hard cut. Running it on its own output returns the output unchanged.
func Optimize(content string, maxLength int) Optimized {
	deduped := DedupeSentences(content)
	final := SmartTruncate(deduped, maxLength)
	// an appended ellipsis can turn the cut fragment into a duplicate sentence
	for i := 0; i < maxSettlePasses; i++ {
		again := DedupeSentences(final)
		if again == final {
			break
		}
		final = SmartTruncate(again, maxLength)
	}
	return Optimized{
		Content:         final,
		OriginalLength:  runeLen(content),
		DedupedLength:   runeLen(deduped),
		FinalLength:     runeLen(final),
		EstimatedTokens: EstimateTokens(final),
	}
}

// DedupeSentences drops sentences whose normalized form already appeared earlier
// in text and joins the survivors with single spaces, preserving order.
func DedupeSentences(text string) string {
	sentences := SplitSentences(text)
	seen := make(map[string]struct{}, len(sentences))
	kept := make([]string, 0, len(sentences))
	for _, s := range sentences {
		key := normalizeSentence(s)
		if key != "" {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		kept = append(kept, s)
	}
	return strings.Join(kept, " ")
}

// SplitSentences splits text after runs of sentence terminators that are
// followed by whitespace or the end of text. CJK full-width terminators always
// end a sentence. Terminators stay attached; sentences are trimmed.
func SplitSentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		j := i
		for j+1 < len(runes) && isTerminator(runes[j+1]) {
			j++
		}
		end := j + 1
		if end == len(runes) || unicode.IsSpace(runes[end]) || isFullWidthTerminator(runes[j]) {
			if s := strings.TrimSpace(string(runes[start:end])); s != "" {
				out = append(out, s)
			}
			start = end
		}
		i = j
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SmartTruncate shortens text to at most limit characters.
func SmartTruncate(text string, limit int) string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}

	if cut := lastSentenceBoundary(runes, limit); cut > 0 && float64(cut) >= 0.5*float64(limit) {
		return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace)
	}

	room := limit - runeLen(ellipsis)
	if room <= 0 {
		return string(runes[:limit])
	}
	if sp := lastSpace(runes, room); sp > 0 && float64(sp) >= 0.7*float64(room) {
		return strings.TrimRightFunc(string(runes[:sp]), unicode.IsSpace) + ellipsis
	}
	return string(runes[:room]) + ellipsis
}

// lastSentenceBoundary returns the largest cut position <= limit that ends a sentence.
func lastSentenceBoundary(runes []rune, limit int) int {
	for p := limit; p > 0; p-- {
		last := runes[p-1]
		if !isTerminator(last) {
			continue
		}
		if p == len(runes) || isFullWidthTerminator(last) {
			return p
		}
		if next := runes[p]; unicode.IsSpace(next) {
			return p
		}
	}
	return 0
}

func lastSpace(runes []rune, limit int) int {
	if limit >= len(runes) {
		limit = len(runes) - 1
	}
	for p := limit; p > 0; p-- {
		if unicode.IsSpace(runes[p]) {
			return p
		}
	}
	return 0
}

func normalizeSentence(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	}
	return isFullWidthTerminator(r)
}

func isFullWidthTerminator(r rune) bool {
	switch r {
	case '。', '！', '？':
		return true
	}
	return false
}

func runeLen(s string) int {
	return len([]rune(s))
}
