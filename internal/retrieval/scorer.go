package retrieval

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	contentHitPoints = 2.0
	keywordHitPoints = 3.0
)

// Weights controls how keyword and semantic relevance are blended.
type Weights struct {
	Keyword  float64
	Semantic float64
	// MinScore drops chunks whose combined score is at or below it.
	MinScore float64
}

// DefaultWeights returns the 0.4 / 0.6 blend with a 0.1 relevance floor.
func DefaultWeights() Weights {
	return Weights{Keyword: 0.4, Semantic: 0.6, MinScore: 0.1}
}

// Chunk is a retrievable candidate as loaded from the chunk store.
// Embedding is nil when the chunk was stored without a vector.
type Chunk struct {
	ID         uint
	DocumentID uint
	ChunkIndex int
	Content    string
	Keywords   []string
	Metadata   map[string]any
	Embedding  []float32
}

// ScoredChunk is a Chunk with its relevance diagnostics.
type ScoredChunk struct {
	Chunk
	KeywordScore  float64
	SemanticScore float64
	Score         float64
}

// Tokenize lowercases the query and keeps unique words longer than two characters.
func Tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if utf8.RuneCountInString(f) <= 2 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}

// KeywordScore awards 2 points per token found in the content and 3 more per
// token found inside any of the chunk keywords.
func KeywordScore(tokens []string, c Chunk) float64 {
	if len(tokens) == 0 {
		return 0
	}
	content := strings.ToLower(c.Content)
	keywords := make([]string, len(c.Keywords))
	for i, k := range c.Keywords {
		keywords[i] = strings.ToLower(k)
	}

	score := 0.0
	for _, tok := range tokens {
		if strings.Contains(content, tok) {
			score += contentHitPoints
		}
		for _, k := range keywords {
			if strings.Contains(k, tok) {
				score += keywordHitPoints
				break
			}
		}
	}
	return score
}

// CosineSimilarity returns dot(a,b)/(|a||b|), or 0 when either vector is
// empty, the dimensions differ, or a norm is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// Score rates every chunk against the query, drops near-zero matches and
// returns the rest sorted by combined score. The sort is stable, so ties keep
// the input order.
func Score(query string, queryEmbedding []float32, chunks []Chunk, w Weights) []ScoredChunk {
	tokens := Tokenize(query)
	scored := make([]ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		kw := KeywordScore(tokens, c)
		sem := 0.0
		if queryEmbedding != nil && c.Embedding != nil {
			sem = CosineSimilarity(queryEmbedding, c.Embedding) * 10
		}
		combined := w.Keyword*kw + w.Semantic*sem
		if combined <= w.MinScore {
			continue
		}
		scored = append(scored, ScoredChunk{
			Chunk:         c,
			KeywordScore:  kw,
			SemanticScore: sem,
			Score:         combined,
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}
