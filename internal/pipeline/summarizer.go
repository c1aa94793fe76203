package pipeline

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"canon-rag-go/internal/retrieval"
)

// Summary 是文档级摘要与要点。
type Summary struct {
	Text      string
	KeyPoints []string
}

// Summarizer 为整篇文档生成摘要。
type Summarizer interface {
	Summarize(text string) Summary
}

// FrequencySummarizer 按词频给句子打分，取得分最高的若干句（保持原文顺序）作为摘要，
// 全文高频词作为要点。
type FrequencySummarizer struct {
	sentences int
	keyPoints int
	token     *regexp.Regexp
}

// NewFrequencySummarizer 创建词频摘要器。
func NewFrequencySummarizer(sentences, keyPoints int) *FrequencySummarizer {
	if sentences <= 0 {
		sentences = 3
	}
	if keyPoints <= 0 {
		keyPoints = 5
	}
	return &FrequencySummarizer{
		sentences: sentences,
		keyPoints: keyPoints,
		token:     regexp.MustCompile(`[\p{L}\p{N}]+`),
	}
}

// Summarize 实现 Summarizer。文本为空时返回空摘要。
func (s *FrequencySummarizer) Summarize(text string) Summary {
	text = strings.TrimSpace(text)
	if text == "" {
		return Summary{}
	}
	sentences := retrieval.SplitSentences(strings.Join(strings.Fields(text), " "))

	freq := map[string]float64{}
	tokens := make([][]string, len(sentences))
	for i, sent := range sentences {
		for _, tok := range s.token.FindAllString(strings.ToLower(sent), -1) {
			if _, stop := stopWords[tok]; stop || len([]rune(tok)) <= 2 {
				continue
			}
			tokens[i] = append(tokens[i], tok)
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}

	type ranked struct {
		idx   int
		score float64
	}
	scores := make([]ranked, len(sentences))
	for i, toks := range tokens {
		sum := 0.0
		for _, tok := range toks {
			sum += freq[tok] / maxF
		}
		if len(toks) > 0 {
			sum /= math.Sqrt(float64(len(toks)))
		}
		scores[i] = ranked{idx: i, score: sum}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	n := s.sentences
	if n > len(scores) {
		n = len(scores)
	}
	selected := make([]int, 0, n)
	for _, r := range scores[:n] {
		selected = append(selected, r.idx)
	}
	sort.Ints(selected)
	parts := make([]string, 0, n)
	for _, idx := range selected {
		parts = append(parts, sentences[idx])
	}

	return Summary{
		Text:      strings.Join(parts, " "),
		KeyPoints: ExtractKeywords(text, s.keyPoints),
	}
}
