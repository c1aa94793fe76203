package pipeline

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"canon-rag-go/internal/model"
	"canon-rag-go/internal/retrieval"
)

const maxChunkKeywords = 20

// Chunker 把提取结果切分为正文分块（序号从 0 开始）。
type Chunker interface {
	Chunk(ctx context.Context, extraction *model.ExtractionResult) ([]model.ChunkDraft, error)
}

// ParagraphChunker 以空行分段，按段落累积到 MaxSize 后切分。
// 超长段落按句子再切；末尾不足 MinSize 的分块并入前一块。
type ParagraphChunker struct {
	MinSize int
	MaxSize int
}

// NewParagraphChunker 创建段落分块器，非法参数回落到 200/500。
func NewParagraphChunker(minSize, maxSize int) *ParagraphChunker {
	if maxSize <= 0 {
		maxSize = 500
	}
	if minSize < 0 {
		minSize = 0
	}
	if minSize > maxSize {
		minSize = maxSize
	}
	return &ParagraphChunker{MinSize: minSize, MaxSize: maxSize}
}

var paragraphSplitter = regexp.MustCompile(`\n\s*\n`)

// Chunk 实现 Chunker。
func (c *ParagraphChunker) Chunk(ctx context.Context, extraction *model.ExtractionResult) ([]model.ChunkDraft, error) {
	if extraction == nil {
		return nil, nil
	}
	texts := c.split(extraction.Text)
	drafts := make([]model.ChunkDraft, 0, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		drafts = append(drafts, model.ChunkDraft{
			Index:    i,
			Content:  text,
			Keywords: ExtractKeywords(text, maxChunkKeywords),
			Metadata: map[string]any{
				"char_count":   utf8.RuneCountInString(text),
				"word_count":   len(strings.Fields(text)),
				"has_tables":   len(extraction.Tables) > 0,
				"has_images":   len(extraction.Images) > 0,
				"has_formulas": len(extraction.Formulas) > 0,
				"total_pages":  extraction.Metadata.TotalPages,
			},
		})
	}
	return drafts, nil
}

func (c *ParagraphChunker) split(text string) []string {
	var pieces []string
	for _, para := range paragraphSplitter.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if utf8.RuneCountInString(para) > c.MaxSize {
			pieces = append(pieces, c.splitLong(para)...)
			continue
		}
		pieces = append(pieces, para)
	}

	var chunks []string
	var current []string
	currentLen := 0
	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if currentLen+n > c.MaxSize && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n\n"))
			current, currentLen = nil, 0
		}
		current = append(current, p)
		currentLen += n
	}
	if len(current) > 0 {
		tail := strings.Join(current, "\n\n")
		if len(chunks) > 0 && currentLen < c.MinSize {
			chunks[len(chunks)-1] += "\n\n" + tail
		} else {
			chunks = append(chunks, tail)
		}
	}
	return chunks
}

// splitLong 按句子切分超长段落，单句仍超长时按字符硬切。
func (c *ParagraphChunker) splitLong(para string) []string {
	var out []string
	var b strings.Builder
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
		b.Reset()
	}
	for _, s := range retrieval.SplitSentences(para) {
		runes := []rune(s)
		for len(runes) > c.MaxSize {
			flush()
			out = append(out, string(runes[:c.MaxSize]))
			runes = runes[c.MaxSize:]
		}
		s = string(runes)
		if b.Len() > 0 && utf8.RuneCountInString(b.String())+1+len(runes) > c.MaxSize {
			flush()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}
	flush()
	return out
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "but": {}, "for": {}, "with": {}, "from": {}, "was": {}, "are": {},
	"were": {}, "been": {}, "this": {}, "that": {}, "these": {}, "those": {}, "into": {},
	"about": {}, "than": {}, "then": {}, "have": {}, "has": {}, "had": {}, "not": {},
	"또한": {}, "그리고": {}, "하지만": {}, "그러나": {}, "있는": {}, "있다": {}, "합니다": {},
	"입니다": {}, "에서": {}, "으로": {},
}

// ExtractKeywords 统计小写词频（长度大于 2，过滤停用词），按频次降序返回前 limit 个。
// 频次相同时保持首次出现的顺序。
func ExtractKeywords(text string, limit int) []string {
	freq := map[string]int{}
	var order []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if utf8.RuneCountInString(w) <= 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if freq[w] == 0 {
			order = append(order, w)
		}
		freq[w]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return freq[order[i]] > freq[order[j]]
	})
	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}
	return order
}
