package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"canon-rag-go/internal/model"
)

const (
	summaryKeywordLimit = 5
	metadataExcerptLen  = 200
)

// AugmentChunks 在正文分块前插入合成分块：
// 有文件名时插入 -2 元数据块，有摘要时插入 -1 摘要块。正文分块原样保留。
func AugmentChunks(body []model.ChunkDraft, summary string, keyPoints []string, fileName string) []model.ChunkDraft {
	summary = strings.TrimSpace(summary)
	fileName = strings.TrimSpace(fileName)

	out := make([]model.ChunkDraft, 0, len(body)+2)
	if fileName != "" {
		content := "文件: " + fileName
		if summary != "" {
			content += "\n摘要: " + excerpt(summary, metadataExcerptLen)
		}
		out = append(out, model.ChunkDraft{
			Index:    model.ChunkIndexMetadata,
			Content:  content,
			Keywords: fileNameKeywords(fileName),
			Metadata: map[string]any{
				"type":      "file_metadata",
				"file_name": fileName,
			},
		})
	}
	if summary != "" {
		kw := keyPoints
		if len(kw) > summaryKeywordLimit {
			kw = kw[:summaryKeywordLimit]
		}
		out = append(out, model.ChunkDraft{
			Index:    model.ChunkIndexSummary,
			Content:  summary,
			Keywords: append([]string{}, kw...),
			Metadata: map[string]any{"type": "summary"},
		})
	}
	return append(out, body...)
}

// fileNameKeywords 把不带扩展名的文件名按分隔符拆成关键词。
func fileNameKeywords(fileName string) []string {
	base := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	parts := strings.FieldsFunc(strings.ToLower(base), func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	})
	keywords := make([]string, 0, len(parts))
	for _, p := range parts {
		if len([]rune(p)) > 1 {
			keywords = append(keywords, p)
		}
	}
	return keywords
}

func excerpt(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return fmt.Sprintf("%s...", string(runes[:n]))
}
