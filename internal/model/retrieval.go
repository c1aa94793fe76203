package model

// RankedChunk 是检索返回的单个分块及其诊断信息，不持久化。
type RankedChunk struct {
	DocumentID      uint           `json:"documentId"`
	FileName        string         `json:"fileName"`
	ChunkIndex      int            `json:"chunkIndex"`
	Content         string         `json:"content"`
	Keywords        []string       `json:"keywords"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	KeywordScore    float64        `json:"keywordScore"`
	SemanticScore   float64        `json:"semanticScore"`
	Score           float64        `json:"score"`
	OriginalLength  int            `json:"originalLength"`
	DedupedLength   int            `json:"dedupedLength"`
	FinalLength     int            `json:"finalLength"`
	EstimatedTokens int            `json:"estimatedTokens"`
}
