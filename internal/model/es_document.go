package model

import "time"

// EsChunkDocument 定义了镜像到 Elasticsearch 中的分块文档结构。
// 文档级过期时间也一并冗余，使 ES 候选查询可以单独完成过期过滤。
type EsChunkDocument struct {
	ChunkKey          string         `json:"chunk_key"` // documentId_chunkIndex
	DocumentID        uint           `json:"document_id"`
	AgentID           uint           `json:"agent_id"`
	ChunkIndex        int            `json:"chunk_index"`
	Content           string         `json:"content"`
	Keywords          []string       `json:"keywords"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	Vector            []float32      `json:"vector,omitempty"`
	ModelVersion      string         `json:"model_version"`
	ExpiresAt         *time.Time     `json:"expires_at,omitempty"`
	DocumentExpiresAt *time.Time     `json:"document_expires_at,omitempty"`
}
