package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// 保留的合成分块序号，正文分块从 0 开始。
const (
	ChunkIndexSummary  = -1
	ChunkIndexMetadata = -2
)

// DocumentChunk 对应于数据库中的 document_chunks 表。
// AgentID 冗余存储，便于按 agent 直接查询。
// Embedding 为 NULL 表示向量化失败，检索时该分块只参与关键词打分。
type DocumentChunk struct {
	ID           uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID   uint           `gorm:"not null;index" json:"documentId"`
	AgentID      uint           `gorm:"not null;index" json:"agentId"`
	ChunkIndex   int            `gorm:"not null" json:"chunkIndex"`
	Content      string         `gorm:"type:text;not null" json:"content"`
	Keywords     datatypes.JSON `gorm:"column:keywords" json:"keywords"`
	Metadata     datatypes.JSON `gorm:"column:metadata" json:"metadata"`
	Embedding    datatypes.JSON `gorm:"column:embedding" json:"-"`
	ModelVersion string         `gorm:"type:varchar(100)" json:"modelVersion"`
	ExpiresAt    *time.Time     `gorm:"index" json:"expiresAt"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (DocumentChunk) TableName() string {
	return "document_chunks"
}

// KeywordList 解析关键词列。
func (c *DocumentChunk) KeywordList() []string {
	var out []string
	if len(c.Keywords) == 0 {
		return out
	}
	_ = json.Unmarshal(c.Keywords, &out)
	return out
}

// MetadataMap 解析元数据列。
func (c *DocumentChunk) MetadataMap() map[string]any {
	out := map[string]any{}
	if len(c.Metadata) == 0 {
		return out
	}
	_ = json.Unmarshal(c.Metadata, &out)
	return out
}

// Vector 解析向量列，NULL 或损坏时返回 nil。
func (c *DocumentChunk) Vector() []float32 {
	if len(c.Embedding) == 0 {
		return nil
	}
	var v []float32
	if err := json.Unmarshal(c.Embedding, &v); err != nil {
		return nil
	}
	return v
}

// ChunkDraft 是入库前的分块：由分块服务生成，经过增强后交给写入器。
type ChunkDraft struct {
	Index    int            `json:"chunk_index"`
	Content  string         `json:"text"`
	Keywords []string       `json:"keywords"`
	Metadata map[string]any `json:"metadata"`
}
