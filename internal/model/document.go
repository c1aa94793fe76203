// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// 文档处理状态。
const (
	DocumentStatusProcessing = "processing"
	DocumentStatusReady      = "ready"
	DocumentStatusFailed     = "failed"
)

// Document 定义了 documents 表的 ORM 模型。
// 分块数据不存放在这里，而是在 document_chunks 表中。
type Document struct {
	ID                uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	AgentID           uint           `gorm:"not null;index" json:"agentId"`
	FileName          string         `gorm:"type:varchar(255);not null" json:"fileName"`
	ObjectName        string         `gorm:"type:varchar(512)" json:"objectName"`
	TotalSize         int64          `gorm:"not null;default:0" json:"totalSize"`
	Status            string         `gorm:"type:varchar(20);not null;default:'processing'" json:"status"`
	Description       string         `gorm:"type:text" json:"description"`
	Summary           string         `gorm:"type:text" json:"summary"`
	ChunkCount        int            `gorm:"not null;default:0" json:"chunkCount"`
	StructureAnalysis datatypes.JSON `gorm:"column:structure_analysis" json:"structureAnalysis,omitempty"`
	ErrorMessage      string         `gorm:"type:text" json:"errorMessage,omitempty"`
	ExpiresAt         *time.Time     `gorm:"index" json:"expiresAt"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// Expired 判断文档在给定时间点是否已过期。
func (d *Document) Expired(now time.Time) bool {
	return d.ExpiresAt != nil && !d.ExpiresAt.After(now)
}

// Analysis 解析存储的结构分析结果，未分析时返回 nil。
func (d *Document) Analysis() *StructureAnalysis {
	if len(d.StructureAnalysis) == 0 {
		return nil
	}
	var a StructureAnalysis
	if err := json.Unmarshal(d.StructureAnalysis, &a); err != nil {
		return nil
	}
	return &a
}

// DocumentDTO 是返回给调用方的文档视图。
type DocumentDTO struct {
	ID                uint               `json:"id"`
	AgentID           uint               `json:"agentId"`
	FileName          string             `json:"fileName"`
	TotalSize         int64              `json:"totalSize"`
	Status            string             `json:"status"`
	Summary           string             `json:"summary"`
	ChunkCount        int                `json:"chunkCount"`
	StructureAnalysis *StructureAnalysis `json:"structureAnalysis,omitempty"`
	ErrorMessage      string             `json:"errorMessage,omitempty"`
	ExpiresAt         *LocalTime         `json:"expiresAt"`
	CreatedAt         LocalTime          `json:"createdAt"`
}

// ToDTO 将 Document 转换为对外的 DTO。
func (d *Document) ToDTO() DocumentDTO {
	dto := DocumentDTO{
		ID:                d.ID,
		AgentID:           d.AgentID,
		FileName:          d.FileName,
		TotalSize:         d.TotalSize,
		Status:            d.Status,
		Summary:           d.Summary,
		ChunkCount:        d.ChunkCount,
		StructureAnalysis: d.Analysis(),
		ErrorMessage:      d.ErrorMessage,
		CreatedAt:         LocalTime(d.CreatedAt),
	}
	if d.ExpiresAt != nil {
		t := LocalTime(*d.ExpiresAt)
		dto.ExpiresAt = &t
	}
	return dto
}
