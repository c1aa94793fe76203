package pipeline

import (
	"errors"
	"fmt"
)

// 入库流程中的阶段名。
const (
	StageDownload   = "download"
	StageExtraction = "extraction"
	StageAnalysis   = "analysis"
	StageChunking   = "chunking"
	StageStore      = "store"
)

var (
	ErrExtraction = errors.New("文本提取失败")
	ErrEmptyText  = errors.New("提取的文本内容为空")
	ErrChunking   = errors.New("文本分块失败")
	ErrNoChunks   = errors.New("未生成任何文本分块")
)

// IngestionError 记录入库失败的阶段与文档。
type IngestionError struct {
	Stage      string
	DocumentID uint
	Err        error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("文档 %d 在 %s 阶段失败: %v", e.DocumentID, e.Stage, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// Retryable 报告重新执行是否可能成功。提取和分块失败由文件内容决定，重试无意义。
func (e *IngestionError) Retryable() bool {
	switch e.Stage {
	case StageExtraction, StageAnalysis, StageChunking:
		return false
	}
	return true
}

func newIngestionError(stage string, documentID uint, err error) *IngestionError {
	return &IngestionError{Stage: stage, DocumentID: documentID, Err: err}
}
