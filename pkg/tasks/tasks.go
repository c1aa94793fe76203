// Package tasks 定义了发送到 Kafka 的任务结构。
package tasks

// DocumentIngestionTask 是一次文档入库任务，原始文件已上传到对象存储。
type DocumentIngestionTask struct {
	DocumentID uint   `json:"document_id"`
	AgentID    uint   `json:"agent_id"`
	ObjectName string `json:"object_name"`
	FileName   string `json:"file_name"`
	RunVision  bool   `json:"run_vision"`
}
