package repository

import (
	"context"
	"time"

	"canon-rag-go/internal/model"

	"gorm.io/gorm"
)

// ChunkRepository 定义了对 document_chunks 表的数据操作接口。
type ChunkRepository interface {
	Create(ctx context.Context, chunks []*model.DocumentChunk) error
	DeleteByDocumentID(ctx context.Context, documentID uint) error
	// ReplaceByDocumentID 在同一事务中删除文档的旧分块并写入新分块。
	// beforeCommit 非 nil 时在提交前执行，返回错误则回滚。
	ReplaceByDocumentID(ctx context.Context, documentID uint, chunks []*model.DocumentChunk, beforeCommit func() error) error
	FindByDocumentID(ctx context.Context, documentID uint) ([]*model.DocumentChunk, error)
	// FindRetrievable 返回 agent 在 now 时刻可检索的分块：分块与所属文档都未过期。
	// documentIDs 为 nil 表示不限制文档。返回全部命中的分块，不截断。
	FindRetrievable(ctx context.Context, agentID uint, documentIDs []uint, now time.Time) ([]*model.DocumentChunk, error)
}

type chunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository 创建一个新的 ChunkRepository 实例。
func NewChunkRepository(db *gorm.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

// Create 批量创建分块记录。
func (r *chunkRepository) Create(ctx context.Context, chunks []*model.DocumentChunk) error {
	return createChunks(r.db.WithContext(ctx), chunks)
}

func createChunks(db *gorm.DB, chunks []*model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return db.CreateInBatches(chunks, 100).Error // 每100条记录一批
}

// DeleteByDocumentID 删除文档的全部分块。
func (r *chunkRepository) DeleteByDocumentID(ctx context.Context, documentID uint) error {
	return r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.DocumentChunk{}).Error
}

func (r *chunkRepository) ReplaceByDocumentID(ctx context.Context, documentID uint, chunks []*model.DocumentChunk, beforeCommit func() error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&model.DocumentChunk{}).Error; err != nil {
			return err
		}
		if err := createChunks(tx, chunks); err != nil {
			return err
		}
		if beforeCommit != nil {
			return beforeCommit()
		}
		return nil
	})
}

// FindByDocumentID 按分块序号返回文档的全部分块。
func (r *chunkRepository) FindByDocumentID(ctx context.Context, documentID uint) ([]*model.DocumentChunk, error) {
	var chunks []*model.DocumentChunk
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	return chunks, err
}

func (r *chunkRepository) FindRetrievable(ctx context.Context, agentID uint, documentIDs []uint, now time.Time) ([]*model.DocumentChunk, error) {
	var chunks []*model.DocumentChunk
	if documentIDs != nil && len(documentIDs) == 0 {
		return chunks, nil
	}

	q := r.db.WithContext(ctx).
		Table("document_chunks AS c").
		Select("c.*").
		Joins("JOIN documents AS d ON d.id = c.document_id").
		Where("c.agent_id = ?", agentID).
		Where("(c.expires_at IS NULL OR c.expires_at > ?)", now).
		Where("(d.expires_at IS NULL OR d.expires_at > ?)", now)
	if documentIDs != nil {
		q = q.Where("c.document_id IN ?", documentIDs)
	}
	err := q.Order("c.document_id ASC").Order("c.chunk_index ASC").Find(&chunks).Error
	return chunks, err
}
