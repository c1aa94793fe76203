// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"

	"canon-rag-go/internal/model"

	"gorm.io/gorm"
)

// DocumentRepository 定义了对 documents 表的数据操作接口。
type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	FindByID(ctx context.Context, id uint) (*model.Document, error)
	FindByIDs(ctx context.Context, ids []uint) ([]*model.Document, error)
	FindByAgentID(ctx context.Context, agentID uint) ([]model.Document, error)
	Update(ctx context.Context, doc *model.Document) error
	// Delete 在同一事务中删除文档及其全部分块。
	Delete(ctx context.Context, id uint) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

// FindByID 未找到时返回 gorm.ErrRecordNotFound。
func (r *documentRepository) FindByID(ctx context.Context, id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindByIDs 批量查询文档，用于给检索结果补充文件名。
func (r *documentRepository) FindByIDs(ctx context.Context, ids []uint) ([]*model.Document, error) {
	var docs []*model.Document
	if len(ids) == 0 {
		return docs, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&docs).Error
	return docs, err
}

func (r *documentRepository) FindByAgentID(ctx context.Context, agentID uint) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.WithContext(ctx).Where("agent_id = ?", agentID).Order("created_at DESC").Find(&docs).Error
	return docs, err
}

func (r *documentRepository) Update(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Save(doc).Error
}

func (r *documentRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&model.DocumentChunk{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Document{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
