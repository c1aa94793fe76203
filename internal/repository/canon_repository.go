package repository

import (
	"context"
	"errors"

	"canon-rag-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CanonRepository 定义了对 canon_settings 表的数据操作接口。
type CanonRepository interface {
	// Get 在 agent 没有配置时返回 (nil, nil)。
	Get(ctx context.Context, agentID uint) (*model.CanonSettings, error)
	Upsert(ctx context.Context, settings *model.CanonSettings) error
	Delete(ctx context.Context, agentID uint) error
}

type canonRepository struct {
	db *gorm.DB
}

// NewCanonRepository 创建一个新的 CanonRepository 实例。
func NewCanonRepository(db *gorm.DB) CanonRepository {
	return &canonRepository{db: db}
}

func (r *canonRepository) Get(ctx context.Context, agentID uint) (*model.CanonSettings, error) {
	var settings model.CanonSettings
	err := r.db.WithContext(ctx).Where("agent_id = ?", agentID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *canonRepository) Upsert(ctx context.Context, settings *model.CanonSettings) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "agent_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"sources", "updated_at"}),
	}).Create(settings).Error
}

func (r *canonRepository) Delete(ctx context.Context, agentID uint) error {
	return r.db.WithContext(ctx).Where("agent_id = ?", agentID).Delete(&model.CanonSettings{}).Error
}
