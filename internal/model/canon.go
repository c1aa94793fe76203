package model

import (
	"time"

	"gorm.io/datatypes"
)

// CanonSettings 对应于 canon_settings 表，记录某个 agent 的"正典锁定"配置。
// Sources 为原始的文档 ID 列表（数字或字符串），解析在服务层完成。
type CanonSettings struct {
	AgentID   uint           `gorm:"primaryKey;autoIncrement:false" json:"agentId"`
	Sources   datatypes.JSON `gorm:"column:sources" json:"sources"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (CanonSettings) TableName() string {
	return "canon_settings"
}

// CanonScope 是一次检索允许访问的文档范围。
// Locked 为 false 时检索该 agent 所有未过期的分块；
// Locked 为 true 且 DocumentIDs 为空时，检索必须返回空结果。
type CanonScope struct {
	Locked      bool   `json:"locked"`
	DocumentIDs []uint `json:"documentIds"`
}

// AllowsNothing 表示锁定后的允许列表为空。
func (s CanonScope) AllowsNothing() bool {
	return s.Locked && len(s.DocumentIDs) == 0
}

// Filter 返回传给存储层的文档过滤条件，未锁定时为 nil。
func (s CanonScope) Filter() []uint {
	if !s.Locked {
		return nil
	}
	return s.DocumentIDs
}
