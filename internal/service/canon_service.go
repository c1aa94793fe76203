package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"canon-rag-go/internal/model"
	"canon-rag-go/internal/repository"
	"canon-rag-go/pkg/log"

	"gorm.io/datatypes"
)

// CanonService 管理 agent 的正典锁定，并为检索解析允许的文档范围。
type CanonService interface {
	ResolveScope(ctx context.Context, agentID uint) (model.CanonScope, error)
	GetSources(ctx context.Context, agentID uint) ([]uint, error)
	UpdateSources(ctx context.Context, agentID uint, sources []any) ([]uint, error)
}

type canonService struct {
	repo repository.CanonRepository
}

// NewCanonService 创建一个新的 CanonService 实例。
func NewCanonService(repo repository.CanonRepository) CanonService {
	return &canonService{repo: repo}
}

// ResolveScope 没有配置或来源列表为空时不锁定；
// 配置了来源但解析后没有任何合法 ID 时锁定为空集合，检索必须返回空结果。
func (s *canonService) ResolveScope(ctx context.Context, agentID uint) (model.CanonScope, error) {
	settings, err := s.repo.Get(ctx, agentID)
	if err != nil {
		return model.CanonScope{}, fmt.Errorf("查询正典配置失败: %w", err)
	}
	if settings == nil || isEmptySourceList(settings.Sources) {
		return model.CanonScope{}, nil
	}

	ids, err := ParseSourceIDs(settings.Sources)
	if err != nil {
		log.Warnf("[CanonService] agent %d 的正典来源无法解析, 按空列表处理: %v", agentID, err)
		return model.CanonScope{Locked: true, DocumentIDs: []uint{}}, nil
	}
	if len(ids) == 0 {
		log.Warnf("[CanonService] agent %d 的正典来源全部无效, 检索将返回空结果", agentID)
	}
	return model.CanonScope{Locked: true, DocumentIDs: ids}, nil
}

func (s *canonService) GetSources(ctx context.Context, agentID uint) ([]uint, error) {
	settings, err := s.repo.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return []uint{}, nil
	}
	ids, err := ParseSourceIDs(settings.Sources)
	if err != nil {
		return []uint{}, nil
	}
	return ids, nil
}

// UpdateSources 保存来源列表，空列表等同于取消锁定。
func (s *canonService) UpdateSources(ctx context.Context, agentID uint, sources []any) ([]uint, error) {
	if len(sources) == 0 {
		if err := s.repo.Delete(ctx, agentID); err != nil {
			return nil, err
		}
		log.Infof("[CanonService] agent %d 已取消正典锁定", agentID)
		return []uint{}, nil
	}
	raw, err := json.Marshal(sources)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.repo.Upsert(ctx, &model.CanonSettings{AgentID: agentID, Sources: datatypes.JSON(raw)}); err != nil {
		return nil, err
	}
	ids, _ := ParseSourceIDs(raw)
	log.Infof("[CanonService] agent %d 正典来源更新为 %v", agentID, ids)
	return ids, nil
}

func isEmptySourceList(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || string(trimmed) == "null" || string(trimmed) == "[]"
}

// ParseSourceIDs 解析 JSON 数组形式的来源列表。数字和数字字符串都接受，
// 非正数、小数和非数字的条目被丢弃，结果去重并保持原有顺序。
func ParseSourceIDs(raw []byte) ([]uint, error) {
	ids := []uint{}
	if isEmptySourceList(raw) {
		return ids, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var items []any
	if err := dec.Decode(&items); err != nil {
		return ids, err
	}

	seen := make(map[uint]struct{}, len(items))
	for _, item := range items {
		var s string
		switch v := item.(type) {
		case json.Number:
			s = v.String()
		case string:
			s = strings.TrimSpace(v)
		default:
			continue
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil || n == 0 {
			continue
		}
		id := uint(n)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}
