package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"careerkit-go/internal/model"
)

// ErrCorruptData 表示存储中的内容存在但无法解析或校验失败。
var ErrCorruptData = errors.New("corrupt saved responses")

// SavedResponseRepository 以单个键保存整个已保存回答列表（JSON 数组，最新的在前）。
type SavedResponseRepository interface {
	Load(ctx context.Context) ([]model.SavedResponse, error)
	Save(ctx context.Context, items []model.SavedResponse) error
}

type savedResponseRepository struct {
	kv  KVRepository
	key string
}

// NewSavedResponseRepository 创建一个新的 SavedResponseRepository 实例。
func NewSavedResponseRepository(kv KVRepository, key string) SavedResponseRepository {
	return &savedResponseRepository{kv: kv, key: key}
}

// Load 读取并解析整个列表。键不存在时返回空列表；
// 内容无法解析或包含非法记录时返回包装了 ErrCorruptData 的错误，由调用方决定如何降级。
func (r *savedResponseRepository) Load(ctx context.Context) ([]model.SavedResponse, error) {
	raw, found, err := r.kv.Get(ctx, r.key)
	if err != nil {
		return nil, err
	}
	if !found || raw == "" {
		return []model.SavedResponse{}, nil
	}

	var items []model.SavedResponse
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if items == nil {
		// 存储内容为 JSON null
		return nil, fmt.Errorf("%w: value under %q is not an array", ErrCorruptData, r.key)
	}

	seen := make(map[int64]struct{}, len(items))
	for i, item := range items {
		if err := item.Validate(); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrCorruptData, i, err)
		}
		if _, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrCorruptData, item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return items, nil
}

// Save 序列化整个列表并覆盖写入，不做增量对比。
func (r *savedResponseRepository) Save(ctx context.Context, items []model.SavedResponse) error {
	if items == nil {
		items = []model.SavedResponse{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal saved responses: %w", err)
	}
	return r.kv.Set(ctx, r.key, string(data))
}
