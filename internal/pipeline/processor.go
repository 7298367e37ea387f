// Package pipeline 定义了收藏事件的后台处理流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"careerkit-go/internal/model"
	"careerkit-go/pkg/events"
	"careerkit-go/pkg/log"
)

// SearchIndex 是 Processor 写入的搜索索引。
type SearchIndex interface {
	Upsert(ctx context.Context, r model.SavedResponse) error
	Remove(ctx context.Context, id int64) error
}

// Processor 把 Kafka 中的收藏事件同步到搜索索引。
type Processor struct {
	index SearchIndex
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(index SearchIndex) *Processor {
	return &Processor{index: index}
}

// Process 处理单条事件。未知类型的事件被记录并跳过。
func (p *Processor) Process(ctx context.Context, event events.SavedResponseEvent) error {
	log.Infof("[Processor] 开始处理事件, Type: %s, ID: %d", event.Type, event.ID)

	switch event.Type {
	case events.SavedResponseCreated:
		if event.Record == nil {
			return errors.New("created event has no record")
		}
		if err := p.index.Upsert(ctx, *event.Record); err != nil {
			log.Errorf("[Processor] 索引收藏 %d 失败, Error: %v", event.ID, err)
			return fmt.Errorf("索引收藏 %d 失败: %w", event.ID, err)
		}
	case events.SavedResponseDeleted:
		if err := p.index.Remove(ctx, event.ID); err != nil {
			log.Errorf("[Processor] 删除索引 %d 失败, Error: %v", event.ID, err)
			return fmt.Errorf("删除索引 %d 失败: %w", event.ID, err)
		}
	default:
		log.Warnf("[Processor] 未知事件类型 '%s', 已跳过", event.Type)
		return nil
	}

	log.Infof("[Processor] 事件处理成功, ID: %d", event.ID)
	return nil
}

// Publish 让 Processor 在未启用 Kafka 时直接作为事件发布者使用，事件被同步处理。
func (p *Processor) Publish(ctx context.Context, event events.SavedResponseEvent) error {
	return p.Process(ctx, event)
}

// Reindex 把启动时加载的全部记录写入索引，已存在的文档会被覆盖。
func (p *Processor) Reindex(ctx context.Context, items []model.SavedResponse) error {
	for _, r := range items {
		if err := p.index.Upsert(ctx, r); err != nil {
			return fmt.Errorf("重建索引失败, ID %d: %w", r.ID, err)
		}
	}
	log.Infof("[Processor] 重建索引完成, 共 %d 条", len(items))
	return nil
}
