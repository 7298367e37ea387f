// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"careerkit-go/internal/model"
	"careerkit-go/internal/repository"
	"careerkit-go/internal/view"
	"careerkit-go/pkg/events"
	"careerkit-go/pkg/log"
)

// EventPublisher 发布已保存回答的变更事件。
type EventPublisher interface {
	Publish(ctx context.Context, event events.SavedResponseEvent) error
}

// RenderListener 在每次重新渲染后收到完整的列表片段。
// 它在持有存储锁的情况下被调用，不能阻塞，也不能回调存储。
type RenderListener func(fragment string)

// StoreStatus 描述存储当前的持久化状态。
type StoreStatus struct {
	Count int `json:"count"`
	// Persisted 为 false 表示本进程内写入失败过，之后只保存在内存中。
	Persisted bool `json:"persisted"`
}

// SavedResponseService 维护已保存回答的权威内存列表，并保持持久化存储和渲染视图与之一致。
type SavedResponseService interface {
	Load(ctx context.Context)
	Add(ctx context.Context, tool model.Tool, input, output string) (model.SavedResponse, bool)
	Delete(ctx context.Context, id int64) bool
	Render() string
	List() []model.SavedResponse
	Get(id int64) (model.SavedResponse, bool)
	Status() StoreStatus
	Subscribe(listener RenderListener) (unsubscribe func())
}

// defaultPublishTimeout 限制发布一条变更事件的最长时间，记录此时已经持久化。
const defaultPublishTimeout = 2 * time.Second

type savedResponseService struct {
	repo           repository.SavedResponseRepository
	publisher      EventPublisher
	now            func() time.Time
	publishTimeout time.Duration

	mu        sync.Mutex
	items     []model.SavedResponse
	lastID    int64
	degraded  bool
	listeners map[int]RenderListener
	nextSubID int
}

// NewSavedResponseService 创建一个新的 SavedResponseService。publisher 可以为 nil。
func NewSavedResponseService(repo repository.SavedResponseRepository, publisher EventPublisher) SavedResponseService {
	return newSavedResponseService(repo, publisher, time.Now)
}

func newSavedResponseService(repo repository.SavedResponseRepository, publisher EventPublisher, now func() time.Time) *savedResponseService {
	return &savedResponseService{
		repo:           repo,
		publisher:      publisher,
		now:            now,
		publishTimeout: defaultPublishTimeout,
		items:          []model.SavedResponse{},
		listeners:      make(map[int]RenderListener),
	}
}

// Load 从持久化存储读取整个列表。任何失败都降级为空列表，不会向调用方返回错误。
func (s *savedResponseService) Load(ctx context.Context) {
	items, err := s.repo.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case err == nil:
		s.items = items
	case errors.Is(err, repository.ErrCorruptData):
		log.Warnf("[SavedResponseService] 已保存的数据无法解析，重置为空列表: %v", err)
		s.items = []model.SavedResponse{}
	default:
		// 读取失败时不能确定存储中的内容，继续写入可能覆盖用户数据，因此只保留在内存中
		log.Warnf("[SavedResponseService] 读取存储失败，本次运行仅使用内存: %v", err)
		s.items = []model.SavedResponse{}
		s.degraded = true
	}

	s.lastID = 0
	for _, item := range s.items {
		if item.ID > s.lastID {
			s.lastID = item.ID
		}
	}
	log.Infof("[SavedResponseService] 已加载 %d 条保存的回答", len(s.items))
	s.renderLocked()
}

// Add 在列表头部插入一条新记录。output 为空或只有空白、或 tool 不在枚举内时不做任何事。
func (s *savedResponseService) Add(ctx context.Context, tool model.Tool, input, output string) (model.SavedResponse, bool) {
	if strings.TrimSpace(output) == "" || !tool.Valid() {
		return model.SavedResponse{}, false
	}

	s.mu.Lock()
	now := s.now()
	item := model.SavedResponse{
		ID:        s.nextIDLocked(now),
		Tool:      tool,
		Input:     input,
		Output:    output,
		CreatedAt: now,
	}
	s.items = append([]model.SavedResponse{item}, s.items...)
	s.persistLocked(ctx)
	s.renderLocked()
	s.mu.Unlock()

	s.publish(ctx, events.SavedResponseEvent{
		Type:       events.SavedResponseCreated,
		ID:         item.ID,
		Record:     &item,
		OccurredAt: now,
	})
	return item, true
}

// Delete 删除 ID 匹配的记录，返回是否删除了记录。不存在的 ID 不是错误。
// 无论是否命中，都会重新持久化和渲染。
func (s *savedResponseService) Delete(ctx context.Context, id int64) bool {
	s.mu.Lock()
	kept := make([]model.SavedResponse, 0, len(s.items))
	for _, item := range s.items {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	removed := len(kept) != len(s.items)
	s.items = kept
	s.persistLocked(ctx)
	s.renderLocked()
	s.mu.Unlock()

	if removed {
		s.publish(ctx, events.SavedResponseEvent{
			Type:       events.SavedResponseDeleted,
			ID:         id,
			OccurredAt: s.now(),
		})
	}
	return removed
}

// Render 根据当前内存状态生成列表片段，不修改任何状态。
func (s *savedResponseService) Render() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renderFragmentLocked()
}

// List 返回列表的副本，最新的在前。
func (s *savedResponseService) List() []model.SavedResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.SavedResponse, len(s.items))
	copy(out, s.items)
	return out
}

func (s *savedResponseService) Get(id int64) (model.SavedResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return model.SavedResponse{}, false
}

func (s *savedResponseService) Status() StoreStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StoreStatus{Count: len(s.items), Persisted: !s.degraded}
}

// Subscribe 注册一个渲染监听器，返回取消注册的函数。
func (s *savedResponseService) Subscribe(listener RenderListener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.listeners[id] = listener
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// nextIDLocked 以毫秒时间戳为基础生成 ID，并保证严格大于之前的所有 ID，
// 同一毫秒内创建的两条记录也不会冲突。
func (s *savedResponseService) nextIDLocked(now time.Time) int64 {
	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

// persistLocked 覆盖写入整个列表。写入失败后切换为仅内存模式，内存状态始终保持权威。
func (s *savedResponseService) persistLocked(ctx context.Context) {
	if s.degraded {
		return
	}
	if err := s.repo.Save(ctx, s.items); err != nil {
		log.Warnf("[SavedResponseService] 持久化失败，本次运行后续修改仅保存在内存中: %v", err)
		s.degraded = true
	}
}

func (s *savedResponseService) renderFragmentLocked() string {
	fragment, err := view.RenderSavedList(s.items)
	if err != nil {
		log.Errorf("[SavedResponseService] 渲染列表失败: %v", err)
		return ""
	}
	return fragment
}

func (s *savedResponseService) renderLocked() {
	fragment := s.renderFragmentLocked()
	for _, listener := range s.listeners {
		listener(fragment)
	}
}

func (s *savedResponseService) publish(ctx context.Context, event events.SavedResponseEvent) {
	if s.publisher == nil {
		return
	}
	// 请求结束不取消发布，但发布不能无限拖住请求
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Warnf("[SavedResponseService] 发布事件失败: type=%s id=%d error=%v", event.Type, event.ID, err)
	}
}
