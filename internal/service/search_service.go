package service

import (
	"context"
	"strings"

	"careerkit-go/internal/model"
	"careerkit-go/pkg/log"
)

// defaultSearchSize 是一次搜索返回的最大条数。
const defaultSearchSize = 20

// IDSearcher 是全文索引的查询端，返回按相关性排序的记录 ID。
type IDSearcher interface {
	Search(ctx context.Context, query string, size int) ([]int64, error)
}

// SearchService 在已保存的回答中搜索。
type SearchService interface {
	Search(ctx context.Context, query string) ([]model.SavedResponse, error)
}

type searchService struct {
	store    SavedResponseService
	searcher IDSearcher
}

// NewSearchService 创建一个新的 SearchService。searcher 为 nil 时在内存列表中做子串匹配。
func NewSearchService(store SavedResponseService, searcher IDSearcher) SearchService {
	return &searchService{store: store, searcher: searcher}
}

// Search 返回与 query 匹配的记录。空查询返回完整列表。
// 索引中存在但已被删除的记录会被过滤掉。
func (s *searchService) Search(ctx context.Context, query string) ([]model.SavedResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.store.List(), nil
	}
	if s.searcher == nil {
		return s.scan(query), nil
	}

	ids, err := s.searcher.Search(ctx, query, defaultSearchSize)
	if err != nil {
		log.Warnf("[SearchService] 索引查询失败, 回退到内存匹配: %v", err)
		return s.scan(query), nil
	}
	results := make([]model.SavedResponse, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.store.Get(id); ok {
			results = append(results, r)
		}
	}
	return results, nil
}

func (s *searchService) scan(query string) []model.SavedResponse {
	q := strings.ToLower(query)
	results := make([]model.SavedResponse, 0)
	for _, r := range s.store.List() {
		if strings.Contains(strings.ToLower(r.Input), q) ||
			strings.Contains(strings.ToLower(r.Output), q) ||
			strings.Contains(string(r.Tool), q) {
			results = append(results, r)
			if len(results) == defaultSearchSize {
				break
			}
		}
	}
	return results
}
