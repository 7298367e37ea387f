package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"careerkit-go/pkg/log"
)

// ErrExportDisabled 表示未配置对象存储。
var ErrExportDisabled = errors.New("export is not configured")

// ObjectWriter 把一个 JSON 对象写入对象存储并返回可下载的地址。
type ObjectWriter interface {
	PutJSON(ctx context.Context, objectName string, data []byte) (string, error)
}

// ExportResult 描述一次导出。
type ExportResult struct {
	Object string `json:"object"`
	URL    string `json:"url"`
	Count  int    `json:"count"`
}

// ExportService 把当前收藏列表快照写入对象存储。
type ExportService interface {
	Export(ctx context.Context) (ExportResult, error)
}

type exportService struct {
	store  SavedResponseService
	writer ObjectWriter
	now    func() time.Time
}

// NewExportService 创建一个新的 ExportService。writer 为 nil 时 Export 返回 ErrExportDisabled。
func NewExportService(store SavedResponseService, writer ObjectWriter) ExportService {
	return &exportService{store: store, writer: writer, now: time.Now}
}

// Export 以与持久化相同的 JSON 格式导出快照。
func (s *exportService) Export(ctx context.Context) (ExportResult, error) {
	if s.writer == nil {
		return ExportResult{}, ErrExportDisabled
	}
	items := s.store.List()
	data, err := json.Marshal(items)
	if err != nil {
		return ExportResult{}, err
	}
	object := fmt.Sprintf("exports/saved-responses-%d.json", s.now().UnixMilli())
	url, err := s.writer.PutJSON(ctx, object, data)
	if err != nil {
		log.Errorf("[ExportService] 导出到对象存储失败, Object: %s, Error: %v", object, err)
		return ExportResult{}, fmt.Errorf("导出失败: %w", err)
	}
	log.Infof("[ExportService] 导出 %d 条收藏到 %s", len(items), object)
	return ExportResult{Object: object, URL: url, Count: len(items)}, nil
}
